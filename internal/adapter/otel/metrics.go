package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "torbit"

// Metrics holds all Torbit metric instruments.
type Metrics struct {
	ExecutionsOpened metric.Int64Counter
	ExecutionsClosed metric.Int64Counter
	Charges          metric.Int64Counter
	ChargedAmount    metric.Int64Counter
	HoldsOpened      metric.Int64Counter
	HoldsFinalized   metric.Int64Counter
	HoldsRefunded    metric.Int64Counter
	BreakerTrips     metric.Int64Counter
	FinalSpend       metric.Int64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ExecutionsOpened, err = meter.Int64Counter("torbit.executions.opened",
		metric.WithDescription("Number of execution accounts opened"))
	if err != nil {
		return nil, err
	}

	m.ExecutionsClosed, err = meter.Int64Counter("torbit.executions.closed",
		metric.WithDescription("Number of execution accounts closed"))
	if err != nil {
		return nil, err
	}

	m.Charges, err = meter.Int64Counter("torbit.charges",
		metric.WithDescription("Number of eager charges recorded"))
	if err != nil {
		return nil, err
	}

	m.ChargedAmount, err = meter.Int64Counter("torbit.charged.amount",
		metric.WithDescription("Total charged amount in base currency units"))
	if err != nil {
		return nil, err
	}

	m.HoldsOpened, err = meter.Int64Counter("torbit.holds.opened",
		metric.WithDescription("Number of holds opened"))
	if err != nil {
		return nil, err
	}

	m.HoldsFinalized, err = meter.Int64Counter("torbit.holds.finalized",
		metric.WithDescription("Number of holds finalized"))
	if err != nil {
		return nil, err
	}

	m.HoldsRefunded, err = meter.Int64Counter("torbit.holds.refunded",
		metric.WithDescription("Number of holds refunded"))
	if err != nil {
		return nil, err
	}

	m.BreakerTrips, err = meter.Int64Counter("torbit.breaker.trips",
		metric.WithDescription("Number of circuit breaker trips"))
	if err != nil {
		return nil, err
	}

	m.FinalSpend, err = meter.Int64Histogram("torbit.execution.final_spend",
		metric.WithDescription("Finalized spend per closed execution"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
