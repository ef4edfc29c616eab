// Package nats implements the audit sink port using NATS JetStream. Closed
// execution summaries and budget-exceeded notices are published for the
// audit-history collaborator to consume; the engine itself persists nothing.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/RedBackRubbish/torbit/internal/domain/ledger"
)

const streamName = "TORBIT"

const (
	subjectClosed   = "executions.closed"
	subjectExceeded = "executions.exceeded"
)

// Sink implements auditsink.Sink using NATS JetStream.
type Sink struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url string) (*Sink, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"executions.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Sink{nc: nc, js: js}, nil
}

// RecordSummary publishes a closed execution's summary.
func (s *Sink) RecordSummary(ctx context.Context, sum ledger.Summary) error {
	return s.publish(ctx, subjectClosed, sum)
}

// RecordExceeded publishes a budget-exceeded notice.
func (s *Sink) RecordExceeded(ctx context.Context, status ledger.Status) error {
	return s.publish(ctx, subjectExceeded, status)
}

func (s *Sink) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("nats marshal %s: %w", subject, err)
	}
	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// KeyValue creates or binds a JetStream KV bucket with the given TTL.
func (s *Sink) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := s.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("jetstream kv %s: %w", bucket, err)
	}
	return kv, nil
}

// Close shuts down the NATS connection.
func (s *Sink) Close() error {
	s.nc.Close()
	return nil
}
