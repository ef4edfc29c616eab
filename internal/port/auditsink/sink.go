// Package auditsink defines the port for handing closed execution
// summaries to the external audit-history collaborator.
package auditsink

import (
	"context"

	"github.com/RedBackRubbish/torbit/internal/domain/ledger"
)

// Sink receives terminal execution summaries. Implementations must treat
// the summary as immutable and hand it off verbatim; the metering engine
// never persists summaries itself.
type Sink interface {
	// RecordSummary delivers the terminal snapshot of a closed execution.
	RecordSummary(ctx context.Context, s ledger.Summary) error

	// RecordExceeded notifies that an execution crossed its budget limit.
	RecordExceeded(ctx context.Context, status ledger.Status) error
}
