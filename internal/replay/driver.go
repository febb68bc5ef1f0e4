package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/bankex/internal/ledger"
	"github.com/congo-pay/bankex/internal/logging"
)

// Stats counts the outcome of a replay per transaction kind. Processed
// includes dispute-family records that turned out to be no-ops.
type Stats struct {
	Processed map[ledger.Kind]int
	Skipped   map[ledger.Kind]int
}

func newStats() Stats {
	return Stats{Processed: make(map[ledger.Kind]int), Skipped: make(map[ledger.Kind]int)}
}

// LogValue renders the counters as a flat group.
func (s Stats) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 2*len(s.Processed))
	for k := ledger.KindDeposit; k <= ledger.KindChargeback; k++ {
		attrs = append(attrs, slog.Int(k.String()+"_processed", s.Processed[k]))
		if n := s.Skipped[k]; n > 0 {
			attrs = append(attrs, slog.Int(k.String()+"_skipped", n))
		}
	}
	return slog.GroupValue(attrs...)
}

// Run applies the batch to l. A failed withdrawal is logged and skipped; any
// other error aborts the replay. Cancellation is honoured between records.
func Run(ctx context.Context, l ledger.Ledger, b Batch, logger *slog.Logger) (Stats, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	stats := newStats()

	groups := [][]ledger.Transaction{b.Movements, b.Disputes, b.Resolves, b.Chargebacks}
	for _, group := range groups {
		for _, tx := range group {
			if err := ctx.Err(); err != nil {
				return stats, fmt.Errorf("replay interrupted: %w", err)
			}
			err := l.Process(ctx, tx)
			switch {
			case err == nil:
				stats.Processed[tx.Kind]++
			case tx.Kind == ledger.KindWithdrawal && recoverable(err):
				stats.Skipped[tx.Kind]++
				logger.InfoContext(ctx, "skipping withdrawal transaction", "transaction", tx.String(), "reason", err.Error())
			default:
				return stats, fmt.Errorf("process %s: %w", tx, err)
			}
		}
	}
	return stats, nil
}

func recoverable(err error) bool {
	return errors.Is(err, ledger.ErrInsufficientFunds) || errors.Is(err, ledger.ErrDuplicateTransaction)
}
