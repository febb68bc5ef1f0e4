// Package replay groups decoded records by kind and applies them to a ledger
// in batch order: movements by ascending tx id, then disputes, resolves and
// chargebacks in arrival order.
package replay

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/congo-pay/bankex/internal/ledger"
	"github.com/congo-pay/bankex/internal/logging"
)

// Batch is the classified form of a record stream.
type Batch struct {
	Movements   []ledger.Transaction
	Disputes    []ledger.Transaction
	Resolves    []ledger.Transaction
	Chargebacks []ledger.Transaction
}

// Len is the number of records held by the batch.
func (b Batch) Len() int {
	return len(b.Movements) + len(b.Disputes) + len(b.Resolves) + len(b.Chargebacks)
}

// Classify partitions records by kind. Movements sharing a tx id keep the
// first occurrence; later ones are dropped and logged.
func Classify(records []ledger.Transaction, logger *slog.Logger) (Batch, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	var b Batch
	seen := make(map[uint32]struct{})
	for i, rec := range records {
		id, ok := rec.TxID()
		if !ok {
			return Batch{}, fmt.Errorf("record %d (%s): %w", i+1, rec.Kind, ledger.ErrMissingTransactionID)
		}
		switch rec.Kind {
		case ledger.KindDeposit, ledger.KindWithdrawal:
			if _, dup := seen[id]; dup {
				logger.Warn("dropping duplicate movement", "record", i+1, "tx", id, "kind", rec.Kind.String())
				continue
			}
			seen[id] = struct{}{}
			b.Movements = append(b.Movements, rec)
		case ledger.KindDispute:
			b.Disputes = append(b.Disputes, rec)
		case ledger.KindResolve:
			b.Resolves = append(b.Resolves, rec)
		case ledger.KindChargeback:
			b.Chargebacks = append(b.Chargebacks, rec)
		default:
			return Batch{}, fmt.Errorf("record %d: unsupported %s", i+1, rec.Kind)
		}
	}

	sort.Slice(b.Movements, func(i, j int) bool {
		return *b.Movements[i].Tx < *b.Movements[j].Tx
	})
	return b, nil
}
