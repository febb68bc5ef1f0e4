package ledger

import "fmt"

// Verify checks the structural validity of a record before it is applied.
// Every failure wraps ErrIllegalState.
func Verify(tx Transaction) error {
	if tx.Client == nil || tx.Tx == nil {
		return fmt.Errorf("%w: %s requires client and tx ids", ErrIllegalState, tx.Kind)
	}
	switch tx.Kind {
	case KindDeposit, KindWithdrawal:
		if !tx.Amount.Valid {
			return fmt.Errorf("%w: %s tx %d has no amount", ErrIllegalState, tx.Kind, *tx.Tx)
		}
	case KindDispute, KindResolve, KindChargeback:
		if tx.Amount.Valid {
			return fmt.Errorf("%w: %s tx %d must not carry an amount", ErrIllegalState, tx.Kind, *tx.Tx)
		}
	default:
		return fmt.Errorf("%w: unsupported %s", ErrIllegalState, tx.Kind)
	}
	return nil
}
