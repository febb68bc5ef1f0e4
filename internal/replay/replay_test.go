package replay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/bankex/internal/ledger"
	"github.com/congo-pay/bankex/internal/logging"
	"github.com/congo-pay/bankex/internal/reader"
	"github.com/congo-pay/bankex/internal/report"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func replay(t *testing.T, records []ledger.Transaction, opts ...ledger.Option) ledger.Ledger {
	t.Helper()
	batch, err := Classify(records, logging.Discard())
	require.NoError(t, err)
	l := ledger.NewInMemory(opts...)
	_, err = Run(context.Background(), l, batch, logging.Discard())
	require.NoError(t, err)
	return l
}

func requireAccount(t *testing.T, l ledger.Ledger, client uint16, available, held string, locked bool) {
	t.Helper()
	for _, acct := range l.Snapshot(context.Background()) {
		if acct.ClientID == client {
			require.True(t, acct.Available.Equal(d(available)), "client %d available %s", client, acct.Available)
			require.True(t, acct.Held.Equal(d(held)), "client %d held %s", client, acct.Held)
			require.True(t, acct.Total().Equal(d(available).Add(d(held))))
			require.Equal(t, locked, acct.Locked)
			return
		}
	}
	t.Fatalf("client %d missing from snapshot", client)
}

func TestClassifyOrdersMovements(t *testing.T) {
	records := []ledger.Transaction{
		ledger.Deposit(1, 5, d("2.0")),
		ledger.Dispute(1, 5),
		ledger.Withdrawal(1, 3, d("1.0")),
		ledger.Chargeback(1, 3),
		ledger.Resolve(1, 5),
		ledger.Dispute(1, 3),
		ledger.Deposit(2, 4, d("1.0")),
	}
	batch, err := Classify(records, nil)
	require.NoError(t, err)
	require.Equal(t, 7, batch.Len())

	var ids []uint32
	for _, m := range batch.Movements {
		id, _ := m.TxID()
		ids = append(ids, id)
	}
	require.Equal(t, []uint32{3, 4, 5}, ids)
	require.Len(t, batch.Disputes, 2)
	require.Equal(t, uint32(5), *batch.Disputes[0].Tx)
	require.Equal(t, uint32(3), *batch.Disputes[1].Tx)
	require.Len(t, batch.Resolves, 1)
	require.Len(t, batch.Chargebacks, 1)
}

func TestClassifyDuplicateMovementFirstWins(t *testing.T) {
	batch, err := Classify([]ledger.Transaction{
		ledger.Deposit(1, 1, d("1")),
		ledger.Withdrawal(1, 1, d("9")),
	}, nil)
	require.NoError(t, err)
	require.Len(t, batch.Movements, 1)
	require.Equal(t, ledger.KindDeposit, batch.Movements[0].Kind)
}

func TestClassifyMissingTransactionID(t *testing.T) {
	rec := ledger.Dispute(1, 1)
	rec.Tx = nil
	_, err := Classify([]ledger.Transaction{ledger.Deposit(1, 1, d("1")), rec}, nil)
	require.ErrorIs(t, err, ledger.ErrMissingTransactionID)
}

func TestReplayDepositsAndWithdrawals(t *testing.T) {
	l := replay(t, []ledger.Transaction{
		ledger.Deposit(1, 1, d("1.0")),
		ledger.Deposit(2, 2, d("2.0")),
		ledger.Deposit(1, 3, d("2.0")),
		ledger.Withdrawal(1, 4, d("1.5")),
		ledger.Withdrawal(2, 5, d("3.0")),
	})
	requireAccount(t, l, 1, "1.5", "0", false)
	requireAccount(t, l, 2, "2.0", "0", false)
}

func TestReplayDisputeResolveChargeback(t *testing.T) {
	base := []ledger.Transaction{
		ledger.Deposit(1, 1, d("5.0")),
		ledger.Dispute(1, 1),
	}
	requireAccount(t, replay(t, base), 1, "0", "5.0", false)

	resolved := append(append([]ledger.Transaction{}, base...), ledger.Resolve(1, 1))
	requireAccount(t, replay(t, resolved), 1, "5.0", "0", false)

	charged := append(append([]ledger.Transaction{}, base...), ledger.Chargeback(1, 1))
	requireAccount(t, replay(t, charged), 1, "0", "5.0", false)

	requireAccount(t, replay(t, charged, ledger.WithChargebackPolicy(ledger.ChargebackFromHeld)), 1, "0", "0", true)
}

// A withdrawal with a lower tx id runs before the deposit that would fund it.
func TestReplayOrdersByTransactionID(t *testing.T) {
	l := replay(t, []ledger.Transaction{
		ledger.Deposit(1, 5, d("2.0")),
		ledger.Withdrawal(1, 3, d("1.0")),
	})
	requireAccount(t, l, 1, "2.0", "0", false)

	l = replay(t, []ledger.Transaction{
		ledger.Deposit(1, 3, d("2.0")),
		ledger.Withdrawal(1, 5, d("1.0")),
	})
	requireAccount(t, l, 1, "1.0", "0", false)
}

// Disputes run after every movement even when they arrive first.
func TestReplayBatchesByKind(t *testing.T) {
	l := replay(t, []ledger.Transaction{
		ledger.Deposit(1, 1, d("3")),
		ledger.Chargeback(1, 1),
		ledger.Dispute(1, 2),
		ledger.Deposit(1, 2, d("1")),
	})
	requireAccount(t, l, 1, "0", "1", true)
}

func TestRunSkipsFailedWithdrawals(t *testing.T) {
	batch, err := Classify([]ledger.Transaction{
		ledger.Withdrawal(1, 1, d("1")),
		ledger.Deposit(1, 2, d("1")),
		ledger.Withdrawal(1, 3, d("5")),
	}, nil)
	require.NoError(t, err)

	l := ledger.NewInMemory()
	stats, err := Run(context.Background(), l, batch, nil)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Skipped[ledger.KindWithdrawal])
	require.Equal(t, 1, stats.Processed[ledger.KindDeposit])
	requireAccount(t, l, 1, "1", "0", false)
}

func TestRunAbortsOnIllegalState(t *testing.T) {
	bad := ledger.Withdrawal(1, 2, d("1"))
	bad.Amount = decimal.NullDecimal{}
	batch, err := Classify([]ledger.Transaction{
		ledger.Deposit(1, 1, d("1")),
		bad,
		ledger.Deposit(1, 3, d("1")),
	}, nil)
	require.NoError(t, err)

	l := ledger.NewInMemory()
	_, err = Run(context.Background(), l, batch, nil)
	require.ErrorIs(t, err, ledger.ErrIllegalState)
	requireAccount(t, l, 1, "1", "0", false)
}

func TestRunAbortsOnDuplicateDeposit(t *testing.T) {
	l := ledger.NewInMemory()
	batch := Batch{Movements: []ledger.Transaction{
		ledger.Deposit(1, 1, d("1")),
		ledger.Deposit(1, 1, d("1")),
	}}
	_, err := Run(context.Background(), l, batch, nil)
	require.True(t, errors.Is(err, ledger.ErrDuplicateTransaction))
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, ledger.NewInMemory(), Batch{Movements: []ledger.Transaction{ledger.Deposit(1, 1, d("1"))}}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReplayIsDeterministic(t *testing.T) {
	input := `type, client, tx, amount
deposit, 1, 1, 10.0
deposit, 2, 2, 3.33333
withdrawal, 1, 3, 4
dispute, 2, 2,
deposit, 3, 4, 1
chargeback, 3, 4
withdrawal, 2, 5, 1
resolve, 2, 2,
`
	run := func() string {
		records, err := reader.Read(strings.NewReader(input), reader.Options{})
		require.NoError(t, err)
		l := replay(t, records)
		return report.Digest(l.Snapshot(context.Background()))
	}
	require.Equal(t, run(), run())
}

func TestReplayNegativeWithdrawalCannotBeDisputed(t *testing.T) {
	input := "type,client,tx,amount\ndeposit,1,1,1.0\nwithdrawal,1,2,-5.0\ndispute,1,2,\nresolve,1,2,\nchargeback,1,2,\n"
	records, err := reader.Read(strings.NewReader(input), reader.Options{})
	require.NoError(t, err)

	for _, policy := range []ledger.ChargebackPolicy{ledger.ChargebackFromAvailable, ledger.ChargebackFromHeld} {
		l := replay(t, records, ledger.WithChargebackPolicy(policy))
		requireAccount(t, l, 1, "1.0", "0", false)
	}
}

func TestReplayKeepsInvariants(t *testing.T) {
	records := []ledger.Transaction{
		ledger.Deposit(1, 1, d("4")),
		ledger.Deposit(1, 2, d("6")),
		ledger.Withdrawal(1, 3, d("7")),
		ledger.Withdrawal(1, 4, d("5")),
		ledger.Dispute(1, 2),
		ledger.Dispute(1, 1),
		ledger.Resolve(1, 1),
		ledger.Resolve(1, 2),
		ledger.Chargeback(1, 1),
	}
	batch, err := Classify(records, nil)
	require.NoError(t, err)

	l := ledger.NewInMemory()
	for _, group := range [][]ledger.Transaction{batch.Movements, batch.Disputes, batch.Resolves, batch.Chargebacks} {
		for _, tx := range group {
			_, err := Run(context.Background(), l, Batch{Movements: []ledger.Transaction{tx}}, nil)
			require.NoError(t, err)
			for _, acct := range l.Snapshot(context.Background()) {
				require.False(t, acct.Available.IsNegative(), "available went negative after %s", tx)
				require.False(t, acct.Held.IsNegative(), "held went negative after %s", tx)
				require.True(t, acct.Total().Equal(acct.Available.Add(acct.Held)))
			}
		}
	}
}
