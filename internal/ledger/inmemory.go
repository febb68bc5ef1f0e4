package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/bankex/internal/logging"
)

type inMemoryLedger struct {
	mu        sync.RWMutex
	accounts  map[uint16]*Account
	movements map[uint32]Transaction
	policy    ChargebackPolicy
	logger    *slog.Logger
}

// Option customises an in-memory ledger.
type Option func(*inMemoryLedger)

// WithLogger routes transaction traces and skip reasons to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *inMemoryLedger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithChargebackPolicy selects the balance a chargeback draws from.
func WithChargebackPolicy(policy ChargebackPolicy) Option {
	return func(l *inMemoryLedger) { l.policy = policy }
}

// NewInMemory creates an empty ledger engine. One engine serves one replay.
func NewInMemory(opts ...Option) Ledger {
	l := &inMemoryLedger{
		accounts:  make(map[uint16]*Account),
		movements: make(map[uint32]Transaction),
		policy:    ChargebackFromAvailable,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *inMemoryLedger) Process(ctx context.Context, tx Transaction) error {
	client, ok := tx.ClientID()
	if !ok {
		return ErrMissingClientID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if acct, exists := l.accounts[client]; exists && acct.Locked {
		l.logger.DebugContext(ctx, "account locked, ignoring transaction", "client", client, "transaction", tx.String())
		return nil
	}

	if err := Verify(tx); err != nil {
		return err
	}

	l.logger.DebugContext(ctx, "incoming transaction", "transaction", tx.String(), "account", l.describe(client))

	var err error
	switch tx.Kind {
	case KindDeposit:
		err = l.deposit(client, *tx.Tx, tx)
	case KindWithdrawal:
		err = l.withdraw(client, *tx.Tx, tx)
	case KindDispute:
		l.dispute(ctx, client, *tx.Tx)
	case KindResolve:
		l.resolve(ctx, client, *tx.Tx)
	case KindChargeback:
		l.chargeback(ctx, client, *tx.Tx)
	}
	if err != nil {
		return err
	}

	l.logger.DebugContext(ctx, "after transaction", "transaction", tx.String(), "account", l.describe(client))
	return nil
}

func (l *inMemoryLedger) deposit(client uint16, txID uint32, tx Transaction) error {
	if _, exists := l.movements[txID]; exists {
		return fmt.Errorf("deposit tx %d: %w", txID, ErrDuplicateTransaction)
	}
	amount := tx.Amount.Decimal
	if amount.IsNegative() {
		return fmt.Errorf("deposit tx %d of %s: %w", txID, amount, ErrInsufficientFunds)
	}
	l.movements[txID] = tx

	acct := l.account(client)
	acct.Available = acct.Available.Add(amount)
	return nil
}

// withdraw records the movement id before the funds check, so a rejected
// withdrawal still occupies its id and remains a dispute target.
func (l *inMemoryLedger) withdraw(client uint16, txID uint32, tx Transaction) error {
	if _, exists := l.movements[txID]; exists {
		return fmt.Errorf("withdrawal tx %d: %w", txID, ErrDuplicateTransaction)
	}
	l.movements[txID] = tx

	amount := tx.Amount.Decimal
	acct, exists := l.accounts[client]
	if !exists {
		return fmt.Errorf("withdrawal tx %d: client %d has no account: %w", txID, client, ErrInsufficientFunds)
	}
	if amount.IsNegative() || amount.GreaterThan(acct.Available) {
		return fmt.Errorf("withdrawal tx %d of %s exceeds available %s: %w", txID, amount, acct.Available, ErrInsufficientFunds)
	}
	acct.Available = acct.Available.Sub(amount)
	return nil
}

func (l *inMemoryLedger) dispute(ctx context.Context, client uint16, txID uint32) {
	acct, amount, ok := l.referenced(ctx, KindDispute, client, txID)
	if !ok {
		return
	}
	if amount.GreaterThan(acct.Available) {
		l.skip(ctx, KindDispute, client, txID, "amount exceeds available", amount)
		return
	}
	acct.Available = acct.Available.Sub(amount)
	acct.Held = acct.Held.Add(amount)
}

func (l *inMemoryLedger) resolve(ctx context.Context, client uint16, txID uint32) {
	acct, amount, ok := l.referenced(ctx, KindResolve, client, txID)
	if !ok {
		return
	}
	if amount.GreaterThan(acct.Held) {
		l.skip(ctx, KindResolve, client, txID, "amount exceeds held", amount)
		return
	}
	acct.Held = acct.Held.Sub(amount)
	acct.Available = acct.Available.Add(amount)
}

func (l *inMemoryLedger) chargeback(ctx context.Context, client uint16, txID uint32) {
	acct, amount, ok := l.referenced(ctx, KindChargeback, client, txID)
	if !ok {
		return
	}
	switch l.policy {
	case ChargebackFromHeld:
		if amount.GreaterThan(acct.Held) {
			l.skip(ctx, KindChargeback, client, txID, "amount exceeds held", amount)
			return
		}
		acct.Held = acct.Held.Sub(amount)
	default:
		if amount.GreaterThan(acct.Available) {
			l.skip(ctx, KindChargeback, client, txID, "amount exceeds available", amount)
			return
		}
		acct.Available = acct.Available.Sub(amount)
	}
	acct.Locked = true
	l.logger.InfoContext(ctx, "account locked by chargeback", "client", client, "tx", txID, "amount", amount.String())
}

// referenced resolves the movement a dispute-family record points at. A
// missing movement, a client mismatch, a negative amount (only a rejected
// withdrawal can carry one) or a missing account is a silent skip.
func (l *inMemoryLedger) referenced(ctx context.Context, kind Kind, client uint16, txID uint32) (*Account, decimal.Decimal, bool) {
	original, exists := l.movements[txID]
	if !exists {
		l.skip(ctx, kind, client, txID, "referenced transaction not found", decimal.Zero)
		return nil, decimal.Zero, false
	}
	if owner, _ := original.ClientID(); owner != client {
		l.skip(ctx, kind, client, txID, "referenced transaction belongs to another client", decimal.Zero)
		return nil, decimal.Zero, false
	}
	amount := original.Amount.Decimal
	if amount.IsNegative() {
		l.skip(ctx, kind, client, txID, "referenced amount is negative", amount)
		return nil, decimal.Zero, false
	}
	acct, exists := l.accounts[client]
	if !exists {
		l.skip(ctx, kind, client, txID, "client has no account", decimal.Zero)
		return nil, decimal.Zero, false
	}
	return acct, amount, true
}

func (l *inMemoryLedger) skip(ctx context.Context, kind Kind, client uint16, txID uint32, reason string, amount decimal.Decimal) {
	l.logger.InfoContext(ctx, "skipping transaction",
		"kind", kind.String(),
		"client", client,
		"tx", txID,
		"amount", amount.String(),
		"reason", reason,
	)
}

func (l *inMemoryLedger) account(client uint16) *Account {
	acct, exists := l.accounts[client]
	if !exists {
		acct = &Account{ClientID: client}
		l.accounts[client] = acct
	}
	return acct
}

func (l *inMemoryLedger) describe(client uint16) string {
	acct, exists := l.accounts[client]
	if !exists {
		return "none"
	}
	return fmt.Sprintf("available=%s held=%s total=%s locked=%t", acct.Available, acct.Held, acct.Total(), acct.Locked)
}

func (l *inMemoryLedger) lookup(client uint16) (Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, exists := l.accounts[client]
	if !exists {
		return Account{}, fmt.Errorf("client %d: %w", client, ErrUnknownClient)
	}
	return *acct, nil
}

func (l *inMemoryLedger) Available(_ context.Context, client uint16) (decimal.Decimal, error) {
	acct, err := l.lookup(client)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Available, nil
}

func (l *inMemoryLedger) Held(_ context.Context, client uint16) (decimal.Decimal, error) {
	acct, err := l.lookup(client)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Held, nil
}

func (l *inMemoryLedger) Total(_ context.Context, client uint16) (decimal.Decimal, error) {
	acct, err := l.lookup(client)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Total(), nil
}

func (l *inMemoryLedger) ClientIDs(_ context.Context) []uint16 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]uint16, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns copies of every account ordered by client id.
func (l *inMemoryLedger) Snapshot(ctx context.Context) []Account {
	ids := l.ClientIDs(ctx)
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Account, 0, len(ids))
	for _, id := range ids {
		if acct, ok := l.accounts[id]; ok {
			out = append(out, *acct)
		}
	}
	return out
}
