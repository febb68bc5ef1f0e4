package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrMissingClientID occurs when a transaction reaches the engine without a client identifier.
	ErrMissingClientID = errors.New("missing client id")

	// ErrMissingTransactionID occurs when a record carries no transaction identifier.
	ErrMissingTransactionID = errors.New("missing transaction id")

	// ErrDuplicateTransaction indicates the transaction identifier was already
	// recorded by an earlier deposit or withdrawal.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrInsufficientFunds occurs when a withdrawal exceeds the available balance
	// or targets a client without an account.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrIllegalState marks a structurally invalid record. Replays treat it as fatal.
	ErrIllegalState = errors.New("illegal state")

	// ErrUnknownClient is returned by balance queries for a client that has no account.
	ErrUnknownClient = errors.New("unknown client")
)

// Kind enumerates the transaction types understood by the engine.
type Kind int

const (
	KindDeposit Kind = iota
	KindWithdrawal
	KindDispute
	KindResolve
	KindChargeback
)

var kindNames = [...]string{
	KindDeposit:    "deposit",
	KindWithdrawal: "withdrawal",
	KindDispute:    "dispute",
	KindResolve:    "resolve",
	KindChargeback: "chargeback",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// IsMovement reports whether the kind moves funds and owns a transaction id.
func (k Kind) IsMovement() bool {
	return k == KindDeposit || k == KindWithdrawal
}

// ParseKind maps the textual type column of a record to a Kind.
func ParseKind(s string) (Kind, error) {
	word := strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == word {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown transaction type %q", s)
}

// Transaction is a single decoded input record. Client, Tx and Amount are
// optional at parse time; the engine enforces their presence.
type Transaction struct {
	Kind   Kind
	Client *uint16
	Tx     *uint32
	Amount decimal.NullDecimal
}

// ClientID returns the client id and whether it is present.
func (t Transaction) ClientID() (uint16, bool) {
	if t.Client == nil {
		return 0, false
	}
	return *t.Client, true
}

// TxID returns the transaction id and whether it is present.
func (t Transaction) TxID() (uint32, bool) {
	if t.Tx == nil {
		return 0, false
	}
	return *t.Tx, true
}

func (t Transaction) String() string {
	client, tx, amount := "-", "-", "-"
	if t.Client != nil {
		client = fmt.Sprint(*t.Client)
	}
	if t.Tx != nil {
		tx = fmt.Sprint(*t.Tx)
	}
	if t.Amount.Valid {
		amount = t.Amount.Decimal.String()
	}
	return fmt.Sprintf("%s client=%s tx=%s amount=%s", t.Kind, client, tx, amount)
}

// Deposit builds a deposit record.
func Deposit(client uint16, tx uint32, amount decimal.Decimal) Transaction {
	return movement(KindDeposit, client, tx, amount)
}

// Withdrawal builds a withdrawal record.
func Withdrawal(client uint16, tx uint32, amount decimal.Decimal) Transaction {
	return movement(KindWithdrawal, client, tx, amount)
}

// Dispute builds a dispute referencing an earlier movement.
func Dispute(client uint16, tx uint32) Transaction { return reference(KindDispute, client, tx) }

// Resolve builds a resolve referencing an earlier movement.
func Resolve(client uint16, tx uint32) Transaction { return reference(KindResolve, client, tx) }

// Chargeback builds a chargeback referencing an earlier movement.
func Chargeback(client uint16, tx uint32) Transaction { return reference(KindChargeback, client, tx) }

func movement(kind Kind, client uint16, tx uint32, amount decimal.Decimal) Transaction {
	t := reference(kind, client, tx)
	t.Amount = decimal.NewNullDecimal(amount)
	return t
}

func reference(kind Kind, client uint16, tx uint32) Transaction {
	return Transaction{Kind: kind, Client: &client, Tx: &tx}
}

// Account is the balance state of a single client.
type Account struct {
	ClientID  uint16
	Available decimal.Decimal
	Held      decimal.Decimal
	Locked    bool
}

// Total is always derived from available and held.
func (a Account) Total() decimal.Decimal {
	return a.Available.Add(a.Held)
}

// ChargebackPolicy selects which balance funds a chargeback.
type ChargebackPolicy int

const (
	// ChargebackFromAvailable gates the chargeback on, and debits, available funds.
	ChargebackFromAvailable ChargebackPolicy = iota
	// ChargebackFromHeld gates the chargeback on, and debits, held funds.
	ChargebackFromHeld
)

func (p ChargebackPolicy) String() string {
	if p == ChargebackFromHeld {
		return "held"
	}
	return "available"
}

// ParseChargebackPolicy accepts "available" or "held".
func ParseChargebackPolicy(s string) (ChargebackPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "available":
		return ChargebackFromAvailable, nil
	case "held":
		return ChargebackFromHeld, nil
	}
	return 0, fmt.Errorf("unknown chargeback policy %q", s)
}

// Ledger defines the contract implemented by ledger engines.
type Ledger interface {
	Process(ctx context.Context, tx Transaction) error
	Available(ctx context.Context, client uint16) (decimal.Decimal, error)
	Held(ctx context.Context, client uint16) (decimal.Decimal, error)
	Total(ctx context.Context, client uint16) (decimal.Decimal, error)
	ClientIDs(ctx context.Context) []uint16
	Snapshot(ctx context.Context) []Account
}
