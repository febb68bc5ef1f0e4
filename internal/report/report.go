// Package report renders a ledger snapshot to its destination.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"

	"github.com/congo-pay/bankex/internal/ledger"
)

// Sink receives the final account table of a replay.
type Sink interface {
	Write(ctx context.Context, accounts []ledger.Account) error
}

// Row is the exported form of one account.
type Row struct {
	Client    uint16          `json:"client"`
	Available decimal.Decimal `json:"available"`
	Held      decimal.Decimal `json:"held"`
	Total     decimal.Decimal `json:"total"`
	Locked    bool            `json:"locked"`
}

// MarshalJSON renders amounts as strings with the scale they carry, matching
// the CSV and Redis output.
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Client    uint16 `json:"client"`
		Available string `json:"available"`
		Held      string `json:"held"`
		Total     string `json:"total"`
		Locked    bool   `json:"locked"`
	}{
		Client:    r.Client,
		Available: Amount(r.Available),
		Held:      Amount(r.Held),
		Total:     Amount(r.Total),
		Locked:    r.Locked,
	})
}

// Rows converts accounts into report rows, deriving the total.
func Rows(accounts []ledger.Account) []Row {
	rows := make([]Row, 0, len(accounts))
	for _, acct := range accounts {
		rows = append(rows, Row{
			Client:    acct.ClientID,
			Available: acct.Available,
			Held:      acct.Held,
			Total:     acct.Total(),
			Locked:    acct.Locked,
		})
	}
	return rows
}

var header = []string{"client", "available", "held", "total", "locked"}

// CSVSink writes the report as CSV.
type CSVSink struct {
	w io.Writer
}

// NewCSVSink builds a CSV sink writing to w.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: w}
}

func (s *CSVSink) Write(_ context.Context, accounts []ledger.Account) error {
	cw := csv.NewWriter(s.w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range Rows(accounts) {
		record := []string{
			strconv.FormatUint(uint64(row.Client), 10),
			Amount(row.Available),
			Amount(row.Held),
			Amount(row.Total),
			strconv.FormatBool(row.Locked),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row for client %d: %w", row.Client, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// JSONSink writes the report as an indented JSON array.
type JSONSink struct {
	w io.Writer
}

// NewJSONSink builds a JSON sink writing to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w}
}

func (s *JSONSink) Write(_ context.Context, accounts []ledger.Account) error {
	enc := json.NewEncoder(s.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Rows(accounts)); err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	return nil
}

// Amount renders a decimal keeping the scale it carries, so 2.0 stays "2.0".
func Amount(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// Digest fingerprints a snapshot with BLAKE2b-256 over its CSV rendering.
func Digest(accounts []ledger.Account) string {
	var buf bytes.Buffer
	// writes to a bytes.Buffer do not fail
	_ = NewCSVSink(&buf).Write(context.Background(), accounts)
	sum := blake2b.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
