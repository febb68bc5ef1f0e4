// Package reader decodes transaction CSV files into ledger records.
package reader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/bankex/internal/ledger"
	"github.com/congo-pay/bankex/internal/logging"
)

// DefaultMaxDecimalPlaces is the precision amounts are rounded to.
const DefaultMaxDecimalPlaces int32 = 4

// Options tune how records are decoded.
type Options struct {
	MaxDecimalPlaces int32
	Logger           *slog.Logger
}

// ReadFile opens path and decodes every record in it.
func ReadFile(path string, opts Options) ([]ledger.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transactions: %w", err)
	}
	defer f.Close()
	return Read(f, opts)
}

// Read decodes a CSV stream with the header "type, client, tx, amount".
// The amount column may be omitted; empty fields are treated as absent.
func Read(r io.Reader, opts Options) ([]ledger.Transaction, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = -1
	rdr.TrimLeadingSpace = true

	header, err := rdr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := columns(header)
	if err != nil {
		return nil, err
	}

	var out []ledger.Transaction
	for {
		fields, err := rdr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		line, _ := rdr.FieldPos(0)
		if blank(fields) {
			continue
		}

		tx, err := decode(fields, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if tx.Amount.Valid && tx.Amount.Decimal.Exponent() < -opts.places() {
			rounded := tx.Amount.Decimal.RoundBank(opts.places())
			logger.Debug("rounding amount",
				"line", line,
				"max_decimal_places", opts.places(),
				"original", tx.Amount.Decimal.String(),
				"rounded", rounded.String(),
			)
			tx.Amount.Decimal = rounded
		}
		logger.Debug("decoded transaction", "line", line, "transaction", tx.String())
		out = append(out, tx)
	}
	return out, nil
}

func (o Options) places() int32 {
	if o.MaxDecimalPlaces <= 0 {
		return DefaultMaxDecimalPlaces
	}
	return o.MaxDecimalPlaces
}

type layout struct {
	kind, client, tx, amount int
}

func columns(header []string) (layout, error) {
	cols := layout{kind: -1, client: -1, tx: -1, amount: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "type":
			cols.kind = i
		case "client":
			cols.client = i
		case "tx":
			cols.tx = i
		case "amount":
			cols.amount = i
		}
	}
	if cols.kind < 0 {
		return layout{}, fmt.Errorf("header %v has no type column", header)
	}
	return cols, nil
}

func decode(fields []string, cols layout) (ledger.Transaction, error) {
	var tx ledger.Transaction

	kind, err := ledger.ParseKind(field(fields, cols.kind))
	if err != nil {
		return tx, err
	}
	tx.Kind = kind

	if v := field(fields, cols.client); v != "" {
		client, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return tx, fmt.Errorf("invalid client %q: %w", v, err)
		}
		c := uint16(client)
		tx.Client = &c
	}
	if v := field(fields, cols.tx); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return tx, fmt.Errorf("invalid tx %q: %w", v, err)
		}
		t := uint32(id)
		tx.Tx = &t
	}
	if v := field(fields, cols.amount); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return tx, fmt.Errorf("invalid amount %q: %w", v, err)
		}
		tx.Amount = decimal.NewNullDecimal(amount)
	}
	return tx, nil
}

func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
