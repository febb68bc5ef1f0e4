package report

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/bankex/internal/ledger"
)

func sampleAccounts() []ledger.Account {
	return []ledger.Account{
		{ClientID: 1, Available: decimal.RequireFromString("1.5"), Held: decimal.Zero},
		{ClientID: 2, Available: decimal.RequireFromString("2.0"), Held: decimal.RequireFromString("0.0001"), Locked: true},
	}
}

func TestCSVSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVSink(&buf).Write(context.Background(), sampleAccounts()))

	want := "client,available,held,total,locked\n" +
		"1,1.5,0,1.5,false\n" +
		"2,2.0,0.0001,2.0001,true\n"
	require.Equal(t, want, buf.String())
}

func TestCSVSinkEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVSink(&buf).Write(context.Background(), nil))
	require.Equal(t, "client,available,held,total,locked\n", buf.String())
}

func TestJSONSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONSink(&buf).Write(context.Background(), sampleAccounts()))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	require.Equal(t, float64(2), rows[1]["client"])
	require.Equal(t, "2.0", rows[1]["available"])
	require.Equal(t, "0.0001", rows[1]["held"])
	require.Equal(t, "2.0001", rows[1]["total"])
	require.Equal(t, "0", rows[0]["held"])
	require.Equal(t, true, rows[1]["locked"])
}

func TestAmountKeepsScale(t *testing.T) {
	require.Equal(t, "2.0", Amount(decimal.RequireFromString("2.0")))
	require.Equal(t, "0", Amount(decimal.Zero))
	require.Equal(t, "1.2345", Amount(decimal.RequireFromString("1.2345")))
	require.Equal(t, "10", Amount(decimal.NewFromInt(10)))
}

func TestDigest(t *testing.T) {
	a := Digest(sampleAccounts())
	require.Len(t, a, 64)
	require.Equal(t, a, Digest(sampleAccounts()))

	changed := sampleAccounts()
	changed[0].Locked = true
	require.NotEqual(t, a, Digest(changed))
}
