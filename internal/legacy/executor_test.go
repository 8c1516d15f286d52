package legacy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waiwai/settlement-bridge/internal/domain"
)

func records(orderNos ...string) []domain.LegacyLedgerRecord {
	f := testFormatter()
	out := make([]domain.LegacyLedgerRecord, len(orderNos))
	for i, no := range orderNos {
		out[i] = f.Format(domain.SettlementTotals{
			ItemPriceCredit: d("100"),
			Commission:      d("10"),
			TotalAmount:     d("90"),
		}, testIdentity(no), i+1)
	}
	return out
}

func TestTransferEmptyDoesNotConnect(t *testing.T) {
	conn, _ := newLedgerDB(t)
	res, err := NewExecutor(conn, testTable, nil).Transfer(context.Background(), nil)

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.RecordsInserted)
	assert.NotEmpty(t, res.ErrorMessage)
	assert.Equal(t, 0, conn.calls)
}

func TestTransferInsertsAll(t *testing.T) {
	conn, path := newLedgerDB(t)
	res, err := NewExecutor(conn, testTable, nil).Transfer(context.Background(), records("A1", "B2", "C3"))

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.RecordsInserted)
	assert.Empty(t, res.ErrorMessage)
	assert.Equal(t, 1, conn.calls)
	assert.Equal(t, 3, countRows(t, path))
	require.Len(t, res.Outcomes, 3)
	for i, o := range res.Outcomes {
		assert.Equal(t, i+1, o.Index)
		assert.NoError(t, o.Err)
	}
}

func TestTransferPartialFailureContinues(t *testing.T) {
	conn, path := newLedgerDB(t)
	res, err := NewExecutor(conn, testTable, nil).Transfer(context.Background(), records("A1", "BAD", "C3", "D4"))

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.RecordsInserted)
	require.Len(t, res.Details, 1)
	assert.Contains(t, res.Details[0], "Record 2:")
	assert.Equal(t, res.Details[0], res.ErrorMessage)
	assert.Equal(t, 3, countRows(t, path), "records after the failure were attempted")

	require.Len(t, res.Outcomes, 4)
	assert.Error(t, res.Outcomes[1].Err)
	assert.Equal(t, "BAD", res.Outcomes[1].OrderNo)
	assert.NoError(t, res.Outcomes[3].Err)
}

func TestTransferAllFail(t *testing.T) {
	conn, _ := newLedgerDB(t)
	res, err := NewExecutor(conn, testTable, nil).Transfer(context.Background(), records("BAD", "BAD"))

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.RecordsInserted)
	assert.Equal(t, "Record 1: "+res.Outcomes[0].Err.Error()+"; Record 2: "+res.Outcomes[1].Err.Error(), res.ErrorMessage)
}

func TestTransferConnectFailure(t *testing.T) {
	conn := &countingConnector{err: errLinkDown}
	res, err := NewExecutor(conn, testTable, nil).Transfer(context.Background(), records("A1"))

	assert.ErrorIs(t, err, errLinkDown)
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "communication link failure")
}

func TestTransferMissingTableAborts(t *testing.T) {
	conn, _ := newLedgerDB(t)
	res, err := NewExecutor(conn, Table{Name: "main.NOPE"}, nil).Transfer(context.Background(), records("A1", "B2", "C3"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.RecordsInserted)
	assert.Empty(t, res.Outcomes, "remaining records are not attempted")
}

func TestStatementBroken(t *testing.T) {
	cases := map[string]bool{
		"SQL logic error: no such table: main.NOPE (1)":                     true,
		"table PMONHP has no column named OTRAM: no such column":            true,
		"[IBM][System i Access ODBC Driver][DB2 for i5/OS]SQL0204 - PMONHP": true,
		"SQLExecute: {42S02} [unixODBC] table not found":                    true,
		"constraint failed: CHECK constraint failed: OPBIL <> 'BAD' (275)":  false,
		"value too long for column":                                         false,
	}
	for msg, want := range cases {
		assert.Equal(t, want, statementBroken(errors.New(msg)), msg)
	}
}

func TestSQLConnectorUnreachable(t *testing.T) {
	c := NewSQLConnector("sqlite", "/nonexistent-dir/x/ledger.db", nil)
	_, err := c.Connect(context.Background())
	assert.ErrorIs(t, err, domain.ErrLegacyConnect)
}
