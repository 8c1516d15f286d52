package legacy

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const ledgerDDL = `CREATE TABLE PMONHP (
	OSEQ TEXT, OPCUS TEXT, OPBIL TEXT CHECK (OPBIL <> 'BAD'), OPMDT TEXT,
	ORTNA NUMERIC, OSCAM NUMERIC, OSBAM NUMERIC, OSTAM NUMERIC, OSAAM NUMERIC,
	ORSAM NUMERIC, OSRAM NUMERIC, OCOM1 NUMERIC, OCOM2 NUMERIC, OSERV NUMERIC,
	OTRANS NUMERIC, OTAMT NUMERIC, OTRAM NUMERIC, OBAMT NUMERIC,
	OTDTE TEXT, OTIME TEXT
)`

var testTable = Table{Name: "main.PMONHP", LimitClause: "LIMIT 1"}

// newLedgerDB creates a sqlite file holding the ledger table and returns a
// connector to it.
func newLedgerDB(t *testing.T) (*countingConnector, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(ledgerDDL)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return &countingConnector{inner: NewSQLConnector("sqlite", path, nil)}, path
}

type countingConnector struct {
	inner Connector
	calls int
	err   error
}

func (c *countingConnector) Connect(ctx context.Context) (*Session, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Connect(ctx)
}

func countRows(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM PMONHP`).Scan(&n))
	return n
}

var errLinkDown = errors.New("communication link failure")
