package cli

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	_ "modernc.org/sqlite"
)

const ledgerDDL = `CREATE TABLE PMONHP (
	OSEQ TEXT, OPCUS TEXT, OPBIL TEXT, OPMDT TEXT,
	ORTNA NUMERIC, OSCAM NUMERIC, OSBAM NUMERIC, OSTAM NUMERIC, OSAAM NUMERIC,
	ORSAM NUMERIC, OSRAM NUMERIC, OCOM1 NUMERIC, OCOM2 NUMERIC, OSERV NUMERIC,
	OTRANS NUMERIC, OTAMT NUMERIC, OTRAM NUMERIC, OBAMT NUMERIC,
	OTDTE TEXT, OTIME TEXT
)`

type env struct {
	dir    string
	config string
	ledger string
}

// newEnv writes a config that points both stores at sqlite files in a temp
// directory.
func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	e := env{dir: dir, config: filepath.Join(dir, "config.yaml"), ledger: filepath.Join(dir, "ledger.db")}

	db, err := sql.Open("sqlite", e.ledger)
	require.NoError(t, err)
	_, err = db.Exec(ledgerDDL)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg := fmt.Sprintf(`main_db:
  driver: sqlite
  dsn: %s
legacy:
  driver: sqlite
  conn_string: %s
  library: ""
  file: PMONHP
  limit_clause: LIMIT 1
  throttle_pause: 0s
log_level: error
`, filepath.Join(dir, "main.db"), e.ledger)
	require.NoError(t, os.WriteFile(e.config, []byte(cfg), 0o644))
	return e
}

func (e env) workbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]interface{}{
		{"Transaction Date", "Fee Name", "Order No.", "Order Item No.", "Amount"},
		{"2025-06-01", "Item Price Credit", "A1", "", 100},
		{"2025-06-01", "Commission", "A1", "", -10},
		{"2025-06-01", "Item Price Credit", "B2", "", 40},
	}
	for i, row := range rows {
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", fmt.Sprintf("A%d", i+1), &r))
	}
	path := filepath.Join(e.dir, "june.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	cmd := NewRootCmd(&logs)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.config, "--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func ledgerCount(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM PMONHP`).Scan(&n))
	return n
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCmd(&bytes.Buffer{})
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "settlement-bridge dev")
}

func TestTransferThenDuplicate(t *testing.T) {
	e := newEnv(t)
	file := e.workbook(t)

	out, err := e.run(t, "transfer", file, "--merchant", "WAIWAI")
	require.NoError(t, err, out)

	var first transferOutput
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	require.NotNil(t, first.Transfer)
	assert.True(t, first.Transfer.Success)
	assert.Equal(t, 2, first.Transfer.RecordsInserted)
	assert.NotEmpty(t, first.Ingest.BatchID)
	assert.Equal(t, 2, ledgerCount(t, e.ledger))

	// The same file again is caught by the main store.
	out, err = e.run(t, "transfer", file, "--merchant", "988899")
	require.NoError(t, err, out)
	var second transferOutput
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	assert.Nil(t, second.Transfer)
	assert.Empty(t, second.Ingest.Orders)
	assert.Equal(t, 2, second.Ingest.Summary.DuplicateInMain)
	assert.Equal(t, 2, ledgerCount(t, e.ledger))
}

func TestTransferDryRun(t *testing.T) {
	e := newEnv(t)
	file := e.workbook(t)

	out, err := e.run(t, "transfer", file, "--merchant", "WAIWAI", "--dry-run")
	require.NoError(t, err, out)

	var got transferOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Nil(t, got.Transfer)
	assert.Empty(t, got.Ingest.BatchID)
	require.Len(t, got.Records, 2)
	assert.Equal(t, "0001", got.Records[0].Sequence)
	assert.Equal(t, "A1", got.Records[0].OrderNo)
	assert.Equal(t, "988899", got.Records[0].MerchantCode)
	assert.Equal(t, "20250601", got.Records[0].TransactionDate)
	assert.Equal(t, "90", got.Records[0].NetTransferAmount.String())
	assert.Equal(t, 0, ledgerCount(t, e.ledger))
}

func TestLogsStayOffStdout(t *testing.T) {
	e := newEnv(t)
	file := e.workbook(t)
	t.Setenv("LOG_LEVEL", "info")

	var out, errOut bytes.Buffer
	cmd := NewRootCmd(nil)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--config", e.config, "--env-file", "", "transfer", file, "--merchant", "WAIWAI", "--dry-run"})
	require.NoError(t, cmd.Execute(), errOut.String())

	var got transferOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got), out.String())
	assert.Len(t, got.Records, 2)
	assert.Contains(t, errOut.String(), "settlement file ingested")
}

func TestExportWritesWorkbook(t *testing.T) {
	e := newEnv(t)
	file := e.workbook(t)
	dest := filepath.Join(e.dir, "out.xlsx")

	out, err := e.run(t, "export", file, "--merchant", "WAIWAI", "--out", dest)
	require.NoError(t, err, out)
	assert.Contains(t, out, "wrote 2 records")

	f, err := excelize.OpenFile(dest)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("ExportData")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestMerchantRequired(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "ingest", e.workbook(t))
	assert.EqualError(t, err, "--merchant is required")

	_, err = e.run(t, "ingest", e.workbook(t), "--merchant", "NOPE")
	assert.EqualError(t, err, `unknown merchant "NOPE"`)
}

func TestMissingEnvFileIsAnErrorWhenNamed(t *testing.T) {
	e := newEnv(t)
	var out bytes.Buffer
	cmd := NewRootCmd(&bytes.Buffer{})
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", e.config, "--env-file", filepath.Join(e.dir, "missing.env"), "ingest", "x.xlsx", "--merchant", "WAIWAI"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load env file")
}
