package export

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/waiwai/settlement-bridge/internal/domain"
)

func readBack(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	return rows
}

func TestWriteDefaultHeaders(t *testing.T) {
	recs := []domain.LegacyLedgerRecord{
		{
			Sequence:          "1",
			MerchantCode:      "988899",
			OrderNo:           "ORD-1",
			TransactionDate:   "20240305",
			Commission:        decimal.RequireFromString("12.5"),
			BillAmount:        decimal.NewFromInt(250),
			NetTransferAmount: decimal.RequireFromString("-3.25"),
			TransferDate:      "20240308",
			TransferTime:      "093000",
		},
		{Sequence: "2", MerchantCode: "988899", OrderNo: "ORD-2"},
	}

	data, err := Write(recs, nil)
	require.NoError(t, err)
	rows := readBack(t, data)
	require.Len(t, rows, 3)

	require.Len(t, rows[0], len(DefaultHeaders))
	assert.Equal(t, "ลำดับ", rows[0][0])
	assert.Equal(t, "Order No.", rows[0][1])
	assert.Equal(t, "ยอดเงินที่ได้รับจริง", rows[0][12])

	first := rows[1]
	assert.Equal(t, "1", first[0])
	assert.Equal(t, "ORD-1", first[1])
	assert.Equal(t, "988899", first[2])
	assert.Equal(t, "12.5", first[3])
	assert.Equal(t, "250", first[5])
	assert.Equal(t, "20240305", first[6])
	assert.Equal(t, "20240308", first[10])
	assert.Equal(t, "093000", first[11])
	assert.Equal(t, "-3.25", first[12])

	assert.Equal(t, "ORD-2", rows[2][1])
}

func TestWriteCustomHeaders(t *testing.T) {
	data, err := Write([]domain.LegacyLedgerRecord{{OrderNo: "X", PaymentFee: decimal.NewFromInt(4)}},
		[]Column{{"opbil", "Order"}, {"otrans", "Payment fee"}, {"nope", "Unknown"}})
	require.NoError(t, err)
	rows := readBack(t, data)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Order", "Payment fee", "Unknown"}, rows[0])
	require.GreaterOrEqual(t, len(rows[1]), 2)
	assert.Equal(t, []string{"X", "4"}, rows[1][:2])
}

func TestWriteNoRecords(t *testing.T) {
	data, err := Write(nil, nil)
	require.NoError(t, err)
	rows := readBack(t, data)
	assert.Len(t, rows, 1)
}

func TestWriteHeaderRowIsBold(t *testing.T) {
	data, err := Write([]domain.LegacyLedgerRecord{{OrderNo: "X"}}, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	idx, err := f.GetCellStyle(SheetName, "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(idx)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)

	idx, err = f.GetCellStyle(SheetName, "A2")
	require.NoError(t, err)
	style, err = f.GetStyle(idx)
	require.NoError(t, err)
	assert.True(t, style.Font == nil || !style.Font.Bold)
}
