package ingestion

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/waiwai/settlement-bridge/internal/dates"
)

var ict = time.FixedZone("ICT", 7*3600)

func testNormalizer() *dates.Normalizer {
	now := time.Date(2025, 7, 15, 12, 0, 0, 0, ict)
	return dates.NewNormalizer(ict, 7).WithClock(func() time.Time { return now })
}

var standardHeader = []interface{}{
	"Transaction Date", "Fee Name", "Order No.", "Order Item No.", "Amount",
	"Details", "Seller SKU", "VAT in Amount", "WHT Amount", "Comment",
}

// buildWorkbook writes rows into Sheet1 of a fresh xlsx and returns its bytes.
func buildWorkbook(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}
