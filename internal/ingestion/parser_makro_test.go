package ingestion

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waiwai/settlement-bridge/internal/dates"
	"github.com/waiwai/settlement-bridge/internal/domain"
	"github.com/waiwai/settlement-bridge/internal/logger"
)

var makroHeader = []interface{}{
	"Order number", "Date created", "สถานะของคำสั่งซื้อ", "ยอดรวมย่อยของสินค้า (รวมภาษี)",
	"Commission (excluding taxes)", "Amount transferred to ร้าน (including taxes)", "Product SKU",
}

func TestParseMakroRows(t *testing.T) {
	p := NewParser(testNormalizer(), logger.NewNop())
	res := p.ParseMakroRows([]RowRecord{
		row(2,
			ColMakroOrderNo, "MKP012506010001",
			ColMakroCreated, "01/06/2025 - 10:15:00",
			ColMakroStatus, "ปิดแล้ว",
			ColMakroSubtotal, "1,070.00",
			ColMakroCommission, "50",
			ColMakroTransferred, "1000",
			ColMakroProductSKU, "SKU-1",
		),
		row(3,
			ColMakroOrderNo, "MKP012506010002",
			ColMakroCreated, "02/06/2025 - 08:00:00",
			ColMakroStatus, domain.MakroRefundedStatus,
			ColMakroSubtotal, "100",
			ColMakroCommission, "5",
			ColMakroTransferred, "95",
		),
	})

	require.Empty(t, res.Errors)
	require.Len(t, res.Items, 2)

	first := res.Items[0]
	assert.Equal(t, domain.SourceMakro, first.Source)
	assert.Equal(t, "MKP012506010001", first.OrderNo)
	assert.Equal(t, "2025-06-01", dates.Key(first.TransactionDate))
	assert.Equal(t, "SKU-1", first.SellerSKU)
	require.NotNil(t, first.OrderLine)
	assert.True(t, decimal.RequireFromString("1070").Equal(first.OrderLine.Subtotal))
	assert.True(t, decimal.NewFromInt(1000).Equal(first.Amount))

	refunded := res.Items[1]
	require.NotNil(t, refunded.OrderLine)
	assert.True(t, refunded.OrderLine.Refunded())
	assert.True(t, refunded.OrderLine.Transferred.IsZero())
	assert.True(t, refunded.Amount.IsZero())
	assert.Equal(t, "2025-06-02", dates.Key(refunded.TransactionDate))
}

func TestParseMakroRowsRejectsRowsWithoutOrderOrDate(t *testing.T) {
	p := NewParser(testNormalizer(), logger.NewNop())
	res := p.ParseMakroRows([]RowRecord{
		row(2, ColMakroCreated, "01/06/2025 - 10:15:00", ColMakroSubtotal, "10"),
		row(3, ColMakroOrderNo, "MKP012506010003", ColMakroSubtotal, "10"),
		row(4, ColMakroOrderNo, "MKP012506010004", ColMakroCreated, "01/06/2025 - 10:15:00"),
	})

	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "row 2")
	assert.Contains(t, res.Errors[1], "row 3")
	require.Len(t, res.Items, 1)
	assert.True(t, res.Items[0].OrderLine.Subtotal.IsZero())
}

func TestParseMakroRowsEmptyInput(t *testing.T) {
	res := NewParser(testNormalizer(), nil).ParseMakroRows(nil)
	assert.Equal(t, []string{domain.ErrNoRecords.Error()}, res.Errors)
}

func TestReadLayoutMakroMapsShopNameHeader(t *testing.T) {
	data := buildWorkbook(t,
		makroHeader,
		[]interface{}{"MKP012506010001", "01/06/2025 - 10:15:00", "ปิดแล้ว", 1070, 50, 1000, "SKU-1"},
	)

	wb, err := ReadLayout(data, MakroLayout)
	require.NoError(t, err)
	assert.Empty(t, wb.MissingHeaders)
	require.Len(t, wb.Rows, 1)
	assert.Equal(t, "1000", wb.Rows[0].Get(ColMakroTransferred))
	assert.Equal(t, "1070", wb.Rows[0].Get(ColMakroSubtotal))

	assert.Equal(t, MakroLayout.Source, LayoutFor(domain.SourceMakro).Source)
	assert.Equal(t, domain.SourceLazada, LayoutFor("").Source)
}
