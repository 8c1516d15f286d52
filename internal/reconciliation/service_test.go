package reconciliation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/waiwai/settlement-bridge/internal/domain"
	"github.com/waiwai/settlement-bridge/internal/legacy"
	"github.com/waiwai/settlement-bridge/internal/repository"
)

var ict = time.FixedZone("ICT", 7*3600)

type mockTransferer struct{ mock.Mock }

func (m *mockTransferer) Transfer(ctx context.Context, records []domain.LegacyLedgerRecord) (domain.TransferResult, error) {
	args := m.Called(ctx, records)
	return args.Get(0).(domain.TransferResult), args.Error(1)
}

type mockChecker struct{ mock.Mock }

func (m *mockChecker) CheckBatch(ctx context.Context, ids []domain.OrderIdentity) []domain.CheckedOrder {
	args := m.Called(ctx, ids)
	out, _ := args.Get(0).([]domain.CheckedOrder)
	return out
}

type fixture struct {
	svc     *Service
	tx      *mockTransferer
	batches *repository.BatchRepo
	orders  *repository.OrderRepo
	logs    *repository.ProcessLogRepo
}

var fixedNow = time.Date(2025, 6, 3, 10, 15, 0, 0, ict)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.Open("sqlite", filepath.Join(t.TempDir(), "main.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		tx:      &mockTransferer{},
		batches: repository.NewBatchRepo(db),
		orders:  repository.NewOrderRepo(db),
		logs:    repository.NewProcessLogRepo(db),
	}
	clock := func() time.Time { return fixedNow }
	formatter := legacy.NewFormatter(15, ict, nil).WithClock(clock)
	f.svc = NewService(formatter, nil, f.tx, f.batches, f.orders, f.logs, nil).WithClock(clock)

	require.NoError(t, f.batches.Create(context.Background(), &domain.BatchRun{ID: "b-1", FileName: "june.xlsx", TotalRecords: 2}))
	return f
}

func order(no string, total string) domain.OrderSummary {
	amt := decimal.RequireFromString(total)
	return domain.OrderSummary{
		Identity: domain.OrderIdentity{
			OrderNo:         no,
			TransactionDate: time.Date(2025, 6, 1, 7, 0, 0, 0, ict),
		},
		Totals: domain.SettlementTotals{ItemPriceCredit: amt, TotalAmount: amt, ItemCount: 1},
	}
}

func (f *fixture) sent(t *testing.T, orderNo string) *domain.MainRecord {
	t.Helper()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, ict)
	rec, err := f.orders.FindOrder(context.Background(), domain.MainStoreQuery{
		OrderNo: orderNo, MerchantCode: "988899", From: start, To: start.Add(24*time.Hour - time.Millisecond),
	})
	require.NoError(t, err)
	return rec
}

func TestTransferPersistsAcceptedOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tx.On("Transfer", mock.Anything, mock.MatchedBy(func(recs []domain.LegacyLedgerRecord) bool {
		return len(recs) == 2 && recs[0].Sequence == "0001" && recs[1].Sequence == "0002" &&
			recs[0].MerchantCode == "988899" && recs[0].TransferDate == "20250603"
	})).Return(domain.TransferResult{
		Success:         true,
		RecordsInserted: 1,
		ErrorMessage:    "Record 2: constraint failed",
		Details:         []string{"Record 2: constraint failed"},
		Outcomes: []domain.RecordOutcome{
			{Index: 1, OrderNo: "A1"},
			{Index: 2, OrderNo: "B2", Err: errors.New("constraint failed")},
		},
	}, nil)

	res, err := f.svc.Transfer(ctx, TransferRequest{
		BatchID: "b-1", MerchantCode: "988899", StoreType: "WAIWAI", UserID: "ops",
		Orders: []domain.OrderSummary{order("A1", "100"), order("B2", "50")},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.RecordsInserted)
	f.tx.AssertExpectations(t)

	a1 := f.sent(t, "A1")
	require.NotNil(t, a1)
	assert.Equal(t, "WAIWAI", a1.StoreType)
	assert.Equal(t, "b-1", a1.BatchID)
	require.NotNil(t, a1.SentAt)
	assert.True(t, a1.SentAt.Equal(fixedNow))
	assert.Nil(t, f.sent(t, "B2"))

	b, err := f.batches.Get(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BatchCompleted, b.Status)
	assert.Equal(t, 1, b.ProcessedRecords)
	require.NotNil(t, b.CompletedAt)

	logs, err := f.logs.ListByBatch(ctx, "b-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.ElementsMatch(t, []string{"STARTED", "PARTIAL"}, []string{logs[0].Status, logs[1].Status})
	assert.Equal(t, "TRANSFER", logs[0].Action)
	assert.Equal(t, "ops", logs[1].UserID)
}

func TestTransferConnectionFailureMarksBatchError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cause := errors.New("legacy store unreachable")
	f.tx.On("Transfer", mock.Anything, mock.Anything).
		Return(domain.TransferResult{ErrorMessage: cause.Error()}, cause)

	res, err := f.svc.Transfer(ctx, TransferRequest{
		BatchID: "b-1", MerchantCode: "988899", Orders: []domain.OrderSummary{order("A1", "100")},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "legacy store unreachable", res.ErrorMessage)
	assert.Nil(t, f.sent(t, "A1"))

	b, err := f.batches.Get(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BatchError, b.Status)
	assert.Equal(t, "legacy store unreachable", b.ErrorMessage)
}

func TestTransferSkipsOrdersAlreadySent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dups := &mockChecker{}
	f.svc.dups = dups

	a1, b2 := order("A1", "100"), order("B2", "50")
	dups.On("CheckBatch", mock.Anything, mock.Anything).Return([]domain.CheckedOrder{
		{Identity: a1.Identity, Result: domain.FoundIn(domain.LocationLegacy, "A1 already exists in AS400", nil, nil)},
		{Identity: b2.Identity, Result: domain.NotDuplicate()},
	})
	f.tx.On("Transfer", mock.Anything, mock.MatchedBy(func(recs []domain.LegacyLedgerRecord) bool {
		return len(recs) == 1 && recs[0].OrderNo == "B2" && recs[0].Sequence == "0001"
	})).Return(domain.TransferResult{
		Success: true, RecordsInserted: 1, Outcomes: []domain.RecordOutcome{{Index: 1, OrderNo: "B2"}},
	}, nil)

	res, err := f.svc.Transfer(ctx, TransferRequest{
		BatchID: "b-1", MerchantCode: "988899", Orders: []domain.OrderSummary{a1, b2},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.RecordsInserted)
	assert.Equal(t, 1, res.RecordsSkipped)
	assert.Equal(t, []string{"Order A1: already in as400"}, res.Details)
	f.tx.AssertExpectations(t)

	assert.Nil(t, f.sent(t, "A1"))
	require.NotNil(t, f.sent(t, "B2"))

	logs, err := f.logs.ListByBatch(ctx, "b-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.ElementsMatch(t, []string{"STARTED", "SUCCESS"}, []string{logs[0].Status, logs[1].Status})
}

func TestTransferEveryOrderAlreadySent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dups := &mockChecker{}
	f.svc.dups = dups

	a1 := order("A1", "100")
	dups.On("CheckBatch", mock.Anything, mock.Anything).Return([]domain.CheckedOrder{
		{Identity: a1.Identity, Result: domain.FoundIn(domain.LocationMainTable, "A1 already exists", nil, nil)},
	})

	res, err := f.svc.Transfer(ctx, TransferRequest{BatchID: "b-1", MerchantCode: "988899", Orders: []domain.OrderSummary{a1}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.RecordsInserted)
	assert.Equal(t, 1, res.RecordsSkipped)
	f.tx.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)

	b, err := f.batches.Get(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BatchCompleted, b.Status)
	assert.Equal(t, 0, b.ProcessedRecords)
}

func TestTransferSameBatchTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tx.On("Transfer", mock.Anything, mock.Anything).Return(domain.TransferResult{
		Success: true, RecordsInserted: 1, Outcomes: []domain.RecordOutcome{{Index: 1, OrderNo: "A1"}},
	}, nil).Once()

	req := TransferRequest{BatchID: "b-1", MerchantCode: "988899", Orders: []domain.OrderSummary{order("A1", "100")}}
	_, err := f.svc.Transfer(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Transfer(ctx, req)
	assert.ErrorIs(t, err, domain.ErrBatchNotTransferable)
	f.tx.AssertNumberOfCalls(t, "Transfer", 1)
}

func TestTransferUnknownBatch(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Transfer(context.Background(), TransferRequest{
		BatchID: "missing", MerchantCode: "988899", Orders: []domain.OrderSummary{order("A1", "1")},
	})
	assert.ErrorIs(t, err, domain.ErrBatchNotFound)
	f.tx.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
}

func TestTransferNoOrders(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Transfer(context.Background(), TransferRequest{BatchID: "b-1"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrNoRecords.Error(), res.ErrorMessage)
}

func TestTransferWithoutBookkeeping(t *testing.T) {
	tx := &mockTransferer{}
	tx.On("Transfer", mock.Anything, mock.Anything).Return(domain.TransferResult{
		Success: true, RecordsInserted: 1, Outcomes: []domain.RecordOutcome{{Index: 1, OrderNo: "A1"}},
	}, nil)
	svc := NewService(legacy.NewFormatter(15, ict, nil), nil, tx, nil, nil, nil, nil)

	res, err := svc.Transfer(context.Background(), TransferRequest{
		MerchantCode: "988899", Orders: []domain.OrderSummary{order("A1", "1")},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestFormatNumbersInInputOrder(t *testing.T) {
	svc := NewService(legacy.NewFormatter(15, ict, nil), nil, &mockTransferer{}, nil, nil, nil, nil)
	orders := []domain.OrderSummary{order("Z9", "3"), order("A1", "4")}
	orders[0].Identity.MerchantCode = "988899"
	orders[1].Identity.MerchantCode = "988899"

	recs := svc.Format(orders)
	require.Len(t, recs, 2)
	assert.Equal(t, "0001", recs[0].Sequence)
	assert.Equal(t, "Z9", recs[0].OrderNo)
	assert.Equal(t, "0002", recs[1].Sequence)
	assert.Equal(t, "A1", recs[1].OrderNo)
}
