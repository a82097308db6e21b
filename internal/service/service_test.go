package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storekeep/backend/internal/domain"
	"storekeep/backend/internal/ledger"
	"storekeep/backend/internal/store"
	"storekeep/backend/internal/store/memory"
)

var errBoom = errors.New("boom")

// flakyRepo wraps the memory store and fails selected writes.
type flakyRepo struct {
	*memory.Store
	failCreateSale bool
	failCreateRMA  bool
	failAudit      bool
	returnedDelay  time.Duration
}

// GetReturnedQtyBySale can be slowed down to widen the window between the
// cumulative check and the write.
func (r *flakyRepo) GetReturnedQtyBySale(ctx context.Context, saleID string) (map[string]int, error) {
	returned, err := r.Store.GetReturnedQtyBySale(ctx, saleID)
	if r.returnedDelay > 0 {
		time.Sleep(r.returnedDelay)
	}
	return returned, err
}

func (r *flakyRepo) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if r.failCreateSale {
		return nil, errBoom
	}
	return r.Store.CreateSale(ctx, sale)
}

func (r *flakyRepo) CreateRMA(ctx context.Context, rma domain.RMA) (*domain.RMA, error) {
	if r.failCreateRMA {
		return nil, errBoom
	}
	return r.Store.CreateRMA(ctx, rma)
}

func (r *flakyRepo) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if r.failAudit {
		return errBoom
	}
	return r.Store.CreateAuditLog(ctx, entry)
}

type mapCache struct {
	mu            sync.Mutex
	data          map[string][]byte
	invalidations int
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}}
}

func (c *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	c.invalidations++
	return nil
}

func seedCatalog(t *testing.T, repo store.Repository) {
	t.Helper()
	ctx := context.Background()
	_, err := repo.CreateSupplier(ctx, domain.Supplier{ID: "sup-1", Name: "Acme"})
	require.NoError(t, err)
	for _, p := range []domain.Product{
		{ID: "A", Name: "Alpha", PriceCents: 100, Stock: 10, CriticalStock: 3},
		{ID: "B", Name: "Bravo", PriceCents: 50, Stock: 5, CriticalStock: 2},
		{ID: "C", Name: "Charlie", PriceCents: 75, Stock: 1, CriticalStock: 4},
	} {
		_, err := repo.CreateProduct(ctx, p)
		require.NoError(t, err)
	}
}

func newTestService(t *testing.T) (*Service, *flakyRepo) {
	t.Helper()
	repo := &flakyRepo{Store: memory.New()}
	seedCatalog(t, repo)
	return New(repo, Options{}), repo
}

func stockOf(t *testing.T, repo store.Repository, id string) int {
	t.Helper()
	p, err := repo.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func saleOf(lines ...domain.SaleLine) domain.SaleCreateRequest {
	return domain.SaleCreateRequest{Items: lines, PaymentMethod: domain.PaymentMethodCash}
}

func pay(saleID string, amount int64) domain.PaymentCreateRequest {
	return domain.PaymentCreateRequest{SaleID: saleID, Method: domain.PaymentMethodCash, AmountCents: amount}
}

func TestSaleThenPartialPayments(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	sale, err := svc.CreateSale(ctx, "usr-cashier", saleOf(
		domain.SaleLine{ProductID: "A", Quantity: 2, PriceCents: 100},
		domain.SaleLine{ProductID: "B", Quantity: 1, PriceCents: 50},
	))
	require.NoError(t, err)
	assert.Equal(t, int64(250), sale.TotalCents)
	assert.False(t, sale.Paid)
	assert.Equal(t, "usr-cashier", sale.CashierID)
	assert.Equal(t, 8, stockOf(t, repo, "A"))
	assert.Equal(t, 4, stockOf(t, repo, "B"))

	_, err = svc.RecordPayment(ctx, pay(sale.ID, 200))
	require.NoError(t, err)
	got, err := svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.False(t, got.Paid)

	_, err = svc.RecordPayment(ctx, pay(sale.ID, 50))
	require.NoError(t, err)
	got, err = svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, got.Paid)

	payments, err := svc.ListPayments(ctx, sale.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestSaleShortfallRestoresEarlierDebits(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.CreateSale(context.Background(), "usr-cashier", saleOf(
		domain.SaleLine{ProductID: "A", Quantity: 3, PriceCents: 100},
		domain.SaleLine{ProductID: "C", Quantity: 2, PriceCents: 75},
	))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	var short *ledger.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "Charlie", short.Name)
	assert.Contains(t, err.Error(), "Charlie")

	assert.Equal(t, 10, stockOf(t, repo, "A"))
	assert.Equal(t, 1, stockOf(t, repo, "C"))

	sales, err := svc.ListSales(context.Background(), domain.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestSalePersistFailureRestoresStock(t *testing.T) {
	svc, repo := newTestService(t)
	repo.failCreateSale = true

	_, err := svc.CreateSale(context.Background(), "usr-cashier", saleOf(
		domain.SaleLine{ProductID: "A", Quantity: 4, PriceCents: 100},
		domain.SaleLine{ProductID: "B", Quantity: 5, PriceCents: 50},
	))
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 10, stockOf(t, repo, "A"))
	assert.Equal(t, 5, stockOf(t, repo, "B"))
}

func TestSaleUnknownProduct(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.CreateSale(context.Background(), "usr-cashier", saleOf(
		domain.SaleLine{ProductID: "A", Quantity: 1, PriceCents: 100},
		domain.SaleLine{ProductID: "missing", Quantity: 1, PriceCents: 10},
	))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 10, stockOf(t, repo, "A"))
}

func TestSaleRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]struct {
		cashier string
		req     domain.SaleCreateRequest
	}{
		"no items":       {"usr-cashier", saleOf()},
		"zero quantity":  {"usr-cashier", saleOf(domain.SaleLine{ProductID: "A", Quantity: 0, PriceCents: 100})},
		"negative price": {"usr-cashier", saleOf(domain.SaleLine{ProductID: "A", Quantity: 1, PriceCents: -1})},
		"no cashier":     {" ", saleOf(domain.SaleLine{ProductID: "A", Quantity: 1, PriceCents: 100})},
		"bad method": {"usr-cashier", domain.SaleCreateRequest{
			Items:         []domain.SaleLine{{ProductID: "A", Quantity: 1, PriceCents: 100}},
			PaymentMethod: "bitcoin",
		}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateSale(ctx, tc.cashier, tc.req)
			assert.ErrorIs(t, err, store.ErrInvalidInput)
		})
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	svc, repo := newTestService(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	sold := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSale(context.Background(), "usr-cashier", saleOf(
				domain.SaleLine{ProductID: "B", Quantity: 1, PriceCents: 50},
			))
			if err == nil {
				mu.Lock()
				sold++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, store.ErrInsufficientStock)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, sold)
	assert.Equal(t, 0, stockOf(t, repo, "B"))
}

func TestSaleTotalOverflowIsRejected(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.CreateSale(context.Background(), "usr-cashier", saleOf(
		domain.SaleLine{ProductID: "A", Quantity: 4, PriceCents: 3_000_000_000_000_000_000},
	))

	require.ErrorIs(t, err, store.ErrInvalidInput)
	assert.Equal(t, 10, stockOf(t, repo, "A"))
	sales, err := repo.ListSales(context.Background(), domain.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestAddLine(t *testing.T) {
	tests := []struct {
		name    string
		total   int64
		qty     int
		unit    int64
		want    int64
		wantErr bool
	}{
		{name: "simple", total: 100, qty: 3, unit: 50, want: 250},
		{name: "zero price", total: 7, qty: 9, unit: 0, want: 7},
		{name: "exact max", total: 0, qty: 1, unit: math.MaxInt64, want: math.MaxInt64},
		{name: "product overflows", total: 0, qty: 4, unit: 3_000_000_000_000_000_000, wantErr: true},
		{name: "sum overflows", total: math.MaxInt64 - 10, qty: 1, unit: 11, wantErr: true},
		{name: "negative unit", total: 0, qty: 1, unit: -1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := addLine(tt.total, tt.qty, tt.unit)
			if tt.wantErr {
				assert.ErrorIs(t, err, store.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPaymentSettlement(t *testing.T) {
	cases := map[string]struct {
		payments []int64
		wantPaid bool
	}{
		"exact single":   {[]int64{250}, true},
		"overpay":        {[]int64{300}, true},
		"split exact":    {[]int64{100, 100, 50}, true},
		"short":          {[]int64{100, 149}, false},
		"zero then rest": {[]int64{0, 250}, true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc, _ := newTestService(t)
			ctx := context.Background()
			sale, err := svc.CreateSale(ctx, "usr-cashier", saleOf(
				domain.SaleLine{ProductID: "A", Quantity: 2, PriceCents: 100},
				domain.SaleLine{ProductID: "B", Quantity: 1, PriceCents: 50},
			))
			require.NoError(t, err)

			for _, amount := range tc.payments {
				_, err := svc.RecordPayment(ctx, pay(sale.ID, amount))
				require.NoError(t, err)
			}
			got, err := svc.GetSale(ctx, sale.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.wantPaid, got.Paid)
		})
	}
}

func TestPaymentUnknownSale(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.RecordPayment(context.Background(), pay("sal-missing", 100))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.ListPayments(context.Background(), "sal-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPaymentRejectsUnsupportedMethod(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.RecordPayment(context.Background(), domain.PaymentCreateRequest{
		SaleID: "sal-any", Method: "voucher", AmountCents: 100,
	})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func sellFiveAlpha(t *testing.T, svc *Service) domain.Sale {
	t.Helper()
	sale, err := svc.CreateSale(context.Background(), "usr-cashier", saleOf(
		domain.SaleLine{ProductID: "A", Quantity: 5, PriceCents: 100},
	))
	require.NoError(t, err)
	return sale
}

func rmaOf(saleID string, items ...domain.RMAItem) domain.RMACreateRequest {
	return domain.RMACreateRequest{SaleID: saleID, Items: items, Reason: "damaged"}
}

func TestRMAWithinSoldQuantity(t *testing.T) {
	svc, repo := newTestService(t)
	sale := sellFiveAlpha(t, svc)
	require.Equal(t, 5, stockOf(t, repo, "A"))

	rma, err := svc.CreateRMA(context.Background(), "usr-support", rmaOf(sale.ID, domain.RMAItem{ProductID: "A", Quantity: 5}))
	require.NoError(t, err)
	assert.Equal(t, "usr-support", rma.ProcessedBy)
	assert.Equal(t, sale.ID, rma.SaleID)
	assert.False(t, rma.Date.IsZero())
	assert.Equal(t, 10, stockOf(t, repo, "A"))
}

func TestRMARejectsOverReturnWithoutCrediting(t *testing.T) {
	svc, repo := newTestService(t)
	sale := sellFiveAlpha(t, svc)

	_, err := svc.CreateRMA(context.Background(), "usr-support", rmaOf(sale.ID, domain.RMAItem{ProductID: "A", Quantity: 6}))
	require.ErrorIs(t, err, ErrInvalidReturnQuantity)
	assert.Equal(t, "invalid return quantity for one or more products", err.Error())
	assert.Equal(t, 5, stockOf(t, repo, "A"))
}

func TestConcurrentReturnsNeverExceedSold(t *testing.T) {
	svc, repo := newTestService(t)
	sale, err := svc.CreateSale(context.Background(), "usr-cashier", saleOf(
		domain.SaleLine{ProductID: "A", Quantity: 2, PriceCents: 100},
	))
	require.NoError(t, err)
	repo.returnedDelay = 20 * time.Millisecond

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.CreateRMA(context.Background(), "usr-support", rmaOf(sale.ID, domain.RMAItem{ProductID: "A", Quantity: 2}))
		}()
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrInvalidReturnQuantity)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	returned, err := repo.GetReturnedQtyBySale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, returned["A"])
	assert.Equal(t, 10, stockOf(t, repo, "A"))
}

func TestRMARejectsProductNotInSale(t *testing.T) {
	svc, repo := newTestService(t)
	sale := sellFiveAlpha(t, svc)

	_, err := svc.CreateRMA(context.Background(), "usr-support", rmaOf(sale.ID,
		domain.RMAItem{ProductID: "A", Quantity: 1},
		domain.RMAItem{ProductID: "B", Quantity: 1},
	))
	require.ErrorIs(t, err, ErrInvalidReturnQuantity)
	assert.Equal(t, 5, stockOf(t, repo, "A"))
	assert.Equal(t, 5, stockOf(t, repo, "B"))
}

func TestRMAIsCumulativeAcrossRequests(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	sale := sellFiveAlpha(t, svc)

	_, err := svc.CreateRMA(ctx, "usr-support", rmaOf(sale.ID, domain.RMAItem{ProductID: "A", Quantity: 3}))
	require.NoError(t, err)
	assert.Equal(t, 8, stockOf(t, repo, "A"))

	_, err = svc.CreateRMA(ctx, "usr-support", rmaOf(sale.ID, domain.RMAItem{ProductID: "A", Quantity: 3}))
	require.ErrorIs(t, err, ErrInvalidReturnQuantity)
	assert.Equal(t, 8, stockOf(t, repo, "A"))

	_, err = svc.CreateRMA(ctx, "usr-support", rmaOf(sale.ID, domain.RMAItem{ProductID: "A", Quantity: 2}))
	require.NoError(t, err)
	assert.Equal(t, 10, stockOf(t, repo, "A"))

	rmas, err := svc.ListRMAs(ctx, sale.ID)
	require.NoError(t, err)
	assert.Len(t, rmas, 2)
}

func TestRMADuplicateLinesAreSummed(t *testing.T) {
	svc, _ := newTestService(t)
	sale := sellFiveAlpha(t, svc)

	_, err := svc.CreateRMA(context.Background(), "usr-support", rmaOf(sale.ID,
		domain.RMAItem{ProductID: "A", Quantity: 3},
		domain.RMAItem{ProductID: "A", Quantity: 3},
	))
	assert.ErrorIs(t, err, ErrInvalidReturnQuantity)
}

func TestRMAPersistFailureRevertsCredits(t *testing.T) {
	svc, repo := newTestService(t)
	sale := sellFiveAlpha(t, svc)
	repo.failCreateRMA = true

	_, err := svc.CreateRMA(context.Background(), "usr-support", rmaOf(sale.ID, domain.RMAItem{ProductID: "A", Quantity: 2}))
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 5, stockOf(t, repo, "A"))
}

func TestRMAUnknownSale(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateRMA(context.Background(), "usr-support", rmaOf("sal-missing", domain.RMAItem{ProductID: "A", Quantity: 1}))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRMAHonoursExplicitDate(t *testing.T) {
	svc, _ := newTestService(t)
	sale := sellFiveAlpha(t, svc)
	when := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	req := rmaOf(sale.ID, domain.RMAItem{ProductID: "A", Quantity: 1})
	req.Date = &when
	rma, err := svc.CreateRMA(context.Background(), "usr-support", req)
	require.NoError(t, err)
	assert.True(t, rma.Date.Equal(when))
}

func TestCompletedPurchaseCreditsStock(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	purchase, err := svc.CreatePurchase(ctx, "usr-stockist", domain.PurchaseCreateRequest{
		SupplierID: "sup-1",
		Items: []domain.PurchaseLine{
			{ProductID: "A", Quantity: 5, UnitCostCents: 60},
			{ProductID: "C", Quantity: 10, UnitCostCents: 40},
		},
		PaymentMethod: domain.PaymentMethodDebit,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseStatusCompleted, purchase.Status)
	assert.Equal(t, int64(700), purchase.TotalCents)
	assert.Equal(t, 15, stockOf(t, repo, "A"))
	assert.Equal(t, 11, stockOf(t, repo, "C"))

	purchases, err := svc.ListPurchases(ctx, "sup-1")
	require.NoError(t, err)
	assert.Len(t, purchases, 1)
}

func TestPendingPurchaseLeavesStock(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.CreatePurchase(context.Background(), "usr-stockist", domain.PurchaseCreateRequest{
		SupplierID:    "sup-1",
		Items:         []domain.PurchaseLine{{ProductID: "A", Quantity: 5, UnitCostCents: 60}},
		Status:        domain.PurchaseStatusPending,
		PaymentMethod: domain.PaymentMethodCash,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, stockOf(t, repo, "A"))
}

func TestPurchaseValidation(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePurchase(ctx, "usr-stockist", domain.PurchaseCreateRequest{
		SupplierID:    "sup-missing",
		Items:         []domain.PurchaseLine{{ProductID: "A", Quantity: 1}},
		PaymentMethod: domain.PaymentMethodCash,
	})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = svc.CreatePurchase(ctx, "usr-stockist", domain.PurchaseCreateRequest{
		SupplierID: "sup-1",
		Items: []domain.PurchaseLine{
			{ProductID: "A", Quantity: 2},
			{ProductID: "missing", Quantity: 1},
		},
		PaymentMethod: domain.PaymentMethodCash,
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 10, stockOf(t, repo, "A"))

	_, err = svc.CreatePurchase(ctx, "usr-stockist", domain.PurchaseCreateRequest{
		SupplierID: "sup-1",
		Items: []domain.PurchaseLine{
			{ProductID: "A", Quantity: 2, UnitCostCents: math.MaxInt64 / 2},
			{ProductID: "B", Quantity: 1, UnitCostCents: 10},
		},
		PaymentMethod: domain.PaymentMethodCash,
	})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	assert.Equal(t, 10, stockOf(t, repo, "A"))
}

func TestUpdateProductNeverTouchesStock(t *testing.T) {
	svc, repo := newTestService(t)
	name := "Alpha Plus"
	price := int64(120)

	updated, err := svc.UpdateProduct(context.Background(), domain.ProductUpdateRequest{ID: "A", Name: &name, PriceCents: &price})
	require.NoError(t, err)
	assert.Equal(t, "Alpha Plus", updated.Name)
	assert.Equal(t, int64(120), updated.PriceCents)
	assert.Equal(t, 10, stockOf(t, repo, "A"))
}

func TestCreateProductAppliesCriticalDefault(t *testing.T) {
	repo := memory.New()
	svc := New(repo, Options{CriticalStockDefault: 7})

	p, err := svc.CreateProduct(context.Background(), domain.ProductCreateRequest{Name: "Delta", PriceCents: 10, Stock: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, p.CriticalStock)

	level, err := svc.StockLevel(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, level.Critical)

	_, err = svc.CreateProduct(context.Background(), domain.ProductCreateRequest{Name: "Echo", CategoryID: "cat-missing"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestDirectStockAdjustments(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	level, err := svc.CreditStock(ctx, domain.StockAdjustRequest{ProductID: "C", Quantity: 9})
	require.NoError(t, err)
	assert.Equal(t, 10, level.Stock)

	level, err = svc.DebitStock(ctx, domain.StockAdjustRequest{ProductID: "C", Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, 6, level.Stock)

	_, err = svc.DebitStock(ctx, domain.StockAdjustRequest{ProductID: "C", Quantity: 7})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
}

func TestSalesReportGroupsAndCaches(t *testing.T) {
	repo := memory.New()
	seedCatalog(t, repo)
	reports := newMapCache()
	svc := New(repo, Options{Reports: reports})
	ctx := context.Background()

	day1 := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC) // Monday
	day2 := time.Date(2026, 5, 6, 15, 0, 0, 0, time.UTC)
	for _, at := range []time.Time{day1, day1.Add(2 * time.Hour), day2} {
		svc.now = func() time.Time { return at }
		_, err := svc.CreateSale(ctx, "usr-cashier", saleOf(domain.SaleLine{ProductID: "A", Quantity: 1, PriceCents: 100}))
		require.NoError(t, err)
	}

	req := domain.SalesReportRequest{From: day1.AddDate(0, 0, -1), To: day2.AddDate(0, 0, 1), GroupBy: domain.ReportGroupDay}
	report, err := svc.SalesReport(ctx, req)
	require.NoError(t, err)
	require.Len(t, report.Series, 2)
	assert.Equal(t, domain.TimeSeriesPoint{Date: "2026-05-04", TotalCents: 200, Count: 2}, report.Series[0])
	assert.Equal(t, domain.TimeSeriesPoint{Date: "2026-05-06", TotalCents: 100, Count: 1}, report.Series[1])

	req.GroupBy = domain.ReportGroupWeek
	weekly, err := svc.SalesReport(ctx, req)
	require.NoError(t, err)
	require.Len(t, weekly.Series, 1)
	assert.Equal(t, "2026-05-04", weekly.Series[0].Date)
	assert.Equal(t, 3, weekly.Series[0].Count)

	assert.Len(t, reports.data, 2)

	svc.now = func() time.Time { return day2 }
	_, err = svc.CreateSale(ctx, "usr-cashier", saleOf(domain.SaleLine{ProductID: "A", Quantity: 1, PriceCents: 100}))
	require.NoError(t, err)
	assert.Empty(t, reports.data)
}

func TestSalesReportRejectsBadRange(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Now()
	_, err := svc.SalesReport(context.Background(), domain.SalesReportRequest{From: now, To: now.Add(-time.Hour), GroupBy: domain.ReportGroupDay})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = svc.SalesReport(context.Background(), domain.SalesReportRequest{From: now, To: now.Add(time.Hour), GroupBy: "year"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestPaymentsReportByMethod(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sale := sellFiveAlpha(t, svc)

	_, err := svc.RecordPayment(ctx, pay(sale.ID, 200))
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, domain.PaymentCreateRequest{SaleID: sale.ID, Method: domain.PaymentMethodMercadoPago, AmountCents: 300})
	require.NoError(t, err)

	now := time.Now().UTC()
	report, err := svc.PaymentsReport(ctx, domain.PaymentsReportRequest{From: now.Add(-time.Hour), To: now.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, report.Summary, 2)
	assert.Equal(t, domain.PaymentSummary{Method: domain.PaymentMethodMercadoPago, TotalCents: 300, Count: 1}, report.Summary[0])
	assert.Equal(t, domain.PaymentSummary{Method: domain.PaymentMethodCash, TotalCents: 200, Count: 1}, report.Summary[1])
}

func TestLowStockReport(t *testing.T) {
	svc, _ := newTestService(t)

	report, err := svc.LowStockReport(context.Background(), domain.LowStockReportRequest{Threshold: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, "C", report.Items[0].ProductID)
	assert.Equal(t, "B", report.Items[1].ProductID)
}

func TestRecordAuditTruncatesAndNeverFails(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := WithIdentity(context.Background(), domain.Identity{UserID: "usr-admin", Email: "admin@storekeep.local", Role: domain.RoleAdmin})

	svc.RecordAudit(ctx, "/api/v1/sales/create", "POST", []byte(strings.Repeat("x", 5000)))
	logs, err := svc.ListAuditLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "usr-admin", logs[0].UserID)
	assert.Len(t, logs[0].Payload, maxAuditPayload)

	repo.failAudit = true
	assert.NotPanics(t, func() {
		svc.RecordAudit(ctx, "/api/v1/sales/create", "POST", []byte(`{}`))
	})
}

func TestTruncatePayloadKeepsRunesWhole(t *testing.T) {
	payload := []byte(strings.Repeat("a", maxAuditPayload-1) + "é")
	out := truncatePayload(payload)
	assert.Len(t, out, maxAuditPayload-1)
}
