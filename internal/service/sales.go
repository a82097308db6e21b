package service

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"storekeep/backend/internal/domain"
	"storekeep/backend/internal/ledger"
	"storekeep/backend/internal/store"
	"storekeep/backend/internal/xid"
)

// CreateSale debits every line and persists the sale as one unit. If any
// debit or the final write fails, stock ends where it started.
func (s *Service) CreateSale(ctx context.Context, cashierID string, req domain.SaleCreateRequest) (domain.Sale, error) {
	cashierID = strings.TrimSpace(cashierID)
	if cashierID == "" || len(req.Items) == 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if !domain.IsSupportedPaymentMethod(req.PaymentMethod) {
		return domain.Sale{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidInput, req.PaymentMethod)
	}
	for _, line := range req.Items {
		if strings.TrimSpace(line.ProductID) == "" || line.Quantity < 1 || line.PriceCents < 0 {
			return domain.Sale{}, store.ErrInvalidInput
		}
	}
	total, err := saleTotal(req.Items)
	if err != nil {
		return domain.Sale{}, err
	}

	var created *domain.Sale
	err = s.withStockJournal(ctx, func(repo store.Repository, journal *ledger.Journal) error {
		for _, line := range req.Items {
			if _, err := journal.Debit(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		sale := domain.Sale{
			ID:            xid.New("sal"),
			CashierID:     cashierID,
			Items:         slices.Clone(req.Items),
			TotalCents:    total,
			PaymentMethod: req.PaymentMethod,
			Paid:          false,
			CreatedAt:     s.now(),
		}
		var err error
		created, err = repo.CreateSale(ctx, sale)
		return err
	})
	if err != nil {
		if !isClientError(err) {
			s.log.Error().Err(err).Str("cashier_id", cashierID).Msg("create sale failed")
		}
		return domain.Sale{}, err
	}

	s.invalidateReports(ctx)
	s.log.Info().Str("sale_id", created.ID).Int64("total_cents", created.TotalCents).Int("lines", len(created.Items)).Msg("sale created")
	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListSales(ctx, filter)
}

func saleTotal(lines []domain.SaleLine) (int64, error) {
	var total int64
	for _, line := range lines {
		var err error
		if total, err = addLine(total, line.Quantity, line.PriceCents); err != nil {
			return 0, err
		}
	}
	return total, nil
}

var errTotalOverflow = fmt.Errorf("%w: total exceeds the supported range", store.ErrInvalidInput)

// addLine returns total + qty*unit, rejecting any step that would leave int64.
func addLine(total int64, qty int, unit int64) (int64, error) {
	q := int64(qty)
	if q < 0 || unit < 0 {
		return 0, store.ErrInvalidInput
	}
	if q != 0 && unit > (math.MaxInt64-total)/q {
		return 0, errTotalOverflow
	}
	return total + q*unit, nil
}
