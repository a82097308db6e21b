package service

import (
	"context"
	"fmt"
	"strings"

	"storekeep/backend/internal/domain"
	"storekeep/backend/internal/store"
	"storekeep/backend/internal/xid"
)

// RecordPayment stores a payment and flips the sale to paid once the running
// sum covers the sale total. Payments are not deduplicated.
func (s *Service) RecordPayment(ctx context.Context, req domain.PaymentCreateRequest) (domain.Payment, error) {
	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.SaleID == "" || req.AmountCents < 0 {
		return domain.Payment{}, store.ErrInvalidInput
	}
	if !domain.IsSupportedPaymentMethod(req.Method) {
		return domain.Payment{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidInput, req.Method)
	}

	unlock := s.lockSale(req.SaleID)
	defer unlock()

	var (
		created    *domain.Payment
		settledNow bool
	)
	err := s.atomically(ctx, func(repo store.Repository) error {
		settledNow = false
		sale, err := repo.GetSale(ctx, req.SaleID)
		if err != nil {
			return err
		}

		created, err = repo.CreatePayment(ctx, domain.Payment{
			ID:          xid.New("pay"),
			SaleID:      sale.ID,
			Method:      req.Method,
			AmountCents: req.AmountCents,
			Note:        strings.TrimSpace(req.Note),
			CreatedAt:   s.now(),
		})
		if err != nil {
			return err
		}

		paidSoFar, err := repo.SumPaymentsBySale(ctx, sale.ID)
		if err != nil {
			return err
		}
		if !sale.Paid && paidSoFar >= sale.TotalCents {
			if _, err := repo.MarkSalePaid(ctx, sale.ID); err != nil {
				return err
			}
			settledNow = true
		}
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.invalidateReports(ctx)
	if settledNow {
		s.log.Info().Str("sale_id", req.SaleID).Msg("sale fully paid")
	}
	return *created, nil
}

func (s *Service) ListPayments(ctx context.Context, saleID string) ([]domain.Payment, error) {
	saleID = strings.TrimSpace(saleID)
	if _, err := s.repo.GetSale(ctx, saleID); err != nil {
		return nil, err
	}
	return s.repo.ListPaymentsBySale(ctx, saleID)
}
