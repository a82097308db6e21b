package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"storekeep/backend/internal/domain"
	"storekeep/backend/internal/ledger"
	"storekeep/backend/internal/store"
	"storekeep/backend/internal/xid"
)

// CreatePurchase records a supplier purchase. A completed purchase credits
// every line into stock in the same unit of work.
func (s *Service) CreatePurchase(ctx context.Context, createdBy string, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	req.SupplierID = strings.TrimSpace(req.SupplierID)
	if req.SupplierID == "" || len(req.Items) == 0 {
		return domain.Purchase{}, store.ErrInvalidInput
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status == "" {
		status = domain.PurchaseStatusCompleted
	}
	switch status {
	case domain.PurchaseStatusPending, domain.PurchaseStatusCompleted, domain.PurchaseStatusCancelled:
	default:
		return domain.Purchase{}, fmt.Errorf("%w: unknown purchase status %q", store.ErrInvalidInput, req.Status)
	}
	if !domain.IsSupportedPaymentMethod(req.PaymentMethod) {
		return domain.Purchase{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidInput, req.PaymentMethod)
	}

	var total int64
	for _, line := range req.Items {
		if strings.TrimSpace(line.ProductID) == "" || line.Quantity < 1 || line.UnitCostCents < 0 {
			return domain.Purchase{}, store.ErrInvalidInput
		}
		next, err := addLine(total, line.Quantity, line.UnitCostCents)
		if err != nil {
			return domain.Purchase{}, err
		}
		total = next
	}

	var created *domain.Purchase
	err := s.withStockJournal(ctx, func(repo store.Repository, journal *ledger.Journal) error {
		if _, err := repo.GetSupplier(ctx, req.SupplierID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: unknown supplier %s", store.ErrInvalidInput, req.SupplierID)
			}
			return err
		}
		for _, line := range req.Items {
			if _, err := repo.GetProduct(ctx, line.ProductID); err != nil {
				return err
			}
		}

		if status == domain.PurchaseStatusCompleted {
			for _, line := range req.Items {
				if _, err := journal.Credit(ctx, line.ProductID, line.Quantity); err != nil {
					return err
				}
			}
		}

		now := s.now()
		date := now
		if req.Date != nil && !req.Date.IsZero() {
			date = req.Date.UTC()
		}
		var err error
		created, err = repo.CreatePurchase(ctx, domain.Purchase{
			ID:            xid.New("pur"),
			SupplierID:    req.SupplierID,
			Items:         slices.Clone(req.Items),
			TotalCents:    total,
			Status:        status,
			PaymentMethod: req.PaymentMethod,
			Date:          date,
			CreatedBy:     createdBy,
			CreatedAt:     now,
		})
		return err
	})
	if err != nil {
		if !isClientError(err) {
			s.log.Error().Err(err).Str("supplier_id", req.SupplierID).Msg("create purchase failed")
		}
		return domain.Purchase{}, err
	}

	if status == domain.PurchaseStatusCompleted {
		s.invalidateReports(ctx)
	}
	return *created, nil
}

func (s *Service) ListPurchases(ctx context.Context, supplierID string) ([]domain.Purchase, error) {
	return s.repo.ListPurchases(ctx, strings.TrimSpace(supplierID))
}
