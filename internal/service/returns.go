package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"storekeep/backend/internal/domain"
	"storekeep/backend/internal/ledger"
	"storekeep/backend/internal/store"
	"storekeep/backend/internal/xid"
)

var ErrInvalidReturnQuantity = errors.New("invalid return quantity for one or more products")

// CreateRMA validates every item against what the sale sold, net of earlier
// returns, before crediting any stock. One bad item rejects the whole request.
func (s *Service) CreateRMA(ctx context.Context, processedBy string, req domain.RMACreateRequest) (domain.RMA, error) {
	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.SaleID == "" || len(req.Items) == 0 {
		return domain.RMA{}, store.ErrInvalidInput
	}

	requested := make(map[string]int, len(req.Items))
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantity < 1 {
			return domain.RMA{}, ErrInvalidReturnQuantity
		}
		requested[item.ProductID] += item.Quantity
	}

	unlock := s.lockSale(req.SaleID)
	defer unlock()

	var created *domain.RMA
	err := s.withStockJournal(ctx, func(repo store.Repository, journal *ledger.Journal) error {
		sale, err := repo.GetSale(ctx, req.SaleID)
		if err != nil {
			return err
		}

		sold := make(map[string]int, len(sale.Items))
		for _, line := range sale.Items {
			sold[line.ProductID] += line.Quantity
		}
		returned, err := repo.GetReturnedQtyBySale(ctx, sale.ID)
		if err != nil {
			return err
		}
		for productID, qty := range requested {
			if returned[productID]+qty > sold[productID] {
				return ErrInvalidReturnQuantity
			}
		}

		for _, item := range req.Items {
			if _, err := journal.Credit(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		now := s.now()
		date := now
		if req.Date != nil && !req.Date.IsZero() {
			date = req.Date.UTC()
		}
		created, err = repo.CreateRMA(ctx, domain.RMA{
			ID:          xid.New("rma"),
			SaleID:      sale.ID,
			Items:       slices.Clone(req.Items),
			Reason:      strings.TrimSpace(req.Reason),
			ProcessedBy: processedBy,
			Date:        date,
			CreatedAt:   now,
		})
		return err
	})
	if err != nil {
		if !isClientError(err) {
			s.log.Error().Err(err).Str("sale_id", req.SaleID).Msg("create rma failed")
		}
		return domain.RMA{}, err
	}

	s.invalidateReports(ctx)
	s.log.Info().Str("rma_id", created.ID).Str("sale_id", created.SaleID).Msg("return processed")
	return *created, nil
}

func (s *Service) ListRMAs(ctx context.Context, saleID string) ([]domain.RMA, error) {
	saleID = strings.TrimSpace(saleID)
	if _, err := s.repo.GetSale(ctx, saleID); err != nil {
		return nil, err
	}
	return s.repo.ListRMAsBySale(ctx, saleID)
}
