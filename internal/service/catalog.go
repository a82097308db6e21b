package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storekeep/backend/internal/domain"
	"storekeep/backend/internal/store"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PriceCents < 0 || req.Stock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	critical := s.criticalStock
	if req.CriticalStock != nil {
		if *req.CriticalStock < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		critical = *req.CriticalStock
	}
	if err := s.checkReferences(ctx, req.CategoryID, req.SupplierID); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:          req.Name,
		Description:   strings.TrimSpace(req.Description),
		PriceCents:    req.PriceCents,
		Stock:         req.Stock,
		CriticalStock: critical,
		CategoryID:    strings.TrimSpace(req.CategoryID),
		SupplierID:    strings.TrimSpace(req.SupplierID),
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateReports(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(req.ID))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.CriticalStock != nil {
		if *req.CriticalStock < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.CriticalStock = *req.CriticalStock
	}
	if req.CategoryID != nil {
		updated.CategoryID = strings.TrimSpace(*req.CategoryID)
	}
	if req.SupplierID != nil {
		updated.SupplierID = strings.TrimSpace(*req.SupplierID)
	}
	if err := s.checkReferences(ctx, updated.CategoryID, updated.SupplierID); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateReports(ctx)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) (domain.Product, error) {
	deleted, err := s.repo.DeleteProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateReports(ctx)
	return *deleted, nil
}

func (s *Service) checkReferences(ctx context.Context, categoryID string, supplierID string) error {
	if id := strings.TrimSpace(categoryID); id != "" {
		if _, err := s.repo.GetCategory(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: unknown category %s", store.ErrInvalidInput, id)
			}
			return err
		}
	}
	if id := strings.TrimSpace(supplierID); id != "" {
		if _, err := s.repo.GetSupplier(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: unknown supplier %s", store.ErrInvalidInput, id)
			}
			return err
		}
	}
	return nil
}

// ---- stock ----

func (s *Service) StockLevel(ctx context.Context, productID string) (domain.StockLevel, error) {
	p, err := s.repo.GetProduct(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.StockLevel{}, err
	}
	return stockLevelOf(*p), nil
}

func (s *Service) DebitStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockLevel, error) {
	p, err := s.ledger.Debit(ctx, strings.TrimSpace(req.ProductID), req.Quantity)
	if err != nil {
		return domain.StockLevel{}, err
	}
	s.invalidateReports(ctx)
	return stockLevelOf(*p), nil
}

func (s *Service) CreditStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockLevel, error) {
	p, err := s.ledger.Credit(ctx, strings.TrimSpace(req.ProductID), req.Quantity)
	if err != nil {
		return domain.StockLevel{}, err
	}
	s.invalidateReports(ctx)
	return stockLevelOf(*p), nil
}

func stockLevelOf(p domain.Product) domain.StockLevel {
	return domain.StockLevel{
		ProductID:     p.ID,
		Name:          p.Name,
		Stock:         p.Stock,
		CriticalStock: p.CriticalStock,
		Critical:      p.IsCritical(),
	}
}

// ---- categories ----

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryRequest) (domain.Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, store.ErrInvalidInput
	}
	created, err := s.repo.CreateCategory(ctx, domain.Category{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return domain.Category{}, err
	}
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, req domain.CategoryRequest) (domain.Category, error) {
	name := strings.TrimSpace(req.Name)
	if strings.TrimSpace(req.ID) == "" || name == "" {
		return domain.Category{}, store.ErrInvalidInput
	}
	updated, err := s.repo.UpdateCategory(ctx, domain.Category{
		ID:          strings.TrimSpace(req.ID),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return domain.Category{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	return s.repo.DeleteCategory(ctx, strings.TrimSpace(id))
}

// ---- suppliers ----

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierRequest) (domain.Supplier, error) {
	supplier := supplierFromRequest(req)
	if supplier.Name == "" {
		return domain.Supplier{}, store.ErrInvalidInput
	}
	supplier.ID = ""
	created, err := s.repo.CreateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, req domain.SupplierRequest) (domain.Supplier, error) {
	supplier := supplierFromRequest(req)
	if supplier.ID == "" || supplier.Name == "" {
		return domain.Supplier{}, store.ErrInvalidInput
	}
	updated, err := s.repo.UpdateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, id string) error {
	return s.repo.DeleteSupplier(ctx, strings.TrimSpace(id))
}

func supplierFromRequest(req domain.SupplierRequest) domain.Supplier {
	return domain.Supplier{
		ID:          strings.TrimSpace(req.ID),
		Name:        strings.TrimSpace(req.Name),
		ContactName: strings.TrimSpace(req.ContactName),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:       strings.TrimSpace(req.Phone),
		Address:     strings.TrimSpace(req.Address),
	}
}

// ListCriticalProducts returns products at or below their own critical threshold.
func (s *Service) ListCriticalProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0)
	for _, p := range products {
		if p.IsCritical() {
			out = append(out, p)
		}
	}
	return out, nil
}
