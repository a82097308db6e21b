// Package ledger is the single place product stock is moved. Debits never take
// stock below zero; credits are unbounded.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"storekeep/backend/internal/domain"
	"storekeep/backend/internal/store"
)

type Store interface {
	store.StockStore
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// InsufficientStockError names the product that could not cover a debit.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for product: %s", name)
}

func (e *InsufficientStockError) Unwrap() error {
	return store.ErrInsufficientStock
}

type Ledger struct {
	store Store
}

func New(s Store) *Ledger {
	return &Ledger{store: s}
}

// Debit atomically removes qty units. On shortfall nothing changes and an
// *InsufficientStockError is returned.
func (l *Ledger) Debit(ctx context.Context, productID string, qty int) (*domain.Product, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: debit quantity must be positive", store.ErrInvalidInput)
	}
	product, err := l.store.DecrementStock(ctx, productID, qty)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, store.ErrInsufficientStock) {
		return nil, err
	}

	out := &InsufficientStockError{ProductID: productID, Requested: qty}
	if current, getErr := l.store.GetProduct(ctx, productID); getErr == nil {
		out.Name = current.Name
		out.Available = current.Stock
	}
	return nil, out
}

func (l *Ledger) Credit(ctx context.Context, productID string, qty int) (*domain.Product, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: credit quantity must be positive", store.ErrInvalidInput)
	}
	return l.store.IncrementStock(ctx, productID, qty)
}

type movement struct {
	productID string
	qty       int
	debit     bool
}

// Journal records applied movements so a failed multi-step operation can be
// reversed. A Journal is not safe for concurrent use.
type Journal struct {
	ledger  *Ledger
	applied []movement
}

func (l *Ledger) Begin() *Journal {
	return &Journal{ledger: l}
}

func (j *Journal) Debit(ctx context.Context, productID string, qty int) (*domain.Product, error) {
	product, err := j.ledger.Debit(ctx, productID, qty)
	if err != nil {
		return nil, err
	}
	j.applied = append(j.applied, movement{productID: productID, qty: qty, debit: true})
	return product, nil
}

func (j *Journal) Credit(ctx context.Context, productID string, qty int) (*domain.Product, error) {
	product, err := j.ledger.Credit(ctx, productID, qty)
	if err != nil {
		return nil, err
	}
	j.applied = append(j.applied, movement{productID: productID, qty: qty})
	return product, nil
}

func (j *Journal) Len() int {
	return len(j.applied)
}

// Rollback applies the inverse of every recorded movement, newest first. It
// keeps going after a failure and returns all failures joined.
func (j *Journal) Rollback(ctx context.Context) error {
	var errs []error
	for i := len(j.applied) - 1; i >= 0; i-- {
		m := j.applied[i]
		var err error
		if m.debit {
			_, err = j.ledger.Credit(ctx, m.productID, m.qty)
		} else {
			_, err = j.ledger.Debit(ctx, m.productID, m.qty)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("revert %s x%d: %w", m.productID, m.qty, err))
		}
	}
	j.applied = nil
	return errors.Join(errs...)
}
