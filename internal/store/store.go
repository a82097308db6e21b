package store

import (
	"context"
	"errors"
	"time"

	"storekeep/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicate         = errors.New("duplicate")
)

type ProductStore interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListProductsAtOrBelow(ctx context.Context, threshold int) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// UpdateProduct persists every field except stock.
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) (*domain.Product, error)
}

// StockStore is the only path that mutates product stock.
type StockStore interface {
	// DecrementStock lowers stock by qty only if stock >= qty, as a single
	// atomic step. It returns ErrInsufficientStock without touching the row
	// otherwise.
	DecrementStock(ctx context.Context, productID string, qty int) (*domain.Product, error)
	IncrementStock(ctx context.Context, productID string, qty int) (*domain.Product, error)
}

type SaleStore interface {
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	MarkSalePaid(ctx context.Context, id string) (*domain.Sale, error)
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	ListPaymentsBySale(ctx context.Context, saleID string) ([]domain.Payment, error)
	ListPaymentsBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Payment, error)
	SumPaymentsBySale(ctx context.Context, saleID string) (int64, error)
}

type RMAStore interface {
	CreateRMA(ctx context.Context, rma domain.RMA) (*domain.RMA, error)
	ListRMAsBySale(ctx context.Context, saleID string) ([]domain.RMA, error)
	GetReturnedQtyBySale(ctx context.Context, saleID string) (map[string]int, error)
}

type CategoryStore interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

type SupplierStore interface {
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, id string) error
}

type PurchaseStore interface {
	CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, supplierID string) ([]domain.Purchase, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	DeleteUser(ctx context.Context, id string) error
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}

type Repository interface {
	ProductStore
	StockStore
	SaleStore
	PaymentStore
	RMAStore
	CategoryStore
	SupplierStore
	PurchaseStore
	UserStore
	AuditStore
}

// Transactor is implemented by repositories that can run a unit of work
// inside a database transaction. The Repository handed to fn is bound to the
// transaction; returning an error rolls it back.
type Transactor interface {
	InTx(ctx context.Context, fn func(repo Repository) error) error
}
