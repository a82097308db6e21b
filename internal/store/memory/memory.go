package memory

import (
	"cmp"
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"storekeep/backend/internal/domain"
	"storekeep/backend/internal/store"
	"storekeep/backend/internal/xid"
)

type Store struct {
	mu         sync.RWMutex
	products   map[string]domain.Product
	sales      map[string]domain.Sale
	payments   []domain.Payment
	rmas       []domain.RMA
	categories map[string]domain.Category
	suppliers  map[string]domain.Supplier
	purchases  []domain.Purchase
	usersByID  map[string]domain.UserAccount
	auditLogs  []domain.AuditLog
	clock      func() time.Time
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products:   make(map[string]domain.Product),
		sales:      make(map[string]domain.Sale),
		payments:   make([]domain.Payment, 0, 64),
		rmas:       make([]domain.RMA, 0, 16),
		categories: make(map[string]domain.Category),
		suppliers:  make(map[string]domain.Supplier),
		purchases:  make([]domain.Purchase, 0, 16),
		usersByID:  make(map[string]domain.UserAccount),
		auditLogs:  make([]domain.AuditLog, 0, 128),
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store with demo catalog data and one account per role.
// Passwords come from SEED_ADMIN_PASSWORD / SEED_STAFF_PASSWORD and fall
// back to dev defaults.
func NewSeeded() *Store {
	s := New()
	now := s.clock()

	categories := []domain.Category{
		{ID: "cat-beverages", Name: "Beverages"},
		{ID: "cat-snacks", Name: "Snacks"},
		{ID: "cat-household", Name: "Household"},
	}
	for _, c := range categories {
		c.CreatedAt, c.UpdatedAt = now, now
		s.categories[c.ID] = c
	}

	s.suppliers["sup-default"] = domain.Supplier{
		ID:          "sup-default",
		Name:        "Distribuidora Central",
		ContactName: "Front desk",
		Email:       "orders@central.example",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	products := []domain.Product{
		{ID: "prd-cola", Name: "Cola 500ml", PriceCents: 250, Stock: 120, CategoryID: "cat-beverages"},
		{ID: "prd-water", Name: "Mineral Water 600ml", PriceCents: 180, Stock: 200, CategoryID: "cat-beverages"},
		{ID: "prd-chips", Name: "Potato Chips", PriceCents: 320, Stock: 80, CategoryID: "cat-snacks"},
		{ID: "prd-cookies", Name: "Chocolate Cookies", PriceCents: 410, Stock: 60, CategoryID: "cat-snacks"},
		{ID: "prd-soap", Name: "Hand Soap", PriceCents: 560, Stock: 12, CriticalStock: 15, CategoryID: "cat-household"},
	}
	for _, p := range products {
		p.SupplierID = "sup-default"
		if p.CriticalStock == 0 {
			p.CriticalStock = 10
		}
		p.CreatedAt, p.UpdatedAt = now, now
		s.products[p.ID] = p
	}

	for _, u := range seedUsers(now) {
		s.usersByID[u.ID] = u
	}
	return s
}

func seedUsers(now time.Time) []domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin12345")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff12345")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	users := make([]domain.UserAccount, 0, 6)
	for _, role := range domain.Roles() {
		password := staffPwd
		if role == domain.RoleAdmin {
			password = adminPwd
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("role", string(role)).Msg("failed to hash seed password")
		}
		users = append(users, domain.UserAccount{
			ID:           "usr-" + string(role),
			Name:         strings.ToUpper(string(role[:1])) + string(role[1:]),
			Email:        string(role) + "@storekeep.local",
			PasswordHash: string(hash),
			Role:         role,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ---- products ----

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Product) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) ListProductsAtOrBelow(_ context.Context, threshold int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.Stock <= threshold {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		if a.Stock != b.Stock {
			return cmp.Compare(a.Stock, b.Stock)
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" || product.Stock < 0 || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrDuplicate
	}
	now := s.clock()
	product.CreatedAt, product.UpdatedAt = now, now

	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.Stock = current.Stock
	product.CreatedAt = current.CreatedAt
	product.UpdatedAt = s.clock()

	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(s.products, id)
	return &p, nil
}

// ---- stock ----

func (s *Store) DecrementStock(_ context.Context, productID string, qty int) (*domain.Product, error) {
	if qty <= 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if p.Stock < qty {
		return nil, store.ErrInsufficientStock
	}
	p.Stock -= qty
	p.UpdatedAt = s.clock()
	s.products[productID] = p
	return &p, nil
}

func (s *Store) IncrementStock(_ context.Context, productID string, qty int) (*domain.Product, error) {
	if qty <= 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.Stock += qty
	p.UpdatedAt = s.clock()
	s.products[productID] = p
	return &p, nil
}

// ---- sales ----

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if _, exists := s.sales[sale.ID]; exists {
		return nil, store.ErrDuplicate
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = s.clock()
	}
	sale.Items = slices.Clone(sale.Items)

	s.sales[sale.ID] = sale
	return cloneSale(sale), nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if filter.CashierID != "" && sale.CashierID != filter.CashierID {
			continue
		}
		if filter.Paid != nil && sale.Paid != *filter.Paid {
			continue
		}
		out = append(out, *cloneSale(sale))
	}
	sortNewestFirst(out, func(v domain.Sale) (time.Time, string) { return v.CreatedAt, v.ID })
	return paginate(out, filter.Offset, filter.Limit), nil
}

func (s *Store) ListSalesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0)
	for _, sale := range s.sales {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		out = append(out, *cloneSale(sale))
	}
	slices.SortFunc(out, func(a, b domain.Sale) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *Store) MarkSalePaid(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale.Paid = true
	s.sales[id] = sale
	return cloneSale(sale), nil
}

// ---- payments ----

func (s *Store) CreatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sales[payment.SaleID]; !ok {
		return nil, store.ErrNotFound
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = s.clock()
	}
	s.payments = append(s.payments, payment)
	return &payment, nil
}

func (s *Store) ListPaymentsBySale(_ context.Context, saleID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Payment, 0)
	for _, p := range s.payments {
		if p.SaleID == saleID {
			out = append(out, p)
		}
	}
	sortNewestFirst(out, func(v domain.Payment) (time.Time, string) { return v.CreatedAt, v.ID })
	return out, nil
}

func (s *Store) ListPaymentsBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Payment, 0)
	for _, p := range s.payments {
		if p.CreatedAt.Before(from) || !p.CreatedAt.Before(to) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) SumPaymentsBySale(_ context.Context, saleID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, p := range s.payments {
		if p.SaleID == saleID {
			total += p.AmountCents
		}
	}
	return total, nil
}

// ---- returns ----

func (s *Store) CreateRMA(_ context.Context, rma domain.RMA) (*domain.RMA, error) {
	if strings.TrimSpace(rma.SaleID) == "" || len(rma.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rma.ID == "" {
		rma.ID = xid.New("rma")
	}
	if rma.CreatedAt.IsZero() {
		rma.CreatedAt = s.clock()
	}
	if rma.Date.IsZero() {
		rma.Date = rma.CreatedAt
	}
	rma.Items = slices.Clone(rma.Items)
	s.rmas = append(s.rmas, rma)

	out := rma
	out.Items = slices.Clone(rma.Items)
	return &out, nil
}

func (s *Store) ListRMAsBySale(_ context.Context, saleID string) ([]domain.RMA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RMA, 0)
	for _, rma := range s.rmas {
		if rma.SaleID != saleID {
			continue
		}
		rma.Items = slices.Clone(rma.Items)
		out = append(out, rma)
	}
	sortNewestFirst(out, func(v domain.RMA) (time.Time, string) { return v.CreatedAt, v.ID })
	return out, nil
}

func (s *Store) GetReturnedQtyBySale(_ context.Context, saleID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int)
	for _, rma := range s.rmas {
		if rma.SaleID != saleID {
			continue
		}
		for _, item := range rma.Items {
			result[item.ProductID] += item.Quantity
		}
	}
	return result, nil
}

// ---- categories ----

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Category) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrDuplicate
		}
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	now := s.clock()
	category.CreatedAt, category.UpdatedAt = now, now

	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.categories[category.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for id, existing := range s.categories {
		if id != category.ID && strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrDuplicate
		}
	}
	category.CreatedAt = current.CreatedAt
	category.UpdatedAt = s.clock()
	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.categories, id)
	return nil
}

// ---- suppliers ----

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		out = append(out, sup)
	}
	slices.SortFunc(out, func(a, b domain.Supplier) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sup, ok := s.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sup, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	now := s.clock()
	supplier.CreatedAt, supplier.UpdatedAt = now, now

	s.suppliers[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.suppliers[supplier.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	supplier.CreatedAt = current.CreatedAt
	supplier.UpdatedAt = s.clock()
	s.suppliers[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) DeleteSupplier(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suppliers[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.suppliers, id)
	return nil
}

// ---- purchases ----

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if len(purchase.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = s.clock()
	}
	purchase.Items = slices.Clone(purchase.Items)
	s.purchases = append(s.purchases, purchase)

	out := purchase
	out.Items = slices.Clone(purchase.Items)
	return &out, nil
}

func (s *Store) ListPurchases(_ context.Context, supplierID string) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Purchase, 0, len(s.purchases))
	for _, p := range s.purchases {
		if supplierID != "" && p.SupplierID != supplierID {
			continue
		}
		p.Items = slices.Clone(p.Items)
		out = append(out, p)
	}
	sortNewestFirst(out, func(v domain.Purchase) (time.Time, string) { return v.CreatedAt, v.ID })
	return out, nil
}

// ---- users ----

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" || !user.Role.Valid() {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.usersByID {
		if existing.Email == user.Email {
			return nil, store.ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	now := s.clock()
	user.CreatedAt, user.UpdatedAt = now, now

	s.usersByID[user.ID] = user
	return &user, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.usersByID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int { return cmp.Compare(a.Email, b.Email) })
	return out, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.usersByID[user.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for id, existing := range s.usersByID {
		if id != user.ID && existing.Email == user.Email {
			return nil, store.ErrDuplicate
		}
	}
	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = s.clock()
	s.usersByID[user.ID] = user
	return &user, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.usersByID, id)
	return nil
}

// ---- audit ----

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.auditLogs)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneSale(src domain.Sale) *domain.Sale {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return &dst
}

func sortNewestFirst[T any](items []T, key func(T) (time.Time, string)) {
	slices.SortFunc(items, func(a, b T) int {
		at, aid := key(a)
		bt, bid := key(b)
		if c := bt.Compare(at); c != 0 {
			return c
		}
		return cmp.Compare(aid, bid)
	})
}

func paginate[T any](items []T, offset int, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
