package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"storekeep/backend/internal/domain"
	"storekeep/backend/internal/store"
	"storekeep/backend/internal/xid"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type Store struct {
	db *sql.DB
	q  querier
}

var (
	_ store.Repository = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, q: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the bundled schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";\n") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const maxTxAttempts = 5

// InTx runs fn against a Store bound to a serializable transaction. Nested
// calls reuse the outer transaction. Serialization failures and deadlocks
// are retried, so fn must be safe to run more than once.
func (s *Store) InTx(ctx context.Context, fn func(repo store.Repository) error) error {
	if _, nested := s.q.(*sql.Tx); nested {
		return fn(s)
	}

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryableTxError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * 10 * time.Millisecond):
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(repo store.Repository) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// unitOfWork groups multi-table writes. It joins the current transaction
// when there is one.
func (s *Store) unitOfWork(ctx context.Context, fn func(q querier) error) error {
	if tx, ok := s.q.(*sql.Tx); ok {
		return fn(tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ---- products ----

const productColumns = `id, name, description, price_cents, stock, critical_stock,
	COALESCE(category_id, ''), COALESCE(supplier_id, ''), created_at, updated_at`

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.CriticalStock,
		&p.CategoryID, &p.SupplierID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
}

func (s *Store) ListProductsAtOrBelow(ctx context.Context, threshold int) ([]domain.Product, error) {
	return s.queryProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE stock <= $1
		ORDER BY stock ASC, name ASC
	`, threshold)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" || product.Stock < 0 || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	p, err := scanProduct(s.q.QueryRowContext(ctx, `
		INSERT INTO products (id, name, description, price_cents, stock, critical_stock, category_id, supplier_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
		RETURNING `+productColumns,
		product.ID, product.Name, product.Description, product.PriceCents, product.Stock, product.CriticalStock,
		nullIfEmpty(product.CategoryID), nullIfEmpty(product.SupplierID)))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	p, err := scanProduct(s.q.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, price_cents = $4, critical_stock = $5,
			category_id = $6, supplier_id = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.Description, product.PriceCents, product.CriticalStock,
		nullIfEmpty(product.CategoryID), nullIfEmpty(product.SupplierID)))
	if err != nil {
		return nil, mapWriteError(mapNoRows(err))
	}
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.q.QueryRowContext(ctx, `DELETE FROM products WHERE id = $1 RETURNING `+productColumns, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return p, nil
}

// ---- stock ----

// DecrementStock is a single conditional UPDATE, so two concurrent sales can
// never both take the last unit.
func (s *Store) DecrementStock(ctx context.Context, productID string, qty int) (*domain.Product, error) {
	if qty <= 0 {
		return nil, store.ErrInvalidInput
	}

	p, err := scanProduct(s.q.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING `+productColumns, productID, qty))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return nil, store.ErrInsufficientStock
}

func (s *Store) IncrementStock(ctx context.Context, productID string, qty int) (*domain.Product, error) {
	if qty <= 0 {
		return nil, store.ErrInvalidInput
	}

	p, err := scanProduct(s.q.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns, productID, qty))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return p, nil
}

// ---- categories ----

const categoryColumns = `id, name, description, created_at, updated_at`

func scanCategory(row rowScanner) (*domain.Category, error) {
	var c domain.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Category, 0, 16)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	c, err := scanCategory(s.q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return c, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}

	c, err := scanCategory(s.q.QueryRowContext(ctx, `
		INSERT INTO categories (id, name, description, created_at, updated_at)
		VALUES ($1,$2,$3,now(),now())
		RETURNING `+categoryColumns, category.ID, category.Name, category.Description))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return c, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	c, err := scanCategory(s.q.QueryRowContext(ctx, `
		UPDATE categories SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+categoryColumns, category.ID, category.Name, category.Description))
	if err != nil {
		return nil, mapWriteError(mapNoRows(err))
	}
	return c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return s.execAffectingRow(ctx, `DELETE FROM categories WHERE id = $1`, id)
}

// ---- suppliers ----

const supplierColumns = `id, name, contact_name, email, phone, address, created_at, updated_at`

func scanSupplier(row rowScanner) (*domain.Supplier, error) {
	var sup domain.Supplier
	if err := row.Scan(&sup.ID, &sup.Name, &sup.ContactName, &sup.Email, &sup.Phone, &sup.Address,
		&sup.CreatedAt, &sup.UpdatedAt); err != nil {
		return nil, err
	}
	return &sup, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+supplierColumns+` FROM suppliers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sup)
	}
	return out, rows.Err()
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	sup, err := scanSupplier(s.q.QueryRowContext(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return sup, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}

	sup, err := scanSupplier(s.q.QueryRowContext(ctx, `
		INSERT INTO suppliers (id, name, contact_name, email, phone, address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		RETURNING `+supplierColumns,
		supplier.ID, supplier.Name, supplier.ContactName, supplier.Email, supplier.Phone, supplier.Address))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return sup, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	sup, err := scanSupplier(s.q.QueryRowContext(ctx, `
		UPDATE suppliers
		SET name = $2, contact_name = $3, email = $4, phone = $5, address = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+supplierColumns,
		supplier.ID, supplier.Name, supplier.ContactName, supplier.Email, supplier.Phone, supplier.Address))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return sup, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, id string) error {
	return s.execAffectingRow(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
}

// ---- users ----

const userColumns = `id, name, email, password_hash, role, active, created_at, updated_at`

func scanUser(row rowScanner) (*domain.UserAccount, error) {
	var u domain.UserAccount
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" || !user.Role.Valid() {
		return nil, store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}

	u, err := scanUser(s.q.QueryRowContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		RETURNING `+userColumns,
		user.ID, user.Name, user.Email, user.PasswordHash, string(user.Role), user.Active))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx, `
		UPDATE users
		SET name = $2, email = $3, password_hash = $4, role = $5, active = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID, user.Name, strings.ToLower(strings.TrimSpace(user.Email)), user.PasswordHash, string(user.Role), user.Active))
	if err != nil {
		return nil, mapWriteError(mapNoRows(err))
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.execAffectingRow(ctx, `DELETE FROM users WHERE id = $1`, id)
}

// ---- audit ----

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, endpoint, method, user_id, user_email, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.Endpoint, entry.Method, entry.UserID, entry.UserEmail, entry.Payload, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, endpoint, method, user_id, user_email, payload, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.Endpoint, &entry.Method, &entry.UserID, &entry.UserEmail,
			&entry.Payload, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ---- helpers ----

func (s *Store) execAffectingRow(ctx context.Context, query string, id string) error {
	res, err := s.q.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapWriteError(err error) error {
	switch {
	case isUniqueViolation(err):
		return store.ErrDuplicate
	case isForeignKeyViolation(err):
		return store.ErrNotFound
	default:
		return err
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// isRetryableTxError reports serialization_failure and deadlock_detected.
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
