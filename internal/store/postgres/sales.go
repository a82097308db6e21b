package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storekeep/backend/internal/domain"
	"storekeep/backend/internal/store"
	"storekeep/backend/internal/xid"
)

// ---- sales ----

const saleColumns = `id, cashier_id, total_cents, payment_method, paid, created_at`

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	err := s.unitOfWork(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO sales (id, cashier_id, total_cents, payment_method, paid, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, sale.CashierID, sale.TotalCents, sale.PaymentMethod, sale.Paid, sale.CreatedAt); err != nil {
			return err
		}
		for i, item := range sale.Items {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO sale_items (sale_id, line_no, product_id, quantity, price_cents)
				VALUES ($1,$2,$3,$4,$5)
			`, sale.ID, i, item.ProductID, item.Quantity, item.PriceCents); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sales, err := s.querySales(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, store.ErrNotFound
	}
	return &sales[0], nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	where := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if filter.CashierID != "" {
		args = append(args, filter.CashierID)
		where = append(where, fmt.Sprintf("cashier_id = $%d", len(args)))
	}
	if filter.Paid != nil {
		args = append(args, *filter.Paid)
		where = append(where, fmt.Sprintf("paid = $%d", len(args)))
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return s.querySales(ctx, query, args...)
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	return s.querySales(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`, from, to)
}

func (s *Store) MarkSalePaid(ctx context.Context, id string) (*domain.Sale, error) {
	if err := s.execAffectingRow(ctx, `UPDATE sales SET paid = true WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, id)
}

// querySales loads sale headers and then their lines in one extra query.
func (s *Store) querySales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, 32)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.CashierID, &sale.TotalCents, &sale.PaymentMethod, &sale.Paid, &sale.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(sales) == 0 {
		return sales, nil
	}
	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}

	itemRows, err := s.q.QueryContext(ctx, `
		SELECT sale_id, product_id, quantity, price_cents
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	items := make(map[string][]domain.SaleLine, len(sales))
	for itemRows.Next() {
		var saleID string
		var line domain.SaleLine
		if err := itemRows.Scan(&saleID, &line.ProductID, &line.Quantity, &line.PriceCents); err != nil {
			return nil, err
		}
		items[saleID] = append(items[saleID], line)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}

// ---- payments ----

func (s *Store) CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payments (id, sale_id, method, amount_cents, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, payment.ID, payment.SaleID, payment.Method, payment.AmountCents, payment.Note, payment.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &payment, nil
}

func (s *Store) ListPaymentsBySale(ctx context.Context, saleID string) ([]domain.Payment, error) {
	return s.queryPayments(ctx, `
		SELECT id, sale_id, method, amount_cents, note, created_at
		FROM payments
		WHERE sale_id = $1
		ORDER BY created_at DESC, id DESC
	`, saleID)
}

func (s *Store) ListPaymentsBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Payment, error) {
	return s.queryPayments(ctx, `
		SELECT id, sale_id, method, amount_cents, note, created_at
		FROM payments
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`, from, to)
}

func (s *Store) SumPaymentsBySale(ctx context.Context, saleID string) (int64, error) {
	var total int64
	err := s.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE sale_id = $1
	`, saleID).Scan(&total)
	return total, err
}

func (s *Store) queryPayments(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Payment, 0, 16)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.Method, &p.AmountCents, &p.Note, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- returns ----

func (s *Store) CreateRMA(ctx context.Context, rma domain.RMA) (*domain.RMA, error) {
	if strings.TrimSpace(rma.SaleID) == "" || len(rma.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if rma.ID == "" {
		rma.ID = xid.New("rma")
	}
	if rma.CreatedAt.IsZero() {
		rma.CreatedAt = time.Now().UTC()
	}
	if rma.Date.IsZero() {
		rma.Date = rma.CreatedAt
	}

	err := s.unitOfWork(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO rmas (id, sale_id, reason, processed_by, date, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, rma.ID, rma.SaleID, rma.Reason, rma.ProcessedBy, rma.Date, rma.CreatedAt); err != nil {
			return err
		}
		for i, item := range rma.Items {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO rma_items (rma_id, line_no, product_id, quantity, reason)
				VALUES ($1,$2,$3,$4,$5)
			`, rma.ID, i, item.ProductID, item.Quantity, item.Reason); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &rma, nil
}

func (s *Store) ListRMAsBySale(ctx context.Context, saleID string) ([]domain.RMA, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, sale_id, reason, processed_by, date, created_at
		FROM rmas
		WHERE sale_id = $1
		ORDER BY created_at DESC, id DESC
	`, saleID)
	if err != nil {
		return nil, err
	}
	rmas := make([]domain.RMA, 0, 4)
	for rows.Next() {
		var rma domain.RMA
		if err := rows.Scan(&rma.ID, &rma.SaleID, &rma.Reason, &rma.ProcessedBy, &rma.Date, &rma.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		rmas = append(rmas, rma)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(rmas) == 0 {
		return rmas, nil
	}
	itemRows, err := s.q.QueryContext(ctx, `
		SELECT ri.rma_id, ri.product_id, ri.quantity, ri.reason
		FROM rma_items ri
		JOIN rmas r ON r.id = ri.rma_id
		WHERE r.sale_id = $1
		ORDER BY ri.rma_id, ri.line_no
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	items := make(map[string][]domain.RMAItem, len(rmas))
	for itemRows.Next() {
		var rmaID string
		var item domain.RMAItem
		if err := itemRows.Scan(&rmaID, &item.ProductID, &item.Quantity, &item.Reason); err != nil {
			return nil, err
		}
		items[rmaID] = append(items[rmaID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	for i := range rmas {
		rmas[i].Items = items[rmas[i].ID]
	}
	return rmas, nil
}

func (s *Store) GetReturnedQtyBySale(ctx context.Context, saleID string) (map[string]int, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT ri.product_id, COALESCE(SUM(ri.quantity), 0)
		FROM rma_items ri
		JOIN rmas r ON r.id = ri.rma_id
		WHERE r.sale_id = $1
		GROUP BY ri.product_id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var productID string
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		result[productID] = qty
	}
	return result, rows.Err()
}

// ---- purchases ----

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if len(purchase.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}
	if purchase.Date.IsZero() {
		purchase.Date = purchase.CreatedAt
	}

	err := s.unitOfWork(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO purchases (id, supplier_id, total_cents, status, payment_method, date, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, purchase.ID, purchase.SupplierID, purchase.TotalCents, purchase.Status, purchase.PaymentMethod,
			purchase.Date, purchase.CreatedBy, purchase.CreatedAt); err != nil {
			return err
		}
		for i, item := range purchase.Items {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO purchase_items (purchase_id, line_no, product_id, quantity, unit_cost_cents)
				VALUES ($1,$2,$3,$4,$5)
			`, purchase.ID, i, item.ProductID, item.Quantity, item.UnitCostCents); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &purchase, nil
}

func (s *Store) ListPurchases(ctx context.Context, supplierID string) ([]domain.Purchase, error) {
	query := `
		SELECT id, supplier_id, total_cents, status, payment_method, date, created_by, created_at
		FROM purchases`
	args := make([]any, 0, 1)
	if supplierID != "" {
		query += ` WHERE supplier_id = $1`
		args = append(args, supplierID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	purchases := make([]domain.Purchase, 0, 16)
	for rows.Next() {
		var p domain.Purchase
		if err := rows.Scan(&p.ID, &p.SupplierID, &p.TotalCents, &p.Status, &p.PaymentMethod,
			&p.Date, &p.CreatedBy, &p.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(purchases) == 0 {
		return purchases, nil
	}
	ids := make([]string, 0, len(purchases))
	for _, p := range purchases {
		ids = append(ids, p.ID)
	}
	itemRows, err := s.q.QueryContext(ctx, `
		SELECT purchase_id, product_id, quantity, unit_cost_cents
		FROM purchase_items
		WHERE purchase_id = ANY($1)
		ORDER BY purchase_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	items := make(map[string][]domain.PurchaseLine, len(purchases))
	for itemRows.Next() {
		var purchaseID string
		var line domain.PurchaseLine
		if err := itemRows.Scan(&purchaseID, &line.ProductID, &line.Quantity, &line.UnitCostCents); err != nil {
			return nil, err
		}
		items[purchaseID] = append(items[purchaseID], line)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	for i := range purchases {
		purchases[i].Items = items[purchases[i].ID]
	}
	return purchases, nil
}
