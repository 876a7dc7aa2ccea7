package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"natrip-payments/internal/database"
	"natrip-payments/internal/domain"
)

// OrderRepo persists payment orders. It is a plain adapter: transition
// rules live in the service layer.
type OrderRepo interface {
	CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.PaymentOrder) error
	FindByToken(ctx context.Context, token string) (*domain.PaymentOrder, error)
	// FindByTokenForUpdate reads the row inside tx, locking it where the
	// dialect supports row locks.
	FindByTokenForUpdate(ctx context.Context, tx *sql.Tx, token string) (*domain.PaymentOrder, error)
	// ClaimStockDecrement flips stock_decremented from false to true and
	// reports whether this call did the flip.
	ClaimStockDecrement(ctx context.Context, tx *sql.Tx, token string) (bool, error)
	ReleaseStockDecrement(ctx context.Context, tx *sql.Tx, token string) error
	ApplyStatusUpdate(ctx context.Context, tx *sql.Tx, update domain.StatusUpdate) error
	FindByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.PaymentOrder, error)
	FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.PaymentOrder, error)
}

type orderRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewOrderRepo(db *sql.DB, dialect database.Dialect) OrderRepo {
	return &orderRepo{db: db, dialect: dialect}
}

const orderColumns = `id, order_token, provider, provider_payment_id, status,
	amount_subtotal, shipping_amount, amount_total,
	checkout_data, delivery_data, payment_data,
	stock_decremented, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanOrder is the only place that maps a payment_orders row to the domain.
func scanOrder(row rowScanner) (*domain.PaymentOrder, error) {
	var (
		o                                domain.PaymentOrder
		status                           string
		checkoutRaw, deliveryRaw, payRaw string
	)
	err := row.Scan(
		&o.ID,
		&o.OrderToken,
		&o.Provider,
		&o.ProviderPaymentID,
		&status,
		&o.AmountSubtotal,
		&o.ShippingAmount,
		&o.AmountTotal,
		&checkoutRaw,
		&deliveryRaw,
		&payRaw,
		&o.StockDecremented,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = domain.Status(status)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()

	if err := decodeBlob(checkoutRaw, &o.Checkout); err != nil {
		return nil, fmt.Errorf("order %s checkout_data: %w", o.OrderToken, err)
	}
	if err := decodeBlob(deliveryRaw, &o.Delivery); err != nil {
		return nil, fmt.Errorf("order %s delivery_data: %w", o.OrderToken, err)
	}
	if err := decodeBlob(payRaw, &o.Payment); err != nil {
		return nil, fmt.Errorf("order %s payment_data: %w", o.OrderToken, err)
	}
	return &o, nil
}

func decodeBlob(raw string, dst any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func encodeBlob(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.PaymentOrder) error {
	checkout, err := encodeBlob(order.Checkout)
	if err != nil {
		return err
	}
	delivery, err := encodeBlob(order.Delivery)
	if err != nil {
		return err
	}
	payment, err := encodeBlob(order.Payment)
	if err != nil {
		return err
	}

	query := r.dialect.Rebind(`INSERT INTO payment_orders
		(order_token, provider, provider_payment_id, status,
		 amount_subtotal, shipping_amount, amount_total,
		 checkout_data, delivery_data, payment_data,
		 stock_decremented, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`)

	_, err = tx.ExecContext(ctx, query,
		order.OrderToken, order.Provider, order.ProviderPaymentID, string(order.Status),
		order.AmountSubtotal, order.ShippingAmount, order.AmountTotal,
		checkout, delivery, payment,
		order.StockDecremented, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *orderRepo) FindByToken(ctx context.Context, token string) (*domain.PaymentOrder, error) {
	query := r.dialect.Rebind(`SELECT ` + orderColumns + ` FROM payment_orders WHERE order_token = $1`)
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return o, err
}

func (r *orderRepo) FindByTokenForUpdate(ctx context.Context, tx *sql.Tx, token string) (*domain.PaymentOrder, error) {
	query := r.dialect.Rebind(`SELECT `+orderColumns+` FROM payment_orders WHERE order_token = $1`) + r.dialect.ForUpdate()
	o, err := scanOrder(tx.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return o, err
}

func (r *orderRepo) ClaimStockDecrement(ctx context.Context, tx *sql.Tx, token string) (bool, error) {
	query := r.dialect.Rebind(`UPDATE payment_orders SET stock_decremented = $1
		WHERE order_token = $2 AND stock_decremented = $3`)
	res, err := tx.ExecContext(ctx, query, true, token, false)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *orderRepo) ReleaseStockDecrement(ctx context.Context, tx *sql.Tx, token string) error {
	query := r.dialect.Rebind(`UPDATE payment_orders SET stock_decremented = $1 WHERE order_token = $2`)
	_, err := tx.ExecContext(ctx, query, false, token)
	return err
}

func (r *orderRepo) ApplyStatusUpdate(ctx context.Context, tx *sql.Tx, u domain.StatusUpdate) error {
	payment, err := encodeBlob(u.Payment)
	if err != nil {
		return err
	}

	query := r.dialect.Rebind(`UPDATE payment_orders
		SET status = $1,
		    provider_payment_id = $2,
		    payment_data = $3,
		    stock_decremented = $4,
		    updated_at = $5
		WHERE order_token = $6`)
	res, err := tx.ExecContext(ctx, query,
		string(u.Status), u.ProviderPaymentID, payment, u.StockDecremented, u.UpdatedAt, u.OrderToken,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *orderRepo) FindByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.PaymentOrder, error) {
	query := r.dialect.Rebind(`SELECT ` + orderColumns + ` FROM payment_orders
		WHERE status = $1
		ORDER BY updated_at DESC
		LIMIT $2`)
	return r.queryOrders(ctx, query, string(status), limit)
}

func (r *orderRepo) FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.PaymentOrder, error) {
	query := r.dialect.Rebind(`SELECT ` + orderColumns + ` FROM payment_orders
		WHERE status = $1
		AND provider_payment_id <> ''
		AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`)
	return r.queryOrders(ctx, query, string(domain.StatusPending), time.Now().UTC().Add(-olderThan), limit)
}

func (r *orderRepo) queryOrders(ctx context.Context, query string, args ...any) ([]domain.PaymentOrder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.PaymentOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}
