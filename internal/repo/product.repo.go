package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"natrip-payments/internal/database"
	"natrip-payments/internal/domain"
)

// ProductRepo is the inventory ledger. Stock only moves through single
// conditional statements, never read-then-write.
type ProductRepo interface {
	// DecrementStock validates every item before touching a row, then takes
	// each qty off its product only if enough stock is left. It stops at the
	// first shortfall with *domain.InsufficientStockError and leaves rows it
	// already changed in tx to the caller.
	DecrementStock(ctx context.Context, tx *sql.Tx, items []domain.StockItem) error
	Restock(ctx context.Context, tx *sql.Tx, items []domain.StockItem) error
	Create(ctx context.Context, name string, price decimal.Decimal, stock int) (*domain.Product, error)
	FindByID(ctx context.Context, id int64) (*domain.Product, error)
}

type productRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewProductRepo(db *sql.DB, dialect database.Dialect) ProductRepo {
	return &productRepo{db: db, dialect: dialect}
}

var ErrProductNotFound = errors.New("product not found")

func (r *productRepo) DecrementStock(ctx context.Context, tx *sql.Tx, items []domain.StockItem) error {
	if err := domain.ValidateStockItems(items); err != nil {
		return err
	}

	query := r.dialect.Rebind(`UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1`)
	for _, it := range items {
		res, err := tx.ExecContext(ctx, query, it.Qty, it.ProductID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &domain.InsufficientStockError{ProductID: it.ProductID}
		}
	}
	return nil
}

func (r *productRepo) Restock(ctx context.Context, tx *sql.Tx, items []domain.StockItem) error {
	if err := domain.ValidateStockItems(items); err != nil {
		return err
	}

	query := r.dialect.Rebind(`UPDATE products SET stock = stock + $1 WHERE id = $2`)
	for _, it := range items {
		if _, err := tx.ExecContext(ctx, query, it.Qty, it.ProductID); err != nil {
			return err
		}
	}
	return nil
}

func (r *productRepo) Create(ctx context.Context, name string, price decimal.Decimal, stock int) (*domain.Product, error) {
	p := &domain.Product{Name: name, Price: price.Round(2), Stock: stock}

	if r.dialect == database.Postgres {
		err := r.db.QueryRowContext(ctx,
			`INSERT INTO products (name, price, stock) VALUES ($1, $2, $3) RETURNING id`,
			p.Name, p.Price, p.Stock,
		).Scan(&p.ID)
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(`INSERT INTO products (name, price, stock) VALUES ($1, $2, $3)`),
		p.Name, p.Price, p.Stock)
	if err != nil {
		return nil, err
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *productRepo) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := r.db.QueryRowContext(ctx,
		r.dialect.Rebind(`SELECT id, name, price, stock FROM products WHERE id = $1`), id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
