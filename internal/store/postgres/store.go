// Package postgres is the pgx backed shop.Store.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/codewandler/shopassist-go/shop"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects a pool to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{pool: pool, logger: logger}
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}

	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	for _, r := range results {
		s.logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Duration("duration", r.Duration),
		)
	}
	return nil
}

func (s *Store) Customer(ctx context.Context, id int64) (shop.Customer, error) {
	var c shop.Customer
	err := s.pool.QueryRow(ctx,
		`SELECT customer_id, name, email, phone FROM customers WHERE customer_id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.Customer{}, shop.ErrNotFound
	}
	if err != nil {
		return shop.Customer{}, fmt.Errorf("get customer %d: %w", id, err)
	}
	return c, nil
}

func (s *Store) Orders(ctx context.Context, customerID int64) ([]shop.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT order_id, customer_id, order_date, status, estimated_delivery
		 FROM orders WHERE customer_id = $1 ORDER BY order_date DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("get orders of %d: %w", customerID, err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shop.Order, error) {
		var o shop.Order
		err := row.Scan(&o.ID, &o.CustomerID, &o.Date, &o.Status, &o.EstimatedDelivery)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("get orders of %d: %w", customerID, err)
	}
	return orders, nil
}

func (s *Store) OrderDetails(ctx context.Context, orderID, customerID int64) (shop.OrderDetails, error) {
	var d shop.OrderDetails
	err := s.pool.QueryRow(ctx,
		`SELECT order_date, status, estimated_delivery
		 FROM orders WHERE order_id = $1 AND customer_id = $2`, orderID, customerID,
	).Scan(&d.OrderDate, &d.Status, &d.EstimatedDelivery)
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.OrderDetails{}, shop.ErrNotFound
	}
	if err != nil {
		return shop.OrderDetails{}, fmt.Errorf("get order %d: %w", orderID, err)
	}
	return d, nil
}

func (s *Store) OrderItems(ctx context.Context, orderID int64) ([]shop.OrderItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT item_id, order_id, product_name, quantity, price
		 FROM order_items WHERE order_id = $1 ORDER BY item_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get items of %d: %w", orderID, err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shop.OrderItem, error) {
		var it shop.OrderItem
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductName, &it.Quantity, &it.Price)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("get items of %d: %w", orderID, err)
	}
	return items, nil
}

func (s *Store) AddItem(ctx context.Context, orderID int64, productName string, quantity int, price float64) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO order_items (order_id, product_name, quantity, price)
		 SELECT order_id, $2, $3, $4 FROM orders WHERE order_id = $1`,
		orderID, productName, quantity, price)
	if err != nil {
		return fmt.Errorf("add item to %d: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return shop.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateItem(ctx context.Context, customerID, orderID, itemID int64, newName *string, newQuantity *int) error {
	query, args, ok := itemUpdate(customerID, orderID, itemID, newName, newQuantity)
	if !ok {
		return shop.ErrNoChanges
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update item %d: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return shop.ErrNotFound
	}
	return nil
}

// itemUpdate builds the UPDATE for the given changes. The ownership check is
// part of the statement, so a foreign order matches no row.
func itemUpdate(customerID, orderID, itemID int64, newName *string, newQuantity *int) (string, []any, bool) {
	var (
		sets []string
		args []any
	)
	if newName != nil {
		args = append(args, *newName)
		sets = append(sets, fmt.Sprintf("product_name = $%d", len(args)))
	}
	if newQuantity != nil {
		args = append(args, *newQuantity)
		sets = append(sets, fmt.Sprintf("quantity = $%d", len(args)))
	}
	if len(sets) == 0 {
		return "", nil, false
	}

	n := len(args)
	args = append(args, orderID, itemID, customerID)
	query := fmt.Sprintf(
		`UPDATE order_items SET %s WHERE order_id = $%d AND item_id = $%d
		 AND EXISTS (SELECT 1 FROM orders WHERE orders.order_id = order_items.order_id AND orders.customer_id = $%d)`,
		strings.Join(sets, ", "), n+1, n+2, n+3,
	)
	return query, args, true
}

func (s *Store) CancelOrder(ctx context.Context, customerID, orderID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $3 WHERE order_id = $1 AND customer_id = $2`,
		orderID, customerID, shop.StatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel order %d: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return shop.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateCustomerField(ctx context.Context, customerID int64, field, value string) error {
	column, ok := shop.ValidField(field)
	if !ok {
		return shop.ErrInvalidField
	}
	// column comes from the allow-list
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE customers SET %s = $1 WHERE customer_id = $2`, pgx.Identifier{column}.Sanitize()),
		value, customerID)
	if err != nil {
		return fmt.Errorf("update customer %d: %w", customerID, err)
	}
	if tag.RowsAffected() == 0 {
		return shop.ErrNotFound
	}
	return nil
}

var _ shop.Store = (*Store)(nil)
