package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ozsapka/shop-api/internal/domain/basket"
)

const (
	findBasketSQL = `SELECT id, user_id, status, total, created_at
		FROM orders WHERE user_id = $1 AND status = 'basket'`

	insertOrderSQL = `INSERT INTO orders (id, user_id, status, total, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	upsertBasketSQL = `INSERT INTO orders (id, user_id, status, total, created_at)
		VALUES ($1, $2, 'basket', 0, $3)
		ON CONFLICT (user_id) WHERE status = 'basket' DO NOTHING`

	updateOrderTotalSQL = `UPDATE orders SET total = $2
		WHERE id = $1 AND status = 'basket'`

	updateOrderStatusSQL = `UPDATE orders SET status = $3
		WHERE id = $1 AND status = $2`

	getOrderStatusSQL = `SELECT status FROM orders WHERE id = $1`

	getOrderByIDSQL = `SELECT id, user_id, status, total, created_at
		FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT id, user_id, status, total, created_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	deleteLinesSQL = `DELETE FROM order_lines WHERE order_id = $1`

	insertLineSQL = `INSERT INTO order_lines (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)`

	listLinesSQL = `SELECT product_id, quantity, unit_price
		FROM order_lines WHERE order_id = $1 ORDER BY product_id`

	listLinesByOrdersSQL = `SELECT order_id, product_id, quantity, unit_price
		FROM order_lines WHERE order_id = ANY($1) ORDER BY product_id`
)

// uniqueViolation is the PostgreSQL error code raised when the partial
// unique index on (user_id) WHERE status = 'basket' rejects an insert.
const uniqueViolation = "23505"

var _ basket.Repository = (*OrderRepository)(nil)

// OrderRepository implements basket.Repository backed by PostgreSQL.
// The one-basket-per-user invariant is enforced by a partial unique index,
// so find-or-create stays race-free across processes.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// FindBasket returns the user's open basket with its lines, or (nil, nil)
// when the user has none.
func (r *OrderRepository) FindBasket(ctx context.Context, userID string) (*basket.Order, error) {
	rows, err := r.pool.Query(ctx, findBasketSQL, userID)
	if err != nil {
		return nil, storageErr(err, "finding basket for user %q", userID)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr(err, "finding basket for user %q", userID)
	}

	if err := r.loadLines(ctx, r.pool, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateBasket inserts a new basket order, mapping the unique-index
// violation to basket.ErrDuplicateBasket.
func (r *OrderRepository) CreateBasket(ctx context.Context, o *basket.Order) error {
	_, err := r.pool.Exec(ctx, insertOrderSQL, o.ID, o.UserID, o.Status, o.Total, o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return basket.ErrDuplicateBasket
		}
		return storageErr(err, "creating basket for user %q", o.UserID)
	}
	return nil
}

// FindOrCreateBasket runs a single transaction: insert-if-absent guarded by
// the partial unique index, then read back whichever row won. Two concurrent
// callers serialize on the index, so exactly one basket row ever exists.
func (r *OrderRepository) FindOrCreateBasket(ctx context.Context, userID string) (*basket.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, storageErr(err, "beginning basket upsert for user %q", userID)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	candidate := basket.NewBasket(userID)
	if _, err := tx.Exec(ctx, upsertBasketSQL, candidate.ID, userID, candidate.CreatedAt); err != nil {
		return nil, storageErr(err, "upserting basket for user %q", userID)
	}

	rows, err := tx.Query(ctx, findBasketSQL, userID)
	if err != nil {
		return nil, storageErr(err, "reading basket for user %q", userID)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		return nil, storageErr(err, "reading basket for user %q", userID)
	}

	if err := r.loadLines(ctx, tx, &o); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr(err, "committing basket upsert for user %q", userID)
	}
	return &o, nil
}

// UpdateLines replaces the stored lines and total of an open basket in one
// transaction.
func (r *OrderRepository) UpdateLines(ctx context.Context, o *basket.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storageErr(err, "beginning line update for order %q", o.ID)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, updateOrderTotalSQL, o.ID, o.Total)
	if err != nil {
		return storageErr(err, "updating total for order %q", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return basket.ErrOrderNotFound
	}

	if _, err := tx.Exec(ctx, deleteLinesSQL, o.ID); err != nil {
		return storageErr(err, "clearing lines for order %q", o.ID)
	}
	for _, l := range o.Lines {
		if _, err := tx.Exec(ctx, insertLineSQL, o.ID, l.ProductID, l.Quantity, l.UnitPrice); err != nil {
			return storageErr(err, "inserting line %q for order %q", l.ProductID, o.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr(err, "committing line update for order %q", o.ID)
	}
	return nil
}

// UpdateStatus transitions an order guarded by its expected current status.
// A zero-row update is resolved into either order-not-found or an invalid
// transition from the actually stored status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, from, to basket.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, orderID, from, to)
	if err != nil {
		return storageErr(err, "updating status of order %q", orderID)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var stored basket.Status
	err = r.pool.QueryRow(ctx, getOrderStatusSQL, orderID).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return basket.ErrOrderNotFound
	}
	if err != nil {
		return storageErr(err, "reading status of order %q", orderID)
	}
	return &basket.InvalidStateTransitionError{From: stored, To: to}
}

// GetByID returns an order with its lines.
func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (*basket.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, orderID)
	if err != nil {
		return nil, storageErr(err, "getting order %q", orderID)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, basket.ErrOrderNotFound
		}
		return nil, storageErr(err, "getting order %q", orderID)
	}

	if err := r.loadLines(ctx, r.pool, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListByUser returns all of a user's orders, newest first, lines included.
// Lines for all orders are fetched in one query and grouped in memory.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]basket.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, storageErr(err, "listing orders for user %q", userID)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, storageErr(err, "listing orders for user %q", userID)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*basket.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	lineRows, err := r.pool.Query(ctx, listLinesByOrdersSQL, ids)
	if err != nil {
		return nil, storageErr(err, "listing lines for user %q", userID)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var (
			orderID string
			l       basket.Line
		)
		if err := lineRows.Scan(&orderID, &l.ProductID, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, storageErr(err, "scanning line for user %q", userID)
		}
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, storageErr(err, "listing lines for user %q", userID)
	}

	return orders, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *OrderRepository) loadLines(ctx context.Context, q querier, o *basket.Order) error {
	rows, err := q.Query(ctx, listLinesSQL, o.ID)
	if err != nil {
		return storageErr(err, "listing lines for order %q", o.ID)
	}
	lines, err := pgx.CollectRows(rows, scanLine)
	if err != nil {
		return storageErr(err, "listing lines for order %q", o.ID)
	}
	o.Lines = lines
	return nil
}

func scanOrder(row pgx.CollectableRow) (basket.Order, error) {
	var o basket.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.CreatedAt)
	return o, err
}

func scanLine(row pgx.CollectableRow) (basket.Line, error) {
	var l basket.Line
	err := row.Scan(&l.ProductID, &l.Quantity, &l.UnitPrice)
	return l, err
}
