package dbrepository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"orderflow/internal/orderflow/data"
	"orderflow/pkg/logging"
)

const uniqueViolationCode = "23505"

type DBStorage interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) (pgx.Row, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryValue(ctx context.Context, query string, args []any, dest []any) error
}

type TransactionManager interface {
	DoWithTransaction(ctx context.Context, f func(ctx context.Context) error) error
}

// DBRepository is the durable Order Store. Saves use optimistic concurrency:
// a version mismatch surfaces data.ErrVersionConflict and is never retried
// here.
type DBRepository struct {
	storage            DBStorage
	transactionManager TransactionManager
	logger             *logging.ZapLogger
}

func New(storage DBStorage, transactionManager TransactionManager, logger *logging.ZapLogger) *DBRepository {
	return &DBRepository{
		storage:            storage,
		transactionManager: transactionManager,
		logger:             logger,
	}
}

//go:embed sql/insert_order.sql
var insertOrderQuery string

//go:embed sql/update_order.sql
var updateOrderQuery string

//go:embed sql/insert_order_item.sql
var insertOrderItemQuery string

//go:embed sql/delete_order_items.sql
var deleteOrderItemsQuery string

// Save persists the order and its items atomically. version == 0 means the
// order was never stored; any other version must match the stored row.
func (db *DBRepository) Save(ctx context.Context, order *data.Order) (*data.Order, error) {
	err := db.transactionManager.DoWithTransaction(ctx, func(ctx context.Context) error {
		if order.Version == 0 {
			return db.insertOrder(ctx, order)
		}
		return db.updateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (db *DBRepository) insertOrder(ctx context.Context, order *data.Order) error {
	_, err := db.storage.Exec(ctx, insertOrderQuery,
		order.ID, order.OrderNumber, order.Status, order.CreatedAt,
		order.ProcessedAt, order.CompletedAt, order.TotalAmount,
		order.Notified, order.RetryCount,
	)
	if err != nil {
		return handleSQLError(err)
	}
	order.Version = 1
	return db.insertItems(ctx, order)
}

func (db *DBRepository) updateOrder(ctx context.Context, order *data.Order) error {
	tag, err := db.storage.Exec(ctx, updateOrderQuery,
		order.ID, order.Version, order.Status,
		order.ProcessedAt, order.CompletedAt, order.TotalAmount,
		order.Notified, order.RetryCount,
	)
	if err != nil {
		return handleSQLError(err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := db.GetByID(ctx, order.ID); err != nil {
			return err
		}
		return data.ErrVersionConflict
	}
	order.Version++

	if _, err := db.storage.Exec(ctx, deleteOrderItemsQuery, order.ID); err != nil {
		return handleSQLError(err)
	}
	return db.insertItems(ctx, order)
}

func (db *DBRepository) insertItems(ctx context.Context, order *data.Order) error {
	for _, item := range order.Items {
		_, err := db.storage.Exec(ctx, insertOrderItemQuery,
			order.ID, item.ProductID, item.ProductName, item.Quantity, item.Price,
		)
		if err != nil {
			return handleSQLError(err)
		}
	}
	return nil
}

//go:embed sql/select_order_by_id.sql
var selectOrderByIDQuery string

func (db *DBRepository) GetByID(ctx context.Context, id uuid.UUID) (*data.Order, error) {
	row, err := db.storage.QueryRow(ctx, selectOrderByIDQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return db.scanOrderWithItems(ctx, row)
}

//go:embed sql/select_order_by_number.sql
var selectOrderByNumberQuery string

func (db *DBRepository) GetByNumber(ctx context.Context, orderNumber string) (*data.Order, error) {
	row, err := db.storage.QueryRow(ctx, selectOrderByNumberQuery, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return db.scanOrderWithItems(ctx, row)
}

//go:embed sql/select_orders_by_status.sql
var selectOrdersByStatusQuery string

func (db *DBRepository) GetByStatus(ctx context.Context, status data.Status, limit, offset int) ([]data.Order, error) {
	return db.queryOrders(ctx, selectOrdersByStatusQuery, status, limit, offset)
}

//go:embed sql/select_orders_page.sql
var selectOrdersPageQuery string

func (db *DBRepository) GetPage(ctx context.Context, limit, offset int) ([]data.Order, error) {
	return db.queryOrders(ctx, selectOrdersPageQuery, limit, offset)
}

//go:embed sql/select_stale_orders.sql
var selectStaleOrdersQuery string

// GetStale returns orders left in status since before cutoff, oldest first.
func (db *DBRepository) GetStale(ctx context.Context, status data.Status, cutoff time.Time, limit int) ([]data.Order, error) {
	return db.queryOrders(ctx, selectStaleOrdersQuery, status, cutoff, limit)
}

//go:embed sql/select_unnotified_orders.sql
var selectUnnotifiedOrdersQuery string

func (db *DBRepository) GetUnnotified(ctx context.Context, status data.Status, limit int) ([]data.Order, error) {
	return db.queryOrders(ctx, selectUnnotifiedOrdersQuery, status, limit)
}

//go:embed sql/select_retryable_orders.sql
var selectRetryableOrdersQuery string

func (db *DBRepository) GetRetryable(ctx context.Context, status data.Status, retryLimit, limit int) ([]data.Order, error) {
	return db.queryOrders(ctx, selectRetryableOrdersQuery, status, retryLimit, limit)
}

//go:embed sql/count_created_between.sql
var countCreatedBetweenQuery string

func (db *DBRepository) CountCreatedBetween(ctx context.Context, start, end time.Time) (int64, error) {
	var count int64
	err := db.storage.QueryValue(ctx, countCreatedBetweenQuery, []any{start, end}, []any{&count})
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

//go:embed sql/count_status_created_between.sql
var countStatusCreatedBetweenQuery string

func (db *DBRepository) CountByStatusCreatedBetween(ctx context.Context, status data.Status, start, end time.Time) (int64, error) {
	var count int64
	err := db.storage.QueryValue(ctx, countStatusCreatedBetweenQuery, []any{status, start, end}, []any{&count})
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

//go:embed sql/delete_completed_before.sql
var deleteCompletedBeforeQuery string

// DeleteCompletedBefore bulk-removes completed orders older than cutoff and
// returns the number of rows deleted. Items go with them via FK cascade.
func (db *DBRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.storage.Exec(ctx, deleteCompletedBeforeQuery, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete completed orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

//go:embed sql/select_order_items.sql
var selectOrderItemsQuery string

func (db *DBRepository) queryOrders(ctx context.Context, query string, args ...any) ([]data.Order, error) {
	rows, err := db.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []data.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	if err := db.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (db *DBRepository) scanOrderWithItems(ctx context.Context, row pgx.Row) (*data.Order, error) {
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	orders := []data.Order{*order}
	if err := db.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (db *DBRepository) attachItems(ctx context.Context, orders []data.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	index := make(map[uuid.UUID]*data.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = &orders[i]
	}

	rows, err := db.storage.Query(ctx, selectOrderItemsQuery, ids)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var item data.OrderItem
		var productName *string
		err := rows.Scan(&orderID, &item.ProductID, &productName, &item.Quantity, &item.Price)
		if err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if productName != nil {
			item.ProductName = *productName
		}
		if order, ok := index[orderID]; ok {
			order.Items = append(order.Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read order items: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*data.Order, error) {
	var order data.Order
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.Status, &order.CreatedAt,
		&order.ProcessedAt, &order.CompletedAt, &order.TotalAmount,
		&order.Notified, &order.RetryCount, &order.Version,
	)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, data.ErrNotFound
		default:
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
	}
	return &order, nil
}

func handleSQLError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return data.ErrOrderNumberTaken
	}
	return fmt.Errorf("storage request failed: %w", err)
}
