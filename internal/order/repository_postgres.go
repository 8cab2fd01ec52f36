package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

type PostgresRepository struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	orderColumns = `id, "orderId", "userID", items, "shippingAddress", "billingAddress", subtotal, "shippingCost", tax, total,
		"paymentMethod", "paymentStatus", "orderStatus", "shiprocketOrderId", "shiprocketShipmentId", "courierName",
		"trackingNumber", "trackingUrl", notes, "razorpayPaymentId", "createdAt", "updatedAt"`

	insertOrderQuery = `
		INSERT INTO orders ("orderId", "userID", items, "shippingAddress", "billingAddress", subtotal, "shippingCost", tax, total,
			"paymentMethod", "paymentStatus", "orderStatus", "shiprocketOrderId", "shiprocketShipmentId", "courierName",
			"trackingNumber", "trackingUrl", notes, "razorpayPaymentId", "createdAt", "updatedAt")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id
	`
	saveOrderQuery = `
		UPDATE orders
		SET "paymentStatus" = $2,
			"orderStatus" = $3,
			"shiprocketOrderId" = $4,
			"shiprocketShipmentId" = $5,
			"courierName" = $6,
			"trackingNumber" = $7,
			"trackingUrl" = $8,
			notes = $9,
			"updatedAt" = $10
		WHERE "orderId" = $1
	`
	getOrderQuery            = `SELECT ` + orderColumns + ` FROM orders WHERE "orderId" = $1`
	getByShiprocketQuery     = `SELECT ` + orderColumns + ` FROM orders WHERE "shiprocketOrderId" = $1 AND "shiprocketOrderId" <> '' LIMIT 1`
	getByPaymentQuery        = `SELECT ` + orderColumns + ` FROM orders WHERE "razorpayPaymentId" = $1 AND "razorpayPaymentId" <> '' LIMIT 1`
	listByUserQuery          = `SELECT ` + orderColumns + ` FROM orders WHERE "userID" = $1 ORDER BY "createdAt" DESC`
	listByOrderIDsQuery      = `SELECT ` + orderColumns + ` FROM orders WHERE "orderId" = ANY($1::text[]) ORDER BY array_position($1::text[], "orderId")`
	listPendingTrackingQuery = `
		SELECT ` + orderColumns + ` FROM orders
		WHERE id > $1
			AND "shiprocketShipmentId" <> ''
			AND ("trackingNumber" = '' OR "courierName" = '')
			AND "orderStatus" NOT IN ('cancelled', 'failed', 'delivered')
		ORDER BY id
		LIMIT $2
	`
)

const (
	uniqueViolation   = "23505"
	paymentConstraint = "orders_razorpay_payment_idx"
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, ord Order) (Order, error) {
	items, err := json.Marshal(ord.Items)
	if err != nil {
		return Order{}, err
	}
	shipping, err := json.Marshal(ord.ShippingAddress)
	if err != nil {
		return Order{}, err
	}
	billing, err := json.Marshal(ord.BillingAddress)
	if err != nil {
		return Order{}, err
	}
	notes, err := encodeNotes(ord.Notes)
	if err != nil {
		return Order{}, err
	}

	err = r.db.QueryRowContext(ctx, insertOrderQuery,
		ord.OrderID, ord.UserID, string(items), string(shipping), string(billing),
		ord.Subtotal, ord.ShippingCost, ord.Tax, ord.Total,
		ord.PaymentMethod, ord.PaymentStatus, string(ord.OrderStatus),
		ord.ShiprocketOrderID, ord.ShiprocketShipmentID, ord.CourierName, ord.TrackingNumber, ord.TrackingURL,
		notes, ord.RazorpayPaymentID, ord.CreatedAt, ord.UpdatedAt,
	).Scan(&ord.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == paymentConstraint {
		return Order{}, ErrPaymentAlreadyUsed
	}
	if err != nil {
		return Order{}, fmt.Errorf("insert order %s: %w", ord.OrderID, err)
	}
	return ord, nil
}

func (r *PostgresRepository) Save(ctx context.Context, ord Order) error {
	notes, err := encodeNotes(ord.Notes)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, saveOrderQuery,
		ord.OrderID, ord.PaymentStatus, string(ord.OrderStatus),
		ord.ShiprocketOrderID, ord.ShiprocketShipmentID, ord.CourierName, ord.TrackingNumber, ord.TrackingURL,
		notes, ord.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) GetByOrderID(ctx context.Context, orderID string) (Order, error) {
	return r.getOne(ctx, getOrderQuery, orderID)
}

func (r *PostgresRepository) GetByShiprocketOrderID(ctx context.Context, id string) (Order, error) {
	return r.getOne(ctx, getByShiprocketQuery, id)
}

func (r *PostgresRepository) GetByRazorpayPaymentID(ctx context.Context, paymentID string) (Order, error) {
	return r.getOne(ctx, getByPaymentQuery, paymentID)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (Order, error) {
	ord, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return ord, err
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int) ([]Order, error) {
	return r.list(ctx, listByUserQuery, userID)
}

func (r *PostgresRepository) ListByOrderIDs(ctx context.Context, ids []string) ([]Order, error) {
	if len(ids) == 0 {
		return []Order{}, nil
	}
	return r.list(ctx, listByOrderIDsQuery, pq.Array(ids))
}

func (r *PostgresRepository) ListPendingTracking(ctx context.Context, afterID int64, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	return r.list(ctx, listPendingTrackingQuery, afterID, limit)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Order, 0)
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ord)
	}
	return out, rows.Err()
}

func scanOrder(s rowScanner) (Order, error) {
	var (
		ord                      Order
		items, shipping, billing []byte
		notes                    []byte
		status                   string
	)
	err := s.Scan(&ord.ID, &ord.OrderID, &ord.UserID, &items, &shipping, &billing,
		&ord.Subtotal, &ord.ShippingCost, &ord.Tax, &ord.Total,
		&ord.PaymentMethod, &ord.PaymentStatus, &status,
		&ord.ShiprocketOrderID, &ord.ShiprocketShipmentID, &ord.CourierName, &ord.TrackingNumber, &ord.TrackingURL,
		&notes, &ord.RazorpayPaymentID, &ord.CreatedAt, &ord.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	ord.OrderStatus = Status(status)

	for _, col := range []struct {
		raw  []byte
		dest any
	}{
		{items, &ord.Items},
		{shipping, &ord.ShippingAddress},
		{billing, &ord.BillingAddress},
		{notes, &ord.Notes},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dest); err != nil {
			return Order{}, fmt.Errorf("decode order %s: %w", ord.OrderID, err)
		}
	}
	return ord, nil
}

func encodeNotes(notes []Note) (string, error) {
	if notes == nil {
		notes = []Note{}
	}
	b, err := json.Marshal(notes)
	return string(b), err
}
