package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wichananm65/storefront-backend/internal/address"
)

type PostgresRepository struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	paymentColumns = `id, "transactionId", COALESCE("paymentId", ''), "razorpayOrderId", "orderId", "linkedOrderId", "userID",
		amount, currency, "paymentStatus", "paymentMethod", "orderItems", "shippingAddress", "billingAddress", "orderTotal",
		"couponCode", "rewardPointsUsed", notes, "webhookStatus", "signatureValid", "razorpaySignature", "errorCode",
		"errorDescription", "refundId", "refundAmount", "capturedAt", "refundedAt", "createdAt", "updatedAt"`

	insertPaymentQuery = `
		INSERT INTO payments ("transactionId", "paymentId", "razorpayOrderId", "orderId", "userID", amount, currency,
			"paymentStatus", "paymentMethod", "orderItems", "shippingAddress", "billingAddress", "orderTotal",
			"couponCode", "rewardPointsUsed", notes, "webhookStatus", "createdAt", "updatedAt")
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id
	`
	savePaymentQuery = `
		UPDATE payments
		SET "paymentId" = NULLIF($2, ''),
			"linkedOrderId" = $3,
			"paymentStatus" = $4,
			"paymentMethod" = $5,
			"webhookStatus" = $6,
			"signatureValid" = $7,
			"razorpaySignature" = $8,
			"errorCode" = $9,
			"errorDescription" = $10,
			"refundId" = $11,
			"refundAmount" = $12,
			"capturedAt" = $13,
			"refundedAt" = $14,
			"updatedAt" = $15
		WHERE "transactionId" = $1
	`
	findByReferenceQuery = `SELECT ` + paymentColumns + ` FROM payments
		WHERE "orderId" = $1 OR "razorpayOrderId" = $1 OR "transactionId" = $1 LIMIT 1`
	findByGatewayQuery = `SELECT ` + paymentColumns + ` FROM payments
		WHERE ("paymentId" = $1 AND $1 <> '') OR ("razorpayOrderId" = $2 AND $2 <> '') LIMIT 1`
	getByPaymentIDQuery = `SELECT ` + paymentColumns + ` FROM payments WHERE "paymentId" = $1`
	listByUserQuery     = `SELECT ` + paymentColumns + ` FROM payments WHERE "userID" = $1 ORDER BY "createdAt" DESC OFFSET $2 LIMIT $3`
	countByUserQuery    = `SELECT count(*) FROM payments WHERE "userID" = $1`

	uniqueViolation = "23505"
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p Payment) (Payment, error) {
	items, err := json.Marshal(p.OrderItems)
	if err != nil {
		return Payment{}, err
	}
	shipping, err := encodeAddress(p.ShippingAddress)
	if err != nil {
		return Payment{}, err
	}
	billing, err := encodeAddress(p.BillingAddress)
	if err != nil {
		return Payment{}, err
	}
	notes, err := json.Marshal(p.Notes)
	if err != nil {
		return Payment{}, err
	}
	if p.Notes == nil {
		notes = []byte(`{}`)
	}

	err = r.db.QueryRowContext(ctx, insertPaymentQuery,
		p.TransactionID, p.PaymentID, p.RazorpayOrderID, p.OrderID, p.UserID, p.Amount, p.Currency,
		p.PaymentStatus, p.PaymentMethod, string(items), shipping, billing, p.OrderTotal,
		p.CouponCode, p.RewardPointsUsed, string(notes), p.WebhookStatus, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return Payment{}, translate(err)
	}
	return p, nil
}

func (r *PostgresRepository) Save(ctx context.Context, p Payment) error {
	res, err := r.db.ExecContext(ctx, savePaymentQuery,
		p.TransactionID, p.PaymentID, p.LinkedOrderID, p.PaymentStatus, p.PaymentMethod,
		p.WebhookStatus, p.SignatureValid, p.RazorpaySignature, p.ErrorCode, p.ErrorDescription,
		p.RefundID, p.RefundAmount, nullTime(p.CapturedAt), nullTime(p.RefundedAt), p.UpdatedAt,
	)
	if err != nil {
		return translate(err)
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

func (r *PostgresRepository) FindByReference(ctx context.Context, ref string) (Payment, error) {
	return r.getOne(ctx, findByReferenceQuery, ref)
}

func (r *PostgresRepository) FindByGateway(ctx context.Context, paymentID, razorpayOrderID string) (Payment, error) {
	return r.getOne(ctx, findByGatewayQuery, paymentID, razorpayOrderID)
}

func (r *PostgresRepository) GetByPaymentID(ctx context.Context, paymentID string) (Payment, error) {
	return r.getOne(ctx, getByPaymentIDQuery, paymentID)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	return p, err
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID, offset, limit int) ([]Payment, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, countByUserQuery, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, listByUserQuery, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func scanPayment(s rowScanner) (Payment, error) {
	var (
		p                               Payment
		items, shipping, billing, notes []byte
		capturedAt, refundedAt          sql.NullTime
	)
	err := s.Scan(&p.ID, &p.TransactionID, &p.PaymentID, &p.RazorpayOrderID, &p.OrderID, &p.LinkedOrderID, &p.UserID,
		&p.Amount, &p.Currency, &p.PaymentStatus, &p.PaymentMethod, &items, &shipping, &billing, &p.OrderTotal,
		&p.CouponCode, &p.RewardPointsUsed, &notes, &p.WebhookStatus, &p.SignatureValid, &p.RazorpaySignature, &p.ErrorCode,
		&p.ErrorDescription, &p.RefundID, &p.RefundAmount, &capturedAt, &refundedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Payment{}, err
	}
	if capturedAt.Valid {
		p.CapturedAt = &capturedAt.Time
	}
	if refundedAt.Valid {
		p.RefundedAt = &refundedAt.Time
	}

	if len(items) > 0 {
		if err := json.Unmarshal(items, &p.OrderItems); err != nil {
			return Payment{}, fmt.Errorf("decode payment %s items: %w", p.TransactionID, err)
		}
	}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &p.Notes); err != nil {
			return Payment{}, fmt.Errorf("decode payment %s notes: %w", p.TransactionID, err)
		}
	}
	if p.ShippingAddress, err = decodeAddress(shipping); err != nil {
		return Payment{}, err
	}
	if p.BillingAddress, err = decodeAddress(billing); err != nil {
		return Payment{}, err
	}
	return p, nil
}

func encodeAddress(a *address.Address) (any, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeAddress(raw []byte) (*address.Address, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var a address.Address
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}
