package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wichananm65/storefront-backend/internal/address"
	"github.com/wichananm65/storefront-backend/internal/order"
	"github.com/wichananm65/storefront-backend/internal/razorpay"
	"github.com/wichananm65/storefront-backend/internal/user"
)

const (
	keySecret     = "key_secret"
	webhookSecret = "whsec_test"
)

type fakeGateway struct {
	mu         sync.Mutex
	configured bool
	created    []razorpay.CreateOrderRequest
	captured   []string
	refunded   []int64
	remote     razorpay.Payment
	captureErr error
	seq        int
}

func (g *fakeGateway) Configured() bool { return g.configured }

func (g *fakeGateway) CreateOrder(_ context.Context, req razorpay.CreateOrderRequest) (razorpay.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.created = append(g.created, req)
	return razorpay.Order{ID: "order_rzp" + string(rune('A'+g.seq-1)), Amount: req.Amount, Currency: req.Currency}, nil
}

func (g *fakeGateway) FetchPayment(_ context.Context, paymentID string) (razorpay.Payment, error) {
	p := g.remote
	p.ID = paymentID
	return p, nil
}

func (g *fakeGateway) CapturePayment(_ context.Context, paymentID string, amount int64, currency string) (razorpay.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.captureErr != nil {
		return razorpay.Payment{}, g.captureErr
	}
	g.captured = append(g.captured, paymentID)
	return razorpay.Payment{ID: paymentID, Amount: amount, Currency: currency, Status: "captured", Method: g.remote.Method}, nil
}

func (g *fakeGateway) Refund(_ context.Context, paymentID string, amount int64, _ string) (razorpay.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunded = append(g.refunded, amount)
	return razorpay.Refund{ID: "rfnd_1", PaymentID: paymentID, Amount: amount, Status: "processed"}, nil
}

type fixture struct {
	svc     *Service
	repo    *InMemoryRepository
	gateway *fakeGateway
	orders  *order.InMemoryRepository
	users   *user.Service
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	users := user.NewService(user.NewInMemoryRepository([]user.User{
		{ID: 1, Email: "asha@example.com", FirstName: "Asha"},
		{ID: 2, Email: "ravi@example.com", FirstName: "Ravi"},
	}))
	orderRepo := order.NewInMemoryRepository(nil)
	orders := order.NewService(orderRepo, order.Deps{Users: users, Logger: discardLogger()})
	gateway := &fakeGateway{configured: true, remote: razorpay.Payment{Status: "authorized", Method: "upi"}}
	repo := NewInMemoryRepository(nil)
	svc := NewService(repo, Deps{
		Gateway:  gateway,
		Verifier: razorpay.NewVerifier(keySecret, webhookSecret),
		Orders:   orders,
		Users:    users,
		KeyID:    "rzp_test_key",
		Logger:   discardLogger(),
	})
	return fixture{svc: svc, repo: repo, gateway: gateway, orders: orderRepo, users: users}
}

func testAddress() *address.Address {
	return &address.Address{HouseName: "4B", StreetArea: "Park Street", City: "Kolkata", State: "WB", Country: "India", Pincode: "700016"}
}

func createInput() CreateOrderInput {
	return CreateOrderInput{
		Amount:          44800,
		OrderItems:      []Item{{ProductID: "p1", Title: "Leash", Quantity: 2, Price: 199}},
		OrderTotal:      448,
		ShippingAddress: testAddress(),
		BillingAddress:  testAddress(),
		CouponCode:      "WELCOME",
	}
}

func proofFor(razorpayOrderID, paymentID string) order.PaymentProof {
	return order.PaymentProof{
		RazorpayOrderID:   razorpayOrderID,
		RazorpayPaymentID: paymentID,
		RazorpaySignature: razorpay.Sign(keySecret, []byte(razorpayOrderID+"|"+paymentID)),
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := createInput()
	in.Amount = 99
	_, err := f.svc.CreateOrder(ctx, 1, in)
	assert.ErrorIs(t, err, ErrAmountTooLow)

	in = createInput()
	in.BillingAddress = nil
	_, err = f.svc.CreateOrder(ctx, 1, in)
	assert.ErrorIs(t, err, ErrMissingFields)

	in = createInput()
	in.OrderItems = []Item{}
	_, err = f.svc.CreateOrder(ctx, 1, in)
	assert.ErrorIs(t, err, ErrEmptyItems)

	in = createInput()
	in.OrderItems[0].Quantity = 0
	_, err = f.svc.CreateOrder(ctx, 1, in)
	assert.ErrorIs(t, err, ErrInvalidItems)

	_, err = f.svc.CreateOrder(ctx, 99, createInput())
	assert.ErrorIs(t, err, user.ErrNotFound)

	assert.Empty(t, f.gateway.created)
}

func TestCreateOrder_OpensAutoCaptureOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.CreateOrder(ctx, 1, createInput())
	require.NoError(t, err)
	assert.Equal(t, "order_rzpA", session.RazorpayOrderID)
	assert.Equal(t, "INR", session.Currency)
	assert.Equal(t, int64(44800), session.Amount)
	assert.Equal(t, "rzp_test_key", session.Key)
	assert.Regexp(t, `^order_\d+_[0-9a-z]+$`, session.OrderID)
	assert.Regexp(t, `^txn_[0-9a-f-]{36}$`, session.TransactionID)

	require.Len(t, f.gateway.created, 1)
	req := f.gateway.created[0]
	assert.Equal(t, 1, req.PaymentCapture)
	assert.Equal(t, session.OrderID, req.Receipt)
	assert.Equal(t, "WELCOME", req.Notes["couponCode"])
	assert.Equal(t, "0", req.Notes["rewardPointsUsed"])

	p, err := f.repo.FindByReference(ctx, session.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.PaymentStatus)
	assert.Equal(t, WebhookReceived, p.WebhookStatus)
	assert.Equal(t, "Leash", p.OrderItems[0].ProductName)
	assert.Equal(t, "448.00", p.AmountRupees().StringFixed(2))
}

func TestCreateOrder_Unavailable(t *testing.T) {
	f := newFixture(t)
	f.gateway.configured = false

	_, err := f.svc.CreateOrder(context.Background(), 1, createInput())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestVerify_CreatesOrderOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.CreateOrder(ctx, 1, createInput())
	require.NoError(t, err)

	in := VerifyInput{PaymentProof: proofFor(session.RazorpayOrderID, "pay_1")}
	first, err := f.svc.Verify(ctx, 1, in)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, first.PaymentStatus)
	assert.Equal(t, order.StatusConfirmed, first.OrderStatus)
	assert.Equal(t, 448.0, first.Total)
	require.Len(t, first.Items, 1)

	second, err := f.svc.Verify(ctx, 1, in)
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, second.OrderID)

	orders, err := f.orders.ListByUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	p, err := f.repo.FindByReference(ctx, session.RazorpayOrderID)
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, p.LinkedOrderID)
	assert.Equal(t, StatusPaid, p.PaymentStatus)
	assert.Equal(t, "pay_1", p.PaymentID)
	assert.True(t, p.SignatureValid)
}

func TestVerify_ConcurrentCallsShareOneOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.CreateOrder(ctx, 1, createInput())
	require.NoError(t, err)
	in := VerifyInput{PaymentProof: proofFor(session.RazorpayOrderID, "pay_1")}

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ord, err := f.svc.Verify(ctx, 1, in)
			assert.NoError(t, err)
			ids[i] = ord.OrderID
		}(i)
	}
	wg.Wait()

	orders, err := f.orders.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	for _, id := range ids {
		assert.Equal(t, orders[0].OrderID, id)
	}
}

// cancelAwareOrders fails placement when its context is already cancelled,
// like a database driver would.
type cancelAwareOrders struct {
	*order.Service
}

func (o cancelAwareOrders) PlacePaid(ctx context.Context, userID int, in order.CheckoutInput, paymentID, note string) (order.Order, error) {
	if err := ctx.Err(); err != nil {
		return order.Order{}, err
	}
	return o.Service.PlacePaid(ctx, userID, in, paymentID, note)
}

func TestVerify_PlacementIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.repo, Deps{
		Gateway:  f.gateway,
		Verifier: razorpay.NewVerifier(keySecret, webhookSecret),
		Orders:   cancelAwareOrders{order.NewService(f.orders, order.Deps{Users: f.users, Logger: discardLogger()})},
		Users:    f.users,
		KeyID:    "rzp_test_key",
		Logger:   discardLogger(),
	})
	session, err := svc.CreateOrder(context.Background(), 1, createInput())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ord, err := svc.Verify(ctx, 1, VerifyInput{PaymentProof: proofFor(session.RazorpayOrderID, "pay_1")})
	require.NoError(t, err)
	assert.Equal(t, "pay_1", ord.RazorpayPaymentID)

	p, err := f.repo.FindByReference(context.Background(), session.RazorpayOrderID)
	require.NoError(t, err)
	assert.Equal(t, ord.OrderID, p.LinkedOrderID)
}

func TestVerify_RejectsBadProof(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Verify(ctx, 1, VerifyInput{PaymentProof: order.PaymentProof{RazorpayOrderID: "order_x"}})
	assert.ErrorIs(t, err, order.ErrMissingPaymentProof)

	proof := proofFor("order_x", "pay_1")
	proof.RazorpayPaymentID = "pay_2"
	_, err = f.svc.Verify(ctx, 1, VerifyInput{PaymentProof: proof})
	assert.ErrorIs(t, err, order.ErrInvalidSignature)

	orders, err := f.orders.ListByUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestVerify_OtherUsersPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.CreateOrder(ctx, 1, createInput())
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, 2, VerifyInput{PaymentProof: proofFor(session.RazorpayOrderID, "pay_1")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCapture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.CreateOrder(ctx, 1, createInput())
	require.NoError(t, err)

	_, _, err = f.svc.Capture(ctx, 1, CaptureInput{PaymentID: "pay_1"})
	assert.ErrorIs(t, err, ErrMissingIDs)

	p, already, err := f.svc.Capture(ctx, 1, CaptureInput{RazorpayPaymentID: "pay_1", RazorpayOrderID: session.RazorpayOrderID})
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, StatusCaptured, p.PaymentStatus)
	assert.Equal(t, "upi", p.PaymentMethod)
	assert.NotNil(t, p.CapturedAt)
	assert.False(t, p.SignatureValid)
	assert.Equal(t, []string{"pay_1"}, f.gateway.captured)

	history, err := f.users.OrderHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, session.OrderID, history[0].OrderID)
	assert.Equal(t, StatusCaptured, history[0].PaymentStatus)

	f.gateway.remote.Status = "captured"
	_, already, err = f.svc.Capture(ctx, 1, CaptureInput{PaymentID: "pay_1", OrderID: session.OrderID})
	require.NoError(t, err)
	assert.True(t, already)
	assert.Len(t, f.gateway.captured, 1)

	history, err = f.users.OrderHistory(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCapture_GatewayRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.CreateOrder(ctx, 1, createInput())
	require.NoError(t, err)
	f.gateway.captureErr = &razorpay.Error{Op: "capture payment", StatusCode: 400, Code: "BAD_REQUEST_ERROR", Description: "amount mismatch"}

	_, _, err = f.svc.Capture(ctx, 1, CaptureInput{PaymentID: "pay_1", OrderID: session.OrderID})
	var gwErr *razorpay.Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "amount mismatch", gwErr.Description)
}

func webhookBody(t *testing.T, event, paymentID, razorpayOrderID string) []byte {
	t.Helper()
	var ev razorpay.WebhookEvent
	ev.Event = event
	ev.Payload.Payment.Entity = razorpay.Payment{ID: paymentID, OrderID: razorpayOrderID, Method: "card", ErrorCode: "BAD", ErrorDescription: "declined"}
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestHandleWebhook_InvalidSignatureMarksPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.CreateOrder(ctx, 1, createInput())
	require.NoError(t, err)

	body := webhookBody(t, "payment.captured", "pay_1", session.RazorpayOrderID)
	err = f.svc.HandleWebhook(ctx, body, razorpay.Sign("wrong", body))
	assert.ErrorIs(t, err, ErrInvalidWebhook)

	p, err := f.repo.FindByReference(ctx, session.OrderID)
	require.NoError(t, err)
	assert.Equal(t, WebhookFailed, p.WebhookStatus)
	assert.False(t, p.SignatureValid)
	assert.Equal(t, StatusPending, p.PaymentStatus)
}

func TestHandleWebhook_Events(t *testing.T) {
	cases := []struct {
		event string
		want  string
	}{
		{"payment.captured", StatusCaptured},
		{"payment.authorized", StatusAuthorized},
		{"payment.failed", StatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.event, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			session, err := f.svc.CreateOrder(ctx, 1, createInput())
			require.NoError(t, err)

			body := webhookBody(t, tc.event, "pay_9", session.RazorpayOrderID)
			require.NoError(t, f.svc.HandleWebhook(ctx, body, razorpay.Sign(webhookSecret, body)))

			p, err := f.repo.FindByReference(ctx, session.OrderID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.PaymentStatus)
			assert.Equal(t, "pay_9", p.PaymentID)
			assert.Equal(t, WebhookVerified, p.WebhookStatus)
			assert.True(t, p.SignatureValid)
		})
	}
}

func TestHandleWebhook_OrderPaidUpdatesLinkedOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.CreateOrder(ctx, 1, createInput())
	require.NoError(t, err)
	ord, err := f.svc.Verify(ctx, 1, VerifyInput{PaymentProof: proofFor(session.RazorpayOrderID, "pay_1")})
	require.NoError(t, err)

	var ev razorpay.WebhookEvent
	ev.Event = "order.paid"
	ev.Payload.Order.Entity = razorpay.Order{ID: session.RazorpayOrderID}
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleWebhook(ctx, body, razorpay.Sign(webhookSecret, body)))

	stored, err := f.orders.GetByOrderID(ctx, ord.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentCaptured, stored.PaymentStatus)
}

func TestHandleWebhook_UnknownPaymentAcknowledged(t *testing.T) {
	f := newFixture(t)
	body := webhookBody(t, "payment.captured", "pay_x", "order_unknown")
	assert.NoError(t, f.svc.HandleWebhook(context.Background(), body, razorpay.Sign(webhookSecret, body)))
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.CreateOrder(ctx, 1, createInput())
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, 1, RefundInput{})
	assert.ErrorIs(t, err, ErrPaymentIDRequired)

	_, _, err = f.svc.Capture(ctx, 1, CaptureInput{PaymentID: "pay_1", OrderID: session.OrderID})
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, 2, RefundInput{PaymentID: "pay_1"})
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := f.svc.Refund(ctx, 1, RefundInput{PaymentID: "pay_1"})
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, p.PaymentStatus)
	assert.Equal(t, "rfnd_1", p.RefundID)
	assert.Equal(t, []int64{44800}, f.gateway.refunded)

	_, err = f.svc.Refund(ctx, 1, RefundInput{PaymentID: "pay_1"})
	assert.ErrorIs(t, err, ErrNotCaptured)
}

func TestUserPayments_PagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var sessions []CheckoutSession
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		f.svc.now = func() time.Time { return at }
		s, err := f.svc.CreateOrder(ctx, 1, createInput())
		require.NoError(t, err)
		sessions = append(sessions, s)
	}
	ord, err := f.svc.Verify(ctx, 1, VerifyInput{PaymentProof: proofFor(sessions[2].RazorpayOrderID, "pay_3")})
	require.NoError(t, err)

	page, err := f.svc.UserPayments(ctx, 1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalPayments)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Payments, 2)
	assert.Equal(t, sessions[2].OrderID, page.Payments[0].OrderID)
	assert.Equal(t, string(ord.OrderStatus), page.Payments[0].OrderStatus)
	assert.Equal(t, "448.00", page.Payments[0].AmountInRupees)
	assert.Empty(t, page.Payments[1].OrderStatus)

	page, err = f.svc.UserPayments(ctx, 1, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Payments, 1)
	assert.Equal(t, sessions[0].OrderID, page.Payments[0].OrderID)

	status, err := f.svc.Status(ctx, 1, sessions[2].TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", status.OrderStatus)

	_, err = f.svc.Status(ctx, 2, sessions[2].TransactionID)
	assert.ErrorIs(t, err, ErrNotFound)
}
