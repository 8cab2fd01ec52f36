// Package tracking periodically polls the shipping provider for orders that
// have a shipment but no tracking number or courier yet.
package tracking

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/wichananm65/storefront-backend/internal/config"
	"github.com/wichananm65/storefront-backend/internal/order"
	"github.com/wichananm65/storefront-backend/internal/shiprocket"
)

const sweepBatchSize = 100

// Tracker fetches live tracking for a provider shipment.
type Tracker interface {
	TrackShipment(ctx context.Context, shipmentID string) (shiprocket.TrackingResponse, error)
}

// Orders is the slice of the order service the updater drives.
type Orders interface {
	Get(ctx context.Context, orderID string) (order.Order, error)
	ListPendingTracking(ctx context.Context, afterID int64, limit int) ([]order.Order, error)
	ApplyShipmentUpdate(ctx context.Context, orderID string, u order.ShipmentUpdate, event string) (order.Order, []string, error)
}

// SweepResult counts what one pass over the pending orders did.
type SweepResult struct {
	Checked int
	Updated int
	Failed  int
	Skipped bool
}

// Updater runs the background sweep and single-order refreshes.
type Updater struct {
	orders  Orders
	tracker Tracker
	cfg     config.TrackingConfig
	logger  *slog.Logger
	limiter *rate.Limiter

	sweeping atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewUpdater(orders Orders, tracker Tracker, cfg config.TrackingConfig, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	limit := rate.Inf
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	}
	return &Updater{
		orders:  orders,
		tracker: tracker,
		cfg:     cfg,
		logger:  logger.With("component", "tracking"),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Start runs a sweep immediately and then once per interval until Stop.
// Calling Start on a running updater does nothing.
func (u *Updater) Start() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel
	u.done = make(chan struct{})
	go u.loop(ctx, u.done)
	u.logger.Info("tracking updater started", "interval", u.cfg.Interval)
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (u *Updater) Stop() {
	u.mu.Lock()
	cancel, done := u.cancel, u.done
	u.cancel, u.done = nil, nil
	u.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	u.logger.Info("tracking updater stopped")
}

func (u *Updater) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cancel != nil
}

func (u *Updater) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(u.cfg.Interval)
	defer ticker.Stop()

	for {
		u.Sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep refreshes every order still missing tracking data, reading them in
// pages of sweepBatchSize by ascending id. Provider calls are spaced by the
// request interval. A sweep that overlaps another one is skipped.
func (u *Updater) Sweep(ctx context.Context) SweepResult {
	if !u.sweeping.CompareAndSwap(false, true) {
		u.logger.Debug("sweep already running, skipping")
		return SweepResult{Skipped: true}
	}
	defer u.sweeping.Store(false)

	var (
		res   SweepResult
		after int64
	)
pages:
	for {
		page, err := u.orders.ListPendingTracking(ctx, after, sweepBatchSize)
		if err != nil {
			u.logger.Error("list orders pending tracking", "after", after, "error", err)
			break
		}
		if len(page) > 0 {
			u.logger.Debug("checking orders for tracking updates", "count", len(page), "after", after)
		}

		for _, ord := range page {
			after = ord.ID
			if err := u.limiter.Wait(ctx); err != nil {
				break pages
			}
			res.Checked++
			_, changes, err := u.refresh(ctx, ord)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					break pages
				}
				res.Failed++
				u.logger.Warn("tracking refresh failed", "orderId", ord.OrderID, "shipmentId", ord.ShiprocketShipmentID, "error", err)
				continue
			}
			if len(changes) > 0 {
				res.Updated++
			}
		}
		if len(page) < sweepBatchSize {
			break
		}
	}
	if res.Checked > 0 {
		u.logger.Info("tracking sweep finished", "checked", res.Checked, "updated", res.Updated, "failed", res.Failed)
	}
	return res
}

// RefreshOrder polls the provider for one order on demand.
func (u *Updater) RefreshOrder(ctx context.Context, orderID string) (order.RefreshResult, error) {
	ord, err := u.orders.Get(ctx, orderID)
	if err != nil {
		return order.RefreshResult{}, err
	}
	if ord.ShiprocketShipmentID == "" {
		return order.RefreshResult{}, order.ErrNoShipment
	}
	updated, changes, err := u.refresh(ctx, ord)
	if err != nil {
		return order.RefreshResult{}, err
	}
	return order.RefreshResult{Success: true, Updated: len(changes) > 0, Order: updated.Summary()}, nil
}

func (u *Updater) refresh(ctx context.Context, ord order.Order) (order.Order, []string, error) {
	resp, err := u.track(ctx, ord.ShiprocketShipmentID)
	if err != nil {
		return order.Order{}, nil, err
	}
	info := resp.Extract()
	if info.Empty() {
		return ord, nil, nil
	}
	return u.orders.ApplyShipmentUpdate(ctx, ord.OrderID, order.ShipmentUpdate{
		AWBCode:     info.AWBCode,
		CourierName: info.CourierName,
		TrackingURL: info.TrackingURL,
		Status:      info.Status,
	}, order.EventTracking)
}

// track retries timeouts, dropped connections and 5xx responses up to
// MaxRetries times, RetryDelay apart.
func (u *Updater) track(ctx context.Context, shipmentID string) (shiprocket.TrackingResponse, error) {
	for attempt := 0; ; attempt++ {
		resp, err := u.tracker.TrackShipment(ctx, shipmentID)
		if err == nil {
			return resp, nil
		}
		if !shiprocket.IsTransient(err) || attempt >= u.cfg.MaxRetries {
			return nil, err
		}
		u.logger.Debug("retrying tracking request", "shipmentId", shipmentID, "attempt", attempt+1, "error", err)

		timer := time.NewTimer(u.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
