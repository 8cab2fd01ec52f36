package shiprocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeShiprocket struct {
	logins  atomic.Int32
	handler func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeShiprocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/auth/login" {
		f.logins.Add(1)
		w.Write([]byte(`{"token":"tok-1"}`))
		return
	}
	if r.Header.Get("Authorization") != "Bearer tok-1" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.handler(w, r)
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *fakeShiprocket) {
	t.Helper()
	fake := &fakeShiprocket{handler: handler}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Email: "ops@example.com", Password: "pw"}), fake
}

func TestCreateOrder_FillsDefaultsAndCachesToken(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/create/adhoc", r.URL.Path)
		var body OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Prepaid", body.PaymentMethod)
		assert.True(t, body.ShippingIsBilling)
		assert.Equal(t, 10.0, body.Length)
		assert.Equal(t, 0.5, body.Weight)
		w.Write([]byte(`{"order_id":123456,"shipment_id":987654,"status":"NEW","awb_code":"","courier_name":""}`))
	})

	for i := 0; i < 2; i++ {
		resp, err := c.CreateOrder(context.Background(), OrderRequest{OrderID: "ORD1"})
		require.NoError(t, err)
		assert.Equal(t, ID("123456"), resp.OrderID)
		assert.Equal(t, ID("987654"), resp.ShipmentID)
	}
	assert.EqualValues(t, 1, fake.logins.Load())
}

func TestAuthenticate_ConcurrentCallersShareLogin(t *testing.T) {
	var logins atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		<-release
		w.Write([]byte(`{"token":"tok-1"}`))
	}))
	defer srv.Close()
	c := NewClient(Config{BaseURL: srv.URL, Email: "a", Password: "b"})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := c.Authenticate(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok-1", token)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, logins.Load())
}

func TestToken_ExpiresAfterTTL(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.CheckAndUpdateOrderDetails(context.Background(), "1")
	require.NoError(t, err)
	now = now.Add(25 * time.Hour)
	_, err = c.CheckAndUpdateOrderDetails(context.Background(), "1")
	require.NoError(t, err)

	assert.EqualValues(t, 2, fake.logins.Load())
}

func TestTrackShipment_Extract(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/courier/track/shipment/987654", r.URL.Path)
		w.Write([]byte(`{"987654":{"tracking_data":{"track_status":1,"shipment_track":[{"awb_code":"AWB1","courier_name":"Delhivery","current_status":"IN TRANSIT"}],"track_url":"https://track/AWB1"}}}`))
	})

	resp, err := c.TrackShipment(context.Background(), "987654")
	require.NoError(t, err)
	info := resp.Extract()
	assert.Equal(t, TrackingInfo{AWBCode: "AWB1", CourierName: "Delhivery", TrackingURL: "https://track/AWB1", Status: "IN TRANSIT"}, info)
}

func TestExtract_TreatsNullAsUnassigned(t *testing.T) {
	var resp TrackingResponse
	require.NoError(t, json.Unmarshal([]byte(`{"1":{"tracking_data":{"shipment_track":[{"awb_code":"null","courier_name":""}],"track_url":"null"}}}`), &resp))
	assert.True(t, resp.Extract().Empty())

	require.NoError(t, json.Unmarshal([]byte(`{"1":{"tracking_data":null}}`), &resp))
	assert.True(t, resp.Extract().Empty())
}

func TestCheckAndUpdateOrderDetails(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/show/555", r.URL.Path)
		w.Write([]byte(`{"data":{"id":555,"shipment_id":777,"awb_code":"AWB9","courier_name":"Blue Dart","tracking_url":"","status":"PICKED UP"}}`))
	})

	details, err := c.CheckAndUpdateOrderDetails(context.Background(), "555")
	require.NoError(t, err)
	assert.Equal(t, ID("777"), details.ShipmentID)
	assert.Equal(t, ID("AWB9"), details.AWBCode)
	assert.Equal(t, "PICKED UP", details.Status)
}

func TestErrors_Classified(t *testing.T) {
	var status atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		w.Write([]byte(`{"message":"Order not found"}`))
	})

	tests := []struct {
		code      int
		kind      Kind
		transient bool
	}{
		{http.StatusBadRequest, KindInvalid, false},
		{http.StatusNotFound, KindInvalid, false},
		{http.StatusForbidden, KindAuth, false},
		{http.StatusTooManyRequests, KindRateLimited, false},
		{http.StatusBadGateway, KindUpstream, true},
	}
	for _, tt := range tests {
		status.Store(int32(tt.code))
		_, err := c.CheckAndUpdateOrderDetails(context.Background(), "1")
		require.Error(t, err)
		assert.Equal(t, tt.kind, KindOf(err), "status %d", tt.code)
		assert.Equal(t, tt.transient, IsTransient(err), "status %d", tt.code)
	}
}

func TestCall_ReauthenticatesOnUnauthorized(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status_code":200,"message":"Order cancelled"}`))
	})
	c.tokens.set("stale", time.Now().Add(time.Hour))

	resp, err := c.CancelOrder(context.Background(), "987654")
	require.NoError(t, err)
	assert.Equal(t, "Order cancelled", resp.Message)
	assert.EqualValues(t, 1, fake.logins.Load())
}

func TestIsTransient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	c := NewClient(Config{BaseURL: srv.URL, Email: "a", Password: "b", HTTP: &http.Client{Timeout: 20 * time.Millisecond}})

	_, err := c.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, KindUpstream, KindOf(err))
}

func TestNotConfigured(t *testing.T) {
	_, err := NewClient(Config{}).TrackShipment(context.Background(), "1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
