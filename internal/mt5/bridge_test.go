package mt5

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// gatewayFor returns a bridge pointed at the test server with a session
// already established, so calls never touch the database.
func gatewayFor(ts *httptest.Server) *BridgeGateway {
	g := NewBridgeGateway(nil, ts.URL, time.Second, time.Second)
	g.token = "test-token"
	return g
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrDisconnected},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"server error", http.StatusInternalServerError, ErrUpstream},
		{"bad request", http.StatusBadRequest, ErrUpstream},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer ts.Close()

			g := gatewayFor(ts)
			_, err := g.GetBalance(context.Background(), "800100")
			assert.True(t, errors.Is(err, tc.want), "status %d should map to %v, got %v", tc.status, tc.want, err)
		})
	}
}

func TestSessionDroppedOnUnauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	g := gatewayFor(ts)
	_, err := g.GetEquity(context.Background(), "800100")
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Empty(t, g.token, "expired session must be dropped so the next call reconnects")
}

func TestConnectErrorCached(t *testing.T) {
	g := NewBridgeGateway(nil, "http://unreachable", time.Second, time.Second)
	g.lastErr = "dial tcp: connection refused"
	g.lastErrAt = time.Now()

	// Within the TTL the cached failure is returned without dialing.
	_, err := g.ensureSession(context.Background())
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestResetClearsSessionAndError(t *testing.T) {
	g := NewBridgeGateway(nil, "http://unreachable", time.Second, time.Second)
	g.token = "stale"
	g.lastErr = "old failure"
	g.lastErrAt = time.Now()

	g.Reset()

	assert.Empty(t, g.token)
	assert.Empty(t, g.lastErr)
}

func TestListClosedDeals(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/800100/deals", r.URL.Path)
		assert.Equal(t, "1704067200", r.URL.Query().Get("since"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"deal_id":"D1","position_id":"P1","symbol":"EURUSD","type":0,"volume":20000,"volume_closed":0,"commission":-7.00,"profit":12.30,"time":1704153600},
			{"deal_id":"D2","position_id":"P2","symbol":"XAUUSD","type":1,"volume":10000,"volume_closed":5000,"commission":0,"profit":-4.10,"time":1704240000}
		]`))
	}))
	defer ts.Close()

	g := gatewayFor(ts)
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	deals, err := g.ListClosedDeals(context.Background(), "800100", &since)
	assert.NoError(t, err)
	assert.Len(t, deals, 2)
	assert.Equal(t, "P1", deals[0].PositionID)
	assert.Equal(t, int64(20000), deals[0].VolumeRaw)
	assert.True(t, deals[0].Commission.Equal(decimal.NewFromFloat(-7.00)))
	assert.Equal(t, int64(5000), deals[1].VolumeClosedRaw)
}

func TestDealCloseTime(t *testing.T) {
	d := Deal{TimeUnix: 1704153600}
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), d.CloseTime())
}

func TestGetBalance(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/800100/balance", r.URL.Path)
		w.Write([]byte(`{"balance": 1523.77}`))
	}))
	defer ts.Close()

	g := gatewayFor(ts)
	balance, err := g.GetBalance(context.Background(), "800100")
	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromFloat(1523.77)))
}

func TestCreditAccountBody(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	g := gatewayFor(ts)
	err := g.CreditAccount(context.Background(), "800100", decimal.NewFromInt(50), "pamm deposit")
	assert.NoError(t, err)
	assert.Equal(t, "/accounts/800100/credit", gotPath)
}
