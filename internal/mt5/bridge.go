package mt5

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"backoffice-service/internal/models"
)

const connectErrTTL = 5 * time.Minute

// BridgeGateway talks to the MT5 manager through its HTTP bridge. It owns at
// most one live session; credentials come from the server_settings row with
// the latest created_at. A failed connect is cached for connectErrTTL so a
// flapping manager is not hammered on every cycle.
type BridgeGateway struct {
	DB             *gorm.DB
	BaseURL        string
	ConnectTimeout time.Duration
	CallTimeout    time.Duration

	client *http.Client

	mu        sync.Mutex
	token     string
	lastErr   string
	lastErrAt time.Time
}

func NewBridgeGateway(db *gorm.DB, baseURL string, connectTimeout, callTimeout time.Duration) *BridgeGateway {
	return &BridgeGateway{
		DB:             db,
		BaseURL:        baseURL,
		ConnectTimeout: connectTimeout,
		CallTimeout:    callTimeout,
		client:         &http.Client{},
	}
}

func (g *BridgeGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.token = ""
	g.lastErr = ""
	g.lastErrAt = time.Time{}
	log.Println("MT5 session reset, next call reconnects")
}

// ensureSession returns a usable session token, connecting if needed.
func (g *BridgeGateway) ensureSession(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" {
		return g.token, nil
	}
	if g.lastErr != "" && time.Since(g.lastErrAt) < connectErrTTL {
		return "", fmt.Errorf("%w: %s", ErrDisconnected, g.lastErr)
	}

	var setting models.ServerSetting
	if err := g.DB.Order("created_at DESC").First(&setting).Error; err != nil {
		g.lastErr = "no server setting configured"
		g.lastErrAt = time.Now()
		return "", fmt.Errorf("%w: %s", ErrDisconnected, g.lastErr)
	}

	connectCtx, cancel := context.WithTimeout(ctx, g.ConnectTimeout)
	defer cancel()

	body := map[string]string{
		"server":   setting.ServerIP,
		"login":    setting.Login,
		"password": setting.Password,
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := g.do(connectCtx, http.MethodPost, "/connect", "", body, &resp); err != nil {
		g.lastErr = err.Error()
		g.lastErrAt = time.Now()
		log.Printf("MT5 connect failed: %v", err)
		return "", fmt.Errorf("%w: %s", ErrDisconnected, g.lastErr)
	}

	g.token = resp.Token
	g.lastErr = ""
	log.Printf("MT5 connected to %s as %s", setting.ServerIP, setting.Login)
	return g.token, nil
}

// call runs one authenticated bridge request with the per-call timeout.
func (g *BridgeGateway) call(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := g.ensureSession(ctx)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.CallTimeout)
	defer cancel()

	err = g.do(callCtx, method, path, token, body, out)
	if errors.Is(err, ErrDisconnected) {
		// Session expired upstream; drop it so the next call reconnects.
		g.mu.Lock()
		g.token = ""
		g.mu.Unlock()
	}
	return err
}

func (g *BridgeGateway) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewBuffer(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrDisconnected
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, string(raw))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: bad response: %v", ErrUpstream, err)
		}
	}
	return nil
}

func (g *BridgeGateway) ListClosedDeals(ctx context.Context, accountID string, since *time.Time) ([]Deal, error) {
	path := fmt.Sprintf("/accounts/%s/deals", accountID)
	if since != nil {
		path += fmt.Sprintf("?since=%d", since.Unix())
	}
	var deals []Deal
	if err := g.call(ctx, http.MethodGet, path, nil, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

func (g *BridgeGateway) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var resp struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := g.call(ctx, http.MethodGet, fmt.Sprintf("/accounts/%s/balance", accountID), nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

func (g *BridgeGateway) GetEquity(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var resp struct {
		Equity decimal.Decimal `json:"equity"`
	}
	if err := g.call(ctx, http.MethodGet, fmt.Sprintf("/accounts/%s/equity", accountID), nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Equity, nil
}

func (g *BridgeGateway) CreateAccount(ctx context.Context, req CreateAccountRequest) (*CreatedAccount, error) {
	var created CreatedAccount
	if err := g.call(ctx, http.MethodPost, "/accounts", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (g *BridgeGateway) CreditAccount(ctx context.Context, accountID string, amount decimal.Decimal, memo string) error {
	body := map[string]interface{}{"amount": amount, "memo": memo}
	return g.call(ctx, http.MethodPost, fmt.Sprintf("/accounts/%s/credit", accountID), body, nil)
}

func (g *BridgeGateway) DebitAccount(ctx context.Context, accountID string, amount decimal.Decimal, memo string) error {
	body := map[string]interface{}{"amount": amount, "memo": memo}
	return g.call(ctx, http.MethodPost, fmt.Sprintf("/accounts/%s/debit", accountID), body, nil)
}
