package mt5

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrDisconnected is returned when no live manager session exists and one
	// could not be established.
	ErrDisconnected = errors.New("mt5: not connected")
	// ErrUpstream is returned when the manager refused or failed an operation.
	ErrUpstream = errors.New("mt5: upstream error")
	// ErrNotFound is returned for unknown trading accounts.
	ErrNotFound = errors.New("mt5: account not found")
)

// Deal is an immutable closed-trade record as reported by the manager.
// Volumes are raw MT5 units; VolumeClosedRaw is preferred when non-zero.
type Deal struct {
	DealID          string          `json:"deal_id"`
	PositionID      string          `json:"position_id"`
	Symbol          string          `json:"symbol"`
	Type            int             `json:"type"` // 0 = buy, else sell
	VolumeRaw       int64           `json:"volume"`
	VolumeClosedRaw int64           `json:"volume_closed"`
	Commission      decimal.Decimal `json:"commission"`
	Profit          decimal.Decimal `json:"profit"`
	TimeUnix        int64           `json:"time"`
}

// CloseTime interprets the deal timestamp as seconds since epoch, UTC.
func (d Deal) CloseTime() time.Time {
	return time.Unix(d.TimeUnix, 0).UTC()
}

type CreateAccountRequest struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Group            string `json:"group"`
	Leverage         int    `json:"leverage"`
	MasterPassword   string `json:"master_password"`
	InvestorPassword string `json:"investor_password"`
	Kind             string `json:"kind"` // "real" or "demo"
}

type CreatedAccount struct {
	Login            string `json:"login"`
	MasterPassword   string `json:"master_password"`
	InvestorPassword string `json:"investor_password"`
	Group            string `json:"group"`
}

// Gateway is the single point of contact with the upstream MT5 manager.
type Gateway interface {
	ListClosedDeals(ctx context.Context, accountID string, since *time.Time) ([]Deal, error)
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	GetEquity(ctx context.Context, accountID string) (decimal.Decimal, error)
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*CreatedAccount, error)
	CreditAccount(ctx context.Context, accountID string, amount decimal.Decimal, memo string) error
	DebitAccount(ctx context.Context, accountID string, amount decimal.Decimal, memo string) error
	// Reset invalidates the live session; the next call reconnects using the
	// then-current server setting.
	Reset()
}
