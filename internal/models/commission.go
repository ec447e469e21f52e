package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	LevelKindFlatPerLot = "flat_per_lot"
	LevelKindPercentage = "percentage"
)

// CommissionProfile is the rule set attached to a level-1 IB. Profiles are
// immutable once a commission row references them; edits create a new version.
type CommissionProfile struct {
	ID        uint                     `gorm:"primaryKey;autoIncrement" json:"id"`
	IBUserID  uint                     `gorm:"column:ib_user_id;not null;index" json:"ib_user_id"`
	Version   int                      `gorm:"column:version;not null;default:1" json:"version"`
	IsActive  bool                     `gorm:"column:is_active;default:true" json:"is_active"`
	Levels    []CommissionProfileLevel `gorm:"foreignKey:ProfileID" json:"levels"`
	CreatedAt time.Time                `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (CommissionProfile) TableName() string {
	return "commission_profiles"
}

type CommissionProfileLevel struct {
	ID        uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileID uint            `gorm:"column:profile_id;not null;uniqueIndex:idx_profile_level" json:"profile_id"`
	Level     int             `gorm:"column:level;not null;uniqueIndex:idx_profile_level" json:"level"`
	Kind      string          `gorm:"column:kind;size:20;not null" json:"kind"`
	Rate      decimal.Decimal `gorm:"column:rate;type:decimal(20,4);default:0.0000" json:"rate"`
	Pct       decimal.Decimal `gorm:"column:pct;type:decimal(8,4);default:0.0000" json:"pct"`
}

func (CommissionProfileLevel) TableName() string {
	return "commission_profile_levels"
}

// CommissionTransaction is the central ledger row. Append-only; the 4-tuple
// (position_id, client_trading_account_id, ib_user_id, ib_level) is unique and
// re-observation of a deal is a no-op. Magnitudes only, never negative.
type CommissionTransaction struct {
	ID                     uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	PositionID             string          `gorm:"column:position_id;size:50;not null;uniqueIndex:idx_commission_unique" json:"position_id"`
	ClientTradingAccountID uint            `gorm:"column:client_trading_account_id;not null;uniqueIndex:idx_commission_unique" json:"client_trading_account_id"`
	ClientUserID           uint            `gorm:"column:client_user_id;not null;index" json:"client_user_id"`
	IBUserID               uint            `gorm:"column:ib_user_id;not null;uniqueIndex:idx_commission_unique;index" json:"ib_user_id"`
	IBLevel                int             `gorm:"column:ib_level;not null;uniqueIndex:idx_commission_unique" json:"ib_level"`
	ProfileID              uint            `gorm:"column:profile_id" json:"profile_id"`
	PositionSymbol         string          `gorm:"column:position_symbol;size:50" json:"position_symbol"`
	PositionType           string          `gorm:"column:position_type;size:10" json:"position_type"`
	PositionDirection      string          `gorm:"column:position_direction;size:10;default:in" json:"position_direction"`
	LotSize                decimal.Decimal `gorm:"column:lot_size;type:decimal(20,4);not null" json:"lot_size"`
	Profit                 decimal.Decimal `gorm:"column:profit;type:decimal(20,2);default:0.00" json:"profit"`
	TotalCommission        decimal.Decimal `gorm:"column:total_commission;type:decimal(20,2);not null" json:"total_commission"`
	CommissionToIB         decimal.Decimal `gorm:"column:commission_to_ib;type:decimal(20,2);not null" json:"commission_to_ib"`
	DealTicket             *string         `gorm:"column:deal_ticket;size:50" json:"deal_ticket"`
	MT5CloseTime           time.Time       `gorm:"column:mt5_close_time;index" json:"mt5_close_time"`
	CreatedAt              time.Time       `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (CommissionTransaction) TableName() string {
	return "commission_transactions"
}
