package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	GroupTypeLive = "live"
	GroupTypeDemo = "demo"
)

// TradeGroup classifies MT5 groups as live or demo. VolumeScale is the
// raw-volume divisor for one standard lot (MT5 reports ten-thousandths).
type TradeGroup struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"column:name;size:100;uniqueIndex;not null" json:"name"`
	Type        string    `gorm:"column:type;size:10;not null;default:live" json:"type"`
	IsDefault   bool      `gorm:"column:is_default;default:false" json:"is_default"`
	VolumeScale int64     `gorm:"column:volume_scale;default:10000" json:"volume_scale"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (TradeGroup) TableName() string {
	return "trade_groups"
}

type TradingAccount struct {
	ID        uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID string          `gorm:"column:account_id;size:50;uniqueIndex;not null" json:"account_id"`
	UserID    uint            `gorm:"column:user_id;not null;index" json:"user_id"`
	User      *User           `gorm:"foreignKey:UserID" json:"-"`
	GroupName string          `gorm:"column:group_name;size:100;index" json:"group_name"`
	Leverage  int             `gorm:"column:leverage;default:100" json:"leverage"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(20,2);default:0.00" json:"balance"`
	IsEnabled bool            `gorm:"column:is_enabled;default:true" json:"is_enabled"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (TradingAccount) TableName() string {
	return "trading_accounts"
}

// ServerSetting holds MT5 manager credentials. The active record is the one
// with the latest created_at; writing a new row rotates credentials in-band.
type ServerSetting struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ServerIP  string    `gorm:"column:server_ip;size:100;not null" json:"server_ip"`
	Login     string    `gorm:"column:login;size:50;not null" json:"login"`
	Password  string    `gorm:"column:password;size:255;not null" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ServerSetting) TableName() string {
	return "server_settings"
}
