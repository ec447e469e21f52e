package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PAMMStatusActive = "active"
	PAMMStatusPaused = "paused"
	PAMMStatusClosed = "closed"

	PAMMRoleManager  = "manager"
	PAMMRoleInvestor = "investor"

	PAMMTrxManagerDeposit   = "manager_deposit"
	PAMMTrxManagerWithdraw  = "manager_withdraw"
	PAMMTrxInvestorDeposit  = "investor_deposit"
	PAMMTrxInvestorWithdraw = "investor_withdraw"
	PAMMTrxManagerFee       = "manager_fee"

	PAMMTrxStatusPending   = "pending"
	PAMMTrxStatusApproved  = "approved"
	PAMMTrxStatusRejected  = "rejected"
	PAMMTrxStatusCompleted = "completed"
)

type PAMMAccount struct {
	ID                   uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	ManagerID            uint            `gorm:"column:manager_id;not null;index" json:"manager_id"`
	Manager              *User           `gorm:"foreignKey:ManagerID" json:"-"`
	MT5AccountID         *string         `gorm:"column:mt5_account_id;size:50" json:"mt5_account_id"`
	Name                 string          `gorm:"column:name;size:100" json:"name"`
	ProfitSharePct       decimal.Decimal `gorm:"column:profit_share_pct;type:decimal(5,2);default:0.00" json:"profit_share_pct"`
	Leverage             int             `gorm:"column:leverage;default:100" json:"leverage"`
	TotalUnits           decimal.Decimal `gorm:"column:total_units;type:decimal(28,8);default:0.00000000" json:"total_units"`
	TotalEquity          decimal.Decimal `gorm:"column:total_equity;type:decimal(20,2);default:0.00" json:"total_equity"`
	HighWaterMark        decimal.Decimal `gorm:"column:high_water_mark;type:decimal(20,2);default:0.00" json:"high_water_mark"`
	Status               string          `gorm:"column:status;size:20;default:active" json:"status"`
	IsAcceptingInvestors bool            `gorm:"column:is_accepting_investors;default:true" json:"is_accepting_investors"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PAMMAccount) TableName() string {
	return "pamm_accounts"
}

type PAMMParticipant struct {
	ID                uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	PAMMID            uint            `gorm:"column:pamm_id;not null;uniqueIndex:idx_pamm_user_role" json:"pamm_id"`
	UserID            uint            `gorm:"column:user_id;not null;uniqueIndex:idx_pamm_user_role" json:"user_id"`
	Role              string          `gorm:"column:role;size:20;not null;uniqueIndex:idx_pamm_user_role" json:"role"`
	Units             decimal.Decimal `gorm:"column:units;type:decimal(28,8);default:0.00000000" json:"units"`
	TotalDeposited    decimal.Decimal `gorm:"column:total_deposited;type:decimal(20,2);default:0.00" json:"total_deposited"`
	TotalWithdrawn    decimal.Decimal `gorm:"column:total_withdrawn;type:decimal(20,2);default:0.00" json:"total_withdrawn"`
	LastTransactionAt *time.Time      `gorm:"column:last_transaction_at" json:"last_transaction_at"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PAMMParticipant) TableName() string {
	return "pamm_participants"
}

type PAMMTransaction struct {
	ID                     uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	PAMMID                 uint            `gorm:"column:pamm_id;not null;index" json:"pamm_id"`
	ParticipantID          uint            `gorm:"column:participant_id;not null;index" json:"participant_id"`
	Kind                   string          `gorm:"column:kind;size:30;not null" json:"kind"`
	Amount                 decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	UnitsAdded             decimal.Decimal `gorm:"column:units_added;type:decimal(28,8);default:0.00000000" json:"units_added"`
	UnitsRemoved           decimal.Decimal `gorm:"column:units_removed;type:decimal(28,8);default:0.00000000" json:"units_removed"`
	UnitPriceAtTransaction decimal.Decimal `gorm:"column:unit_price_at_transaction;type:decimal(28,8);default:0.00000000" json:"unit_price_at_transaction"`
	Status                 string          `gorm:"column:status;size:20;default:pending;index" json:"status"`
	RejectReason           string          `gorm:"column:reject_reason;size:255" json:"reject_reason"`
	PaymentProofRef        *string         `gorm:"column:payment_proof_ref;size:100" json:"payment_proof_ref"`
	ApprovedByID           *uint           `gorm:"column:approved_by_id" json:"approved_by_id"`
	ApprovedAt             *time.Time      `gorm:"column:approved_at" json:"approved_at"`
	CompletedAt            *time.Time      `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt              time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (PAMMTransaction) TableName() string {
	return "pamm_transactions"
}

type PAMMEquitySnapshot struct {
	ID            uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	PAMMID        uint            `gorm:"column:pamm_id;not null;index" json:"pamm_id"`
	Equity        decimal.Decimal `gorm:"column:equity;type:decimal(20,2)" json:"equity"`
	TotalUnits    decimal.Decimal `gorm:"column:total_units;type:decimal(28,8)" json:"total_units"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:decimal(28,8)" json:"unit_price"`
	ManagerUnits  decimal.Decimal `gorm:"column:manager_units;type:decimal(28,8)" json:"manager_units"`
	InvestorUnits decimal.Decimal `gorm:"column:investor_units;type:decimal(28,8)" json:"investor_units"`
	InvestorCount int             `gorm:"column:investor_count" json:"investor_count"`
	TakenAt       time.Time       `gorm:"column:taken_at;autoCreateTime;index" json:"taken_at"`
}

func (PAMMEquitySnapshot) TableName() string {
	return "pamm_equity_snapshots"
}
