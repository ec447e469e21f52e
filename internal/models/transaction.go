package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TrxKindDepositTrading       = "deposit_trading"
	TrxKindWithdrawTrading      = "withdraw_trading"
	TrxKindCreditIn             = "credit_in"
	TrxKindCreditOut            = "credit_out"
	TrxKindCommissionWithdrawal = "commission_withdrawal"
	TrxKindInternalTransfer     = "internal_transfer"

	TrxStatusPending  = "pending"
	TrxStatusApproved = "approved"
	TrxStatusRejected = "rejected"
)

// Transaction is the user-facing monetary record. Flows pending -> approved
// or rejected; approval triggers side effects in the owning service.
type Transaction struct {
	ID               uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           uint            `gorm:"column:user_id;not null;index" json:"user_id"`
	TradingAccountID *uint           `gorm:"column:trading_account_id;index" json:"trading_account_id"`
	FromAccount      *string         `gorm:"column:from_account;size:50" json:"from_account"`
	ToAccount        *string         `gorm:"column:to_account;size:50" json:"to_account"`
	TransactionNo    string          `gorm:"column:transaction_no;size:50;not null;index" json:"transaction_no"`
	Kind             string          `gorm:"column:kind;size:50;not null;index" json:"kind"`
	Amount           decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Status           string          `gorm:"column:status;size:20;not null;default:pending;index" json:"status"`
	Description      string          `gorm:"column:description;type:text" json:"description"`
	RejectReason     string          `gorm:"column:reject_reason;size:255" json:"reject_reason"`
	ApprovedByID     *uint           `gorm:"column:approved_by_id" json:"approved_by_id"`
	ApprovedAt       *time.Time      `gorm:"column:approved_at" json:"approved_at"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// ArchivedTransaction mirrors Transaction for rows swept out of the hot table
// by the nightly cleanup job.
type ArchivedTransaction struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	UserID           uint            `gorm:"column:user_id;index" json:"user_id"`
	TradingAccountID *uint           `gorm:"column:trading_account_id" json:"trading_account_id"`
	FromAccount      *string         `gorm:"column:from_account;size:50" json:"from_account"`
	ToAccount        *string         `gorm:"column:to_account;size:50" json:"to_account"`
	TransactionNo    string          `gorm:"column:transaction_no;size:50;index" json:"transaction_no"`
	Kind             string          `gorm:"column:kind;size:50" json:"kind"`
	Amount           decimal.Decimal `gorm:"column:amount;type:decimal(20,2)" json:"amount"`
	Status           string          `gorm:"column:status;size:20" json:"status"`
	Description      string          `gorm:"column:description;type:text" json:"description"`
	RejectReason     string          `gorm:"column:reject_reason;size:255" json:"reject_reason"`
	ApprovedByID     *uint           `gorm:"column:approved_by_id" json:"approved_by_id"`
	ApprovedAt       *time.Time      `gorm:"column:approved_at" json:"approved_at"`
	CreatedAt        time.Time       `gorm:"column:created_at" json:"created_at"`
	ArchivedAt       time.Time       `gorm:"column:archived_at;autoCreateTime" json:"archived_at"`
}

func (ArchivedTransaction) TableName() string {
	return "archived_transactions"
}
