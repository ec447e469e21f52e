package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID                         uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID                     int64           `gorm:"column:user_id;uniqueIndex;not null" json:"user_id"`
	Email                      string          `gorm:"column:email;size:255;uniqueIndex;not null" json:"email"`
	FirstName                  string          `gorm:"column:first_name;size:100" json:"first_name"`
	LastName                   string          `gorm:"column:last_name;size:100" json:"last_name"`
	ReferralCode               *string         `gorm:"column:referral_code;size:50;uniqueIndex" json:"referral_code"`
	ReferralCodeUsed           *string         `gorm:"column:referral_code_used;size:50" json:"referral_code_used"`
	ParentIBID                 *uint           `gorm:"column:parent_ib_id;index" json:"parent_ib_id"`
	ParentIB                   *User           `gorm:"foreignKey:ParentIBID" json:"-"`
	CreatedByID                *uint           `gorm:"column:created_by_id" json:"created_by_id"`
	IBStatus                   bool            `gorm:"column:ib_status;default:false" json:"ib_status"`
	TotalEarnings              decimal.Decimal `gorm:"column:total_earnings;type:decimal(20,2);default:0.00" json:"total_earnings"`
	TotalCommissionWithdrawals decimal.Decimal `gorm:"column:total_commission_withdrawals;type:decimal(20,2);default:0.00" json:"total_commission_withdrawals"`
	LastLoginAt                *time.Time      `gorm:"column:last_login_at" json:"last_login_at"`
	CreatedAt                  time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt                  time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
