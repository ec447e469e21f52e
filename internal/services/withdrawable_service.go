package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"backoffice-service/internal/models"
	"backoffice-service/internal/mt5"
	"backoffice-service/pkg/common"
)

// WithdrawableService derives withdrawable IB commission and runs the
// commission-withdrawal approval flow.
type WithdrawableService struct {
	DB      *gorm.DB
	Gateway mt5.Gateway
}

func NewWithdrawableService(db *gorm.DB, gateway mt5.Gateway) *WithdrawableService {
	return &WithdrawableService{DB: db, Gateway: gateway}
}

type WithdrawableBreakdown struct {
	UserID            uint            `json:"user_id"`
	TotalEarned       decimal.Decimal `json:"total"`
	ApprovedWithdrawn decimal.Decimal `json:"approved_withdrawn"`
	Pending           decimal.Decimal `json:"pending"`
	Withdrawable      decimal.Decimal `json:"withdrawable"`
}

// Breakdown computes withdrawable = earned − approved withdrawals. Pending
// withdrawals are reported separately and do not reduce the figure.
func (s *WithdrawableService) Breakdown(userID uint) (*WithdrawableBreakdown, error) {
	earned, err := s.sumCommission(userID)
	if err != nil {
		return nil, err
	}
	approved, err := s.sumWithdrawals(userID, models.TrxStatusApproved)
	if err != nil {
		return nil, err
	}
	pending, err := s.sumWithdrawals(userID, models.TrxStatusPending)
	if err != nil {
		return nil, err
	}

	return &WithdrawableBreakdown{
		UserID:            userID,
		TotalEarned:       earned,
		ApprovedWithdrawn: approved,
		Pending:           pending,
		Withdrawable:      earned.Sub(approved),
	}, nil
}

func (s *WithdrawableService) sumCommission(userID uint) (decimal.Decimal, error) {
	var raw *string
	err := s.DB.Model(&models.CommissionTransaction{}).
		Where("ib_user_id = ?", userID).
		Select("SUM(commission_to_ib)").
		Scan(&raw).Error
	return scanDecimal(raw), err
}

func (s *WithdrawableService) sumWithdrawals(userID uint, status string) (decimal.Decimal, error) {
	var raw *string
	err := s.DB.Model(&models.Transaction{}).
		Where("user_id = ? AND kind = ? AND status = ?", userID, models.TrxKindCommissionWithdrawal, status).
		Select("SUM(amount)").
		Scan(&raw).Error
	return scanDecimal(raw), err
}

func scanDecimal(raw *string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	parsed, err := decimal.NewFromString(*raw)
	if err != nil {
		return decimal.Zero
	}
	return parsed
}

// RequestWithdrawal books a pending commission withdrawal. Amount must not
// exceed the current withdrawable figure.
func (s *WithdrawableService) RequestWithdrawal(userID uint, amount decimal.Decimal) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("withdrawal amount must be positive")
	}
	breakdown, err := s.Breakdown(userID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(breakdown.Withdrawable) {
		return nil, fmt.Errorf("amount %s exceeds withdrawable %s", amount, breakdown.Withdrawable)
	}

	trx := models.Transaction{
		UserID:        userID,
		TransactionNo: common.GenerateTrxNo(),
		Kind:          models.TrxKindCommissionWithdrawal,
		Amount:        amount,
		Status:        models.TrxStatusPending,
		Description:   "IB commission withdrawal",
	}
	if err := s.DB.Create(&trx).Error; err != nil {
		return nil, err
	}
	return &trx, nil
}

// ApproveWithdrawal re-checks the withdrawable figure at approval time, then
// marks the transaction approved and bumps the user's withdrawal running
// total, all in one transaction. The user row is locked first so concurrent
// approvals for the same user serialise and cannot both pass the re-check.
func (s *WithdrawableService) ApproveWithdrawal(trxID, actorID uint) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var trx models.Transaction
		if err := tx.First(&trx, trxID).Error; err != nil {
			return err
		}
		if trx.Status != models.TrxStatusPending {
			return fmt.Errorf("transaction %d is %s, not pending", trxID, trx.Status)
		}
		if trx.Kind != models.TrxKindCommissionWithdrawal {
			return fmt.Errorf("transaction %d is not a commission withdrawal", trxID)
		}

		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&user, trx.UserID).Error; err != nil {
			return err
		}

		svc := &WithdrawableService{DB: tx, Gateway: s.Gateway}
		breakdown, err := svc.Breakdown(trx.UserID)
		if err != nil {
			return err
		}
		if trx.Amount.GreaterThan(breakdown.Withdrawable) {
			return fmt.Errorf("%w: amount %s exceeds withdrawable %s at approval time",
				ErrInvariant, trx.Amount, breakdown.Withdrawable)
		}

		now := time.Now().UTC()
		trx.Status = models.TrxStatusApproved
		trx.ApprovedByID = &actorID
		trx.ApprovedAt = &now
		if err := tx.Save(&trx).Error; err != nil {
			return err
		}

		return tx.Model(&models.User{}).Where("id = ?", trx.UserID).
			UpdateColumn("total_commission_withdrawals", gorm.Expr("total_commission_withdrawals + ?", trx.Amount)).
			Error
	})
}

func (s *WithdrawableService) RejectWithdrawal(trxID, actorID uint, reason string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var trx models.Transaction
		if err := tx.First(&trx, trxID).Error; err != nil {
			return err
		}
		if trx.Status != models.TrxStatusPending {
			return fmt.Errorf("transaction %d is %s, not pending", trxID, trx.Status)
		}

		now := time.Now().UTC()
		trx.Status = models.TrxStatusRejected
		trx.RejectReason = reason
		trx.ApprovedByID = &actorID
		trx.ApprovedAt = &now
		return tx.Save(&trx).Error
	})
}

type Discrepancy struct {
	UserID       uint            `json:"user_id"`
	Email        string          `json:"email"`
	AccountID    string          `json:"account_id"`
	DBAmount     decimal.Decimal `json:"db_amount"`
	MT5Amount    decimal.Decimal `json:"mt5_amount"`
	Difference   decimal.Decimal `json:"difference"`
	UsedFallback bool            `json:"used_fallback"`
}

// Reconcile compares each IB's withdrawable figure against the MT5 balance of
// their primary account and flags differences at or above the threshold. The
// reconciler is read-only.
func (s *WithdrawableService) Reconcile(ctx context.Context, threshold decimal.Decimal) ([]Discrepancy, error) {
	var ibs []models.User
	if err := s.DB.Where("ib_status = ?", true).Order("user_id ASC").Find(&ibs).Error; err != nil {
		return nil, err
	}

	var discrepancies []Discrepancy
	for _, ib := range ibs {
		if err := ctx.Err(); err != nil {
			return discrepancies, err
		}

		var primary models.TradingAccount
		err := s.DB.Where("user_id = ? AND is_enabled = ?", ib.ID, true).
			Order("created_at ASC").First(&primary).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		breakdown, err := s.Breakdown(ib.ID)
		if err != nil {
			return nil, err
		}

		dbAmount := breakdown.Withdrawable
		usedFallback := false
		if dbAmount.IsZero() {
			// With nothing withdrawable, compare against the summed balances
			// of owned accounts instead.
			var raw *string
			if err := s.DB.Model(&models.TradingAccount{}).
				Where("user_id = ? AND is_enabled = ?", ib.ID, true).
				Select("SUM(balance)").Scan(&raw).Error; err != nil {
				return nil, err
			}
			dbAmount = scanDecimal(raw)
			usedFallback = true
		}

		mt5Amount, err := s.Gateway.GetBalance(ctx, primary.AccountID)
		if err != nil {
			log.Printf("reconcile: balance fetch failed for account %s: %v", primary.AccountID, err)
			continue
		}

		diff := mt5Amount.Sub(dbAmount)
		if diff.Abs().GreaterThanOrEqual(threshold) {
			discrepancies = append(discrepancies, Discrepancy{
				UserID:       ib.ID,
				Email:        ib.Email,
				AccountID:    primary.AccountID,
				DBAmount:     dbAmount,
				MT5Amount:    mt5Amount,
				Difference:   diff,
				UsedFallback: usedFallback,
			})
		}
	}
	return discrepancies, nil
}

// StartScheduler runs the nightly balance reconciliation sweep. The sweep
// only logs; it proposes nothing.
func (s *WithdrawableService) StartScheduler(threshold decimal.Decimal) {
	c := cron.New()
	_, err := c.AddFunc("30 1 * * *", func() {
		log.Println("Running scheduled IB balance reconciliation...")
		discrepancies, err := s.Reconcile(context.Background(), threshold)
		if err != nil {
			log.Printf("Error in Reconcile: %v", err)
			return
		}
		for _, d := range discrepancies {
			log.Printf("reconcile: user %d account %s off by %s (db=%s mt5=%s)",
				d.UserID, d.AccountID, d.Difference, d.DBAmount, d.MT5Amount)
		}
	})
	if err != nil {
		log.Printf("Error scheduling Reconcile: %v", err)
		return
	}
	c.Start()
	log.Println("WithdrawableService scheduler started (nightly)")
}
