package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"backoffice-service/internal/models"
	"backoffice-service/internal/mt5"
	"backoffice-service/pkg/common"
)

// AccountService provisions trading accounts upstream and books deposits and
// withdrawals against them.
type AccountService struct {
	DB      *gorm.DB
	Gateway mt5.Gateway
}

func NewAccountService(db *gorm.DB, gateway mt5.Gateway) *AccountService {
	return &AccountService{DB: db, Gateway: gateway}
}

type ProvisionRequest struct {
	UserID           uint
	GroupName        string
	Leverage         int
	MasterPassword   string
	InvestorPassword string
}

// Provision creates the account on the manager first, then persists the
// local record. Accounts are never deleted, only disabled.
func (s *AccountService) Provision(ctx context.Context, req ProvisionRequest) (*models.TradingAccount, error) {
	var user models.User
	if err := s.DB.First(&user, req.UserID).Error; err != nil {
		return nil, err
	}

	var group models.TradeGroup
	if err := s.DB.Where("name = ?", req.GroupName).First(&group).Error; err != nil {
		return nil, fmt.Errorf("unknown trade group %q: %w", req.GroupName, err)
	}
	kind := "real"
	if group.Type == models.GroupTypeDemo {
		kind = "demo"
	}

	created, err := s.Gateway.CreateAccount(ctx, mt5.CreateAccountRequest{
		Name:             user.FirstName + " " + user.LastName,
		Email:            user.Email,
		Group:            group.Name,
		Leverage:         req.Leverage,
		MasterPassword:   req.MasterPassword,
		InvestorPassword: req.InvestorPassword,
		Kind:             kind,
	})
	if err != nil {
		return nil, err
	}

	account := models.TradingAccount{
		AccountID: created.Login,
		UserID:    user.ID,
		GroupName: created.Group,
		Leverage:  req.Leverage,
		IsEnabled: true,
	}
	if err := s.DB.Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// Deposit credits the trading account upstream and books an approved
// deposit_trading transaction.
func (s *AccountService) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, actorID uint) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("deposit amount must be positive")
	}
	var account models.TradingAccount
	if err := s.DB.Where("account_id = ? AND is_enabled = ?", accountID, true).First(&account).Error; err != nil {
		return nil, err
	}

	memo := "deposit " + common.GenerateTrxNo()
	if err := s.Gateway.CreditAccount(ctx, account.AccountID, amount, memo); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	trx := models.Transaction{
		UserID:           account.UserID,
		TradingAccountID: &account.ID,
		ToAccount:        &account.AccountID,
		TransactionNo:    common.GenerateTrxNo(),
		Kind:             models.TrxKindDepositTrading,
		Amount:           amount,
		Status:           models.TrxStatusApproved,
		Description:      memo,
		ApprovedByID:     &actorID,
		ApprovedAt:       &now,
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&trx).Error; err != nil {
			return err
		}
		return tx.Model(&account).
			UpdateColumn("balance", gorm.Expr("balance + ?", amount)).Error
	})
	if err != nil {
		return nil, err
	}
	return &trx, nil
}

// Withdraw debits the trading account upstream; the balance check belongs to
// the manager, which refuses overdrafts.
func (s *AccountService) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, actorID uint) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("withdrawal amount must be positive")
	}
	var account models.TradingAccount
	if err := s.DB.Where("account_id = ? AND is_enabled = ?", accountID, true).First(&account).Error; err != nil {
		return nil, err
	}

	memo := "withdrawal " + common.GenerateTrxNo()
	if err := s.Gateway.DebitAccount(ctx, account.AccountID, amount, memo); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	trx := models.Transaction{
		UserID:           account.UserID,
		TradingAccountID: &account.ID,
		FromAccount:      &account.AccountID,
		TransactionNo:    common.GenerateTrxNo(),
		Kind:             models.TrxKindWithdrawTrading,
		Amount:           amount,
		Status:           models.TrxStatusApproved,
		Description:      memo,
		ApprovedByID:     &actorID,
		ApprovedAt:       &now,
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&trx).Error; err != nil {
			return err
		}
		return tx.Model(&account).
			UpdateColumn("balance", gorm.Expr("balance - ?", amount)).Error
	})
	if err != nil {
		return nil, err
	}
	return &trx, nil
}

// Disable soft-deletes a trading account.
func (s *AccountService) Disable(accountID string) error {
	result := s.DB.Model(&models.TradingAccount{}).
		Where("account_id = ?", accountID).
		UpdateColumn("is_enabled", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
