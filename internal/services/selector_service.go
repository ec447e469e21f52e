package services

import (
	"time"

	"gorm.io/gorm"

	"backoffice-service/internal/models"
)

const smartSelectorFloor = 30

// SelectorService produces the working set of trading accounts to poll each
// ingestion cycle.
type SelectorService struct {
	DB       *gorm.DB
	UseSmart bool
}

func NewSelectorService(db *gorm.DB, useSmart bool) *SelectorService {
	return &SelectorService{DB: db, UseSmart: useSmart}
}

// Select returns enabled non-demo accounts with owner and parent IB preloaded,
// ordered by account_id for determinism. Smart mode narrows to recently active
// owners with a floor filled from the expanded list.
func (s *SelectorService) Select() ([]models.TradingAccount, error) {
	expanded, err := s.selectExpanded()
	if err != nil {
		return nil, err
	}
	if !s.UseSmart {
		return expanded, nil
	}
	return s.narrowSmart(expanded)
}

func (s *SelectorService) selectExpanded() ([]models.TradingAccount, error) {
	var demoGroups []string
	if err := s.DB.Model(&models.TradeGroup{}).
		Where("type = ?", models.GroupTypeDemo).
		Pluck("name", &demoGroups).Error; err != nil {
		return nil, err
	}

	query := s.DB.Preload("User").Preload("User.ParentIB").
		Where("is_enabled = ?", true).
		Order("account_id ASC")
	if len(demoGroups) > 0 {
		query = query.Where("group_name NOT IN ?", demoGroups)
	}

	var accounts []models.TradingAccount
	if err := query.Find(&accounts).Error; err != nil {
		return nil, err
	}
	return dedupeAccounts(accounts), nil
}

// narrowSmart keeps accounts whose owner logged in within 48h or earned
// commission within 7 days, topping up to the floor from the expanded list.
func (s *SelectorService) narrowSmart(expanded []models.TradingAccount) ([]models.TradingAccount, error) {
	loginCutoff := time.Now().Add(-48 * time.Hour)
	commissionCutoff := time.Now().Add(-7 * 24 * time.Hour)

	var activeUserIDs []uint
	if err := s.DB.Model(&models.CommissionTransaction{}).
		Where("created_at >= ?", commissionCutoff).
		Distinct().
		Pluck("client_user_id", &activeUserIDs).Error; err != nil {
		return nil, err
	}
	active := make(map[uint]bool, len(activeUserIDs))
	for _, id := range activeUserIDs {
		active[id] = true
	}

	var narrowed []models.TradingAccount
	for _, acc := range expanded {
		if acc.User != nil && acc.User.LastLoginAt != nil && acc.User.LastLoginAt.After(loginCutoff) {
			narrowed = append(narrowed, acc)
			continue
		}
		if active[acc.UserID] {
			narrowed = append(narrowed, acc)
		}
	}

	if len(narrowed) >= smartSelectorFloor {
		return narrowed, nil
	}

	// Fill to the floor in expanded order.
	picked := make(map[string]bool, len(narrowed))
	for _, acc := range narrowed {
		picked[acc.AccountID] = true
	}
	for _, acc := range expanded {
		if len(narrowed) >= smartSelectorFloor {
			break
		}
		if !picked[acc.AccountID] {
			narrowed = append(narrowed, acc)
			picked[acc.AccountID] = true
		}
	}
	return narrowed, nil
}

func dedupeAccounts(accounts []models.TradingAccount) []models.TradingAccount {
	seen := make(map[string]bool, len(accounts))
	out := accounts[:0]
	for _, acc := range accounts {
		if seen[acc.AccountID] {
			continue
		}
		seen[acc.AccountID] = true
		out = append(out, acc)
	}
	return out
}
