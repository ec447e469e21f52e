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

	"backoffice-service/internal/config"
	"backoffice-service/internal/models"
	"backoffice-service/internal/mt5"
)

var (
	minInvestorDeposit = decimal.RequireFromString("10.00")
	unitSeedPrice      = decimal.NewFromInt(1)
)

// UnitPrice is equity / units, seeded at 1 for an empty pool.
func UnitPrice(equity, units decimal.Decimal) decimal.Decimal {
	if units.IsPositive() {
		return equity.DivRound(units, 8)
	}
	return unitSeedPrice
}

// ManagerFee returns the crystallised fee for equity above the high-water
// mark, zero when under water.
func ManagerFee(equity, hwm, sharePct decimal.Decimal) decimal.Decimal {
	if equity.LessThanOrEqual(hwm) {
		return decimal.Zero
	}
	profitAbove := equity.Sub(hwm)
	return profitAbove.Mul(sharePct).DivRound(decimal.NewFromInt(100), 2)
}

// FeeUnits converts a crystallised fee into new manager units that dilute the
// pool without touching equity: the new units are worth exactly the fee at
// the post-dilution price.
func FeeUnits(fee, equity, totalUnits decimal.Decimal) decimal.Decimal {
	base := equity.Sub(fee)
	if !base.IsPositive() {
		return decimal.Zero
	}
	return fee.Mul(totalUnits).DivRound(base, 8)
}

// PAMMService maintains pooled-equity unit accounting. Unit deltas are always
// applied at approval time, under a row lock on the PAMM account.
type PAMMService struct {
	DB          *gorm.DB
	Gateway     mt5.Gateway
	FeeDelivery string
}

func NewPAMMService(db *gorm.DB, gateway mt5.Gateway, feeDelivery string) *PAMMService {
	if feeDelivery == "" {
		feeDelivery = config.FeeDeliveryReprice
	}
	return &PAMMService{DB: db, Gateway: gateway, FeeDelivery: feeDelivery}
}

// RequestTransaction books a pending PAMM deposit or withdrawal. The unit
// price recorded here is informational; the real price is recomputed at
// approval.
func (s *PAMMService) RequestTransaction(pammID, userID uint, kind string, amount decimal.Decimal, proofRef *string) (*models.PAMMTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}

	role := models.PAMMRoleManager
	switch kind {
	case models.PAMMTrxManagerDeposit, models.PAMMTrxManagerWithdraw:
	case models.PAMMTrxInvestorDeposit, models.PAMMTrxInvestorWithdraw:
		role = models.PAMMRoleInvestor
	default:
		return nil, fmt.Errorf("unknown pamm transaction kind %q", kind)
	}
	if kind == models.PAMMTrxInvestorDeposit && amount.LessThan(minInvestorDeposit) {
		return nil, fmt.Errorf("investor deposit minimum is %s", minInvestorDeposit)
	}

	var pamm models.PAMMAccount
	if err := s.DB.First(&pamm, pammID).Error; err != nil {
		return nil, err
	}
	if pamm.Status != models.PAMMStatusActive {
		return nil, fmt.Errorf("pamm account %d is %s", pammID, pamm.Status)
	}
	if role == models.PAMMRoleInvestor && kind == models.PAMMTrxInvestorDeposit && !pamm.IsAcceptingInvestors {
		return nil, fmt.Errorf("pamm account %d is not accepting investors", pammID)
	}

	participant, err := s.findOrCreateParticipant(s.DB, pammID, userID, role)
	if err != nil {
		return nil, err
	}

	trx := models.PAMMTransaction{
		PAMMID:                 pammID,
		ParticipantID:          participant.ID,
		Kind:                   kind,
		Amount:                 amount,
		UnitPriceAtTransaction: UnitPrice(pamm.TotalEquity, pamm.TotalUnits),
		Status:                 models.PAMMTrxStatusPending,
		PaymentProofRef:        proofRef,
	}
	if err := s.DB.Create(&trx).Error; err != nil {
		return nil, err
	}
	return &trx, nil
}

func (s *PAMMService) findOrCreateParticipant(db *gorm.DB, pammID, userID uint, role string) (*models.PAMMParticipant, error) {
	var participant models.PAMMParticipant
	err := db.Where("pamm_id = ? AND user_id = ? AND role = ?", pammID, userID, role).
		First(&participant).Error
	if err == nil {
		return &participant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	participant = models.PAMMParticipant{PAMMID: pammID, UserID: userID, Role: role}
	if err := db.Create(&participant).Error; err != nil {
		return nil, err
	}
	return &participant, nil
}

// Approve applies a pending PAMM transaction: MT5 transfer first, then the
// unit delta at the price recomputed under the row lock. An upstream failure
// leaves the transaction pending; insufficient units at approval time reject
// it.
func (s *PAMMService) Approve(ctx context.Context, trxID, actorID uint) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var trx models.PAMMTransaction
		if err := tx.First(&trx, trxID).Error; err != nil {
			return err
		}
		if trx.Status != models.PAMMTrxStatusPending {
			return fmt.Errorf("pamm transaction %d is %s, not pending", trxID, trx.Status)
		}

		var pamm models.PAMMAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&pamm, trx.PAMMID).Error; err != nil {
			return err
		}
		var participant models.PAMMParticipant
		if err := tx.First(&participant, trx.ParticipantID).Error; err != nil {
			return err
		}

		price := UnitPrice(pamm.TotalEquity, pamm.TotalUnits)
		now := time.Now().UTC()

		switch trx.Kind {
		case models.PAMMTrxManagerDeposit, models.PAMMTrxInvestorDeposit:
			if err := s.creditUpstream(ctx, &pamm, trx.Amount, trx.Kind); err != nil {
				return err
			}
			unitsAdded := trx.Amount.DivRound(price, 8)
			participant.Units = participant.Units.Add(unitsAdded)
			participant.TotalDeposited = participant.TotalDeposited.Add(trx.Amount)
			pamm.TotalUnits = pamm.TotalUnits.Add(unitsAdded)
			pamm.TotalEquity = pamm.TotalEquity.Add(trx.Amount)
			trx.UnitsAdded = unitsAdded

		case models.PAMMTrxManagerWithdraw, models.PAMMTrxInvestorWithdraw:
			unitsRequired := trx.Amount.DivRound(price, 8)
			balance := participant.Units.Mul(price)
			if trx.Amount.GreaterThan(balance) || unitsRequired.GreaterThan(participant.Units) {
				trx.Status = models.PAMMTrxStatusRejected
				trx.RejectReason = "insufficient units at approval time"
				trx.ApprovedByID = &actorID
				trx.ApprovedAt = &now
				return tx.Save(&trx).Error
			}
			if err := s.debitUpstream(ctx, &pamm, trx.Amount, trx.Kind); err != nil {
				return err
			}
			participant.Units = participant.Units.Sub(unitsRequired)
			participant.TotalWithdrawn = participant.TotalWithdrawn.Add(trx.Amount)
			pamm.TotalUnits = pamm.TotalUnits.Sub(unitsRequired)
			pamm.TotalEquity = pamm.TotalEquity.Sub(trx.Amount)
			trx.UnitsRemoved = unitsRequired

		default:
			return fmt.Errorf("pamm transaction %d has unexpected kind %q", trxID, trx.Kind)
		}

		if participant.Units.IsNegative() {
			return fmt.Errorf("%w: participant %d units would go negative", ErrInvariant, participant.ID)
		}

		participant.LastTransactionAt = &now
		trx.UnitPriceAtTransaction = price
		trx.Status = models.PAMMTrxStatusCompleted
		trx.ApprovedByID = &actorID
		trx.ApprovedAt = &now
		trx.CompletedAt = &now

		if err := tx.Save(&participant).Error; err != nil {
			return err
		}
		if err := tx.Save(&pamm).Error; err != nil {
			return err
		}
		if err := tx.Save(&trx).Error; err != nil {
			return err
		}
		return s.writeSnapshot(tx, &pamm)
	})
}

func (s *PAMMService) creditUpstream(ctx context.Context, pamm *models.PAMMAccount, amount decimal.Decimal, memo string) error {
	if pamm.MT5AccountID == nil {
		return nil
	}
	return s.Gateway.CreditAccount(ctx, *pamm.MT5AccountID, amount, memo)
}

func (s *PAMMService) debitUpstream(ctx context.Context, pamm *models.PAMMAccount, amount decimal.Decimal, memo string) error {
	if pamm.MT5AccountID == nil {
		return nil
	}
	return s.Gateway.DebitAccount(ctx, *pamm.MT5AccountID, amount, memo)
}

func (s *PAMMService) Reject(trxID, actorID uint, reason string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var trx models.PAMMTransaction
		if err := tx.First(&trx, trxID).Error; err != nil {
			return err
		}
		if trx.Status != models.PAMMTrxStatusPending {
			return fmt.Errorf("pamm transaction %d is %s, not pending", trxID, trx.Status)
		}
		now := time.Now().UTC()
		trx.Status = models.PAMMTrxStatusRejected
		trx.RejectReason = reason
		trx.ApprovedByID = &actorID
		trx.ApprovedAt = &now
		return tx.Save(&trx).Error
	})
}

// UpdateEquity sets the pool equity without touching units; the unit price
// moves, ownership shares stay put.
func (s *PAMMService) UpdateEquity(pammID uint, newEquity decimal.Decimal) error {
	if newEquity.IsNegative() {
		return fmt.Errorf("%w: equity cannot be negative", ErrInvariant)
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var pamm models.PAMMAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&pamm, pammID).Error; err != nil {
			return err
		}
		pamm.TotalEquity = newEquity
		if err := tx.Save(&pamm).Error; err != nil {
			return err
		}
		return s.writeSnapshot(tx, &pamm)
	})
}

// RefreshEquity pulls live equity from the manager and applies it.
func (s *PAMMService) RefreshEquity(ctx context.Context, pammID uint) error {
	var pamm models.PAMMAccount
	if err := s.DB.First(&pamm, pammID).Error; err != nil {
		return err
	}
	if pamm.MT5AccountID == nil {
		return nil
	}
	equity, err := s.Gateway.GetEquity(ctx, *pamm.MT5AccountID)
	if err != nil {
		return err
	}
	return s.UpdateEquity(pammID, equity)
}

// CalculateManagerFee crystallises the performance fee for equity above the
// high-water mark. Delivery depends on configuration: "reprice" shrinks the
// pool and pays the manager out of band, "units" grants the manager new units
// worth the fee.
func (s *PAMMService) CalculateManagerFee(ctx context.Context, pammID uint) (decimal.Decimal, error) {
	fee := decimal.Zero
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var pamm models.PAMMAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&pamm, pammID).Error; err != nil {
			return err
		}

		fee = ManagerFee(pamm.TotalEquity, pamm.HighWaterMark, pamm.ProfitSharePct)
		if fee.IsZero() {
			return nil
		}

		manager, err := s.findOrCreateParticipant(tx, pamm.ID, pamm.ManagerID, models.PAMMRoleManager)
		if err != nil {
			return err
		}

		pamm.HighWaterMark = pamm.TotalEquity
		feeTrx := models.PAMMTransaction{
			PAMMID:        pamm.ID,
			ParticipantID: manager.ID,
			Kind:          models.PAMMTrxManagerFee,
			Amount:        fee,
			Status:        models.PAMMTrxStatusCompleted,
		}

		if s.FeeDelivery == config.FeeDeliveryUnits {
			unitsAdded := FeeUnits(fee, pamm.TotalEquity, pamm.TotalUnits)
			manager.Units = manager.Units.Add(unitsAdded)
			pamm.TotalUnits = pamm.TotalUnits.Add(unitsAdded)
			feeTrx.UnitsAdded = unitsAdded
			if err := tx.Save(manager).Error; err != nil {
				return err
			}
		} else {
			pamm.TotalEquity = pamm.TotalEquity.Sub(fee)
		}
		feeTrx.UnitPriceAtTransaction = UnitPrice(pamm.TotalEquity, pamm.TotalUnits)

		now := time.Now().UTC()
		feeTrx.CompletedAt = &now
		if err := tx.Create(&feeTrx).Error; err != nil {
			return err
		}
		if err := tx.Save(&pamm).Error; err != nil {
			return err
		}
		return s.writeSnapshot(tx, &pamm)
	})
	return fee, err
}

// RescaledUnits preserves an investor's dollar balance when manager capital
// is injected without issuing units at the current price.
func RescaledUnits(investorUnits, oldPrice, newPrice decimal.Decimal) decimal.Decimal {
	if !newPrice.IsPositive() {
		return investorUnits
	}
	return investorUnits.Mul(oldPrice).DivRound(newPrice, 8)
}

// RescaleManagerDeposit is the operator path for a capital injection that
// leaves every investor's dollar balance unchanged: the manager keeps their
// unit count, the unit price absorbs the injection, and investor unit counts
// are rescaled to hold their value.
func (s *PAMMService) RescaleManagerDeposit(ctx context.Context, pammID uint, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("injection amount must be positive")
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var pamm models.PAMMAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&pamm, pammID).Error; err != nil {
			return err
		}
		manager, err := s.findOrCreateParticipant(tx, pamm.ID, pamm.ManagerID, models.PAMMRoleManager)
		if err != nil {
			return err
		}
		if !manager.Units.IsPositive() {
			return fmt.Errorf("pamm %d has no manager units to rescale against", pammID)
		}

		if err := s.creditUpstream(ctx, &pamm, amount, models.PAMMTrxManagerDeposit); err != nil {
			return err
		}

		oldPrice := UnitPrice(pamm.TotalEquity, pamm.TotalUnits)
		newManagerValue := manager.Units.Mul(oldPrice).Add(amount)
		newPrice := newManagerValue.DivRound(manager.Units, 8)

		var investors []models.PAMMParticipant
		if err := tx.Where("pamm_id = ? AND role = ?", pamm.ID, models.PAMMRoleInvestor).
			Find(&investors).Error; err != nil {
			return err
		}

		totalUnits := manager.Units
		for i := range investors {
			investors[i].Units = RescaledUnits(investors[i].Units, oldPrice, newPrice)
			totalUnits = totalUnits.Add(investors[i].Units)
			if err := tx.Save(&investors[i]).Error; err != nil {
				return err
			}
		}

		manager.TotalDeposited = manager.TotalDeposited.Add(amount)
		if err := tx.Save(manager).Error; err != nil {
			return err
		}

		pamm.TotalEquity = pamm.TotalEquity.Add(amount)
		pamm.TotalUnits = totalUnits

		now := time.Now().UTC()
		trx := models.PAMMTransaction{
			PAMMID:                 pamm.ID,
			ParticipantID:          manager.ID,
			Kind:                   models.PAMMTrxManagerDeposit,
			Amount:                 amount,
			UnitPriceAtTransaction: newPrice,
			Status:                 models.PAMMTrxStatusCompleted,
			CompletedAt:            &now,
		}
		if err := tx.Create(&trx).Error; err != nil {
			return err
		}
		if err := tx.Save(&pamm).Error; err != nil {
			return err
		}
		return s.writeSnapshot(tx, &pamm)
	})
}

func (s *PAMMService) writeSnapshot(tx *gorm.DB, pamm *models.PAMMAccount) error {
	var participants []models.PAMMParticipant
	if err := tx.Where("pamm_id = ?", pamm.ID).Find(&participants).Error; err != nil {
		return err
	}

	managerUnits := decimal.Zero
	investorUnits := decimal.Zero
	investorCount := 0
	for _, p := range participants {
		if p.Role == models.PAMMRoleManager {
			managerUnits = managerUnits.Add(p.Units)
		} else {
			investorUnits = investorUnits.Add(p.Units)
			if p.Units.IsPositive() {
				investorCount++
			}
		}
	}

	snapshot := models.PAMMEquitySnapshot{
		PAMMID:        pamm.ID,
		Equity:        pamm.TotalEquity,
		TotalUnits:    pamm.TotalUnits,
		UnitPrice:     UnitPrice(pamm.TotalEquity, pamm.TotalUnits),
		ManagerUnits:  managerUnits,
		InvestorUnits: investorUnits,
		InvestorCount: investorCount,
	}
	return tx.Create(&snapshot).Error
}

// SnapshotAll refreshes equity from the manager for every active PAMM and
// records a snapshot. Used by the cron schedule.
func (s *PAMMService) SnapshotAll(ctx context.Context) {
	var pamms []models.PAMMAccount
	if err := s.DB.Where("status = ?", models.PAMMStatusActive).Find(&pamms).Error; err != nil {
		log.Printf("snapshot sweep: listing pamm accounts failed: %v", err)
		return
	}
	for _, pamm := range pamms {
		if err := s.RefreshEquity(ctx, pamm.ID); err != nil {
			log.Printf("snapshot sweep: refresh failed for pamm %d: %v", pamm.ID, err)
		}
	}
}

// StartScheduler refreshes equity snapshots every 10 minutes.
func (s *PAMMService) StartScheduler() {
	c := cron.New()
	_, err := c.AddFunc("*/10 * * * *", func() {
		log.Println("Running scheduled PAMM equity snapshot task...")
		s.SnapshotAll(context.Background())
	})
	if err != nil {
		log.Printf("Error scheduling PAMM snapshots: %v", err)
		return
	}
	c.Start()
	log.Println("PAMMService scheduler started (every 10 minutes)")
}
