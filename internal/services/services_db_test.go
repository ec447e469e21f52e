package services

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"backoffice-service/internal/models"
)

// NOTE: These tests require a running MySQL instance; set DATABASE_URL to a
// DSN to enable them. Without it every test in this file skips.

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn != "" {
		var err error
		testDB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			log.Printf("Failed to connect to database: %v", err)
			testDB = nil
		}
	} else {
		log.Println("Skipping DB tests: DATABASE_URL not set")
	}

	if testDB != nil {
		testDB.AutoMigrate(
			&models.User{},
			&models.TradeGroup{},
			&models.TradingAccount{},
			&models.CommissionProfile{},
			&models.CommissionProfileLevel{},
			&models.CommissionTransaction{},
			&models.Transaction{},
			&models.PAMMAccount{},
			&models.PAMMParticipant{},
			&models.PAMMTransaction{},
			&models.PAMMEquitySnapshot{},
		)
	}

	os.Exit(m.Run())
}

func cleanupDB() {
	if testDB == nil {
		return
	}
	for _, table := range []string{
		"commission_transactions", "commission_profile_levels", "commission_profiles",
		"pamm_equity_snapshots", "pamm_transactions", "pamm_participants", "pamm_accounts",
		"transactions", "trading_accounts", "trade_groups", "users",
	} {
		testDB.Exec("DELETE FROM " + table)
	}
}

func seedChain(t *testing.T) (client *models.User, ib1 *models.User, account *models.TradingAccount) {
	t.Helper()

	ib1 = &models.User{UserID: 9001, Email: "ib1@example.com", IBStatus: true}
	if err := testDB.Create(ib1).Error; err != nil {
		t.Fatalf("seed ib1: %v", err)
	}
	client = &models.User{UserID: 9002, Email: "client@example.com", ParentIBID: &ib1.ID}
	if err := testDB.Create(client).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}
	account = &models.TradingAccount{AccountID: "800100", UserID: client.ID, GroupName: "real\\standard", IsEnabled: true}
	if err := testDB.Create(account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}

	profile := models.CommissionProfile{IBUserID: ib1.ID, Version: 1, IsActive: true}
	if err := testDB.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	level := models.CommissionProfileLevel{ProfileID: profile.ID, Level: 1, Kind: models.LevelKindFlatPerLot, Rate: dec("3.5")}
	if err := testDB.Create(&level).Error; err != nil {
		t.Fatalf("seed level: %v", err)
	}
	return client, ib1, account
}

func TestProcessClosedDealIdempotent(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanupDB()

	client, ib1, account := seedChain(t)
	svc := NewCommissionService(testDB)

	nd := NormalizedDeal{
		PositionID:      "P1",
		Symbol:          "EURUSD",
		PositionType:    "buy",
		Direction:       "in",
		LotSize:         dec("2"),
		TotalCommission: dec("7.00"),
		TradingAccount:  account,
		ClientUser:      client,
	}

	first, err := svc.ProcessClosedDeal(nd)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if first.Status != StatusWritten || first.Written != 1 {
		t.Errorf("expected written(1), got %v", first)
	}

	for i := 0; i < 3; i++ {
		res, err := svc.ProcessClosedDeal(nd)
		if err != nil {
			t.Fatalf("duplicate ingest %d: %v", i, err)
		}
		if res.Status != SkippedDuplicate {
			t.Errorf("expected skipped_duplicate, got %v", res)
		}
	}

	var count int64
	testDB.Model(&models.CommissionTransaction{}).Where("position_id = ?", "P1").Count(&count)
	if count != 1 {
		t.Errorf("expected 1 ledger row, got %d", count)
	}

	var row models.CommissionTransaction
	testDB.Where("position_id = ?", "P1").First(&row)
	if !row.CommissionToIB.Equal(dec("7.00")) {
		t.Errorf("expected commission_to_ib 7.00, got %s", row.CommissionToIB)
	}
	if row.IBLevel != 1 || row.IBUserID != ib1.ID {
		t.Errorf("unexpected ib attribution: level=%d user=%d", row.IBLevel, row.IBUserID)
	}

	// Earnings incremented exactly once despite re-observation.
	var ib models.User
	testDB.First(&ib, ib1.ID)
	if !ib.TotalEarnings.Equal(dec("7.00")) {
		t.Errorf("expected total earnings 7.00, got %s", ib.TotalEarnings)
	}
}

func TestProcessClosedDealTwoLevelChain(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanupDB()

	ib2 := models.User{UserID: 9003, Email: "ib2@example.com", IBStatus: true}
	if err := testDB.Create(&ib2).Error; err != nil {
		t.Fatalf("seed ib2: %v", err)
	}
	ib1 := models.User{UserID: 9004, Email: "chain-ib1@example.com", IBStatus: true, ParentIBID: &ib2.ID}
	if err := testDB.Create(&ib1).Error; err != nil {
		t.Fatalf("seed ib1: %v", err)
	}
	client := models.User{UserID: 9005, Email: "chain-client@example.com", ParentIBID: &ib1.ID}
	if err := testDB.Create(&client).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}
	account := models.TradingAccount{AccountID: "800400", UserID: client.ID, GroupName: "real\\standard", IsEnabled: true}
	if err := testDB.Create(&account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}

	// Percentage profile on the level-1 IB governs both levels.
	profile := models.CommissionProfile{IBUserID: ib1.ID, Version: 1, IsActive: true}
	if err := testDB.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	levels := []models.CommissionProfileLevel{
		{ProfileID: profile.ID, Level: 1, Kind: models.LevelKindPercentage, Pct: dec("50")},
		{ProfileID: profile.ID, Level: 2, Kind: models.LevelKindPercentage, Pct: dec("30")},
	}
	if err := testDB.Create(&levels).Error; err != nil {
		t.Fatalf("seed levels: %v", err)
	}

	svc := NewCommissionService(testDB)
	res, err := svc.ProcessClosedDeal(NormalizedDeal{
		PositionID:      "P10",
		LotSize:         dec("1"),
		TotalCommission: dec("10.00"),
		TradingAccount:  &account,
		ClientUser:      &client,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Status != StatusWritten || res.Written != 2 {
		t.Fatalf("expected written(2), got %v", res)
	}

	var rows []models.CommissionTransaction
	testDB.Where("position_id = ?", "P10").Order("ib_level ASC").Find(&rows)
	if len(rows) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(rows))
	}
	if rows[0].IBLevel != 1 || rows[0].IBUserID != ib1.ID || !rows[0].CommissionToIB.Equal(dec("5.00")) {
		t.Errorf("bad level-1 row: level=%d user=%d share=%s", rows[0].IBLevel, rows[0].IBUserID, rows[0].CommissionToIB)
	}
	if rows[1].IBLevel != 2 || rows[1].IBUserID != ib2.ID || !rows[1].CommissionToIB.Equal(dec("3.00")) {
		t.Errorf("bad level-2 row: level=%d user=%d share=%s", rows[1].IBLevel, rows[1].IBUserID, rows[1].CommissionToIB)
	}

	// Both IBs' running totals move in the same commit.
	var got models.User
	testDB.First(&got, ib1.ID)
	if !got.TotalEarnings.Equal(dec("5.00")) {
		t.Errorf("expected ib1 earnings 5.00, got %s", got.TotalEarnings)
	}
	testDB.First(&got, ib2.ID)
	if !got.TotalEarnings.Equal(dec("3.00")) {
		t.Errorf("expected ib2 earnings 3.00, got %s", got.TotalEarnings)
	}
}

func TestWithdrawableBreakdownAndApproval(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanupDB()

	client, ib1, account := seedChain(t)
	commission := NewCommissionService(testDB)

	for _, pos := range []string{"P1", "P2", "P3"} {
		_, err := commission.ProcessClosedDeal(NormalizedDeal{
			PositionID:      pos,
			LotSize:         dec("1"),
			TotalCommission: dec("3.50"),
			TradingAccount:  account,
			ClientUser:      client,
		})
		if err != nil {
			t.Fatalf("ingest %s: %v", pos, err)
		}
	}

	svc := NewWithdrawableService(testDB, nil)
	breakdown, err := svc.Breakdown(ib1.ID)
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if !breakdown.Withdrawable.Equal(dec("10.50")) {
		t.Errorf("expected withdrawable 10.50, got %s", breakdown.Withdrawable)
	}

	trx, err := svc.RequestWithdrawal(ib1.ID, dec("4.00"))
	if err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}
	if err := svc.ApproveWithdrawal(trx.ID, ib1.ID); err != nil {
		t.Fatalf("approve withdrawal: %v", err)
	}

	breakdown, err = svc.Breakdown(ib1.ID)
	if err != nil {
		t.Fatalf("breakdown after approval: %v", err)
	}
	if !breakdown.Withdrawable.Equal(dec("6.50")) {
		t.Errorf("expected withdrawable 6.50, got %s", breakdown.Withdrawable)
	}
	if breakdown.Withdrawable.IsNegative() {
		t.Error("withdrawable must never be negative after approval")
	}

	// Over-withdrawal is refused at request time.
	if _, err := svc.RequestWithdrawal(ib1.ID, dec("100.00")); err == nil {
		t.Error("expected over-withdrawal request to fail")
	}
}

func TestApprovalRecheckBlocksSecondWithdrawal(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanupDB()

	client, ib1, account := seedChain(t)
	commission := NewCommissionService(testDB)
	if _, err := commission.ProcessClosedDeal(NormalizedDeal{
		PositionID:      "P1",
		LotSize:         dec("3"),
		TotalCommission: dec("10.50"),
		TradingAccount:  account,
		ClientUser:      client,
	}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	svc := NewWithdrawableService(testDB, nil)

	// Both requests pass the request-time check: pending withdrawals do not
	// reduce the withdrawable figure.
	first, err := svc.RequestWithdrawal(ib1.ID, dec("6.00"))
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := svc.RequestWithdrawal(ib1.ID, dec("6.00"))
	if err != nil {
		t.Fatalf("second request: %v", err)
	}

	if err := svc.ApproveWithdrawal(first.ID, ib1.ID); err != nil {
		t.Fatalf("first approval: %v", err)
	}

	// Only 4.50 remains; the locked re-check must refuse the second approval.
	err = svc.ApproveWithdrawal(second.ID, ib1.ID)
	if err == nil {
		t.Fatal("expected second approval to fail")
	}
	if !errors.Is(err, ErrInvariant) {
		t.Errorf("expected invariant error, got %v", err)
	}

	breakdown, err := svc.Breakdown(ib1.ID)
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if breakdown.Withdrawable.IsNegative() {
		t.Errorf("withdrawable went negative: %s", breakdown.Withdrawable)
	}
	if !breakdown.Withdrawable.Equal(dec("4.50")) {
		t.Errorf("expected withdrawable 4.50, got %s", breakdown.Withdrawable)
	}

	var got models.Transaction
	testDB.First(&got, second.ID)
	if got.Status != models.TrxStatusPending {
		t.Errorf("refused withdrawal should stay pending, got %s", got.Status)
	}
}

func TestPAMMDepositApprovalAtDriftedPrice(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanupDB()

	manager := models.User{UserID: 9100, Email: "manager@example.com"}
	if err := testDB.Create(&manager).Error; err != nil {
		t.Fatalf("seed manager: %v", err)
	}
	investor := models.User{UserID: 9101, Email: "investor@example.com"}
	if err := testDB.Create(&investor).Error; err != nil {
		t.Fatalf("seed investor: %v", err)
	}

	pamm := models.PAMMAccount{
		ManagerID:            manager.ID,
		ProfitSharePct:       dec("20"),
		TotalUnits:           dec("1000"),
		TotalEquity:          dec("1200"),
		HighWaterMark:        dec("1200"),
		Status:               models.PAMMStatusActive,
		IsAcceptingInvestors: true,
	}
	if err := testDB.Create(&pamm).Error; err != nil {
		t.Fatalf("seed pamm: %v", err)
	}
	mgr := models.PAMMParticipant{PAMMID: pamm.ID, UserID: manager.ID, Role: models.PAMMRoleManager, Units: dec("1000")}
	if err := testDB.Create(&mgr).Error; err != nil {
		t.Fatalf("seed manager participant: %v", err)
	}

	svc := NewPAMMService(testDB, nil, "")
	trx, err := svc.RequestTransaction(pamm.ID, investor.ID, models.PAMMTrxInvestorDeposit, dec("600"), nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// Equity drifts between request and approval.
	if err := svc.UpdateEquity(pamm.ID, dec("1500")); err != nil {
		t.Fatalf("update equity: %v", err)
	}

	if err := svc.Approve(context.Background(), trx.ID, manager.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	var got models.PAMMAccount
	testDB.First(&got, pamm.ID)
	if !got.TotalUnits.Equal(dec("1400")) {
		t.Errorf("expected total units 1400, got %s", got.TotalUnits)
	}
	if !got.TotalEquity.Equal(dec("2100")) {
		t.Errorf("expected equity 2100, got %s", got.TotalEquity)
	}

	// Units conservation across participants.
	var participants []models.PAMMParticipant
	testDB.Where("pamm_id = ?", pamm.ID).Find(&participants)
	sum := decimal.Zero
	for _, p := range participants {
		sum = sum.Add(p.Units)
	}
	if sum.Sub(got.TotalUnits).Abs().GreaterThan(dec("0.00000001")) {
		t.Errorf("units not conserved: sum=%s total=%s", sum, got.TotalUnits)
	}
}

func TestPAMMWithdrawalRejectedWhenUnitsShort(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanupDB()

	manager := models.User{UserID: 9200, Email: "manager2@example.com"}
	if err := testDB.Create(&manager).Error; err != nil {
		t.Fatalf("seed manager: %v", err)
	}
	pamm := models.PAMMAccount{
		ManagerID:   manager.ID,
		TotalUnits:  dec("100"),
		TotalEquity: dec("100"),
		Status:      models.PAMMStatusActive,
	}
	if err := testDB.Create(&pamm).Error; err != nil {
		t.Fatalf("seed pamm: %v", err)
	}
	mgr := models.PAMMParticipant{PAMMID: pamm.ID, UserID: manager.ID, Role: models.PAMMRoleManager, Units: dec("100")}
	if err := testDB.Create(&mgr).Error; err != nil {
		t.Fatalf("seed participant: %v", err)
	}

	svc := NewPAMMService(testDB, nil, "")
	trx, err := svc.RequestTransaction(pamm.ID, manager.ID, models.PAMMTrxManagerWithdraw, dec("90"), nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// Equity collapses before approval; the holding is no longer worth 90.
	if err := svc.UpdateEquity(pamm.ID, dec("50")); err != nil {
		t.Fatalf("update equity: %v", err)
	}

	if err := svc.Approve(context.Background(), trx.ID, manager.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	var got models.PAMMTransaction
	testDB.First(&got, trx.ID)
	if got.Status != models.PAMMTrxStatusRejected {
		t.Errorf("expected rejected, got %s", got.Status)
	}
	if got.RejectReason != "insufficient units at approval time" {
		t.Errorf("unexpected reject reason %q", got.RejectReason)
	}
}

func TestManagerFeeCrystallisation(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanupDB()

	manager := models.User{UserID: 9300, Email: "manager3@example.com"}
	if err := testDB.Create(&manager).Error; err != nil {
		t.Fatalf("seed manager: %v", err)
	}
	pamm := models.PAMMAccount{
		ManagerID:      manager.ID,
		ProfitSharePct: dec("20"),
		TotalUnits:     dec("1000"),
		TotalEquity:    dec("1300"),
		HighWaterMark:  dec("1000"),
		Status:         models.PAMMStatusActive,
	}
	if err := testDB.Create(&pamm).Error; err != nil {
		t.Fatalf("seed pamm: %v", err)
	}

	svc := NewPAMMService(testDB, nil, "")
	fee, err := svc.CalculateManagerFee(context.Background(), pamm.ID)
	if err != nil {
		t.Fatalf("crystallise: %v", err)
	}
	if !fee.Equal(dec("60")) {
		t.Errorf("expected fee 60, got %s", fee)
	}

	var got models.PAMMAccount
	testDB.First(&got, pamm.ID)
	if !got.HighWaterMark.Equal(dec("1300")) {
		t.Errorf("expected HWM 1300, got %s", got.HighWaterMark)
	}
	if !got.TotalEquity.Equal(dec("1240")) {
		t.Errorf("expected equity 1240, got %s", got.TotalEquity)
	}

	// A second crystallisation at the same equity is a no-op and the mark
	// never moves back down.
	fee, err = svc.CalculateManagerFee(context.Background(), pamm.ID)
	if err != nil {
		t.Fatalf("second crystallise: %v", err)
	}
	if !fee.IsZero() {
		t.Errorf("expected zero fee, got %s", fee)
	}
	testDB.First(&got, pamm.ID)
	if !got.HighWaterMark.Equal(dec("1300")) {
		t.Errorf("HWM regressed to %s", got.HighWaterMark)
	}
}

func TestSelectorExcludesDemoGroups(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanupDB()

	client, _, _ := seedChain(t)

	if err := testDB.Create(&models.TradeGroup{Name: "demo\\standard", Type: models.GroupTypeDemo}).Error; err != nil {
		t.Fatalf("seed demo group: %v", err)
	}
	demoAcc := models.TradingAccount{AccountID: "800200", UserID: client.ID, GroupName: "demo\\standard", IsEnabled: true}
	if err := testDB.Create(&demoAcc).Error; err != nil {
		t.Fatalf("seed demo account: %v", err)
	}
	disabled := models.TradingAccount{AccountID: "800300", UserID: client.ID, GroupName: "real\\standard", IsEnabled: false}
	if err := testDB.Create(&disabled).Error; err != nil {
		t.Fatalf("seed disabled account: %v", err)
	}

	svc := NewSelectorService(testDB, false)
	accounts, err := svc.Select()
	if err != nil {
		t.Fatalf("select: %v", err)
	}

	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
	if accounts[0].AccountID != "800100" {
		t.Errorf("expected live account 800100, got %s", accounts[0].AccountID)
	}
	if accounts[0].User == nil || accounts[0].User.ParentIB == nil {
		t.Error("expected owner and parent IB preloaded")
	}
}
