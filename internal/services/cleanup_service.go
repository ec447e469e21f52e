package services

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"backoffice-service/internal/models"
)

const archiveAfter = 90 * 24 * time.Hour

// CleanupService sweeps settled transactions older than the retention window
// into the archive table.
type CleanupService struct {
	DB *gorm.DB
}

func NewCleanupService(db *gorm.DB) *CleanupService {
	return &CleanupService{DB: db}
}

func (s *CleanupService) ArchiveOldTransactions() error {
	cutoff := time.Now().Add(-archiveAfter)

	var stale []models.Transaction
	err := s.DB.Where("status IN ? AND created_at < ?",
		[]string{models.TrxStatusApproved, models.TrxStatusRejected}, cutoff).
		Limit(1000).
		Find(&stale).Error
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		for _, trx := range stale {
			archived := models.ArchivedTransaction{
				ID:               trx.ID,
				UserID:           trx.UserID,
				TradingAccountID: trx.TradingAccountID,
				FromAccount:      trx.FromAccount,
				ToAccount:        trx.ToAccount,
				TransactionNo:    trx.TransactionNo,
				Kind:             trx.Kind,
				Amount:           trx.Amount,
				Status:           trx.Status,
				Description:      trx.Description,
				RejectReason:     trx.RejectReason,
				ApprovedByID:     trx.ApprovedByID,
				ApprovedAt:       trx.ApprovedAt,
				CreatedAt:        trx.CreatedAt,
			}
			if err := tx.Create(&archived).Error; err != nil {
				return err
			}
			if err := tx.Delete(&trx).Error; err != nil {
				return err
			}
		}
		log.Printf("archived %d settled transactions", len(stale))
		return nil
	})
}

// StartScheduler runs the archive sweep daily at midnight.
func (s *CleanupService) StartScheduler() {
	c := cron.New()
	_, err := c.AddFunc("0 0 * * *", func() {
		log.Println("Running scheduled transaction archive task...")
		if err := s.ArchiveOldTransactions(); err != nil {
			log.Printf("Error in ArchiveOldTransactions: %v", err)
		}
	})
	if err != nil {
		log.Printf("Error scheduling ArchiveOldTransactions: %v", err)
		return
	}
	c.Start()
	log.Println("CleanupService scheduler started (daily at midnight)")
}
