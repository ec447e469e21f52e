package services

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"backoffice-service/internal/config"
	"backoffice-service/internal/models"
	"backoffice-service/internal/mt5"
)

type CycleStats struct {
	AccountsPolled int           `json:"accounts_polled"`
	AccountsCooled int           `json:"accounts_cooled"`
	DealsSeen      int           `json:"deals_seen"`
	RowsWritten    int           `json:"rows_written"`
	Duplicates     int           `json:"duplicates"`
	Skipped        int           `json:"skipped"`
	Errors         int           `json:"errors"`
	Duration       time.Duration `json:"duration"`
}

// IngestService drives the ingestion loop: select accounts, respect
// cooldowns, fetch closed deals, upsert commissions. Per-deal errors never
// abort a cycle; per-cycle errors never terminate the loop.
type IngestService struct {
	DB         *gorm.DB
	Gateway    mt5.Gateway
	Selector   *SelectorService
	Scheduler  *CooldownScheduler
	Commission *CommissionService
	Cfg        config.Config

	groupScales map[string]int64
	scalesAt    time.Time
}

func NewIngestService(db *gorm.DB, gateway mt5.Gateway, selector *SelectorService, scheduler *CooldownScheduler, commission *CommissionService, cfg config.Config) *IngestService {
	return &IngestService{
		DB:         db,
		Gateway:    gateway,
		Selector:   selector,
		Scheduler:  scheduler,
		Commission: commission,
		Cfg:        cfg,
	}
}

// volumeScale resolves the per-group raw-volume divisor, cached for a minute.
func (s *IngestService) volumeScale(groupName string) int64 {
	if s.groupScales == nil || time.Since(s.scalesAt) > time.Minute {
		var groups []models.TradeGroup
		if err := s.DB.Find(&groups).Error; err != nil {
			log.Printf("ingest: trade group load failed: %v", err)
		} else {
			scales := make(map[string]int64, len(groups))
			for _, g := range groups {
				scales[g.Name] = g.VolumeScale
			}
			s.groupScales = scales
			s.scalesAt = time.Now()
		}
	}
	if scale, ok := s.groupScales[groupName]; ok && scale > 0 {
		return scale
	}
	return 10000
}

// RunOnce executes a single ingestion cycle. The stop signal is checked
// between accounts and between deals; an in-flight deal always finishes.
func (s *IngestService) RunOnce(ctx context.Context) CycleStats {
	start := time.Now()
	stats := CycleStats{}

	accounts, err := s.Selector.Select()
	if err != nil {
		log.Printf("ingest: account selection failed: %v", err)
		stats.Errors++
		stats.Duration = time.Since(start)
		return stats
	}

	for i := range accounts {
		if ctx.Err() != nil {
			break
		}
		account := &accounts[i]

		if !s.Scheduler.ShouldCheck(account.AccountID) {
			stats.AccountsCooled++
			continue
		}
		s.Scheduler.MarkChecked(account.AccountID)
		stats.AccountsPolled++

		since := account.CreatedAt
		deals, err := s.Gateway.ListClosedDeals(ctx, account.AccountID, &since)
		if err != nil {
			log.Printf("ingest: deal fetch failed for account %s: %v", account.AccountID, err)
			stats.Errors++
			continue
		}

		scale := s.volumeScale(account.GroupName)
		for _, deal := range deals {
			if ctx.Err() != nil {
				break
			}
			stats.DealsSeen++

			nd := NormalizeDeal(deal, scale, s.Cfg.DefaultCommissionPerLot)
			nd.TradingAccount = account
			nd.ClientUser = account.User

			result, err := s.Commission.ProcessClosedDeal(nd)
			if err != nil {
				log.Printf("ingest: deal %s on account %s failed: %v", deal.PositionID, account.AccountID, err)
				stats.Errors++
				continue
			}
			switch result.Status {
			case StatusWritten:
				stats.RowsWritten += result.Written
			case SkippedDuplicate:
				stats.Duplicates++
			default:
				stats.Skipped++
			}
		}
	}

	stats.Duration = time.Since(start)
	log.Printf("ingest cycle: polled=%d cooled=%d deals=%d written=%d dup=%d skipped=%d errors=%d in %s",
		stats.AccountsPolled, stats.AccountsCooled, stats.DealsSeen, stats.RowsWritten,
		stats.Duplicates, stats.Skipped, stats.Errors, stats.Duration)
	return stats
}

// RunLoop drives cycles until the context is cancelled.
func (s *IngestService) RunLoop(ctx context.Context) {
	log.Printf("ingestion loop starting (interval %s, cooldown %s)", s.Cfg.CycleInterval, s.Cfg.Cooldown)
	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			log.Println("ingestion loop stopped")
			return
		case <-time.After(s.Cfg.CycleInterval):
		}
	}
}
