package consumers

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"backoffice-service/internal/services"
)

// DTOs carried in asynq task payloads.

type IngestCycleDTO struct {
	CycleID string `json:"cycle_id"`
}

type ReconcileDTO struct {
	Threshold decimal.Decimal `json:"threshold"`
}

type PAMMApprovalDTO struct {
	TransactionID uint `json:"transaction_id"`
	ActorID       uint `json:"actor_id"`
}

type ArchiveDTO struct{}

// SettlementProcessor executes queued back-office work.
type SettlementProcessor struct {
	Ingest       *services.IngestService
	Withdrawable *services.WithdrawableService
	PAMM         *services.PAMMService
	Cleanup      *services.CleanupService
}

func NewSettlementProcessor(ingest *services.IngestService, withdrawable *services.WithdrawableService, pamm *services.PAMMService, cleanup *services.CleanupService) *SettlementProcessor {
	return &SettlementProcessor{
		Ingest:       ingest,
		Withdrawable: withdrawable,
		PAMM:         pamm,
		Cleanup:      cleanup,
	}
}

func (p *SettlementProcessor) ProcessIngestCycle(ctx context.Context, data IngestCycleDTO) {
	log.Printf("Processing queued ingest cycle %s", data.CycleID)
	p.Ingest.RunOnce(ctx)
}

func (p *SettlementProcessor) ProcessReconcile(ctx context.Context, data ReconcileDTO) {
	discrepancies, err := p.Withdrawable.Reconcile(ctx, data.Threshold)
	if err != nil {
		log.Printf("Queued reconciliation failed: %v", err)
		return
	}
	log.Printf("Queued reconciliation found %d discrepancies", len(discrepancies))
	for _, d := range discrepancies {
		log.Printf("reconcile: user %d account %s off by %s", d.UserID, d.AccountID, d.Difference)
	}
}

func (p *SettlementProcessor) ProcessPAMMApproval(ctx context.Context, data PAMMApprovalDTO) error {
	if err := p.PAMM.Approve(ctx, data.TransactionID, data.ActorID); err != nil {
		log.Printf("Queued PAMM approval %d failed: %v", data.TransactionID, err)
		return err
	}
	return nil
}

func (p *SettlementProcessor) ProcessArchive(ctx context.Context, _ ArchiveDTO) {
	if err := p.Cleanup.ArchiveOldTransactions(); err != nil {
		log.Printf("Queued archive sweep failed: %v", err)
	}
}
