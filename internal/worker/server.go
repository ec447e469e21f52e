package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"backoffice-service/internal/consumers"
)

type Worker struct {
	Processor *consumers.SettlementProcessor
}

func NewWorker(processor *consumers.SettlementProcessor) *Worker {
	return &Worker{
		Processor: processor,
	}
}

func (w *Worker) HandleIngestCycle(ctx context.Context, t *asynq.Task) error {
	var p consumers.IngestCycleDTO
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	w.Processor.ProcessIngestCycle(ctx, p)
	return nil
}

func (w *Worker) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	var p consumers.ReconcileDTO
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	w.Processor.ProcessReconcile(ctx, p)
	return nil
}

func (w *Worker) HandlePAMMApproval(ctx context.Context, t *asynq.Task) error {
	var p consumers.PAMMApprovalDTO
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	return w.Processor.ProcessPAMMApproval(ctx, p)
}

func (w *Worker) HandleArchive(ctx context.Context, t *asynq.Task) error {
	var p consumers.ArchiveDTO
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	w.Processor.ProcessArchive(ctx, p)
	return nil
}

func StartWorker(redisOpt asynq.RedisClientOpt, processor *consumers.SettlementProcessor) {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	worker := NewWorker(processor)
	mux := asynq.NewServeMux()

	mux.HandleFunc(TypeIngestCycle, worker.HandleIngestCycle)
	mux.HandleFunc(TypeReconcileBalances, worker.HandleReconcile)
	mux.HandleFunc(TypePAMMApproval, worker.HandlePAMMApproval)
	mux.HandleFunc(TypeArchiveTransactions, worker.HandleArchive)

	if err := srv.Run(mux); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}
