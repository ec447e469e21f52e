package worker

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"backoffice-service/internal/consumers"
)

// Task Types
const (
	TypeIngestCycle         = "ingest-cycle"
	TypeReconcileBalances   = "reconcile-ib-balances"
	TypePAMMApproval        = "pamm-approval"
	TypeArchiveTransactions = "archive-transactions"
)

// Task Creators

func NewIngestCycleTask(payload consumers.IngestCycleDTO) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeIngestCycle, data), nil
}

func NewReconcileTask(payload consumers.ReconcileDTO) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReconcileBalances, data), nil
}

func NewPAMMApprovalTask(payload consumers.PAMMApprovalDTO) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePAMMApproval, data), nil
}

func NewArchiveTask() (*asynq.Task, error) {
	data, err := json.Marshal(consumers.ArchiveDTO{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeArchiveTransactions, data), nil
}
