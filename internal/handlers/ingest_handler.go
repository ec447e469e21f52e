package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"backoffice-service/internal/consumers"
	"backoffice-service/internal/services"
	"backoffice-service/internal/worker"
	"backoffice-service/pkg/common"
)

type IngestHandler struct {
	Ingest *services.IngestService
	Queue  *asynq.Client
}

func NewIngestHandler(ingest *services.IngestService, queue *asynq.Client) *IngestHandler {
	return &IngestHandler{Ingest: ingest, Queue: queue}
}

// RunNow triggers one ingestion cycle. With ?async=true the cycle is queued
// instead of run inline.
func (h *IngestHandler) RunNow(c *gin.Context) {
	if c.Query("async") == "true" {
		task, err := worker.NewIngestCycleTask(consumers.IngestCycleDTO{CycleID: uuid.NewString()})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if _, err := h.Queue.Enqueue(task); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, common.NewSuccessResponse(nil, "Ingest cycle queued"))
		return
	}

	stats := h.Ingest.RunOnce(c.Request.Context())
	c.JSON(http.StatusOK, common.NewSuccessResponse(stats, "Ingest cycle completed"))
}
