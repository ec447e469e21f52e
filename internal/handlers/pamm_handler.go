package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"backoffice-service/internal/models"
	"backoffice-service/internal/services"
	"backoffice-service/pkg/common"
)

type PAMMHandler struct {
	PAMM *services.PAMMService
}

func NewPAMMHandler(pamm *services.PAMMService) *PAMMHandler {
	return &PAMMHandler{PAMM: pamm}
}

func (h *PAMMHandler) GetAccount(c *gin.Context) {
	pammID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pamm id"})
		return
	}

	var pamm models.PAMMAccount
	if err := h.PAMM.DB.First(&pamm, uint(pammID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "PAMM account not found"})
		return
	}
	var participants []models.PAMMParticipant
	if err := h.PAMM.DB.Where("pamm_id = ?", pamm.ID).Find(&participants).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var latest models.PAMMEquitySnapshot
	_ = h.PAMM.DB.Where("pamm_id = ?", pamm.ID).Order("taken_at DESC").First(&latest).Error

	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{
		"account":       pamm,
		"unit_price":    services.UnitPrice(pamm.TotalEquity, pamm.TotalUnits),
		"participants":  participants,
		"last_snapshot": latest,
	}, "PAMM account"))
}

type PAMMTransactionRequest struct {
	PAMMID       uint   `json:"pamm_id" binding:"required"`
	UserID       uint   `json:"user_id" binding:"required"`
	Kind         string `json:"kind" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	PaymentProof string `json:"payment_proof"`
}

func (h *PAMMHandler) RequestTransaction(c *gin.Context) {
	var req PAMMTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
		return
	}

	var proofRef *string
	if req.PaymentProof != "" {
		ref := uuid.NewString()
		proofRef = &ref
	}

	trx, err := h.PAMM.RequestTransaction(req.PAMMID, req.UserID, req.Kind, amount, proofRef)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, common.NewSuccessResponse(trx, "PAMM transaction requested"))
}

func (h *PAMMHandler) Approve(c *gin.Context) {
	trxID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transaction id"})
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.PAMM.Approve(c.Request.Context(), uint(trxID), req.ActorID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(nil, "PAMM transaction approved"))
}

func (h *PAMMHandler) Reject(c *gin.Context) {
	trxID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transaction id"})
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.PAMM.Reject(uint(trxID), req.ActorID, req.Reason); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(nil, "PAMM transaction rejected"))
}

type UpdateEquityRequest struct {
	Equity string `json:"equity" binding:"required"`
}

func (h *PAMMHandler) UpdateEquity(c *gin.Context) {
	pammID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pamm id"})
		return
	}
	var req UpdateEquityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	equity, err := decimal.NewFromString(req.Equity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid equity"})
		return
	}

	if err := h.PAMM.UpdateEquity(uint(pammID), equity); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(nil, "Equity updated"))
}

func (h *PAMMHandler) CrystalliseFee(c *gin.Context) {
	pammID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pamm id"})
		return
	}

	fee, err := h.PAMM.CalculateManagerFee(c.Request.Context(), uint(pammID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{"fee": fee}, "Manager fee crystallised"))
}

type RescaleRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (h *PAMMHandler) RescaleManagerDeposit(c *gin.Context) {
	pammID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pamm id"})
		return
	}
	var req RescaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
		return
	}

	if err := h.PAMM.RescaleManagerDeposit(c.Request.Context(), uint(pammID), amount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(nil, "Manager deposit applied with re-scaling"))
}
