package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"backoffice-service/internal/models"
	"backoffice-service/internal/services"
	"backoffice-service/pkg/common"
)

type WithdrawableHandler struct {
	Withdrawable *services.WithdrawableService
	Threshold    decimal.Decimal
}

func NewWithdrawableHandler(withdrawable *services.WithdrawableService, threshold decimal.Decimal) *WithdrawableHandler {
	return &WithdrawableHandler{Withdrawable: withdrawable, Threshold: threshold}
}

func (h *WithdrawableHandler) GetWithdrawable(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	breakdown, err := h.Withdrawable.Breakdown(uint(userID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(breakdown, "Withdrawable balance"))
}

type WithdrawalRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

func (h *WithdrawableHandler) RequestWithdrawal(c *gin.Context) {
	var req WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
		return
	}

	trx, err := h.Withdrawable.RequestWithdrawal(req.UserID, amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, common.NewSuccessResponse(trx, "Withdrawal requested"))
}

type ReviewRequest struct {
	ActorID uint   `json:"actor_id" binding:"required"`
	Reason  string `json:"reason"`
}

func (h *WithdrawableHandler) ApproveWithdrawal(c *gin.Context) {
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

	if err := h.Withdrawable.ApproveWithdrawal(uint(trxID), req.ActorID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(nil, "Withdrawal approved"))
}

func (h *WithdrawableHandler) RejectWithdrawal(c *gin.Context) {
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

	if err := h.Withdrawable.RejectWithdrawal(uint(trxID), req.ActorID, req.Reason); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(nil, "Withdrawal rejected"))
}

func (h *WithdrawableHandler) Reconcile(c *gin.Context) {
	threshold := h.Threshold
	if raw := c.Query("threshold"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid threshold"})
			return
		}
		threshold = parsed
	}

	discrepancies, err := h.Withdrawable.Reconcile(c.Request.Context(), threshold)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if discrepancies == nil {
		discrepancies = []services.Discrepancy{}
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(discrepancies, "Reconciliation report"))
}

// ListTransactions returns a user's monetary records, paginated.
func (h *WithdrawableHandler) ListTransactions(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}

	db := h.Withdrawable.DB.Model(&models.Transaction{}).Where("user_id = ?", userID)
	if kind := c.Query("kind"); kind != "" {
		db = db.Where("kind = ?", kind)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var transactions []models.Transaction
	if err := db.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&transactions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, common.PaginateResponse(transactions, total, page, limit, "Transactions"))
}
