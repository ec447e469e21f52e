package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"backoffice-service/internal/services"
	"backoffice-service/pkg/common"
)

type AccountHandler struct {
	Accounts *services.AccountService
}

func NewAccountHandler(accounts *services.AccountService) *AccountHandler {
	return &AccountHandler{Accounts: accounts}
}

type ProvisionAccountRequest struct {
	UserID           uint   `json:"user_id" binding:"required"`
	GroupName        string `json:"group_name" binding:"required"`
	Leverage         int    `json:"leverage" binding:"required"`
	MasterPassword   string `json:"master_password" binding:"required"`
	InvestorPassword string `json:"investor_password" binding:"required"`
}

func (h *AccountHandler) Provision(c *gin.Context) {
	var req ProvisionAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.Accounts.Provision(c.Request.Context(), services.ProvisionRequest{
		UserID:           req.UserID,
		GroupName:        req.GroupName,
		Leverage:         req.Leverage,
		MasterPassword:   req.MasterPassword,
		InvestorPassword: req.InvestorPassword,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, common.NewSuccessResponse(account, "Trading account created"))
}

type AccountMoneyRequest struct {
	Amount  string `json:"amount" binding:"required"`
	ActorID uint   `json:"actor_id" binding:"required"`
}

func (h *AccountHandler) Deposit(c *gin.Context) {
	var req AccountMoneyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
		return
	}

	trx, err := h.Accounts.Deposit(c.Request.Context(), c.Param("account_id"), amount, req.ActorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(trx, "Deposit completed"))
}

func (h *AccountHandler) Withdraw(c *gin.Context) {
	var req AccountMoneyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
		return
	}

	trx, err := h.Accounts.Withdraw(c.Request.Context(), c.Param("account_id"), amount, req.ActorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(trx, "Withdrawal completed"))
}

func (h *AccountHandler) Disable(c *gin.Context) {
	if err := h.Accounts.Disable(c.Param("account_id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(nil, "Trading account disabled"))
}
