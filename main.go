package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"backoffice-service/internal/config"
	"backoffice-service/internal/database"
	"backoffice-service/internal/handlers"
	"backoffice-service/internal/mt5"
	"backoffice-service/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found in current directory, trying parent")
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("No .env file found, using system environment variables")
		}
	}

	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	}

	cfg := config.Load()

	// Initialize Database
	database.Connect()
	database.Migrate()
	db := database.DB

	// MT5 Gateway
	gateway := mt5.NewBridgeGateway(db, cfg.MT5BridgeURL, cfg.MT5ConnectTimeout, cfg.MT5CallTimeout)

	// Init Services
	selectorService := services.NewSelectorService(db, cfg.UseSmartSelector)
	scheduler := services.NewCooldownScheduler(cfg.Cooldown, cfg.WarmupAccounts)
	commissionService := services.NewCommissionService(db)
	ingestService := services.NewIngestService(db, gateway, selectorService, scheduler, commissionService, cfg)
	withdrawableService := services.NewWithdrawableService(db, gateway)
	pammService := services.NewPAMMService(db, gateway, cfg.PAMMFeeDelivery)
	accountService := services.NewAccountService(db, gateway)
	cleanupService := services.NewCleanupService(db)

	// Redis/Asynq Client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer asynqClient.Close()

	// Handlers
	ingestHandler := handlers.NewIngestHandler(ingestService, asynqClient)
	withdrawableHandler := handlers.NewWithdrawableHandler(withdrawableService, cfg.ReconcileThreshold)
	pammHandler := handlers.NewPAMMHandler(pammService)
	accountHandler := handlers.NewAccountHandler(accountService)

	// Initialize Gin
	r := gin.Default()

	// Ping endpoint
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Welcome To Broker Back Office service",
		})
	})

	r.POST("/ingest/run", ingestHandler.RunNow)

	r.GET("/users/:id/withdrawable", withdrawableHandler.GetWithdrawable)
	r.GET("/users/:id/transactions", withdrawableHandler.ListTransactions)
	r.POST("/commission-withdrawals", withdrawableHandler.RequestWithdrawal)
	r.POST("/commission-withdrawals/:id/approve", withdrawableHandler.ApproveWithdrawal)
	r.POST("/commission-withdrawals/:id/reject", withdrawableHandler.RejectWithdrawal)
	r.GET("/reconciliation", withdrawableHandler.Reconcile)

	r.GET("/pamm/:id", pammHandler.GetAccount)
	r.POST("/pamm/:id/equity", pammHandler.UpdateEquity)
	r.POST("/pamm/:id/fee", pammHandler.CrystalliseFee)
	r.POST("/pamm/:id/rescale-deposit", pammHandler.RescaleManagerDeposit)
	r.POST("/pamm/transactions", pammHandler.RequestTransaction)
	r.POST("/pamm/transactions/:id/approve", pammHandler.Approve)
	r.POST("/pamm/transactions/:id/reject", pammHandler.Reject)

	r.POST("/trading-accounts", accountHandler.Provision)
	r.POST("/trading-accounts/:account_id/deposit", accountHandler.Deposit)
	r.POST("/trading-accounts/:account_id/withdraw", accountHandler.Withdraw)
	r.POST("/trading-accounts/:account_id/disable", accountHandler.Disable)

	// Start Cron Schedulers
	pammService.StartScheduler()
	cleanupService.StartScheduler()
	withdrawableService.StartScheduler(cfg.ReconcileThreshold)

	// Ingestion loop; stops cleanly on SIGINT/SIGTERM after the in-flight deal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go ingestService.RunLoop(ctx)

	log.Printf("HTTP Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}
