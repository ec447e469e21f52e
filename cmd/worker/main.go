package main

import (
	"log"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"backoffice-service/internal/config"
	"backoffice-service/internal/consumers"
	"backoffice-service/internal/database"
	"backoffice-service/internal/mt5"
	"backoffice-service/internal/services"
	"backoffice-service/internal/worker"
)

func main() {
	// Load env
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found in ../../.env, trying .env")
		if err := godotenv.Load(".env"); err != nil {
			log.Println("No .env file found, using system env")
		}
	}

	cfg := config.Load()

	// Connect DB
	database.Connect()
	db := database.DB

	gateway := mt5.NewBridgeGateway(db, cfg.MT5BridgeURL, cfg.MT5ConnectTimeout, cfg.MT5CallTimeout)

	// Init Services
	selectorService := services.NewSelectorService(db, cfg.UseSmartSelector)
	scheduler := services.NewCooldownScheduler(cfg.Cooldown, cfg.WarmupAccounts)
	commissionService := services.NewCommissionService(db)
	ingestService := services.NewIngestService(db, gateway, selectorService, scheduler, commissionService, cfg)
	withdrawableService := services.NewWithdrawableService(db, gateway)
	pammService := services.NewPAMMService(db, gateway, cfg.PAMMFeeDelivery)
	cleanupService := services.NewCleanupService(db)

	// Processor
	processor := consumers.NewSettlementProcessor(ingestService, withdrawableService, pammService, cleanupService)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	log.Println("Starting Asynq Worker...")
	worker.StartWorker(redisOpt, processor)
}
