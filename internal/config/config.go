package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	FeeDeliveryReprice = "reprice"
	FeeDeliveryUnits   = "units"
)

type Config struct {
	CycleInterval           time.Duration
	Cooldown                time.Duration
	WarmupAccounts          int
	DefaultCommissionPerLot decimal.Decimal
	ReconcileThreshold      decimal.Decimal
	MT5CallTimeout          time.Duration
	MT5ConnectTimeout       time.Duration
	MT5BridgeURL            string
	UseSmartSelector        bool
	PAMMFeeDelivery         string
	RedisAddr               string
	Port                    string
}

func Load() Config {
	return Config{
		CycleInterval:           getMillis("CYCLE_INTERVAL_MS", 25),
		Cooldown:                getMillis("COOLDOWN_MS", 500),
		WarmupAccounts:          getInt("WARMUP_ACCOUNTS", 10),
		DefaultCommissionPerLot: getDecimal("DEFAULT_COMMISSION_PER_LOT", "8.00"),
		ReconcileThreshold:      getDecimal("RECONCILE_THRESHOLD", "1.00"),
		MT5CallTimeout:          getMillis("MT5_CALL_TIMEOUT_MS", 30000),
		MT5ConnectTimeout:       getMillis("MT5_CONNECT_TIMEOUT_MS", 120000),
		MT5BridgeURL:            getEnv("MT5_BRIDGE_URL", "http://localhost:9090"),
		UseSmartSelector:        getBool("USE_SMART_SELECTOR", false),
		PAMMFeeDelivery:         getEnv("PAMM_FEE_DELIVERY", FeeDeliveryReprice),
		RedisAddr:               getEnv("REDIS_URL", "localhost:6379"),
		Port:                    getEnv("PORT", "8080"),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getMillis(key string, fallbackMillis int) time.Duration {
	return time.Duration(getInt(key, fallbackMillis)) * time.Millisecond
}

func getBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDecimal(key, fallback string) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		raw = fallback
	}
	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		parsed, _ = decimal.NewFromString(fallback)
	}
	return parsed
}
