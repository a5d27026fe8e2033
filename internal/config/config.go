package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port      string
	DBDriver  string
	DBUrl     string
	JWTSecret string

	RedisURL     string
	EventChannel string

	PoolSeedQuota      int64
	QuotaPrice         decimal.Decimal
	CreditPrice        decimal.Decimal
	DailyPurchaseLimit int64

	DailyResetHour int
	Location       *time.Location

	LogLevel  string
	LogFormat string

	RateLimit float64
	RateBurst int

	AdminEmail    string
	AdminPassword string
}

func LoadConfig() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println(".env file not found, using environment and defaults")
	}

	return Config{
		Port:      getEnv("PORT", "8080"),
		DBDriver:  getEnv("DB_DRIVER", "mysql"),
		DBUrl:     getEnv("DB_URL", "root:root@tcp(localhost:3306)/quota?parseTime=true"),
		JWTSecret: os.Getenv("JWT_SECRET"),

		RedisURL:     os.Getenv("REDIS_URL"),
		EventChannel: getEnv("EVENT_CHANNEL", "quota:balance-changed"),

		PoolSeedQuota:      getInt64("POOL_SEED_QUOTA", 10000),
		QuotaPrice:         getDecimal("DEFAULT_QUOTA_PRICE", decimal.NewFromInt(20)),
		CreditPrice:        getDecimal("DEFAULT_CREDIT_PRICE", decimal.NewFromInt(1)),
		DailyPurchaseLimit: getInt64("DEFAULT_DAILY_LIMIT", 100),

		DailyResetHour: int(getInt64("DAILY_RESET_HOUR", 0)),
		Location:       getLocation("TIMEZONE"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		RateLimit: getFloat("RATE_LIMIT", 10),
		RateBurst: int(getInt64("RATE_BURST", 20)),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getLocation(key string) *time.Location {
	name := os.Getenv(key)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("unknown %s=%q, using UTC", key, name)
		return time.UTC
	}
	return loc
}
