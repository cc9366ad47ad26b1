package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	AppEnv                string
	LogLevel              string
	SheetAPIURL           string
	OrderChunkSize        int
	HTTPTimeout           time.Duration
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	SmallStoreQuotaBytes  int
	MasterCacheTTL        time.Duration
	PerformanceCacheTTL   time.Duration
	AuthPassword          string
	AuthSecret            string
	AccessTokenTTLMinutes int
}

// Load reads the environment after merging an optional .env file. Values
// already present in the environment win over the file.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		AppEnv:                getEnv("APP_ENV", "production"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		SheetAPIURL:           strings.TrimSpace(os.Getenv("SHEET_API_URL")),
		OrderChunkSize:        positiveInt("ORDER_CHUNK_SIZE", 3000),
		HTTPTimeout:           time.Duration(nonNegativeInt("HTTP_TIMEOUT_SECONDS", 0)) * time.Second,
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		SmallStoreQuotaBytes:  nonNegativeInt("SMALL_STORE_QUOTA_BYTES", 5<<20),
		MasterCacheTTL:        time.Duration(positiveInt("MASTER_CACHE_TTL_HOURS", 24)) * time.Hour,
		PerformanceCacheTTL:   time.Duration(positiveInt("PERFORMANCE_CACHE_TTL_HOURS", 24)) * time.Hour,
		AuthPassword:          strings.TrimSpace(os.Getenv("AUTH_PASSWORD")),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func nonNegativeInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
