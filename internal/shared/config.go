package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/subosito/gotenv"
)

type Config struct {
	AppEnv           string
	HTTPAddr         string
	MetricsAddr      string
	MySQLDSN         string
	RedisAddr        string
	RedisDB          int
	RedisPass        string
	RoomstockBase    string
	RoomstockKey     string
	RoomstockRPS     int
	RoomstockTimeout time.Duration
	Workers          int
	BatchSize        int
	DrainTimeout     time.Duration
	SearchCacheTTL   time.Duration
	SearchCacheMax   int
	DefaultResidency string
	TiersConfig      string
}

func Load() Config {
	_ = gotenv.Load()

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:           env("APP_ENV", "prod"),
		HTTPAddr:         env("HTTP_ADDR", ":8080"),
		MetricsAddr:      env("METRICS_ADDR", ":9100"),
		MySQLDSN:         env("MYSQL_DSN", "root:root@tcp(localhost:3306)/staysync?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:        env("REDIS_ADDR", "localhost:6379"),
		RedisDB:          atoi("REDIS_DB", 0),
		RedisPass:        env("REDIS_PASSWORD", ""),
		RoomstockBase:    env("ROOMSTOCK_BASE_URL", "https://api.roomstock.io/v2"),
		RoomstockKey:     env("ROOMSTOCK_API_KEY", ""),
		RoomstockRPS:     atoi("ROOMSTOCK_RPS", 4),
		RoomstockTimeout: time.Duration(atoi("ROOMSTOCK_TIMEOUT_SECONDS", 30)) * time.Second,
		Workers:          atoi("REFRESH_WORKERS", 4),
		BatchSize:        atoi("REFRESH_BATCH_SIZE", 50),
		DrainTimeout:     time.Duration(atoi("REFRESH_DRAIN_TIMEOUT_SECONDS", 30)) * time.Second,
		SearchCacheTTL:   time.Duration(atoi("SEARCH_CACHE_TTL_SECONDS", 1800)) * time.Second,
		SearchCacheMax:   atoi("SEARCH_CACHE_MAX_ENTRIES", 1000),
		DefaultResidency: env("DEFAULT_RESIDENCY", "US"),
		TiersConfig:      env("TIERS_CONFIG", "tiers"),
	}
	if c.RoomstockKey == "" {
		log.Warn().Msg("ROOMSTOCK_API_KEY is empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
