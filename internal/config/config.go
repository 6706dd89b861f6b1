package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env             string
	HTTPAddr        string
	GRPCAddr        string
	ShutdownTimeout time.Duration

	DBDriver       string
	DatabaseDSN    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBConnMaxLife  time.Duration
	DBAutoMigrate  bool
	TxTimeout      time.Duration

	RedisAddr      string
	IdempotencyTTL time.Duration

	KafkaBrokers    string
	KafkaOrderTopic string
	EventWorkers    int
	EventQueueSize  int

	JWTSecret   string
	IdentityURL string

	CheckoutRateLimit float64
	CheckoutRateBurst int

	CORSAllowedOrigins []string
}

// Load reads .env when present, then the process environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:        getEnv("GRPC_ADDR", ":50051"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 5*time.Second),

		DBDriver:       getEnv("DB_DRIVER", "mysql"),
		DatabaseDSN:    getEnv("DATABASE_DSN", "root:root@tcp(localhost:3306)/cardshop?parseTime=true"),
		DBMaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 50),
		DBMaxIdleConns: getInt("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLife:  getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		DBAutoMigrate:  getBool("DB_AUTO_MIGRATE", true),
		TxTimeout:      getDuration("TX_TIMEOUT", 5*time.Second),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		IdempotencyTTL: getDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		KafkaBrokers:    getEnv("KAFKA_BROKERS", ""),
		KafkaOrderTopic: getEnv("KAFKA_ORDER_TOPIC", "orders.completed"),
		EventWorkers:    getInt("EVENT_WORKERS", 4),
		EventQueueSize:  getInt("EVENT_QUEUE_SIZE", 1000),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		IdentityURL: getEnv("IDENTITY_URL", ""),

		CheckoutRateLimit: getFloat("CHECKOUT_RATE_LIMIT", 5),
		CheckoutRateBurst: getInt("CHECKOUT_RATE_BURST", 10),

		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getInt(key string, defaultVal int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultVal
}
