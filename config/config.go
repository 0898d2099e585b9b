package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	PostgresEnabled  bool

	MaxRecords     int
	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int

	// Scroll convergence tuning.
	ScrollStepPx       int
	ScrollWaitMs       int
	MaxScrollIters     int
	MaxScrollItersLong int
	RequiredNoChange   int
	RelaxedNoChange    int
	MinCardsThreshold  int
	// Review panes whose page counter exceeds this get the long budget.
	LargeReviewCount int

	NavTimeoutSec      int
	ResponseWaitSec    int
	CaptchaWaitSec     int
	CaptchaMaxRechecks int
	RunTimeoutSec      int

	// Pattern of the structured catalog API response carrying authoritative
	// business fields, awaited after each card navigation.
	ItemFeedPattern string

	CSVOutputPath string
	SelectorsPath string
	ChromeBin     string
	Headless      bool
	LogLevel      string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "harvester"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "harvester123"),
		PostgresDB:       getEnv("POSTGRES_DB", "business_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),

		MaxRecords:     getEnvInt("MAX_RECORDS", 100),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 2),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 1000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),

		ScrollStepPx:       getEnvInt("SCROLL_STEP_PX", 500),
		ScrollWaitMs:       getEnvInt("SCROLL_WAIT_MS", 200),
		MaxScrollIters:     getEnvInt("MAX_SCROLL_ITERS", 30),
		MaxScrollItersLong: getEnvInt("MAX_SCROLL_ITERS_LONG", 100),
		RequiredNoChange:   getEnvInt("REQUIRED_NO_CHANGE", 15),
		RelaxedNoChange:    getEnvInt("RELAXED_NO_CHANGE", 20),
		MinCardsThreshold:  getEnvInt("MIN_CARDS_THRESHOLD", 5),
		LargeReviewCount:   getEnvInt("LARGE_REVIEW_COUNT", 150),

		NavTimeoutSec:      getEnvInt("NAV_TIMEOUT_SEC", 120),
		ResponseWaitSec:    getEnvInt("RESPONSE_WAIT_SEC", 10),
		CaptchaWaitSec:     getEnvInt("CAPTCHA_WAIT_SEC", 20),
		CaptchaMaxRechecks: getEnvInt("CAPTCHA_MAX_RECHECKS", 5),
		RunTimeoutSec:      getEnvInt("RUN_TIMEOUT_SEC", 3600),

		ItemFeedPattern: getEnv("ITEM_FEED_PATTERN", `catalog\.api\..*/items/byid`),

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/cards.csv"),
		SelectorsPath: getEnv("SELECTORS_PATH", ""),
		ChromeBin:     getEnv("CHROME_BIN", ""),
		Headless:      getEnvBool("HEADLESS", true),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
