package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	DBMaxConns  int

	StoragePath    string
	StorageBaseURL string

	DefaultProvider  string
	DashScopeAPIKey  string
	DashScopeBaseURL string
	QwenImageModel   string
	WanxImageModel   string
	WanxPollInterval time.Duration
	WanxMaxPolls     int

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	Batch BatchConfig

	NATSURL     string
	NATSSubject string

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// BatchConfig tunes the background batch worker.
type BatchConfig struct {
	// Embedded runs the worker inside the api process. Only one worker may
	// run per database: startup reconciliation demotes every processing job,
	// so a second worker's restart would interrupt the first one's job.
	Embedded       bool
	WorkerID       string
	IdleInterval   time.Duration
	ItemDelay      time.Duration
	ItemTimeout    time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	PersistBackoff time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             port,
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       getEnv("SQLITE_PATH", "storyboard.db"),
		DBMaxConns:       getEnvInt("DB_MAX_CONNS", 10),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:   strings.TrimRight(getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"), "/"),
		DefaultProvider:  getEnv("DEFAULT_IMAGE_PROVIDER", "synthetic"),
		DashScopeAPIKey:  os.Getenv("DASHSCOPE_API_KEY"),
		DashScopeBaseURL: getEnv("DASHSCOPE_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		QwenImageModel:   getEnv("QWEN_IMAGE_MODEL", "qwen-image-plus"),
		WanxImageModel:   getEnv("WANX_IMAGE_MODEL", "wanx2.1-t2i-turbo"),
		WanxPollInterval: getEnvDuration("WANX_POLL_INTERVAL", 3*time.Second),
		WanxMaxPolls:     getEnvInt("WANX_MAX_POLLS", 60),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Batch: BatchConfig{
			Embedded:       getEnvBool("BATCH_WORKER_EMBEDDED", true),
			WorkerID:       getEnv("WORKER_ID", defaultWorkerID()),
			IdleInterval:   getEnvDuration("BATCH_IDLE_INTERVAL", 5*time.Second),
			ItemDelay:      getEnvDuration("BATCH_ITEM_DELAY", time.Second),
			ItemTimeout:    getEnvDuration("BATCH_ITEM_TIMEOUT", 5*time.Minute),
			MaxAttempts:    getEnvInt("BATCH_MAX_ATTEMPTS", 3),
			RetryBaseDelay: getEnvDuration("BATCH_RETRY_BASE_DELAY", 30*time.Second),
			PersistBackoff: getEnvDuration("BATCH_PERSIST_BACKOFF", 10*time.Second),
		},
		NATSURL:            os.Getenv("NATS_URL"),
		NATSSubject:        getEnv("NATS_SUBJECT", "storyboard.batch.created"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreDriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.Batch.MaxAttempts < 1 {
		return nil, fmt.Errorf("BATCH_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("1500ms") or bare seconds ("5").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
