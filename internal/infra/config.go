package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	DBMaxConns       int
	JWTSecret        string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	KieAPIKey        string
	KieBaseURL       string
	KieVideoModel    string
	QwenAPIKey       string
	QwenBaseURL      string
	QwenModel        string
	HeyGenAPIKey     string
	HeyGenBaseURL    string
	CreditCosts      CreditCosts
	NotifyWindow     time.Duration
	ReconcileEvery   time.Duration
	TraceExporter    string
	OTLPEndpoint     string
	OTLPInsecure     bool
	CORSOrigins      []string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// CreditCosts is the flat price of one job per kind, charged before submission.
type CreditCosts struct {
	Video  int
	Image  int
	Avatar int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DBMaxConns:    getEnvInt("DB_MAX_CONNS", 10),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		KieAPIKey:     os.Getenv("KIE_API_KEY"),
		KieBaseURL:    getEnv("KIE_BASE_URL", "https://api.kie.ai"),
		KieVideoModel: getEnv("KIE_VIDEO_MODEL", "veo3_fast"),
		QwenAPIKey:    os.Getenv("QWEN_API_KEY"),
		QwenBaseURL:   getEnv("QWEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		QwenModel:     getEnv("QWEN_MODEL", "qwen-image-plus"),
		HeyGenAPIKey:  os.Getenv("HEYGEN_API_KEY"),
		HeyGenBaseURL: getEnv("HEYGEN_BASE_URL", "https://api.heygen.com"),
		CreditCosts: CreditCosts{
			Video:  getEnvInt("CREDIT_COST_VIDEO", 10),
			Image:  getEnvInt("CREDIT_COST_IMAGE", 2),
			Avatar: getEnvInt("CREDIT_COST_AVATAR", 15),
		},
		NotifyWindow:     time.Second * time.Duration(getEnvInt("NOTIFY_WINDOW_SECONDS", 30)),
		ReconcileEvery:   time.Second * time.Duration(getEnvInt("RECONCILE_INTERVAL_SECONDS", 60)),
		TraceExporter:    getEnv("TRACE_EXPORTER", "none"),
		OTLPEndpoint:     os.Getenv("OTLP_ENDPOINT"),
		OTLPInsecure:     getEnvBool("OTLP_INSECURE", false),
		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" && cfg.AppEnv != "development" && cfg.AppEnv != "test" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.NotifyWindow <= 0 {
		cfg.NotifyWindow = 30 * time.Second
	}

	return cfg, nil
}

// UsesMemoryStore reports whether the service runs without PostgreSQL.
func (c *Config) UsesMemoryStore() bool {
	return strings.TrimSpace(c.DatabaseURL) == ""
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

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
