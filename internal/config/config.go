// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as mailbox credentials, AI model selection, pipeline cadence, database
// paths, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mailspend/mailspend/internal/sysutil"
)

// MailConfig defines IMAP mailbox access settings.
type MailConfig struct {
	Addr         string        // IMAP_ADDR (host:port, implicit TLS)
	Username     string        // IMAP_USERNAME
	Password     string        // IMAP_PASSWORD
	Folder       string        // IMAP_FOLDER
	SenderFilter string        // MAIL_SENDER_FILTER (optional From: narrowing)
	Timeout      time.Duration // MAIL_TIMEOUT per IMAP command
	FetchChunk   int           // MAIL_FETCH_CHUNK envelopes per fetch round-trip
}

// AIConfig defines the extraction model settings.
type AIConfig struct {
	APIKey  string        // GEMINI_API_KEY (required)
	Model   string        // GEMINI_MODEL
	Timeout time.Duration // AI_TIMEOUT per model call
	RateRPS float64       // AI_RATE_RPS outbound calls per second
}

// PipelineConfig defines the scanning cadence and retry behavior.
type PipelineConfig struct {
	PollInterval time.Duration // POLL_INTERVAL between cycle starts
	MaxRetries   int           // MAX_RETRIES per transient failure
	RetryDelay   time.Duration // RETRY_DELAY base wait between attempts
	RetryBackoff float64       // RETRY_BACKOFF multiplier per attempt
	Lookback     time.Duration // LOOKBACK for the first cycle
	Overlap      time.Duration // OVERLAP re-listed behind the watermark
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "mailspend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	DBPath string // SQLite path

	// Pipeline
	Mail     MailConfig
	AI       AIConfig
	Pipeline PipelineConfig

	// Rate limiting (inbound HTTP)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath: getenv("DB_PATH", "mailspend.db"),

		// Mailbox
		Mail: MailConfig{
			Addr:         getenv("IMAP_ADDR", ""),
			Username:     getenv("IMAP_USERNAME", ""),
			Password:     getenv("IMAP_PASSWORD", ""),
			Folder:       getenv("IMAP_FOLDER", "INBOX"),
			SenderFilter: getenv("MAIL_SENDER_FILTER", ""),
			Timeout:      getdur("MAIL_TIMEOUT", 30*time.Second),
			FetchChunk:   getint("MAIL_FETCH_CHUNK", 50),
		},

		// Extraction model
		AI: AIConfig{
			APIKey:  getenv("GEMINI_API_KEY", ""),
			Model:   getenv("GEMINI_MODEL", "gemini-2.0-flash"),
			Timeout: getdur("AI_TIMEOUT", 90*time.Second),
			RateRPS: getfloat("AI_RATE_RPS", 0.5),
		},

		// Pipeline cadence
		Pipeline: PipelineConfig{
			PollInterval: getdur("POLL_INTERVAL", 3*time.Hour),
			MaxRetries:   getint("MAX_RETRIES", 3),
			RetryDelay:   getdur("RETRY_DELAY", time.Minute),
			RetryBackoff: getfloat("RETRY_BACKOFF", 2.0),
			Lookback:     getdur("LOOKBACK", 24*time.Hour),
			Overlap:      getdur("OVERLAP", 10*time.Minute),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "mailspend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Mail.Addr) == "" {
		return cfg, errors.New("IMAP_ADDR must not be empty")
	}
	if strings.TrimSpace(cfg.Mail.Username) == "" || cfg.Mail.Password == "" {
		return cfg, errors.New("IMAP_USERNAME and IMAP_PASSWORD must be set")
	}
	if cfg.Mail.Timeout <= 0 {
		return cfg, errors.New("MAIL_TIMEOUT must be > 0")
	}
	if cfg.Mail.FetchChunk < 1 {
		return cfg, errors.New("MAIL_FETCH_CHUNK must be >= 1")
	}
	if strings.TrimSpace(cfg.AI.APIKey) == "" {
		return cfg, errors.New("GEMINI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.AI.Model) == "" {
		return cfg, errors.New("GEMINI_MODEL must not be empty")
	}
	if cfg.AI.Timeout <= 0 {
		return cfg, errors.New("AI_TIMEOUT must be > 0")
	}
	if cfg.AI.RateRPS <= 0 {
		return cfg, errors.New("AI_RATE_RPS must be > 0")
	}
	if cfg.Pipeline.PollInterval <= 0 {
		return cfg, errors.New("POLL_INTERVAL must be > 0")
	}
	if cfg.Pipeline.MaxRetries < 0 {
		return cfg, errors.New("MAX_RETRIES must be >= 0")
	}
	if cfg.Pipeline.RetryDelay <= 0 {
		return cfg, errors.New("RETRY_DELAY must be > 0")
	}
	if cfg.Pipeline.RetryBackoff < 1 {
		return cfg, errors.New("RETRY_BACKOFF must be >= 1")
	}
	if cfg.Pipeline.Lookback <= 0 {
		return cfg, errors.New("LOOKBACK must be > 0")
	}
	if cfg.Pipeline.Overlap < 0 {
		return cfg, errors.New("OVERLAP must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if sysutil.IsTruthy(v) {
			return true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
