// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, rate limiting, auth,
// collaborator endpoints (AI, OCR, mail, blob storage), and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "mediscan-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuthConfig defines bearer-token and account verification settings.
type AuthConfig struct {
	JWTSecret                string        // JWT_SECRET
	JWTExpiration            time.Duration // JWT_EXPIRATION
	RequireEmailVerification bool          // REQUIRE_EMAIL_VERIFICATION
	FrontendURL              string        // FRONTEND_URL, used in verification links
}

// AIConfig selects and configures the text-generation collaborator.
type AIConfig struct {
	Provider      string // gemini|openai|mock
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string // optional, for OpenAI-compatible gateways
	Timeout       time.Duration
}

// OCRConfig selects and configures the text-extraction collaborator.
type OCRConfig struct {
	Provider string // ocrspace|mock
	APIKey   string
	URL      string
	Language string
	Timeout  time.Duration
}

// MailConfig configures outbound SMTP. An empty Host disables delivery and
// messages are only logged.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MinIOConfig configures the S3-compatible blob backend.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string // base URL used to build object links
}

// BlobConfig selects where uploaded images are stored.
type BlobConfig struct {
	Backend        string // local|minio
	UploadDir      string // local backend root
	URLPrefix      string // local backend public prefix, e.g. "/uploads"
	MaxUploadBytes int64
	MinIO          MinIOConfig
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

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	LogFile        string // optional rotating log file
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath         string // SQLite path
	MaxPromptRunes int    // cap on chat message length

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Collaborators
	Auth AuthConfig
	AI   AIConfig
	OCR  OCRConfig
	Mail MailConfig
	Blob BlobConfig

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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		LogFile:        getenv("LOG_FILE", ""),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/")),

		// App
		DBPath:         getenv("DB_PATH", "mediscan.db"),
		MaxPromptRunes: getint("MAX_PROMPT_RUNES", 4000),

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

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		Auth: AuthConfig{
			JWTSecret:                getenv("JWT_SECRET", ""),
			JWTExpiration:            getdur("JWT_EXPIRATION", time.Hour),
			RequireEmailVerification: getbool("REQUIRE_EMAIL_VERIFICATION", false),
			FrontendURL:              strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:3000"), "/"),
		},
		AI: AIConfig{
			Provider:      strings.ToLower(getenv("AI_PROVIDER", "gemini")),
			GeminiAPIKey:  getenv("GEMINI_API_KEY", ""),
			GeminiModel:   getenv("GEMINI_MODEL", "gemini-2.0-flash"),
			GeminiBaseURL: getenv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			OpenAIAPIKey:  getenv("OPENAI_API_KEY", ""),
			OpenAIModel:   getenv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL: getenv("OPENAI_BASE_URL", ""),
			Timeout:       getdur("AI_TIMEOUT", 30*time.Second),
		},
		OCR: OCRConfig{
			Provider: strings.ToLower(getenv("OCR_PROVIDER", "ocrspace")),
			APIKey:   getenv("OCR_SPACE_API_KEY", ""),
			URL:      getenv("OCR_SPACE_URL", "https://api.ocr.space/parse/image"),
			Language: getenv("OCR_LANGUAGE", "eng"),
			Timeout:  getdur("OCR_TIMEOUT", 30*time.Second),
		},
		Mail: MailConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getint("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("FROM_EMAIL", "no-reply@mediscan.local"),
		},
		Blob: BlobConfig{
			Backend:        strings.ToLower(getenv("BLOB_BACKEND", "local")),
			UploadDir:      getenv("UPLOAD_DIR", "uploads"),
			URLPrefix:      normalizeBasePath(getenv("UPLOAD_URL_PREFIX", "/uploads")),
			MaxUploadBytes: int64(getint("MAX_UPLOAD_BYTES", 10<<20)),
			MinIO: MinIOConfig{
				Endpoint:  getenv("MINIO_ENDPOINT", "localhost:9000"),
				AccessKey: getenv("MINIO_ACCESS_KEY", ""),
				SecretKey: getenv("MINIO_SECRET_KEY", ""),
				Bucket:    getenv("MINIO_BUCKET", "prescriptions"),
				UseSSL:    getbool("MINIO_USE_SSL", false),
				PublicURL: strings.TrimRight(getenv("MINIO_PUBLIC_URL", ""), "/"),
			},
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "mediscan-backend"),
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
	if cfg.MaxPromptRunes <= 0 {
		return cfg, errors.New("MAX_PROMPT_RUNES must be > 0")
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
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return cfg, errors.New("JWT_SECRET must not be empty")
	}
	if cfg.Auth.JWTExpiration <= 0 {
		return cfg, errors.New("JWT_EXPIRATION must be > 0")
	}
	switch cfg.AI.Provider {
	case "gemini", "openai", "mock":
	default:
		return cfg, errors.New("AI_PROVIDER must be one of: gemini, openai, mock")
	}
	if cfg.AI.Timeout <= 0 || cfg.OCR.Timeout <= 0 {
		return cfg, errors.New("AI_TIMEOUT and OCR_TIMEOUT must be > 0")
	}
	switch cfg.OCR.Provider {
	case "ocrspace", "mock":
	default:
		return cfg, errors.New("OCR_PROVIDER must be one of: ocrspace, mock")
	}
	if cfg.Mail.Port <= 0 {
		return cfg, errors.New("SMTP_PORT must be > 0")
	}
	switch cfg.Blob.Backend {
	case "local":
		if strings.TrimSpace(cfg.Blob.UploadDir) == "" {
			return cfg, errors.New("UPLOAD_DIR must not be empty")
		}
	case "minio":
		if cfg.Blob.MinIO.Endpoint == "" || cfg.Blob.MinIO.Bucket == "" {
			return cfg, errors.New("MINIO_ENDPOINT and MINIO_BUCKET must not be empty")
		}
	default:
		return cfg, errors.New("BLOB_BACKEND must be one of: local, minio")
	}
	if cfg.Blob.MaxUploadBytes <= 0 {
		return cfg, errors.New("MAX_UPLOAD_BYTES must be > 0")
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
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
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

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
