package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string

	DBPath            string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	SessionCookieName   string
	SessionIdleMinutes  int
	SessionAbsoluteHour int
	CSRFCookieName      string
	CookieSecure        bool
	TrustProxy          bool
	CORSAllowedOrigins  []string

	TemplateEncryptKey string

	// Decision thresholds. Verify is the generic matcher default; attendance
	// marking requires the stricter Attendance threshold.
	VerifyMatchThreshold     float64
	AttendanceMatchThreshold float64
	LivenessThreshold        float64
	FaceMinConfidence        float64
	EnrollDuplicateThreshold float64
	EnrollMinQuality         float64

	ModelTimeout  time.Duration
	SubmitTimeout time.Duration

	NotifierMode       string
	NotifierWebhookURL string

	ExportDBDriver    string
	ExportDBDSN       string
	ExportTable       string
	ExportInterval    time.Duration
	ExportBatchSize   int
	ExportMaxAttempts int

	HTTPReadTimeoutSec       int
	HTTPReadHeaderTimeoutSec int
	HTTPWriteTimeoutSec      int
	HTTPIdleTimeoutSec       int

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:               env("LISTEN_ADDR", ":8080"),
		DBPath:                   env("APP_DB_PATH", "./data/app.db"),
		DBMaxOpenConns:           envInt("APP_DB_MAX_OPEN_CONNS", 4),
		DBMaxIdleConns:           envInt("APP_DB_MAX_IDLE_CONNS", 2),
		DBConnMaxLifetime:        time.Duration(envInt("APP_DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		SessionCookieName:        env("SESSION_COOKIE_NAME", "faceattend_session"),
		SessionIdleMinutes:       envInt("SESSION_IDLE_MINUTES", 30),
		SessionAbsoluteHour:      envInt("SESSION_ABSOLUTE_HOURS", 24),
		CSRFCookieName:           env("CSRF_COOKIE_NAME", "faceattend_csrf"),
		CookieSecure:             envBool("COOKIE_SECURE", false),
		TrustProxy:               envBool("TRUST_PROXY", false),
		CORSAllowedOrigins:       envCSV("CORS_ALLOWED_ORIGINS"),
		TemplateEncryptKey:       env("TEMPLATE_ENCRYPT_KEY", "CHANGE_ME_PRODUCTION_TEMPLATE_KEY"),
		VerifyMatchThreshold:     envFloat("VERIFY_MATCH_THRESHOLD", 0.6),
		AttendanceMatchThreshold: envFloat("ATTENDANCE_MATCH_THRESHOLD", 0.8),
		LivenessThreshold:        envFloat("LIVENESS_THRESHOLD", 0.75),
		FaceMinConfidence:        envFloat("FACE_MIN_CONFIDENCE", 0.7),
		EnrollDuplicateThreshold: envFloat("ENROLL_DUPLICATE_THRESHOLD", 0.9),
		EnrollMinQuality:         envFloat("ENROLL_MIN_QUALITY", 70),
		ModelTimeout:             time.Duration(envInt("MODEL_TIMEOUT_SEC", 10)) * time.Second,
		SubmitTimeout:            time.Duration(envInt("SUBMIT_TIMEOUT_SEC", 30)) * time.Second,
		NotifierMode:             strings.ToLower(env("NOTIFIER_MODE", "log")),
		NotifierWebhookURL:       env("NOTIFIER_WEBHOOK_URL", ""),
		ExportDBDriver:           env("EXPORT_DB_DRIVER", ""),
		ExportDBDSN:              env("EXPORT_DB_DSN", ""),
		ExportTable:              env("EXPORT_TABLE", "attendance_export"),
		ExportInterval:           time.Duration(envInt("EXPORT_INTERVAL_SEC", 60)) * time.Second,
		ExportBatchSize:          envInt("EXPORT_BATCH_SIZE", 100),
		ExportMaxAttempts:        envInt("EXPORT_MAX_ATTEMPTS", 3),
		HTTPReadTimeoutSec:       envInt("HTTP_READ_TIMEOUT_SEC", 10),
		HTTPReadHeaderTimeoutSec: envInt("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		HTTPWriteTimeoutSec:      envInt("HTTP_WRITE_TIMEOUT_SEC", 30),
		HTTPIdleTimeoutSec:       envInt("HTTP_IDLE_TIMEOUT_SEC", 60),
		BootstrapAdminEmail:      env("BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword:   env("BOOTSTRAP_ADMIN_PASSWORD", ""),
	}

	if cfg.SessionIdleMinutes <= 0 || cfg.SessionAbsoluteHour <= 0 {
		return Config{}, fmt.Errorf("session timeouts must be positive")
	}
	if cfg.DBMaxOpenConns <= 0 || cfg.DBMaxIdleConns < 0 {
		return Config{}, fmt.Errorf("invalid DB pool config")
	}
	if strings.TrimSpace(cfg.TemplateEncryptKey) == "" ||
		cfg.TemplateEncryptKey == "CHANGE_ME_PRODUCTION_TEMPLATE_KEY" ||
		len(cfg.TemplateEncryptKey) < 24 {
		return Config{}, fmt.Errorf("TEMPLATE_ENCRYPT_KEY must be set to a strong non-default value (>=24 chars)")
	}
	for name, v := range map[string]float64{
		"VERIFY_MATCH_THRESHOLD":     cfg.VerifyMatchThreshold,
		"ATTENDANCE_MATCH_THRESHOLD": cfg.AttendanceMatchThreshold,
		"LIVENESS_THRESHOLD":         cfg.LivenessThreshold,
		"FACE_MIN_CONFIDENCE":        cfg.FaceMinConfidence,
		"ENROLL_DUPLICATE_THRESHOLD": cfg.EnrollDuplicateThreshold,
	} {
		if v <= 0 || v >= 1 {
			return Config{}, fmt.Errorf("%s must be within (0,1)", name)
		}
	}
	if cfg.AttendanceMatchThreshold < cfg.VerifyMatchThreshold {
		return Config{}, fmt.Errorf("ATTENDANCE_MATCH_THRESHOLD must be >= VERIFY_MATCH_THRESHOLD")
	}
	if cfg.EnrollMinQuality < 0 || cfg.EnrollMinQuality > 100 {
		return Config{}, fmt.Errorf("ENROLL_MIN_QUALITY must be within [0,100]")
	}
	switch cfg.NotifierMode {
	case "log", "webhook":
	default:
		return Config{}, fmt.Errorf("NOTIFIER_MODE must be one of: log, webhook")
	}
	if cfg.NotifierMode == "webhook" && strings.TrimSpace(cfg.NotifierWebhookURL) == "" {
		return Config{}, fmt.Errorf("NOTIFIER_WEBHOOK_URL is required when NOTIFIER_MODE=webhook")
	}
	if cfg.ExportDBDriver != "" {
		switch cfg.ExportDBDriver {
		case "mysql", "pgx":
		default:
			return Config{}, fmt.Errorf("EXPORT_DB_DRIVER must be one of: mysql, pgx")
		}
		if strings.TrimSpace(cfg.ExportDBDSN) == "" {
			return Config{}, fmt.Errorf("EXPORT_DB_DSN is required when EXPORT_DB_DRIVER is set")
		}
	}
	if !cfg.CookieSecure && !isLocalListen(cfg.ListenAddr) {
		return Config{}, fmt.Errorf("COOKIE_SECURE=false is allowed only for local listen addresses")
	}
	return cfg, nil
}

func (c Config) SessionIdleDuration() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func (c Config) SessionAbsoluteDuration() time.Duration {
	return time.Duration(c.SessionAbsoluteHour) * time.Hour
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func envFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return d
	}
	return f
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

func envCSV(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isLocalListen(addr string) bool {
	a := strings.ToLower(strings.TrimSpace(addr))
	return strings.Contains(a, "127.0.0.1") || strings.Contains(a, "localhost") || strings.Contains(a, "[::1]") || strings.HasPrefix(a, ":")
}
