package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Settings is the typed view of the environment used by the server and the cli tools.
type Settings struct {
	Port       string
	GoEnv      string
	OrgName    string
	OrgLogoURL string

	GatewayTimeout   time.Duration
	AuthCheckTimeout time.Duration
	ExportTimeout    time.Duration
	ExportLockTTL    time.Duration

	ReportTimezone     string
	ReportArchiveCron  string
	ReportArchiveNames []string
	ActivityLimit      int

	AuthJwtSecret string

	GCSBucket            string
	GCSURL               string
	StorageAccessBaseURL string

	NotificationTopic   string
	EmailProviderAPIKey string
	SmsProviderAPIKey   string
	DefaultPhoneRegion  string

	CorsAllowedOrigins []string
	RateLimitEnabled   bool
	RateLimitMax       int64
	RateLimitWindow    time.Duration

	SkipMigrations bool
}

func LoadSettings() *Settings {
	return &Settings{
		Port:       firstNonEmpty(os.Getenv("PORT"), "8080"),
		GoEnv:      strings.TrimSpace(os.Getenv("GO_ENV")),
		OrgName:    firstNonEmpty(os.Getenv("ORG_NAME"), "Microfinance"),
		OrgLogoURL: strings.TrimSpace(os.Getenv("ORG_LOGO_URL")),

		GatewayTimeout:   secondsFromEnv("GATEWAY_TIMEOUT_SECONDS", 10),
		AuthCheckTimeout: secondsFromEnv("AUTH_CHECK_TIMEOUT_SECONDS", 5),
		ExportTimeout:    secondsFromEnv("EXPORT_TIMEOUT_SECONDS", 60),
		ExportLockTTL:    secondsFromEnv("EXPORT_LOCK_TTL_SECONDS", 120),

		ReportTimezone:     firstNonEmpty(os.Getenv("REPORT_TIMEZONE"), "UTC"),
		ReportArchiveCron:  strings.TrimSpace(os.Getenv("REPORT_ARCHIVE_CRON")),
		ReportArchiveNames: splitAndTrim(firstNonEmpty(os.Getenv("REPORT_ARCHIVE_NAMES"), "loans,repayments")),
		ActivityLimit:      intFromEnv("ACTIVITY_LIMIT", 5),

		AuthJwtSecret: os.Getenv("AUTH_JWT_SECRET"),

		GCSBucket:            strings.TrimSpace(os.Getenv("GCS_BUCKET")),
		GCSURL:               strings.TrimSpace(os.Getenv("GCS_URL")),
		StorageAccessBaseURL: strings.TrimSpace(os.Getenv("STORAGE_ACCESS_BASE_URL")),

		NotificationTopic:   strings.TrimSpace(os.Getenv("NOTIFICATION_TOPIC")),
		EmailProviderAPIKey: strings.TrimSpace(os.Getenv("EMAIL_PROVIDER_API_KEY")),
		SmsProviderAPIKey:   strings.TrimSpace(os.Getenv("SMS_PROVIDER_API_KEY")),
		DefaultPhoneRegion:  firstNonEmpty(os.Getenv("DEFAULT_PHONE_REGION"), "GH"),

		CorsAllowedOrigins: splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS")),
		RateLimitEnabled:   boolFromEnv("RATE_LIMIT_ENABLED"),
		RateLimitMax:       int64(intFromEnv("RATE_LIMIT_MAX_REQUESTS", 600)),
		RateLimitWindow:    secondsFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60),

		SkipMigrations: boolFromEnv("SKIP_MIGRATIONS"),
	}
}

func (s *Settings) IsProduction() bool {
	return strings.EqualFold(s.GoEnv, "production")
}

// Location resolves ReportTimezone; Validate guarantees it loads.
func (s *Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.ReportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate collects every problem instead of stopping at the first one.
func (s *Settings) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(s.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", s.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if _, err := time.LoadLocation(s.ReportTimezone); err != nil {
		problems = append(problems, fmt.Sprintf("invalid REPORT_TIMEZONE '%s': %v", s.ReportTimezone, err))
	}

	for name, d := range map[string]time.Duration{
		"GATEWAY_TIMEOUT_SECONDS":    s.GatewayTimeout,
		"AUTH_CHECK_TIMEOUT_SECONDS": s.AuthCheckTimeout,
		"EXPORT_TIMEOUT_SECONDS":     s.ExportTimeout,
		"EXPORT_LOCK_TTL_SECONDS":    s.ExportLockTTL,
	} {
		if d <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive", name))
		}
	}

	if s.ActivityLimit < 1 {
		problems = append(problems, "ACTIVITY_LIMIT must be at least 1")
	}

	if s.ReportArchiveCron != "" {
		if _, err := cron.ParseStandard(s.ReportArchiveCron); err != nil {
			problems = append(problems, fmt.Sprintf("invalid REPORT_ARCHIVE_CRON '%s': %v", s.ReportArchiveCron, err))
		}
		if s.GCSBucket == "" {
			problems = append(problems, "GCS_BUCKET is required when REPORT_ARCHIVE_CRON is set")
		}
	}

	if s.IsProduction() && strings.TrimSpace(s.AuthJwtSecret) == "" {
		problems = append(problems, "AUTH_JWT_SECRET is required in production")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func secondsFromEnv(key string, def int) time.Duration {
	return time.Duration(intFromEnv(key, def)) * time.Second
}

func boolFromEnv(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
