package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath     string
	InboxDir   string
	RawMailDir string
	OutputDir  string
	LogLevel   string
	HTTPAddr   string

	VendorProfilePath string
	SegmentPolicy     string
	FailurePolicy     string

	Pdftotext          string
	Pdftoppm           string
	Tesseract          string
	OCRDPI             int
	OCRPSM             int
	OCRLang            string
	OCRWorkers         int
	LayoutMinChars     int
	ExternalTimeoutSec int

	MaxUploadMB int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailSupplierFrom string

	ListenerProvider     string
	ListenerLabel        string
	ListenerIntervalSec  int
	ListenerFetchMax     int
	ListenerProcessBatch int
	ListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "partsuite.db")),
		InboxDir:   getEnv("INBOX_DIR", filepath.Join(cwd, "data", "inbox")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "output")),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		HTTPAddr:   getEnv("HTTP_ADDR", ":8000"),

		VendorProfilePath: getEnv("VENDOR_PROFILE", ""),
		SegmentPolicy:     getEnv("SEGMENT_POLICY", "strict"),
		FailurePolicy:     getEnv("FAILURE_POLICY", "abort"),

		Pdftotext:          getEnv("PDFTOTEXT_BIN", "pdftotext"),
		Pdftoppm:           getEnv("PDFTOPPM_BIN", "pdftoppm"),
		Tesseract:          getEnv("TESSERACT_BIN", "tesseract"),
		OCRDPI:             getEnvInt("OCR_DPI", 300),
		OCRPSM:             getEnvInt("OCR_PSM", 6),
		OCRLang:            getEnv("OCR_LANG", ""),
		OCRWorkers:         getEnvInt("OCR_WORKERS", 4),
		LayoutMinChars:     getEnvInt("LAYOUT_MIN_CHARS", 40),
		ExternalTimeoutSec: getEnvInt("EXTERNAL_TIMEOUT_SEC", 60),

		MaxUploadMB: getEnvInt("MAX_UPLOAD_MB", 50),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailSupplierFrom: getEnv("MAIL_SUPPLIER_FROM", ""),

		ListenerProvider:     getEnv("LISTENER_MAIL_PROVIDER", ""),
		ListenerLabel:        getEnv("LISTENER_MAIL_LABEL", "INBOX"),
		ListenerIntervalSec:  getEnvInt("LISTENER_INTERVAL_SEC", 30),
		ListenerFetchMax:     getEnvInt("LISTENER_FETCH_MAX", 20),
		ListenerProcessBatch: getEnvInt("LISTENER_PROCESS_BATCH", 10),
		ListenerAutoExport:   getEnvBool("LISTENER_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func (c Config) ExternalTimeout() time.Duration {
	if c.ExternalTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.ExternalTimeoutSec) * time.Second
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
