package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Graph    GraphConfig    `yaml:"graph" mapstructure:"graph"`
	Blob     BlobConfig     `yaml:"blob" mapstructure:"blob"`
	PDF      PDFConfig      `yaml:"pdf" mapstructure:"pdf"`
	Telegram TelegramConfig `yaml:"telegram" mapstructure:"telegram"`
	Notify   NotifyConfig   `yaml:"notify" mapstructure:"notify"`
	Ledger   LedgerConfig   `yaml:"ledger" mapstructure:"ledger"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the invoice record store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// LocalPath is the working copy of the SQLite file.
	LocalPath string `yaml:"local_path" mapstructure:"local_path"`
	// BlobPath is where the SQLite file is mirrored in the blob store.
	BlobPath string `yaml:"blob_path" mapstructure:"blob_path"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// GraphConfig holds Microsoft Graph credentials and mailbox filters.
type GraphConfig struct {
	TenantID      string  `yaml:"tenant_id" mapstructure:"tenant_id"`
	ClientID      string  `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret  string  `yaml:"client_secret" mapstructure:"client_secret"`
	RefreshToken  string  `yaml:"refresh_token" mapstructure:"refresh_token"`
	TokenFile     string  `yaml:"token_file" mapstructure:"token_file"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	TokenURL      string  `yaml:"token_url" mapstructure:"token_url"`
	MailboxUser   string  `yaml:"mailbox_user" mapstructure:"mailbox_user"`
	SenderFilter  string  `yaml:"sender_filter" mapstructure:"sender_filter"`
	SubjectFilter string  `yaml:"subject_filter" mapstructure:"subject_filter"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// BlobConfig locates the shared files in the blob store.
type BlobConfig struct {
	Root             string `yaml:"root" mapstructure:"root"`
	RelationshipFile string `yaml:"relationship_file" mapstructure:"relationship_file"`
	RecipientsFile   string `yaml:"recipients_file" mapstructure:"recipients_file"`
}

// PDFConfig configures invoice text extraction.
type PDFConfig struct {
	PdfToTextPath string   `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	Passwords     []string `yaml:"passwords" mapstructure:"passwords"`
}

// TelegramConfig holds the bot credentials.
type TelegramConfig struct {
	Token       string `yaml:"token" mapstructure:"token"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// NotifyConfig configures alert delivery.
type NotifyConfig struct {
	SendIntervalMs     int      `yaml:"send_interval_ms" mapstructure:"send_interval_ms"`
	MaxAttachmentBytes int      `yaml:"max_attachment_bytes" mapstructure:"max_attachment_bytes"`
	ThresholdPercent   float64  `yaml:"threshold_percent" mapstructure:"threshold_percent"`
	TemplatesFile      string   `yaml:"templates_file" mapstructure:"templates_file"`
	AdminIDs           []string `yaml:"admin_ids" mapstructure:"admin_ids"`
}

// LedgerConfig configures unit grouping in the period ledger.
type LedgerConfig struct {
	AdminKeywords []string `yaml:"admin_keywords" mapstructure:"admin_keywords"`
	GroupKeyword  string   `yaml:"group_keyword" mapstructure:"group_keyword"`
	DefaultDueDay int      `yaml:"default_due_day" mapstructure:"default_due_day"`
}

// RetryConfig configures retries at the remote client boundary.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// BatchConfig configures period batches.
type BatchConfig struct {
	Limit int `yaml:"limit" mapstructure:"limit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	AllowedOrigins     []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MetricsConfig configures the node-exporter textfile.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" mapstructure:"textfile_path"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.local_path", "data/database_enel.db")
	v.SetDefault("store.blob_path", "Database/database_enel.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("graph.base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("graph.sender_filter", "enel")
	v.SetDefault("graph.subject_filter", "fatura")
	v.SetDefault("graph.timeout_secs", 60)
	v.SetDefault("graph.rate_limit", 10)
	v.SetDefault("blob.root", "/Enel")
	v.SetDefault("blob.relationship_file", "relacionamento.xlsx")
	v.SetDefault("blob.recipients_file", "alertas_bot.db")
	v.SetDefault("pdf.pdftotext_path", "pdftotext")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout_secs", 60)
	v.SetDefault("notify.send_interval_ms", 1000)
	v.SetDefault("notify.max_attachment_bytes", 50<<20)
	v.SetDefault("notify.threshold_percent", 150)
	v.SetDefault("ledger.admin_keywords", []string{"ADM", "SEDE", "ADMIN"})
	v.SetDefault("ledger.group_keyword", "PIA")
	v.SetDefault("ledger.default_due_day", 15)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("batch.limit", 200)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_secs", 300)
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Secrets and other keys without a default still need an env binding.
	for _, key := range []string{
		"store.database_url",
		"graph.tenant_id", "graph.client_id", "graph.client_secret", "graph.refresh_token",
		"graph.token_file", "graph.token_url", "graph.mailbox_user",
		"pdf.passwords",
		"telegram.token",
		"notify.templates_file", "notify.admin_ids",
		"metrics.textfile_path",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is the command name.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.LocalPath == "" {
			add("store.local_path is required for sqlite")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required for postgres")
		}
	default:
		add("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Notify.ThresholdPercent < 0 {
		add("notify.threshold_percent must be >= 0")
	}
	if c.Batch.Limit < 0 {
		add("batch.limit must be >= 0")
	}

	switch mode {
	case "process", "serve":
		c.requireGraph(add)
		if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
			add("server.port must be > 0 and <= 65535")
		}
	case "alerts", "summary":
		c.requireGraph(add)
		if c.Telegram.Token == "" {
			add("telegram.token is required")
		}
	case "records":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) requireGraph(add func(string, ...any)) {
	if c.Graph.ClientID == "" {
		add("graph.client_id is required")
	}
	if c.Graph.TenantID == "" && c.Graph.TokenURL == "" {
		add("graph.tenant_id is required")
	}
	if c.Graph.RefreshToken == "" && c.Graph.TokenFile == "" {
		add("graph.refresh_token is required")
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
