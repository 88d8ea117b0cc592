package config

import (
	"fmt"
	"time"

	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/spf13/viper"
)

// Defaults for a local relay on https://localhost:7026.
const (
	DefaultServerAddr     = "localhost:7026"
	DefaultRelayURL       = "wss://localhost:7026/hub"
	DefaultRequestTimeout = 3 * time.Second
	DefaultWorkbookSheet  = "Transactions"
	DefaultModel          = "gemini-2.5-flash"
)

// Relay configures the relay client.
type Relay struct {
	URL                  string
	RequestTimeout       time.Duration
	MaxReconnectAttempts int
	InsecureSkipVerify   bool
}

// Server configures the relay server.
type Server struct {
	Addr           string
	CertDir        string
	AllowedOrigins []string
	TLS            bool
}

// Extract configures statement and page extraction.
type Extract struct {
	Model          string
	APIKey         string
	DateAttribute  string
	LabelAttribute string
}

// Config is the resolved application configuration.
type Config struct {
	Relay         Relay
	Server        Server
	Extract       Extract
	RulesPath     string
	StoragePath   string
	WorkbookPath  string
	WorkbookSheet string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("relay.url", DefaultRelayURL)
	v.SetDefault("relay.max_reconnect_attempts", common.DefaultBackoff().MaxAttempts)
	v.SetDefault("relay.request_timeout", DefaultRequestTimeout)
	v.SetDefault("relay.insecure_skip_verify", false)
	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.tls", true)
	v.SetDefault("server.cert_dir", "~/.config/browser2excel/certs")
	v.SetDefault("server.allowed_origins", []string{"https://localhost:3000"})
	v.SetDefault("storage.path", "~/.local/share/browser2excel/browser2excel.db")
	v.SetDefault("workbook.sheet", DefaultWorkbookSheet)
	v.SetDefault("extract.model", DefaultModel)
	v.SetDefault("extract.date_attribute", "data-date")
	v.SetDefault("extract.label_attribute", "aria-label")
}

// Load resolves the configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Relay: Relay{
			URL:                  v.GetString("relay.url"),
			RequestTimeout:       v.GetDuration("relay.request_timeout"),
			MaxReconnectAttempts: v.GetInt("relay.max_reconnect_attempts"),
			InsecureSkipVerify:   v.GetBool("relay.insecure_skip_verify"),
		},
		Server: Server{
			Addr:           v.GetString("server.addr"),
			CertDir:        ExpandPath(v.GetString("server.cert_dir")),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
			TLS:            v.GetBool("server.tls"),
		},
		Extract: Extract{
			Model:          v.GetString("extract.model"),
			APIKey:         v.GetString("extract.api_key"),
			DateAttribute:  v.GetString("extract.date_attribute"),
			LabelAttribute: v.GetString("extract.label_attribute"),
		},
		RulesPath:     ExpandPath(v.GetString("rules.path")),
		StoragePath:   ExpandPath(v.GetString("storage.path")),
		WorkbookPath:  ExpandPath(v.GetString("workbook.path")),
		WorkbookSheet: v.GetString("workbook.sheet"),
	}
	if cfg.Extract.APIKey == "" {
		cfg.Extract.APIKey = v.GetString("gemini_api_key")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that have no safe fallback.
func (c *Config) Validate() error {
	if c.Relay.URL == "" {
		return fmt.Errorf("%w: relay.url is empty", common.ErrInvalidConfig)
	}
	if c.Relay.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%w: relay.max_reconnect_attempts cannot be negative", common.ErrInvalidConfig)
	}
	if c.Relay.RequestTimeout <= 0 {
		return fmt.Errorf("%w: relay.request_timeout must be positive", common.ErrInvalidConfig)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is empty", common.ErrInvalidConfig)
	}
	return nil
}

// Backoff returns the relay reconnect schedule.
func (c *Config) Backoff() common.Backoff {
	b := common.DefaultBackoff()
	b.MaxAttempts = c.Relay.MaxReconnectAttempts
	return b
}
