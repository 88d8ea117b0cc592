// Package sheets backs a merge table with a Google Sheets worksheet.
package sheets

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrNoAuth is returned when neither OAuth2 credentials nor a service account are configured.
var ErrNoAuth = errors.New("no authentication method configured")

// Config holds the configuration for a Google Sheets table.
type Config struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountPath string
	SpreadsheetID      string
	SheetName          string
	DateColumn         string
	RetryAttempts      int
	RetryDelay         time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SheetName:     "Transactions",
		DateColumn:    "Date",
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// LoadFromEnv fills unset fields from GOOGLE_SHEETS_* environment variables.
func (c *Config) LoadFromEnv() {
	setIfEmpty(&c.ClientID, "GOOGLE_SHEETS_CLIENT_ID")
	setIfEmpty(&c.ClientSecret, "GOOGLE_SHEETS_CLIENT_SECRET")
	setIfEmpty(&c.RefreshToken, "GOOGLE_SHEETS_REFRESH_TOKEN")
	setIfEmpty(&c.ServiceAccountPath, "GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH")
	setIfEmpty(&c.SpreadsheetID, "GOOGLE_SHEETS_SPREADSHEET_ID")
	setIfEmpty(&c.SheetName, "GOOGLE_SHEETS_SHEET_NAME")
}

func setIfEmpty(field *string, env string) {
	if *field == "" {
		*field = os.Getenv(env)
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	hasOAuth := c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
	hasServiceAccount := c.ServiceAccountPath != ""

	if !hasOAuth && !hasServiceAccount {
		return ErrNoAuth
	}
	if hasOAuth && hasServiceAccount {
		return fmt.Errorf("multiple authentication methods configured; use either OAuth2 or service account")
	}
	if c.SpreadsheetID == "" {
		return fmt.Errorf("spreadsheet id is required")
	}
	if c.SheetName == "" {
		return fmt.Errorf("sheet name is required")
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	return nil
}
