package config

import (
	"github.com/Veraticus/browser2excel/internal/sheets"
	"github.com/spf13/viper"
)

// LoadSheetsConfig loads Google Sheets configuration from Viper and environment variables.
// It follows this precedence:
// 1. Viper configuration (from config file or B2X_ env vars)
// 2. Direct environment variables (GOOGLE_SHEETS_*)
// 3. Default values
func LoadSheetsConfig() (*sheets.Config, error) {
	config := sheets.DefaultConfig()
	config.SheetName = ""

	config.ServiceAccountPath = ExpandPath(viper.GetString("sheets.service_account_path"))
	config.ClientID = viper.GetString("sheets.client_id")
	config.ClientSecret = viper.GetString("sheets.client_secret")
	config.RefreshToken = viper.GetString("sheets.refresh_token")
	config.SpreadsheetID = viper.GetString("sheets.spreadsheet_id")
	config.SheetName = viper.GetString("sheets.sheet_name")
	if n := viper.GetInt("sheets.retry_attempts"); n > 0 {
		config.RetryAttempts = n
	}

	config.LoadFromEnv()
	config.ServiceAccountPath = ExpandPath(config.ServiceAccountPath)
	if config.SheetName == "" {
		config.SheetName = sheets.DefaultConfig().SheetName
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
