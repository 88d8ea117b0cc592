package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, DefaultRelayURL, cfg.Relay.URL)
	assert.Equal(t, 3*time.Second, cfg.Relay.RequestTimeout)
	assert.Equal(t, common.DefaultBackoff(), cfg.Backoff())
	assert.True(t, cfg.Server.TLS)
	assert.Equal(t, []string{"https://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "Transactions", cfg.WorkbookSheet)
	assert.True(t, filepath.IsAbs(cfg.StoragePath))
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("B2X_TEST_HOME", "/data")
	v := viper.New()
	SetDefaults(v)
	v.Set("relay.max_reconnect_attempts", 2)
	v.Set("relay.request_timeout", "500ms")
	v.Set("workbook.path", "$B2X_TEST_HOME/ledger.xlsx")
	v.Set("gemini_api_key", "key")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Backoff().MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Relay.RequestTimeout)
	assert.Equal(t, "/data/ledger.xlsx", cfg.WorkbookPath)
	assert.Equal(t, "key", cfg.Extract.APIKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value any
	}{
		{key: "relay.url", value: ""},
		{key: "relay.max_reconnect_attempts", value: -1},
		{key: "relay.request_timeout", value: "0s"},
		{key: "server.addr", value: ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(tt.key, tt.value)
			_, err := Load(v)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("B2X_DIR", "/srv")

	tests := map[string]string{
		"":                "",
		"~":               "/home/tester",
		"~/x.db":          "/home/tester/x.db",
		"$B2X_DIR/rules":  "/srv/rules",
		"/abs/~notatilde": "/abs/~notatilde",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExpandPath(in), in)
	}
}

func TestLoadSheetsConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	for _, env := range []string{
		"GOOGLE_SHEETS_CLIENT_ID", "GOOGLE_SHEETS_CLIENT_SECRET", "GOOGLE_SHEETS_REFRESH_TOKEN",
		"GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", "GOOGLE_SHEETS_SPREADSHEET_ID", "GOOGLE_SHEETS_SHEET_NAME",
	} {
		t.Setenv(env, "")
	}

	viper.Reset()
	_, err := LoadSheetsConfig()
	assert.Error(t, err)

	viper.Set("sheets.service_account_path", "/keys/sa.json")
	t.Setenv("GOOGLE_SHEETS_SPREADSHEET_ID", "sheet-123")
	cfg, err := LoadSheetsConfig()
	require.NoError(t, err)
	assert.Equal(t, "/keys/sa.json", cfg.ServiceAccountPath)
	assert.Equal(t, "sheet-123", cfg.SpreadsheetID)
	assert.Equal(t, "Transactions", cfg.SheetName)
}
