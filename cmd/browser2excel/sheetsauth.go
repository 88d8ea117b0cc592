package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/browser2excel/internal/cli"
	"github.com/Veraticus/browser2excel/internal/sheets"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func sheetsAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets-auth",
		Short: "Authorize Google Sheets as a merge target",
		Long: `Authorize access to Google Sheets with OAuth2.

This opens your browser for consent and stores the refresh token in your config file
so "merge --target sheets" can write to sheets.spreadsheet_id.`,
		Args: cobra.NoArgs,
		RunE: runSheetsAuth,
	}

	cmd.Flags().String("client-id", "", "OAuth2 client ID (overrides config)")
	cmd.Flags().String("client-secret", "", "OAuth2 client secret (overrides config)")

	return cmd
}

func runSheetsAuth(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	clientID := viper.GetString("sheets.client_id")
	clientSecret := viper.GetString("sheets.client_secret")
	if flagID, _ := cmd.Flags().GetString("client-id"); flagID != "" {
		clientID = flagID
	}
	if flagSecret, _ := cmd.Flags().GetString("client-secret"); flagSecret != "" {
		clientSecret = flagSecret
	}
	if clientID == "" {
		clientID = os.Getenv("GOOGLE_SHEETS_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET")
	}
	if clientID == "" || clientSecret == "" {
		return fmt.Errorf("OAuth2 credentials not found; set sheets.client_id and sheets.client_secret or pass --client-id and --client-secret")
	}

	configDir, err := configDirectory()
	if err != nil {
		return err
	}
	tokenFile := filepath.Join(configDir, "sheets-token.json")
	slog.Info("Starting Google Sheets authentication", "token_file", tokenFile)

	token, err := sheets.Authenticate(ctx, sheets.OAuth2Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenFile:    tokenFile,
	}, func(url string) {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Opening your browser. If it does not open, visit:"))
		fmt.Fprintln(cmd.OutOrStdout(), url)
		openBrowser(url)
	})
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	viper.Set("sheets.client_id", clientID)
	viper.Set("sheets.client_secret", clientSecret)
	viper.Set("sheets.refresh_token", token.RefreshToken)

	if err := saveConfig(configDir); err != nil {
		slog.Warn("Failed to update config file with refresh token", "error", err)
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning("Could not save the refresh token; add this to config.yaml:"))
		fmt.Fprintf(cmd.OutOrStdout(), "sheets:\n  refresh_token: %q\n", token.RefreshToken)
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Google Sheets is authorized"))
	if viper.GetString("sheets.spreadsheet_id") == "" {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Set sheets.spreadsheet_id to the sheet you want to merge into"))
	}
	return nil
}

func configDirectory() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "browser2excel"), nil
}

func saveConfig(configDir string) error {
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = filepath.Join(configDir, "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0o750); err != nil {
		return err
	}
	return viper.WriteConfigAs(configFile)
}
