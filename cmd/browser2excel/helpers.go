package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/Veraticus/browser2excel/internal/certs"
	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/Veraticus/browser2excel/internal/config"
	"github.com/Veraticus/browser2excel/internal/merge"
	"github.com/Veraticus/browser2excel/internal/relay"
	"github.com/Veraticus/browser2excel/internal/rules"
	"github.com/Veraticus/browser2excel/internal/sheets"
	"github.com/Veraticus/browser2excel/internal/storage"
	"github.com/Veraticus/browser2excel/internal/workbook"
	"github.com/gorilla/websocket"
	"github.com/spf13/viper"
)

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// initStorage opens the settings database and brings its schema up to date.
func initStorage(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.StoragePath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func loadRuleEngine(cfg *config.Config) (*rules.Engine, error) {
	set, err := rules.Load(cfg.RulesPath)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("Could not load rules from %s", cfg.RulesPath), err)
	}
	return rules.NewEngine(set, rules.WithLogger(slog.Default()))
}

// clientTLS trusts the local relay certificate for localhost URLs.
func clientTLS(cfg *config.Config, rawURL string) (*tls.Config, error) {
	if cfg.Relay.InsecureSkipVerify {
		return &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}, nil // #nosec G402
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	host := u.Hostname()
	if host != "localhost" && net.ParseIP(host) == nil {
		return nil, nil
	}
	store := certs.NewStore(cfg.Server.CertDir)
	if _, err := os.Stat(store.CertFile()); err != nil {
		return nil, nil
	}
	return store.ClientConfig()
}

func newRelayClient(cfg *config.Config, opts ...relay.ClientOption) (*relay.Client, error) {
	tlsConfig, err := clientTLS(cfg, cfg.Relay.URL)
	if err != nil {
		return nil, err
	}
	dialer := *websocket.DefaultDialer
	dialer.TLSClientConfig = tlsConfig

	base := []relay.ClientOption{
		relay.WithBackoff(cfg.Backoff()),
		relay.WithDialer(&dialer),
		relay.WithClientLogger(slog.Default()),
	}
	return relay.NewClient(cfg.Relay.URL, append(base, opts...)...), nil
}

func newHTTPClient(cfg *config.Config, baseURL string) (*http.Client, error) {
	tlsConfig, err := clientTLS(cfg, baseURL)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &http.Client{Transport: transport, Timeout: 5 * time.Minute}, nil
}

// serverBaseURL derives the relay server's HTTP address from its hub URL.
func serverBaseURL(relayURL string) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", fmt.Errorf("invalid relay URL %q: %w", relayURL, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: relay URL scheme %q", common.ErrInvalidConfig, u.Scheme)
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/hub")
	u.RawQuery = ""
	return strings.TrimRight(u.String(), "/"), nil
}

// target is an opened merge table and how to persist it.
type target struct {
	table  merge.Table
	save   func() error
	close  func() error
	name   string
	shared bool
}

// mergeEngine returns a merge engine writing to the target's table.
func (t *target) mergeEngine() *merge.Engine {
	opts := []merge.Option{merge.WithLogger(slog.Default())}
	if t.shared {
		opts = append(opts, merge.WithSharedTable())
	}
	return merge.NewEngine(t.table, opts...)
}

func (t *target) Save() error {
	if t.save == nil {
		return nil
	}
	return t.save()
}

func (t *target) Close() error {
	if t.close == nil {
		return nil
	}
	return t.close()
}

func openTarget(ctx context.Context, cfg *config.Config, kind string) (*target, error) {
	layout := merge.DefaultLayout()
	header := layout.Headers()

	switch kind {
	case "workbook":
		if cfg.WorkbookPath == "" {
			return nil, common.NewUserError("Set workbook.path or pass --workbook", common.ErrMissingConfig)
		}
		wb, err := workbook.Open(cfg.WorkbookPath, cfg.WorkbookSheet, header,
			workbook.WithDateColumn(layout.Date), workbook.WithLogger(slog.Default()))
		if err != nil {
			return nil, err
		}
		return &target{table: wb, save: wb.Save, close: wb.Close, name: cfg.WorkbookPath}, nil

	case "sheets":
		sheetsConfig, err := config.LoadSheetsConfig()
		if err != nil {
			return nil, common.NewUserError("Google Sheets is not configured; run browser2excel sheets-auth first", err)
		}
		sheetsConfig.DateColumn = layout.Date
		table, err := sheets.NewTable(ctx, *sheetsConfig, slog.Default())
		if err != nil {
			return nil, err
		}
		existing, err := table.Header(ctx)
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			if err := table.WriteHeader(ctx, header); err != nil {
				return nil, fmt.Errorf("writing header: %w", err)
			}
		}
		return &target{table: table, name: "spreadsheet " + sheetsConfig.SpreadsheetID, shared: true}, nil
	}
	return nil, fmt.Errorf("%w: unknown target %q (use workbook or sheets)", common.ErrInvalidConfig, kind)
}

func openBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start() //nolint:gosec,forbidigo
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start() //nolint:gosec,forbidigo
	case "darwin":
		err = exec.Command("open", url).Start() //nolint:gosec,forbidigo
	}
	if err != nil {
		slog.Debug("Failed to open browser", "error", err)
	}
}
