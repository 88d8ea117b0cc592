package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Veraticus/browser2excel/internal/certs"
	"github.com/Veraticus/browser2excel/internal/cli"
	"github.com/Veraticus/browser2excel/internal/config"
	"github.com/Veraticus/browser2excel/internal/relay"
	"github.com/Veraticus/browser2excel/internal/statement"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Long: `Run the relay hub that connects page agents with spreadsheet clients.

The server also answers /hello and /status, and accepts statement uploads on /extract.
OFX and QFX files are parsed locally; PDFs, images and text need extract.api_key.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (default "+config.DefaultServerAddr+")")
	cmd.Flags().Bool("no-tls", false, "serve plain HTTP instead of TLS")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noTLS, _ := cmd.Flags().GetBool("no-tls"); noTLS {
		cfg.Server.TLS = false
	}

	router, err := newRouter(ctx, cfg)
	if err != nil {
		return err
	}

	hub := relay.NewHub(slog.Default(), relay.WithAllowedOrigins(cfg.Server.AllowedOrigins...))
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           relay.NewMux(hub, statement.NewHandler(router, slog.Default())),
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheme := "http"
	if cfg.Server.TLS {
		tlsConfig, err := certs.NewStore(cfg.Server.CertDir).ServerConfig()
		if err != nil {
			return fmt.Errorf("preparing certificate: %w", err)
		}
		server.TLSConfig = tlsConfig
		scheme = "https"
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.Server.TLS {
			errCh <- server.ListenAndServeTLS("", "")
		} else {
			errCh <- server.ListenAndServe()
		}
	}()

	slog.Info("relay server listening", "addr", cfg.Server.Addr, "tls", cfg.Server.TLS)
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Relay listening on %s://%s", scheme, cfg.Server.Addr)))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down relay server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopHub()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// newRouter wires the local OFX parser and, when a key is configured, the document agent.
func newRouter(ctx context.Context, cfg *config.Config) (*statement.Router, error) {
	router := &statement.Router{OFX: statement.NewOFXExtractor(slog.Default())}
	if cfg.Extract.APIKey == "" {
		slog.Warn("no extract.api_key configured; only OFX/QFX statements can be extracted")
		return router, nil
	}
	agent, err := statement.NewAgent(ctx, cfg.Extract.APIKey, cfg.Extract.Model, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("creating document agent: %w", err)
	}
	router.Agent = agent
	return router, nil
}
