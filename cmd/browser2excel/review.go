package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/Veraticus/browser2excel/internal/pipeline"
	"github.com/Veraticus/browser2excel/internal/tui"
	"github.com/spf13/cobra"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review the agent's cards and add them one by one",
		Long: `Open an interactive table of the agent's current cards. Select a row to highlight its
card on the page, add it to the spreadsheet, or refresh the batch.

With --statement the table shows a statement file instead and the relay is not used.`,
		Args: cobra.NoArgs,
		RunE: runReview,
	}
	cmd.Flags().String("statement", "", "review a statement file instead of the agent's page")
	cmd.Flags().String("target", "workbook", "where to add rows: workbook or sheets")
	return cmd
}

func runReview(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := loadRuleEngine(cfg)
	if err != nil {
		return err
	}

	kind, _ := cmd.Flags().GetString("target")
	tgt, err := openTarget(ctx, cfg, kind)
	if err != nil {
		return err
	}
	defer func() { _ = tgt.Close() }()

	session := pipeline.NewSession(engine, tgt.mergeEngine(), slog.Default())
	backend := &tui.RelayBackend{
		Session: session,
		Persist: tgt.Save,
		Timeout: cfg.Relay.RequestTimeout,
	}

	if statementPath, _ := cmd.Flags().GetString("statement"); statementPath != "" {
		st, err := extractLocal(ctx, cfg, statementPath)
		if err != nil {
			return err
		}
		session.LoadStatement(filepath.Base(statementPath), st)
	} else {
		client, err := newRelayClient(cfg)
		if err != nil {
			return err
		}
		if err := client.Start(ctx); err != nil {
			return common.NewUserError("Could not reach the relay at "+cfg.Relay.URL, err)
		}
		defer func() { _ = client.Close() }()
		backend.Client = client
	}

	if err := tui.Run(ctx, backend); err != nil {
		return fmt.Errorf("review failed: %w", err)
	}
	return nil
}
