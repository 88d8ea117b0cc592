package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Veraticus/browser2excel/internal/cli"
	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/Veraticus/browser2excel/internal/config"
	"github.com/Veraticus/browser2excel/internal/pipeline"
	"github.com/Veraticus/browser2excel/internal/relay"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func mergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Classify a batch and merge it into the spreadsheet",
		Long: `Load a batch from the page agent (or a statement file), classify every row with the
rule set and insert the rows into the workbook or Google Sheet in date order.

Rows are merged one at a time and the workbook is saved at the end, including after an
interrupt.`,
		Args: cobra.NoArgs,
		RunE: runMerge,
	}

	cmd.Flags().String("statement", "", "merge a statement file instead of the agent's page")
	cmd.Flags().String("target", "workbook", "where to merge: workbook or sheets")
	cmd.Flags().String("workbook", "", "workbook path (.xlsx)")
	cmd.Flags().String("sheet", "", "worksheet name")
	cmd.Flags().Bool("dry-run", false, "show the classified rows without merging")

	_ = viper.BindPFlag("workbook.path", cmd.Flags().Lookup("workbook"))
	_ = viper.BindPFlag("workbook.sheet", cmd.Flags().Lookup("sheet"))

	return cmd
}

func runMerge(cmd *cobra.Command, _ []string) error {
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
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	statementPath, _ := cmd.Flags().GetString("statement")

	var (
		tgt     *target
		session *pipeline.Session
	)
	if dryRun {
		session = pipeline.NewSession(engine, nil, slog.Default())
	} else {
		tgt, err = openTarget(ctx, cfg, kind)
		if err != nil {
			return err
		}
		defer func() { _ = tgt.Close() }()
		session = pipeline.NewSession(engine, tgt.mergeEngine(), slog.Default())
	}

	rows, err := loadBatch(ctx, cfg, session, statementPath)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning("Nothing to merge: no rows with a usable date"))
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatTitle(session.Source()))
	if err := cli.RenderRows(cmd.OutOrStdout(), rows); err != nil {
		return err
	}
	if dryRun {
		return nil
	}

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Rows merged so far are saved.")
	mergeCtx, stop := handler.HandleInterrupts(ctx)
	defer stop()

	bar := cli.NewProgress(cmd.ErrOrStderr(), len(rows), "Merging")
	added, mergeErr := session.AddAll(mergeCtx, func(done, _ int) { _ = bar.Set(done) })
	_ = bar.Finish()

	if err := tgt.Save(); err != nil {
		return fmt.Errorf("saving %s: %w", tgt.name, err)
	}
	if mergeErr != nil && !handler.WasInterrupted() {
		return fmt.Errorf("merged %d of %d rows: %w", added, len(rows), mergeErr)
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Merged %d rows into %s", added, tgt.name)))
	return nil
}

// loadBatch fills session from a statement file or, without one, from the page agent.
func loadBatch(ctx context.Context, cfg *config.Config, session *pipeline.Session, statementPath string) ([]pipeline.Row, error) {
	if statementPath != "" {
		st, err := extractLocal(ctx, cfg, statementPath)
		if err != nil {
			return nil, err
		}
		return session.LoadStatement(filepath.Base(statementPath), st), nil
	}

	client, err := newRelayClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Start(ctx); err != nil {
		return nil, common.NewUserError("Could not reach the relay at "+cfg.Relay.URL, err)
	}
	defer func() { _ = client.Close() }()

	reqCtx, cancel := context.WithTimeout(ctx, cfg.Relay.RequestTimeout)
	defer cancel()
	resp, err := client.Request(reqCtx, relay.ElementRequest{Reason: "merge"})
	if err != nil {
		return nil, common.NewUserError("The page agent did not answer", err)
	}
	return session.LoadElements(resp.URL, resp.Elements), nil
}
