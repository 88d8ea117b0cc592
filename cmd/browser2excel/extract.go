package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Veraticus/browser2excel/internal/cli"
	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/Veraticus/browser2excel/internal/config"
	"github.com/Veraticus/browser2excel/internal/model"
	"github.com/Veraticus/browser2excel/internal/statement"
	"github.com/spf13/cobra"
)

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Turn a statement document into structured JSON",
		Long: `Upload a statement (PDF, image, text, OFX or QFX) to the relay server's /extract
endpoint and print the structured statement it returns.

With --local the document is extracted in-process instead of through the server.`,
		Args: cobra.ExactArgs(1),
		RunE: runExtract,
	}
	cmd.Flags().Bool("local", false, "extract without the relay server")
	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	local, _ := cmd.Flags().GetBool("local")
	var raw []byte
	if local {
		st, err := extractLocal(ctx, cfg, args[0])
		if err != nil {
			return err
		}
		if raw, err = json.Marshal(st); err != nil {
			return err
		}
	} else {
		base, err := serverBaseURL(cfg.Relay.URL)
		if err != nil {
			return err
		}
		client, err := newHTTPClient(cfg, base)
		if err != nil {
			return err
		}
		if raw, _, err = statement.Upload(ctx, client, base, args[0]); err != nil {
			return common.NewUserError("Extraction failed", err)
		}
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return fmt.Errorf("formatting reply: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.String())
	fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatSuccess("Extracted "+filepath.Base(args[0])))
	return nil
}

// extractLocal runs the statement router in-process.
func extractLocal(ctx context.Context, cfg *config.Config, path string) (model.Statement, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return model.Statement{}, fmt.Errorf("reading %s: %w", path, err)
	}
	router, err := newRouter(ctx, cfg)
	if err != nil {
		return model.Statement{}, err
	}
	st, err := router.Extract(ctx, statement.Document{Name: filepath.Base(path), Data: data})
	if err != nil {
		return model.Statement{}, common.NewUserError("Could not extract "+filepath.Base(path), err)
	}
	return st, nil
}
