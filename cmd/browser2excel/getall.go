package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/Veraticus/browser2excel/internal/model"
	"github.com/Veraticus/browser2excel/internal/relay"
	"github.com/spf13/cobra"
)

func getAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-all",
		Short: "List the cards on the agent's page",
		Long: `Ask the page agent for its cards and print one line per card with a usable date,
newest first:

  id;dd/MM/yyyy;label`,
		Args: cobra.NoArgs,
		RunE: runGetAll,
	}
}

func runGetAll(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := newRelayClient(cfg)
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return common.NewUserError("Could not reach the relay at "+cfg.Relay.URL, err)
	}
	defer func() { _ = client.Close() }()

	reqCtx, cancel := context.WithTimeout(ctx, cfg.Relay.RequestTimeout)
	defer cancel()
	resp, err := client.Request(reqCtx, relay.ElementRequest{Reason: "get-all"})
	if err != nil {
		return common.NewUserError("The page agent did not answer", err)
	}

	for _, line := range cardLines(resp.Elements) {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

// cardLines renders records with a parsable date in reverse page order.
func cardLines(records []model.RawRecord) []string {
	lines := make([]string, 0, len(records))
	for _, record := range slices.Backward(records) {
		date, ok := record.ParsedDate()
		if !ok {
			continue
		}
		lines = append(lines, strings.Join([]string{
			strconv.Itoa(record.ID),
			date.Format(model.DisplayDateLayout),
			record.LabelText(),
		}, ";"))
	}
	return lines
}
