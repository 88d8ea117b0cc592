package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Veraticus/browser2excel/internal/cli"
	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/Veraticus/browser2excel/internal/config"
	"github.com/Veraticus/browser2excel/internal/extract"
	"github.com/Veraticus/browser2excel/internal/model"
	"github.com/Veraticus/browser2excel/internal/relay"
	"github.com/spf13/cobra"
)

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Serve a bank page's cards over the relay",
		Long: `Connect to the relay as the page side. Every element request reloads the page,
marks the cards matching the stored selector and answers with their markup, date and label.
Highlight requests flag the card on the loaded page.

Without --page the agent answers every request with an empty batch.`,
		RunE: runAgent,
	}
	cmd.Flags().String("page", "", "bank page to serve (file path or http(s) URL)")
	return cmd
}

func runAgent(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	source, _ := cmd.Flags().GetString("page")

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	agent := newPageAgent(source, extract.NewSelectorStore(store), pageOptions(cfg), slog.Default())

	lost := make(chan relay.Status, 1)
	client, err := newRelayClient(cfg,
		relay.WithHandler(agent.handle),
		relay.WithStateListener(func(s relay.Status) {
			if s.ConnectionState == relay.StateDisconnected && s.LastError != "" {
				select {
				case lost <- s:
				default:
				}
			}
		}),
	)
	if err != nil {
		return err
	}
	agent.responder = client

	if err := client.Start(ctx); err != nil {
		return common.NewUserError("Could not reach the relay at "+cfg.Relay.URL, err)
	}
	defer func() { _ = client.Close() }()

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Agent connected to "+cfg.Relay.URL))
	if source == "" {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning("No --page given; requests get an empty batch"))
	}

	select {
	case <-ctx.Done():
		return nil
	case status := <-lost:
		return fmt.Errorf("%w: %s", relay.ErrReconnectExhausted, status.LastError)
	}
}

func pageOptions(cfg *config.Config) extract.Options {
	return extract.Options{
		DateAttribute:  cfg.Extract.DateAttribute,
		LabelAttribute: cfg.Extract.LabelAttribute,
	}
}

type responder interface {
	Respond(correlationID string, resp relay.ElementResponse) error
}

// pageAgent answers relay requests from a page it reloads on every element request.
type pageAgent struct {
	responder responder
	selectors *extract.SelectorStore
	client    *http.Client
	page      *extract.Page
	logger    *slog.Logger
	source    string
	opts      extract.Options
	mu        sync.Mutex
}

func newPageAgent(source string, selectors *extract.SelectorStore, opts extract.Options, logger *slog.Logger) *pageAgent {
	return &pageAgent{
		source:    source,
		selectors: selectors,
		opts:      opts,
		client:    http.DefaultClient,
		logger:    logger,
	}
}

func (a *pageAgent) handle(ctx context.Context, env relay.Envelope) {
	switch env.Type {
	case relay.TypeRequestElementData:
		resp, err := a.collect(ctx)
		if err != nil {
			a.logger.Error("failed to collect cards", "source", a.source, "error", err)
			resp = relay.ElementResponse{URL: a.source, Elements: []model.RawRecord{}}
		}
		if err := a.responder.Respond(env.CorrelationID, resp); err != nil {
			a.logger.Warn("could not answer element request", "error", err)
		}

	case relay.TypeHighlight:
		var cmd relay.HighlightCommand
		if err := env.Unmarshal(&cmd); err != nil {
			a.logger.Warn("bad highlight command", "error", err)
			return
		}
		if err := a.highlight(cmd.CardID); err != nil {
			a.logger.Warn("highlight failed", "card", cmd.CardID, "error", err)
		}

	default:
		a.logger.Debug("ignoring relay message", "type", env.Type)
	}
}

func (a *pageAgent) collect(ctx context.Context) (relay.ElementResponse, error) {
	if a.source == "" {
		return relay.ElementResponse{URL: "", Elements: []model.RawRecord{}}, nil
	}

	page, err := extract.Load(ctx, a.client, a.source)
	if err != nil {
		return relay.ElementResponse{}, err
	}
	opts := a.opts
	if a.selectors != nil {
		if opts.Selector, err = a.selectors.Get(ctx); err != nil {
			return relay.ElementResponse{}, fmt.Errorf("reading selector: %w", err)
		}
	}
	records, err := page.Mark(opts)
	if err != nil {
		return relay.ElementResponse{}, err
	}

	a.mu.Lock()
	a.page = page
	a.mu.Unlock()

	a.logger.Info("served cards", "url", page.URL, "cards", len(records))
	return relay.ElementResponse{URL: page.URL, Elements: records}, nil
}

var errNoPage = errors.New("no page loaded")

func (a *pageAgent) highlight(cardID int) error {
	a.mu.Lock()
	page := a.page
	a.mu.Unlock()
	if page == nil {
		return errNoPage
	}

	text, ok := page.Highlight(cardID)
	if !ok {
		return fmt.Errorf("%w: card %d", common.ErrNotFound, cardID)
	}
	a.logger.Info("highlighted card", "card", cardID, "text", common.Truncate(text, 80))
	return nil
}
