package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/browser2excel/internal/cli"
	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/Veraticus/browser2excel/internal/relay"
	"github.com/spf13/cobra"
)

// serverStatus is the /status reply.
type serverStatus struct {
	Clients []relay.PeerInfo `json:"clients"`
	Peers   int              `json:"peers"`
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the relay server and its connected clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			base, err := serverBaseURL(cfg.Relay.URL)
			if err != nil {
				return err
			}
			client, err := newHTTPClient(cfg, base)
			if err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, base+"/status", nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return common.NewUserError("Relay server is not reachable at "+base, err)
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return fmt.Errorf("status request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}

			var status serverStatus
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return fmt.Errorf("decoding status: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStatus(base, status))
			return nil
		},
	}
}

func renderStatus(base string, status serverStatus) string {
	lines := []string{cli.FormatSuccess(fmt.Sprintf("%d connected", status.Peers))}
	for _, peer := range status.Clients {
		lines = append(lines, fmt.Sprintf("%s  %s  since %s", peer.ID, peer.Remote, peer.ConnectedAt.Format(time.TimeOnly)))
	}
	return cli.RenderBox(cli.LinkIcon+" "+base, strings.Join(lines, "\n")) + "\n"
}
