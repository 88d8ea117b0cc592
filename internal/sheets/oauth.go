package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"
)

// ErrAuthTimeout is returned when the browser never completes the consent flow.
var ErrAuthTimeout = errors.New("authentication timed out")

// OAuth2Config holds the desktop OAuth2 client used to obtain a refresh token.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	TokenFile    string
	ListenAddr   string
	Timeout      time.Duration
}

func oauthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{sheets.SpreadsheetsScope},
	}
}

// Authenticate runs the consent flow through a loopback callback and returns the token.
// The auth URL is passed to openURL so the caller decides how to present it.
func Authenticate(ctx context.Context, config OAuth2Config, openURL func(string)) (*oauth2.Token, error) {
	if config.ListenAddr == "" {
		config.ListenAddr = "localhost:8085"
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}

	listener, err := net.Listen("tcp", config.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}

	oc := oauthConfig(config.ClientID, config.ClientSecret, "http://"+listener.Addr().String()+"/callback")
	state := uuid.NewString()
	codes := make(chan string, 1)
	failures := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			failures <- fmt.Errorf("no authorization code received")
			http.Error(w, "no authorization code received", http.StatusBadRequest)
			return
		}
		codes <- code
		_, _ = fmt.Fprintln(w, "Authentication complete. You can close this window.")
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			failures <- fmt.Errorf("callback server: %w", serveErr)
		}
	}()
	defer func() { _ = server.Shutdown(context.Background()) }()

	openURL(oc.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	var code string
	select {
	case code = <-codes:
	case err := <-failures:
		return nil, err
	case <-time.After(config.Timeout):
		return nil, ErrAuthTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if config.TokenFile != "" {
		if err := saveToken(config.TokenFile, token); err != nil {
			slog.Warn("Failed to save token to file", "error", err, "file", config.TokenFile)
		}
	}
	return token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}
