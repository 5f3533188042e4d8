// Command oauth-init authorizes mealtrack-worker to write the meal
// spreadsheet as a Google user, for accounts that cannot share a sheet with a
// service account. It saves the token where GOOGLE_OAUTH_TOKEN_FILE points.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"mealtrack/internal/cli"
	applog "mealtrack/internal/log"
	gsheet "mealtrack/internal/sheets/google"
)

func main() {
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentSheets, os.Stderr)

	clientJSON := []byte(cfg.GoogleOAuthClientJSON)
	if len(clientJSON) == 0 {
		if cfg.GoogleOAuthClientFile == "" {
			logger.Error("Set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
			os.Exit(1)
		}
		b, err := os.ReadFile(cfg.GoogleOAuthClientFile)
		if err != nil {
			logger.Error("Failed to read OAuth client file", applog.FieldError, err, "path", cfg.GoogleOAuthClientFile)
			os.Exit(1)
		}
		clientJSON = b
	}
	oc, err := gsheet.OAuthConfig(clientJSON)
	if err != nil {
		logger.Error("Invalid OAuth client", applog.FieldError, err)
		os.Exit(1)
	}

	// The OAuth client must list http://localhost:<port>/callback as a redirect URI.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	tok, err := gsheet.AuthorizeUser(ctx, oc, cfg.OAuthRedirectPort, func(url string) {
		fmt.Printf("Open this URL to authorize:\n%s\n", url)
	})
	if err != nil {
		logger.Error("Authorization failed", applog.FieldError, err)
		os.Exit(1)
	}

	out := cfg.GoogleOAuthTokenFile
	if out == "" {
		out = "token.json"
	}
	if err := gsheet.SaveToken(out, tok); err != nil {
		logger.Error("Failed to save token", applog.FieldError, err)
		os.Exit(1)
	}
	fmt.Printf("Saved token to %s\n", out)
}
