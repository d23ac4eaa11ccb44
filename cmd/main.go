package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"icsync/internal/config"
	"icsync/internal/google"
	"icsync/internal/ics"
	"icsync/internal/server"
	"icsync/internal/syncer"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "icsync",
		Usage: "Mirror an Outlook ICS feed into a Google Calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "icsync.yaml", Usage: "Path to the YAML config file."},
		},
		Commands: []*cli.Command{
			authCommand(),
			syncCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to obtain a refresh token.",
		Action: func(c *cli.Context) error {
			logger := setupLogger("info")
			logger.Info("Starting Google authentication flow.")

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}

			oauthConfig, err := google.GetOAuthConfigForAuthFlow(cfg.ClientID, cfg.ClientSecret)
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthConfig.AuthCodeURL(uuid.New().String(), oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(oauthConfig, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			tokenFile := "token-" + cfg.Account + ".json"
			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run the calendar synchronization once, or on a cron schedule.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be synced without making changes."},
			&cli.StringFlag{Name: "cron", Usage: "Run on a cron schedule (e.g. \"*/15 * * * *\") instead of once."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfigAndLogger(c)
			if err != nil {
				return err
			}

			if c.Bool("dry-run") {
				logger.Info("Performing a dry run. No changes will be made.")
			}

			s, err := buildSyncer(c.Context, logger, cfg, c.Bool("dry-run"))
			if err != nil {
				return err
			}

			schedule := c.String("cron")
			if schedule == "" {
				schedule = cfg.Schedule
			}

			if schedule != "" {
				logger.Info("Starting scheduler.", "schedule", schedule)
				runner := cron.New()
				_, err := runner.AddFunc(schedule, func() {
					if _, err := s.Sync(c.Context); err != nil {
						logger.Error("Sync cycle failed", "error", err)
					}
				})
				if err != nil {
					return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
				}
				runner.Run()
				return nil
			}

			logger.Info("Running a single sync cycle.")
			if _, err := s.Sync(c.Context); err != nil {
				return fmt.Errorf("sync cycle failed: %w", err)
			}
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Expose an authenticated on-demand sync trigger over HTTP.",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfigAndLogger(c)
			if err != nil {
				return err
			}
			if cfg.SyncToken == "" {
				return fmt.Errorf("sync_token must be set to serve the on-demand trigger")
			}

			s, err := buildSyncer(c.Context, logger, cfg, false)
			if err != nil {
				return err
			}

			srv := server.New(logger, s, cfg.SyncToken)
			logger.Info("Listening for sync triggers.", "addr", cfg.Listen)
			return http.ListenAndServe(cfg.Listen, srv.Handler())
		},
	}
}

func loadConfigAndLogger(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, setupLogger(cfg.LogLevel), nil
}

func buildSyncer(ctx context.Context, logger *slog.Logger, cfg *config.Config, dryRun bool) (*syncer.Syncer, error) {
	gClient, err := google.NewClient(ctx, logger, cfg.ClientID, cfg.ClientSecret, cfg.Account)
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}
	feed := ics.NewClient(logger)
	return syncer.NewSyncer(logger, feed, gClient, cfg, dryRun), nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
