// Command mapproxy serves normalized world-map markers and live player
// positions from two upstream JSON feeds.
//
// Usage:
//
//	mapproxy
//	mapproxy serve
//	PORT=8080 FORWARD_ID=true mapproxy serve
//	mapproxy fetch map
//	mapproxy fetch data
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mapproxy/internal/api"
	"mapproxy/internal/api/respond"
	"mapproxy/internal/config"
	"mapproxy/internal/coordinator"
	"mapproxy/internal/fetcher"
	"mapproxy/internal/ratelimit"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "mapproxy",
		Short:         "Aggregating proxy for world-map markers and live players",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(serveCmd())
	root.AddCommand(fetchCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func fetchCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:       "fetch [map|player|data]",
		Short:     "Fetch one aggregation and print it to stdout",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"map", "player", "data"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			client, coord := newCoordinator(cfg, logger)
			defer client.Close()

			kinds := map[string]coordinator.Kind{
				"map":    coordinator.KindMap,
				"player": coordinator.KindPlayer,
				"data":   coordinator.KindCombined,
			}
			payload, err := coord.Handle(cmd.Context(), coordinator.Request{Kind: kinds[args[0]], ID: id})
			if err != nil {
				return err
			}

			resp := respond.JSON(http.StatusOK, payload, cfg.PrettyJSON)
			if resp.Status != http.StatusOK {
				return fmt.Errorf("encode %s payload: %s", args[0], resp.Body)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(resp.Body))
			return err
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Route id, forwarded upstream when FORWARD_ID is set")
	return cmd
}

func runServe(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	client, coord := newCoordinator(cfg, logger)
	defer client.Close()

	router := api.NewRouter(coord, cfg, logger)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting map proxy",
			"addr", srv.Addr,
			"player_url", cfg.PlayerURL,
			"map_url", cfg.MapURL,
			"forward_id", cfg.ForwardID,
			"metrics", cfg.MetricsEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// setup loads configuration and installs the process logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newCoordinator(cfg *config.Config, logger *slog.Logger) (*fetcher.Client, *coordinator.Coordinator) {
	client := fetcher.NewClient(fetcher.Options{
		Timeout:   cfg.UpstreamTimeout,
		UserAgent: cfg.UserAgent,
		Limiter:   ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Breaker: fetcher.BreakerSettings{
			Enabled:     cfg.BreakerEnabled,
			MaxFailures: cfg.BreakerMaxFailures,
			OpenTimeout: cfg.BreakerOpenTimeout,
		},
		Logger: logger,
	})

	coord := coordinator.New(client, coordinator.Config{
		PlayerURL: cfg.PlayerURL,
		MapURL:    cfg.MapURL,
		ForwardID: cfg.ForwardID,
	}, logger)
	return client, coord
}
