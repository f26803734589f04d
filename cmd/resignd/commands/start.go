package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/resignhq/resign/internal/logger"
	"github.com/resignhq/resign/internal/server"
	"github.com/resignhq/resign/pkg/config"
	"github.com/resignhq/resign/pkg/identity"
	"github.com/resignhq/resign/pkg/metrics"
	"github.com/resignhq/resign/pkg/policy"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the RESIGN session server",
	Long: `Start the RESIGN session server with the specified configuration.

The server runs in the foreground until it receives SIGINT or SIGTERM, then
drains active sessions and exits.

Examples:
  # Start with the default config location
  resignd start

  # Start with a custom config file
  resignd start --config /etc/resign/config.yaml

  # Start with environment variable overrides
  RESIGN_LOGGING_LEVEL=DEBUG resignd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return err
	}

	logger.Info("RESIGN server starting", "version", Version)
	logger.Info("configuration loaded", "source", configSource(resolveConfigFile()))

	gate, err := policy.Load(cfg.Policy.Path)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	logger.Info("policy loaded", "path", cfg.Policy.Path, "rules", gate.Len())

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store failed", "error", err)
		}
	}()

	verifier := identity.BcryptVerifier{}

	// Signal-driven cancellation drives graceful shutdown everywhere.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := seedBootstrap(ctx, store, cfg, verifier); err != nil {
		return fmt.Errorf("bootstrap accounts: %w", err)
	}

	if cfg.Metrics.Enabled {
		logger.Info("metrics endpoint enabled", "listen", cfg.Metrics.Listen)
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	} else {
		logger.Info("metrics endpoint disabled")
	}

	tlsConfig, err := serverTLS(cfg)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		BindAddress:     cfg.Server.BindAddress,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		MaxConnections:  cfg.Server.MaxConnections,
		TLS:             tlsConfig,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, server.NewDispatcher(store, gate, verifier))

	logger.Info("server is running, press Ctrl+C to stop")
	if err := srv.Serve(ctx); err != nil {
		logger.Error("server error", "error", err)
		return err
	}

	logger.Info("server stopped gracefully")
	return nil
}

// resolveConfigFile picks the effective config file: the --config flag when
// given, otherwise config.yaml in the working directory when present.
func resolveConfigFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

// configSource describes where the configuration came from.
func configSource(path string) string {
	if path == "" {
		return "defaults"
	}
	return path
}
