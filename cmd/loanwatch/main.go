package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"loanwatch/config"
	"loanwatch/logger"
)

const configFlag = "config"

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("loanwatch exited with error")
		stop()
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	c := &cobra.Command{
		Use:           "loanwatch",
		Short:         "Tracks the health of AlphBanx loan positions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.PersistentFlags().String(configFlag, "", "Path to configuration file (defaults to config/config.yml or the APP_ENV variant)")
	c.AddCommand(
		serveCommand(),
		checkCommand(),
		deriveCommand(),
		calcCommand(),
		favoritesCommand(),
	)
	return c
}

// loadConfig reads the configuration named by --config and applies its
// logging section to the global logger.
func loadConfig(c *cobra.Command) (*config.Config, error) {
	path, err := c.Flags().GetString(configFlag)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := logger.GetLogger().Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		return nil, err
	}
	return cfg, nil
}
