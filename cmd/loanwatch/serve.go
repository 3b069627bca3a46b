package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"loanwatch/internal/dashboard"
	"loanwatch/internal/favorites"
	"loanwatch/internal/metrics"
	"loanwatch/internal/refresher"
	"loanwatch/logger"
	"loanwatch/writer"
)

const addressFlag = "address"

func serveCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Runs the refresher, the scheduler and the dashboard until interrupted",
		Args:  cobra.NoArgs,
		RunE:  serveFunc,
	}
	c.Flags().String(addressFlag, "", "Wallet address to watch on startup (overrides refresh.address)")
	return c
}

func serveFunc(c *cobra.Command, _ []string) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if address, _ := c.Flags().GetString(addressFlag); address != "" {
		cfg.Refresh.Address = address
	}

	log := logger.GetLogger()
	log.WithFields(logger.Fields{
		"service": cfg.Loanwatch.Name,
		"version": cfg.Loanwatch.Version,
	}).Info("starting loanwatch")

	ctx := c.Context()
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	metrics.Configure(cfg.Metrics)
	metrics.Init()
	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch)
	}

	store, err := favorites.Open(cfg.Favorites.Path)
	if err != nil {
		return err
	}

	r, calc := newRefresher(cfg)
	r.Subscribe(refresher.ObserverFunc(metrics.Observe))

	if cfg.Alerts.Kafka.Enabled {
		alerts, err := writer.NewAlertWriter(cfg)
		if err != nil {
			return err
		}
		if err := alerts.Start(ctx); err != nil {
			return err
		}
		defer alerts.Stop()
		r.Subscribe(alerts)
	} else {
		log.WithComponent("main").Info("kafka alerts disabled; skipping alert writer")
	}

	srv, err := dashboard.NewServer(cfg.Dashboard, log, dashboard.App{Refresher: r, Favorites: store, Engine: calc})
	if err != nil {
		return err
	}

	if cfg.Refresh.Address != "" {
		res := r.Refresh(ctx, cfg.Refresh.Address)
		log.WithComponent("main").WithFields(logger.Fields{
			"address": res.Address,
			"outcome": string(res.Outcome),
		}).Info("initial refresh finished")
	}

	scheduler := refresher.NewScheduler(cfg, r)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	log.Info("all components started successfully")

	if srv != nil {
		if err := srv.Run(ctx, cfg.Loanwatch.Name); err != nil {
			return err
		}
	} else {
		<-ctx.Done()
	}

	log.Info("starting graceful shutdown")
	return nil
}
