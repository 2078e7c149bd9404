package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ratewatch/config"
	"ratewatch/internal/dashboard"
	"ratewatch/internal/directory"
	"ratewatch/internal/feed"
	"ratewatch/internal/metrics"
	"ratewatch/internal/poller"
	"ratewatch/internal/upstream"
	"ratewatch/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Ratewatch.Name,
		"version": cfg.Ratewatch.Version,
	}).Info("starting ratewatch")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	metrics.Init()

	cache := feed.NewCache(cfg.Poller.HistoryLimit)
	client := upstream.NewClient(cfg.Upstream)
	instruments := directory.New(client)
	scheduler := poller.NewScheduler(time.Duration(cfg.Poller.IntervalMs)*time.Millisecond, client, cache)

	server, err := dashboard.NewServer(cfg.Dashboard, cfg.Poller, cache, scheduler, instruments, log)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard server")
		os.Exit(1)
	}

	var wg sync.WaitGroup

	if server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(ctx, cfg.Ratewatch.Name); err != nil {
				log.WithError(err).Warn("dashboard server failed")
			}
		}()
		log.WithFields(logger.Fields{"address": server.Address()}).Info("dashboard listening")
	}

	// Prime the directory and start in track-everything mode so the list
	// screen has data as soon as the first browser arrives.
	primeCtx, primeCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := instruments.Ensure(primeCtx); err != nil {
		log.WithError(err).Warn("instrument directory not yet available, dashboard will retry")
	} else {
		scheduler.PollAll(instruments.IDs())
	}
	primeCancel()

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping scheduler")
	scheduler.Stop()
	scheduler.Drain()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("ratewatch stopped")
}
