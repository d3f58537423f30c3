package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg_channel_gate_bot/internal/config"
	"tg_channel_gate_bot/internal/feature/registry"
	"tg_channel_gate_bot/internal/feature/user"
	"tg_channel_gate_bot/internal/health"
	"tg_channel_gate_bot/internal/logging"
	"tg_channel_gate_bot/internal/store"
	"tg_channel_gate_bot/internal/telegram"
)

const (
	storeOpenTimeout        = 15 * time.Second
	storeCloseTimeout       = 5 * time.Second
	adminBootstrapTimeout   = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
	healthShutdownTimeout   = 5 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":        "startup",
		"store_driver": cfg.StoreDriver,
	}).Info("configuration loaded")

	openCtx, cancelOpen := context.WithTimeout(context.Background(), storeOpenTimeout)
	backend, err := store.Open(openCtx, cfg, logger.WithField("component", "store"))
	cancelOpen()
	if err != nil {
		logger.WithError(err).Error("store setup error")
		fmt.Fprintf(os.Stderr, "store setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithFields(logging.Fields{
		"event":        "store_ready",
		"store_driver": backend.Driver,
	}).Info("storage backend ready")

	reg := registry.NewRegistry(backend.Admins, backend.Channels, registry.MembershipSettings{
		Timeout:     cfg.MembershipTimeout,
		Concurrency: cfg.MembershipConcurrency,
	}, logger.WithField("component", "registry"))

	bootstrapCtx, cancelBootstrap := context.WithTimeout(context.Background(), adminBootstrapTimeout)
	err = reg.Bootstrap(bootstrapCtx, cfg.BootstrapAdminID, time.Now())
	cancelBootstrap()
	if err != nil {
		logger.WithError(err).Error("admin bootstrap error")
		fmt.Fprintf(os.Stderr, "admin bootstrap error: %v\n", err)
		closeStore(backend)
		os.Exit(1)
	}

	tgClient, err := telegram.NewClient(cfg, logger,
		telegram.WithRegistry(reg),
		telegram.WithUserRegistrar(user.NewRegistrar(backend.Users, logger)),
		telegram.WithStatsProvider(backend.Stats),
	)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		closeStore(backend)
		os.Exit(1)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	healthServer := health.NewServer(cfg.HTTPPort, backend, logger.WithField("component", "health"))
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelHealth()

	closeStore(backend)

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

func closeStore(backend *store.Backend) {
	ctx, cancel := context.WithTimeout(context.Background(), storeCloseTimeout)
	defer cancel()

	if err := backend.Close(ctx); err != nil {
		logging.Error("store close error", logging.Fields{"event": "store_close", "error": err})
		return
	}

	logging.Info("storage backend closed", logging.Fields{"event": "store_close"})
}
