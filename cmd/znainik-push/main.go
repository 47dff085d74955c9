package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/indeavr/znainik/internal/config"
	"github.com/indeavr/znainik/internal/logging"
	"github.com/indeavr/znainik/internal/pushclient"
	"github.com/indeavr/znainik/internal/server"
	"github.com/indeavr/znainik/internal/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	genVAPID := flag.Bool("gen-vapid", false, "Print a fresh VAPID key pair and exit")
	flag.Parse()

	if *genVAPID {
		publicKey, privateKey, err := pushclient.GenerateVAPIDKeys()
		if err != nil {
			log.Fatalf("generate vapid keys: %v", err)
		}
		fmt.Printf("ZNAINIK_PUSH_VAPID_PUBLIC_KEY=%s\n", publicKey)
		fmt.Printf("ZNAINIK_PUSH_VAPID_PRIVATE_KEY=%s\n", privateKey)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStore(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	var sender service.PushSender
	pushClient, err := pushclient.New(pushclient.Options{
		Subscriber:      cfg.Push.Subscriber,
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		TTL:             cfg.Push.TTL,
		Urgency:         cfg.Push.Urgency,
		Timeout:         cfg.Push.RequestTimeout,
	})
	if err != nil {
		logger.Warn("push delivery disabled", zap.Error(err))
	} else {
		sender = pushClient
	}

	authSvc := service.NewAuthService(cfg)
	if authSvc.Enabled() && cfg.Auth.Password == "" {
		logger.Warn("admin password is not set, admin login will be rejected")
	}
	subSvc := service.NewSubscriptionService(store, logger)
	dispatchSvc := service.NewDispatchService(store, sender, cfg, logger)
	historySvc := service.NewDispatchLogService(store)

	srv := server.New(cfg, logger, subSvc, dispatchSvc, historySvc, authSvc)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	// graceful shutdown
	waitForSignal()
	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
