package main

import (
	"context"
	"errors"
	"os"
	"time"

	"budgetview/internal/amqp"
	"budgetview/internal/cli"
	"budgetview/internal/dashboard"
	"budgetview/internal/log"
	"budgetview/internal/services"
	"budgetview/internal/session"
	"budgetview/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	logger := cli.SetupLogger(cfg.LogLevel, os.Stdout).WithComponent(log.ComponentWorker)
	logger.Info("Starting budgetview-worker", log.FieldOperation, log.OpStartup)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	store, err := cli.OpenStore(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to open store", log.FieldError, err, "backend", cfg.KVBackend)
		os.Exit(1)
	}
	defer store.Close()

	stack, err := cli.NewStack(store, cfg, logger, nil, session.FireflyVerifier(cli.FireflyOptions(cfg, logger)...))
	if err != nil {
		logger.Error("Failed to initialize cache", log.FieldError, err)
		os.Exit(1)
	}

	creds, err := stack.Sessions.Current(context.Background())
	if err != nil {
		logger.Error("No server credentials: set FIREFLY_URL and FIREFLY_TOKEN or run budgetview login", log.FieldError, err)
		os.Exit(1)
	}
	remote, err := cli.RemoteFactory(cfg, logger)(creds)
	if err != nil {
		logger.Error("Failed to create remote client", log.FieldError, err, "server", creds.ServerURL)
		os.Exit(1)
	}
	svc, err := dashboard.NewService(remote, stack.Queries)
	if err != nil {
		logger.Error("Failed to create dashboard service", log.FieldError, err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	refreshWorker := worker.NewRefreshWorker(svc)
	refresher := services.NewRefresher(svc, services.RefresherConfig{CheckInterval: cfg.RefreshInterval})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx, done := cli.GracefulShutdown(ctx, logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := refresher.Stop(shutdownCtx); err != nil {
			logger.Error("Refresher shutdown error", log.FieldError, err)
		}
		stack.Queries.Wait()
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close error", log.FieldError, err)
		}
	})

	// On startup, refresh everything if requests were missed while the worker was down
	if err := refreshWorker.StartupRefreshCheck(ctx); err != nil {
		logger.Error("Failed startup refresh check", log.FieldError, err)
		// Don't exit - cached data is still served and the refresher retries
	}

	if err := refresher.Start(ctx); err != nil {
		logger.Error("Failed to start refresher", log.FieldError, err)
		cancel()
	}

	go func() {
		if err := amqpClient.ConsumeRefresh(ctx, refreshWorker.HandleRefreshMessage); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
			cancel()
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
