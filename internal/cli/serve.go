package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"budgetview/internal/amqp"
	apphttp "budgetview/internal/http"
	"budgetview/internal/log"
	"budgetview/internal/services"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON dashboard API",
		Long: "Serve the dashboard API over HTTP. Unless --offline is set the cache is refreshed " +
			"in the background whenever it goes stale. With AMQP_URL set, webhook refreshes are " +
			"queued for budgetview-worker instead of running in the server.",
		Args: cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				level = slog.LevelInfo
			}
			a.setupLogger(level, cmd.ErrOrStderr())
			if port == "" {
				port = cfg.Port
			}

			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}

			opts := []apphttp.Option{
				apphttp.WithLogger(a.logger),
				apphttp.WithClock(a.now),
			}

			var publisher *amqp.Client
			if cfg.AMQPURL != "" {
				publisher, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
				if err != nil {
					return fmt.Errorf("connect to AMQP: %w", err)
				}
				opts = append(opts, apphttp.WithPublisher(publisher))
				a.logger.Info("Webhook refreshes are queued", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
			}

			var refresher *services.Refresher
			if !a.offline {
				refresher = services.NewRefresher(svc, services.RefresherConfig{
					CheckInterval: cfg.RefreshInterval,
					Now:           a.now,
				})
			}

			srv := apphttp.NewServer(":"+port, svc, opts...)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			ctx, done := GracefulShutdown(ctx, a.logger, shutdownTimeout, func(shutdownCtx context.Context) {
				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.logger.Error("Server shutdown error", log.FieldError, err)
				}
				if refresher != nil {
					if err := refresher.Stop(shutdownCtx); err != nil {
						a.logger.Error("Refresher shutdown error", log.FieldError, err)
					}
				}
				if publisher != nil {
					if err := publisher.Close(); err != nil {
						a.logger.Error("AMQP close error", log.FieldError, err)
					}
				}
			})

			if refresher != nil {
				if err := refresher.Start(ctx); err != nil {
					cancel()
					<-done
					return fmt.Errorf("start refresher: %w", err)
				}
			}

			serveErr := make(chan error, 1)
			go func() {
				a.logger.Info("Starting budgetview server",
					log.FieldOperation, log.OpStartup,
					"port", port,
					"offline", a.offline)
				serveErr <- srv.ListenAndServe()
			}()

			select {
			case err := <-serveErr:
				cancel()
				<-done
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			case <-ctx.Done():
				WaitForShutdown(ctx, done)
				a.logger.Info("Server stopped gracefully")
				return nil
			}
		}),
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (default: PORT or 8081)")
	return cmd
}
