package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"hound-taskchat/internal/config"
	"hound-taskchat/internal/events"
	"hound-taskchat/internal/rpc"
	"hound-taskchat/internal/server"
	"hound-taskchat/internal/sms"
	"hound-taskchat/shared/logging"
)

const (
	shutdownTimeout = 30 * time.Second
	reapInterval    = time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers and the queue consumer",
	Long: `Starts the chat HTTP server (with the Twilio SMS webhook), the gRPC
ChatService when GRPC_PORT is set, and the chat.messages consumer when
RABBITMQ_URL is set. SIGINT or SIGTERM shuts everything down gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer logger.Sync()
	logger.Info("Starting taskchat...")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.close()
	logger.Info("Using %s task storage, LLM enabled: %t", cfg.DatabaseDriver, cfg.LLMEnabled())

	a.states.StartReaper(ctx, reapInterval)

	webhook := sms.NewWebhookHandler(a.engine, logger, cfg.TwilioAuthToken)
	webhook.SetWebhookURL(cfg.TwilioWebhookURL)
	webhook.SetDefaults(cfg.DefaultDialect, cfg.DefaultTimezone)

	httpServer := server.New(a.engine, logger, server.Options{
		APIToken:       cfg.APIToken,
		LLMEnabled:     cfg.LLMEnabled(),
		DefaultDialect: cfg.DefaultDialect,
		SMS:            webhook,
	})

	errCh := make(chan error, 3)
	go func() {
		errCh <- httpServer.Start(":" + cfg.HTTPPort)
	}()

	var grpcStop func()
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return err
		}
		gs, hs := rpc.NewGRPCServer(a.engine, logger)
		grpcStop = func() {
			hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			gs.GracefulStop()
		}
		go func() {
			logger.Info("gRPC server listening on port %s", cfg.GRPCPort)
			errCh <- gs.Serve(lis)
		}()
	}

	if a.publisher != nil {
		consumer, err := events.NewConsumer(cfg.RabbitMQURL, logger)
		if err != nil {
			return err
		}
		defer consumer.Close()
		go func() {
			err := consumer.Start(ctx, events.ChatHandler(a.engine, a.publisher, logger))
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	}

	runErr := waitForShutdown(ctx, errCh, logger)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}
	if grpcStop != nil {
		grpcStop()
	}

	logger.Info("Server stopped")
	return runErr
}

// waitForShutdown blocks until ctx is done or a server fails. It returns the
// failure, or nil for a signal.
func waitForShutdown(ctx context.Context, errCh <-chan error, logger *logging.Logger) error {
	select {
	case <-ctx.Done():
		logger.Info("Shutting down...")
		return nil
	case err := <-errCh:
		if err == nil {
			return errors.New("server stopped unexpectedly")
		}
		logger.Error("Server failed: %v", err)
		return fmt.Errorf("server failed: %w", err)
	}
}
