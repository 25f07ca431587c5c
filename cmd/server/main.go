// Command server runs the chatwarden HTTP API, the Telegram bot and the Kafka consumer.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatwarden/internal/bootstrap"
	"chatwarden/internal/config"
	"chatwarden/internal/ingest"
	"chatwarden/internal/middleware"
	"chatwarden/internal/observability"
	"chatwarden/internal/server"
	"chatwarden/internal/telegram"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	observability.SetLogger(middleware.Logger)

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "chatwarden",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   1,
	})
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		middleware.Logger.Error("server stopped with error", slog.String("error", err.Error()))
	}

	tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdownTracing(tctx); err != nil {
		log.Printf("tracing shutdown error: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{SeedDemo: cfg.Env == "development"})
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rt.Close(cctx)
	}()

	if err := rt.Start(ctx); err != nil {
		return err
	}

	srv := server.NewServer(cfg, rt)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Listen)
	g.Go(func() error {
		<-gctx.Done()
		middleware.Logger.Info("Shutting down server...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	updates := telegram.NewUpdates(rt.Pipeline, rt.Roster, middleware.Logger)
	g.Go(func() error {
		return rt.Telegram.Start(gctx, updates.Handle)
	})

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		consumer, err := ingest.NewConsumer(ingest.ConsumerConfig{
			Brokers:  brokers,
			GroupID:  cfg.KafkaGroupID,
			Topics:   []string{cfg.KafkaInboundTopic},
			ClientID: "chatwarden",
		}, rt.Pipeline)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return consumer.Run(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			return consumer.Close()
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
