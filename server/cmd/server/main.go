package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/soilwatch/soilwatch/pkg/wire"
	"github.com/soilwatch/soilwatch/server/internal/alerts"
	"github.com/soilwatch/soilwatch/server/internal/api"
	"github.com/soilwatch/soilwatch/server/internal/auth"
	"github.com/soilwatch/soilwatch/server/internal/config"
	"github.com/soilwatch/soilwatch/server/internal/db"
	"github.com/soilwatch/soilwatch/server/internal/events"
	"github.com/soilwatch/soilwatch/server/internal/ingest"
	"github.com/soilwatch/soilwatch/server/internal/metrics"
	"github.com/soilwatch/soilwatch/server/internal/receiver"
	"github.com/soilwatch/soilwatch/server/internal/sms"
	"github.com/soilwatch/soilwatch/server/internal/store"
	"github.com/soilwatch/soilwatch/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	seedPath := flag.String("seed", "", "optional YAML file of plant types, plants and users to upsert at startup")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// A missing .env is normal in production.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env", "err", err)
	}

	slog.Info("soilwatch-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	sc := cfg.Server

	slog.Info("config loaded",
		"grpc_port", sc.GRPCPort,
		"http_port", sc.HTTPPort,
		"auth_mode", sc.Auth.Mode,
		"storage", sc.Storage.Driver,
		"suppression_window", sc.Alerts.SuppressionWindow,
	)

	if err := run(*configPath, *seedPath, sc); err != nil {
		slog.Error("soilwatch-server stopped", "err", err)
		os.Exit(1)
	}
}

func run(configPath, seedPath string, sc config.ServerConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gdb, err := db.Open(sc.Storage.Driver, sc.Storage.DSN())
	if err != nil {
		return err
	}
	repo := db.New(gdb)
	defer repo.Close() //nolint:errcheck

	if seedPath != "" {
		seed, err := db.LoadSeed(seedPath)
		if err != nil {
			return err
		}
		if err := seed.Apply(ctx, repo, alerts.NormalizePlantType); err != nil {
			return err
		}
		slog.Info("seed applied", "path", seedPath)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	readings := store.New(sc.Readings.TTL)
	hub := ws.New(ws.DefaultBacklog)

	publishers := events.Multi{hub}
	var kafka *events.KafkaPublisher
	if len(sc.Kafka.Brokers) > 0 {
		kafka = events.NewKafkaPublisher(sc.Kafka.Brokers, sc.Kafka.Topic)
		publishers = append(publishers, kafka)
		slog.Info("alert events enabled", "brokers", sc.Kafka.Brokers, "topic", sc.Kafka.Topic)
	}

	var sender alerts.Sender = sms.LogSender{}
	if url := sc.SMS.URL(); url != "" {
		sender = sms.NewGateway(sms.Options{
			URL:             url,
			Token:           sc.SMS.Token(),
			From:            sc.SMS.Sender,
			BreakerFailures: sc.SMS.BreakerFailures,
			BreakerCooldown: sc.SMS.BreakerCooldown,
		})
	} else {
		slog.Warn("no SMS gateway configured, alerts are only logged")
	}

	pipeline := alerts.NewPipeline(alerts.Deps{
		Plants:     repo,
		Catalog:    repo,
		Recipients: repo,
		Records:    repo,
		Sender:     sender,
		Readings:   readings,
		Publisher:  publishers,
	}, alerts.Options{
		CatalogCacheTTL:   sc.Catalog.CacheTTL,
		SuppressionWindow: sc.Alerts.SuppressionWindow,
		Settings:          settingsFrom(sc.Alerts),
	})

	// gRPC receiver with optional API key authentication.
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(auth.APIKeyInterceptor(
		sc.Auth.Mode,
		sc.Auth.EffectiveHeader(),
		sc.Auth.Key(),
	)))
	wire.RegisterReadingServiceServer(grpcSrv, receiver.New(pipeline))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen on gRPC port %d: %w", sc.GRPCPort, err)
	}

	apiHandler := api.New(api.Deps{
		Pipeline: pipeline,
		Readings: readings,
		Alerts:   repo,
		DB:       repo,
		Metrics:  metrics.Handler(reg),
		Stream:   hub,
	}, mux.MiddlewareFunc(auth.APIKeyMiddleware(
		sc.Auth.Mode,
		sc.Auth.EffectiveHeader(),
		sc.Auth.Key(),
		auth.Paths{
			Open:  []string{"/api/v1/health", "/metrics"},
			Query: []string{"/ws/alerts"},
		},
	)))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           httpHandler(apiHandler, sc.Auth.EffectiveHeader(), os.Stderr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { readings.Run(gctx); return nil })
	g.Go(func() error { hub.Run(gctx); return nil })
	if kafka != nil {
		g.Go(func() error { kafka.Run(gctx); return nil })
	}
	g.Go(func() error {
		pipeline.RunCleanup(gctx, sc.Alerts.CleanupInterval, sc.Alerts.Retention)
		return nil
	})
	g.Go(func() error {
		return config.Watch(gctx, configPath, func(c *config.Config) {
			pipeline.Apply(settingsFrom(c.Server.Alerts))
			slog.Info("alert settings reloaded",
				"max_message_length", c.Server.Alerts.MaxMessageLength,
				"eligible_roles", c.Server.Alerts.EligibleRoles,
			)
		})
	})

	if sc.MQTT.Broker != "" {
		sub := ingest.NewSubscriber(ingest.Options{
			Broker:   sc.MQTT.Broker,
			ClientID: sc.MQTT.ClientID,
			Username: sc.MQTT.Username,
			Password: sc.MQTT.Password(),
			Topic:    sc.MQTT.Topic,
			QoS:      1,
		}, pipeline)
		g.Go(func() error { return sub.Run(gctx) })
	}

	g.Go(func() error {
		slog.Info("gRPC receiver listening", "port", sc.GRPCPort)
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("soilwatch-server shutting down")
		grpcSrv.GracefulStop()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// httpHandler wraps h with panic recovery, CORS and an Apache combined access
// log written to accessLog. Keep accessLog off stdout, which carries the JSON
// log stream.
func httpHandler(h http.Handler, authHeader string, accessLog io.Writer) http.Handler {
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.CORS(
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", authHeader}),
		)(handlers.CombinedLoggingHandler(accessLog, h)),
	)
}

func settingsFrom(a config.AlertsConfig) alerts.Settings {
	return alerts.Settings{
		MaxMessageLength:   a.MaxMessageLength,
		Location:           a.Location(),
		SendTimeout:        a.SendTimeout,
		MaxConcurrentSends: a.MaxConcurrentSends,
		EligibleRoles:      a.EligibleRoles,
	}
}
