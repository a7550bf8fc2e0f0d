package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/soilwatch/soilwatch/agent/internal/compute"
	"github.com/soilwatch/soilwatch/agent/internal/config"
	"github.com/soilwatch/soilwatch/agent/internal/scraper"
	"github.com/soilwatch/soilwatch/agent/internal/security"
	"github.com/soilwatch/soilwatch/agent/internal/shipper"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env", "err", err)
	}

	slog.Info("soilwatch-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	ac := cfg.Agent
	slog.Info("config loaded",
		"server_endpoint", ac.ServerEndpoint,
		"gateways", len(ac.Gateways),
		"scrape_interval", ac.ScrapeInterval,
		"heartbeat", ac.Heartbeat,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	type source struct {
		gw config.Gateway
		s  scraper.Scraper
	}
	var sources []source
	for _, gw := range ac.Gateways {
		s, err := scraper.New(gw)
		if err != nil {
			slog.Error("skipping gateway, could not build scraper", "gateway", gw.ID, "err", err)
			continue
		}
		sources = append(sources, source{gw: gw, s: s})
		slog.Info("registered gateway", "id", gw.ID, "endpoint", gw.Endpoint)
	}
	if len(sources) == 0 {
		slog.Warn("no gateways configured, agent will idle")
	}

	engine := compute.NewEngine(ac.Heartbeat)

	// Readings that never reach the server are shipped again next cycle.
	ship := shipper.New(ac, engine.Forget)
	go ship.Run(ctx)

	if ac.CertCheckInterval > 0 {
		go security.Run(ctx, ac.Gateways, ac.CertCheckInterval)
	}

	go func() {
		ticker := time.NewTicker(ac.ScrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				for _, src := range sources {
					res, err := src.s.Scrape(ctx)
					if err != nil {
						slog.Warn("scrape error", "gateway", src.gw.ID, "err", err)
						continue
					}
					out := engine.Process(res, t)
					for _, r := range out.Changed {
						ship.Ship(r)
					}
					slog.Debug("gateway scraped",
						"gateway", src.gw.ID,
						"state", out.State,
						"uptime_pct", out.UptimePct,
						"shipped", len(out.Changed),
						"unchanged", out.Unchanged,
						"pending", ship.Pending(),
					)
				}
			}
		}
	}()

	<-ctx.Done()
	slog.Info("soilwatch-agent shutting down")
}
