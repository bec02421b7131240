package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angeloszaimis/domain-proxy/config"
	"github.com/angeloszaimis/domain-proxy/internal/backend"
	"github.com/angeloszaimis/domain-proxy/internal/cache"
	"github.com/angeloszaimis/domain-proxy/internal/handler"
	"github.com/angeloszaimis/domain-proxy/internal/httpserver"
	"github.com/angeloszaimis/domain-proxy/internal/latency"
	"github.com/angeloszaimis/domain-proxy/internal/loadbalancer"
	"github.com/angeloszaimis/domain-proxy/internal/metrics"
	"github.com/angeloszaimis/domain-proxy/internal/upstream"
	"github.com/angeloszaimis/domain-proxy/pkg/logger"
)

const metricsBufferSize = 1000

func main() {
	configPath := flag.String("config", "", "path to the proxy configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		AddSource:   true,
		Environment: cfg.Server.Environment,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	services, err := initializeServices(cfg, log)
	if err != nil {
		log.Error("Failed to initialize services", slog.Any("err", err))
		os.Exit(1)
	}

	recorder := metrics.NewRecorder(nil)
	collector := metrics.NewCollector(metricsBufferSize, log, recorder)
	collector.Start(ctx)

	respCache := cache.New()
	tracker := latency.NewTracker()

	proxyHandler := handler.NewProxyHandler(
		log,
		loadbalancer.NewLoadBalancer(services),
		respCache,
		cfg.CacheTTL(),
		upstream.NewHTTPFetcher(cfg.UpstreamTimeout()),
		tracker,
		handler.WithCollector(collector),
	)

	proxySrv, err := httpserver.New(cfg.ListenAddr(), setupProxyRouter(proxyHandler),
		httpserver.WithWriteTimeout(cfg.UpstreamTimeout()+5*time.Second))
	if err != nil {
		log.Error("Failed to create proxy server", slog.Any("err", err))
		os.Exit(1)
	}

	servers := []*httpserver.Server{proxySrv}

	if cfg.Admin.Address != "" {
		adminSrv, err := httpserver.New(cfg.Admin.Address, setupAdminRouter(collector, recorder, tracker, respCache))
		if err != nil {
			log.Error("Failed to create admin server", slog.Any("err", err))
			os.Exit(1)
		}
		servers = append(servers, adminSrv)
	}

	srvErrCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *httpserver.Server) {
			log.Info("Listening", slog.String("addr", srv.Addr()))
			if err := srv.Start(); err != nil {
				srvErrCh <- fmt.Errorf("%s: %w", srv.Addr(), err)
			}
		}(srv)
	}

	log.Info("Proxy started",
		slog.Int("services", len(services)),
		slog.Duration("cache_ttl", cfg.CacheTTL()),
		slog.Duration("upstream_timeout", cfg.UpstreamTimeout()))

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-srvErrCh:
		log.Error("Server failed", slog.Any("err", err))
		exitCode = 1
	}

	for _, srv := range servers {
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.String("addr", srv.Addr()), slog.Any("err", err))
		}
	}

	os.Exit(exitCode)
}

var errNoServices = errors.New("no services configured")

// initializeServices builds one load-balanced service per configured domain.
// Domains listed twice keep both entries; matching picks the first.
func initializeServices(cfg *config.Config, log *slog.Logger) ([]*loadbalancer.Service, error) {
	services := make([]*loadbalancer.Service, 0, len(cfg.Proxy.Services))

	for _, sc := range cfg.Proxy.Services {
		hosts := make([]*backend.Host, 0, len(sc.Hosts))
		for _, hc := range sc.Hosts {
			hosts = append(hosts, backend.New(hc.Address, hc.Port))
		}

		svc, err := loadbalancer.NewService(sc.Domain, hosts, sc.LBStrategy)
		if err != nil {
			return nil, err
		}

		log.Info("Registered service",
			slog.String("domain", svc.Domain()),
			slog.String("strategy", svc.Strategy()),
			slog.Int("hosts", len(hosts)))

		services = append(services, svc)
	}

	if len(services) == 0 {
		return nil, errNoServices
	}

	return services, nil
}
