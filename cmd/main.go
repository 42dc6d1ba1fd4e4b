/*
Copyright 2025 Lumina Contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Main entrypoint for the spotmanagerd reconciler process.
//
// Coverage: Excluded - main entrypoints are tested via E2E tests

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"sigs.k8s.io/controller-runtime/pkg/healthz"

	"github.com/MozillaSecurity/spotmanagerd/internal/cache"
	"github.com/MozillaSecurity/spotmanagerd/internal/provider"
	"github.com/MozillaSecurity/spotmanagerd/internal/reconciler"
	"github.com/MozillaSecurity/spotmanagerd/internal/store"
	"github.com/MozillaSecurity/spotmanagerd/pkg/config"
	"github.com/MozillaSecurity/spotmanagerd/pkg/metrics"
)

// scheduler sweeps every pool known to the store once per tick interval and
// reconciles each concurrently. Unlike the teacher's event-driven,
// Node-watching EC2Reconciler, a pool fleet has no Kubernetes resource to
// watch: spec §5 calls for a plain poll loop over every known pool id.
type scheduler struct {
	recon *reconciler.Reconciler
	store store.Store
	log   logr.Logger
}

// coverage:ignore - initialization code, tested via E2E
func main() {
	var configFile string
	var metricsAddr string
	var probeAddr string
	var logLevel string
	flag.StringVar(&configFile, "config", config.DefaultConfigPath,
		"Path to the process configuration file. Can be overridden with SPOTMANAGERD_CONFIG_PATH.")
	flag.StringVar(&metricsAddr, "metrics-bind-address", "", "Override the metrics endpoint bind address from the config file.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", "", "Override the health probe bind address from the config file.")
	flag.StringVar(&logLevel, "log-level", "", "Override the log level from the config file (debug, info, warn, error).")
	flag.Parse()

	if envConfigPath := os.Getenv("SPOTMANAGERD_CONFIG_PATH"); envConfigPath != "" {
		configFile = envConfigPath
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration %s: %v\n", configFile, err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if metricsAddr != "" {
		cfg.MetricsBindAddress = metricsAddr
	}
	if probeAddr != "" {
		cfg.HealthProbeBindAddress = probeAddr
	}

	zapLog, err := newZapLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	log := zapr.NewLogger(zapLog).WithName("setup")

	log.Info("loaded configuration", "lockDir", cfg.LockDir, "tickInterval", cfg.GetTickInterval())

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	m.ReconcilerRunning.Set(1)
	log.Info("metrics initialized")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := store.Open(ctx, cfg.StoreDSN)
	if err != nil {
		log.Error(err, "unable to open instance store")
		os.Exit(1)
	}
	defer s.Close()
	log.Info("connected to instance store")

	priceClient := newPriceClient(cfg)

	dialer, err := provider.NewDialerWithEndpoint(provider.ClientConfig{
		MaxRetries:  cfg.Provider.MaxRetries,
		RetryDelay:  cfg.GetProviderRetryDelay(),
		HTTPTimeout: cfg.GetProviderHTTPTimeout(),
	}, cfg.Provider.EndpointURL)
	if err != nil {
		log.Error(err, "unable to create provider dialer")
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.LockDir, 0o755); err != nil {
		log.Error(err, "unable to create lock directory", "lockDir", cfg.LockDir)
		os.Exit(1)
	}

	recon := reconciler.New(s, priceClient, dialer, cfg.LockDir, zapr.NewLogger(zapLog).WithName("reconciler"), m)

	sched := &scheduler{recon: recon, store: s, log: log}
	go sched.run(ctx, cfg.GetTickInterval())
	log.Info("started reconciliation scheduler", "tickInterval", cfg.GetTickInterval())

	healthChecker := provider.NewHealthChecker(provider.NewAccountValidator(), allowedRegions(ctx, s, log))

	metricsServer := &http.Server{
		Addr:    cfg.MetricsBindAddress,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		log.Info("starting metrics server", "address", cfg.MetricsBindAddress)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "metrics server stopped with error")
		}
	}()

	healthHandler := &healthz.Handler{
		Checks: map[string]healthz.Checker{
			"healthz": healthz.Ping,
			"readyz":  healthChecker.Check,
		},
	}
	healthMux := http.NewServeMux()
	healthMux.Handle("/healthz", http.StripPrefix("/healthz", healthHandler))
	healthMux.Handle("/readyz", http.StripPrefix("/readyz", healthHandler))
	healthServer := &http.Server{
		Addr:    cfg.HealthProbeBindAddress,
		Handler: healthMux,
	}
	go func() {
		log.Info("starting health server", "address", cfg.HealthProbeBindAddress)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "health server stopped with error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	_ = healthServer.Shutdown(shutdownCtx)
}

// run sweeps every known pool id once per interval, reconciling each in its
// own goroutine so one slow or locked pool never delays the rest.
func (s *scheduler) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *scheduler) tick(ctx context.Context) {
	ids, err := s.store.ListPoolIDs(ctx)
	if err != nil {
		s.log.Error(err, "failed to list pool ids")
		return
	}

	for _, id := range ids {
		go func(poolID int64) {
			if err := s.recon.Reconcile(ctx, poolID); err != nil {
				s.log.Error(err, "reconcile failed", "pool_id", poolID)
			}
		}(id)
	}
}

// newPriceClient selects the Price/Blacklist/AMI cache backend. An empty
// RedisAddr runs the in-memory cache instead, for local development.
func newPriceClient(cfg *config.Config) cache.PriceClient {
	if cfg.RedisAddr == "" {
		return cache.NewMapCacheClient()
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return cache.NewRedisCacheClient(rdb)
}

// allowedRegions collects the union of every pool's configured regions, so
// the readiness probe validates exactly the regions this process actually
// reconciles pools in. Store errors are treated as "no regions to check"
// rather than fatal, since this only affects the readiness probe.
func allowedRegions(ctx context.Context, s store.Store, log logr.Logger) []string {
	ids, err := s.ListPoolIDs(ctx)
	if err != nil {
		log.Error(err, "failed to list pool ids for health check region set")
		return nil
	}

	seen := make(map[string]bool)
	var regions []string
	for _, id := range ids {
		pool, err := s.GetPool(ctx, id)
		if err != nil {
			continue
		}
		for _, r := range pool.Config.AllowedRegions {
			if !seen[r] {
				seen[r] = true
				regions = append(regions, r)
			}
		}
	}
	return regions
}

// newZapLogger builds the zap logger the teacher uses, at the configured
// level.
func newZapLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	return cfg.Build()
}
