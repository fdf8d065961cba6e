package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mixaill76/cursor-gateway/internal/adminapi"
	"github.com/mixaill76/cursor-gateway/internal/chatservice"
	"github.com/mixaill76/cursor-gateway/internal/config"
	"github.com/mixaill76/cursor-gateway/internal/httpapi"
	"github.com/mixaill76/cursor-gateway/internal/logger"
	"github.com/mixaill76/cursor-gateway/internal/modelregistry"
	"github.com/mixaill76/cursor-gateway/internal/monitoring"
	"github.com/mixaill76/cursor-gateway/internal/ntpsync"
	"github.com/mixaill76/cursor-gateway/internal/proxypool"
	"github.com/mixaill76/cursor-gateway/internal/requestlog"
	"github.com/mixaill76/cursor-gateway/internal/statefile"
	"github.com/mixaill76/cursor-gateway/internal/telemetry"
	"github.com/mixaill76/cursor-gateway/internal/tokenhealth"
	"github.com/mixaill76/cursor-gateway/internal/tokenmanager"
	"github.com/mixaill76/cursor-gateway/internal/upstreamclient"
	"github.com/mixaill76/cursor-gateway/internal/worker"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

// Default failure-cooldown tuning for tokenhealth: 5 attempts, 5 minute ban.
const (
	defaultHealthMaxAttempts = 5
	defaultHealthBanDuration = 5 * time.Minute

	backgroundWorkerCount = 4
	backgroundJobQueueLen = 256
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.LoggingLevel)
	config.PrintConfig(log, cfg)

	log.Info("starting cursor-gateway", "version", Version, "commit", Commit, "port", cfg.Server.Port)

	metrics := monitoring.New(cfg.Monitoring.PrometheusEnabled)

	tokens := tokenmanager.New()
	records, err := statefile.LoadTokens(cfg.State.TokensFile)
	if err != nil {
		log.Error("failed to load tokens file", "error", err)
		os.Exit(1)
	}
	for _, rec := range records {
		info, alias, err := rec.ToTokenInfo()
		if err != nil {
			log.Error("skipping malformed token record", "alias", rec.Alias, "error", err)
			continue
		}
		if _, err := tokens.Add(info, alias); err != nil {
			log.Error("failed to register token", "alias", rec.Alias, "error", err)
		}
	}
	log.Info("loaded tokens", "count", tokens.Len())

	proxyCfg, err := statefile.LoadProxies(cfg.State.ProxiesFile)
	if err != nil {
		log.Error("failed to load proxies file", "error", err)
		os.Exit(1)
	}
	tuning := proxypool.DefaultTuning()
	tuning.TCPKeepAlive = cfg.Transport.TCPKeepAlive
	tuning.TCPKeepAliveInterval = cfg.Transport.TCPKeepAliveInterval
	tuning.TCPKeepAliveRetries = cfg.Transport.TCPKeepAliveRetries
	tuning.HTTP2AdaptiveWindow = cfg.Transport.HTTP2AdaptiveWindow
	tuning.HTTP2KeepAliveInterval = cfg.Transport.HTTP2KeepAliveInterval
	tuning.HTTP2KeepAliveTimeout = cfg.Transport.HTTP2KeepAliveTimeout
	tuning.HTTP2KeepAliveWhileIdle = cfg.Transport.HTTP2KeepAliveWhileIdle
	tuning.ConnectTimeout = cfg.Transport.ServiceTimeout
	proxies := proxypool.New(proxyCfg, tuning)

	models, err := modelregistry.New(modelregistry.DefaultModels(), modelregistry.DefaultAliases())
	if err != nil {
		log.Error("failed to build model registry", "error", err)
		os.Exit(1)
	}

	health := tokenhealth.New(defaultHealthMaxAttempts, defaultHealthBanDuration)
	tokens.SetHealthTracker(health)

	builder := upstreamclient.NewBuilder(upstreamclient.HostSet{
		Primary: cfg.Server.PrivateReverseProxy,
		Public:  cfg.Server.PublicReverseProxy,
	})

	sinks := buildRequestLogSinks(cfg, log)
	reqLog := requestlog.New(sinks...)

	jobCtx, stopJobs := context.WithCancel(context.Background())
	jobQueue := make(chan worker.Job, backgroundJobQueueLen)
	jobsWG := worker.SpawnWorkerPool(jobCtx, backgroundWorkerCount, jobQueue, log)

	tracerProvider := sdktrace.NewTracerProvider()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tracerProvider.Shutdown(shutdownCtx)
	}()
	if cfg.Monitoring.TracingEnabled {
		otel.SetTracerProvider(tracerProvider)
		log.Info("request tracing enabled")
	}

	svc := &chatservice.Service{
		Tokens:  tokens,
		Models:  models,
		Health:  health,
		Proxies: proxies,
		Builder: builder,
		Log:     reqLog,
		Logger:  log,
		Metrics: metrics,
		Tracer:  telemetry.GetTracer(cfg.Monitoring.TracingEnabled),
		Jobs:    jobQueue,

		AdminKeyPrefix: cfg.Server.KeyPrefix,
		SharedKey:      cfg.Server.MasterKey,
		RealUsage:      cfg.General.RealUsage,
	}

	if cfg.NTP.Enabled {
		ntpCfg := ntpsync.Config{
			Servers:       cfg.NTP.Servers,
			SyncInterval:  cfg.NTP.SyncInterval,
			SampleCount:   cfg.NTP.SampleCount,
			SampleSpacing: cfg.NTP.SampleInterval,
		}
		syncer := ntpsync.New(ntpCfg, log)
		syncer.Start()
		defer syncer.Stop()
	}

	stopMetrics := startMetricsUpdater(metrics, tokens, health, proxies, proxyCfg, log)
	defer stopMetrics()

	mux := http.NewServeMux()
	registerGatewayRoutes(mux, svc, models, metrics)
	registerAdminRoutes(mux, &adminapi.Handler{
		Tokens:      tokens,
		Health:      health,
		Proxies:     proxies,
		Logger:      log,
		TokensPath:  cfg.State.TokensFile,
		ProxiesPath: cfg.State.ProxiesFile,
	}, svc.RefreshToken)

	if cfg.Monitoring.PrometheusEnabled {
		mux.Handle("GET "+cfg.Monitoring.HealthCheckPath, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		}))
		mux.Handle("/metrics", promhttp.Handler())
		log.Info("prometheus metrics enabled", "path", "/metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	close(jobQueue)
	stopJobs()
	jobsWG.Wait()

	if err := statefile.SaveTokens(cfg.State.TokensFile, tokens); err != nil {
		log.Error("failed to persist tokens on shutdown", "error", err)
	}

	log.Info("shutdown complete")
}

// registerGatewayRoutes mounts the public chat-completions surface behind
// a thin metrics-recording wrapper that times every request.
func registerGatewayRoutes(mux *http.ServeMux, svc *chatservice.Service, models *modelregistry.Registry, metrics *monitoring.Metrics) {
	api := httpapi.New(svc, models, svc.Logger)
	mux.Handle("/", withMetrics(metrics, api))
}

func withMetrics(metrics *monitoring.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		metrics.RecordRequest(r.URL.Path, sw.status, time.Since(started))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// registerAdminRoutes mounts the token-management surface of spec.md
// §6.1's admin endpoint list under /admin/tokens.
func registerAdminRoutes(mux *http.ServeMux, h *adminapi.Handler, refresh adminapi.RefreshFunc) {
	mux.HandleFunc("GET /admin/tokens", h.HandleGet)
	mux.HandleFunc("POST /admin/tokens", h.HandleAdd)
	mux.HandleFunc("POST /admin/tokens/delete", h.HandleDelete)
	mux.HandleFunc("POST /admin/tokens/status", h.HandleSetStatus)
	mux.HandleFunc("POST /admin/tokens/alias", h.HandleSetAlias)
	mux.HandleFunc("POST /admin/tokens/proxy", h.HandleSetProxy)
	mux.HandleFunc("POST /admin/tokens/timezone", h.HandleSetTimezone)
	mux.Handle("POST /admin/tokens/refresh", h.HandleRefresh(refresh))
	mux.HandleFunc("POST /admin/tokens/merge", h.HandleMerge)
}

// startMetricsUpdater periodically reports pool-wide gauges on a
// 10-second tick.
func startMetricsUpdater(metrics *monitoring.Metrics, tokens *tokenmanager.Manager, health *tokenhealth.Tracker, proxies *proxypool.Pool, proxyCfg proxypool.Config, log *slog.Logger) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				updatePoolMetrics(metrics, tokens, health, len(proxyCfg.Proxies))
			}
		}
	}()

	updatePoolMetrics(metrics, tokens, health, len(proxyCfg.Proxies))
	log.Info("metrics updater started", "interval", "10s")

	return func() {
		cancel()
		<-done
	}
}

func updatePoolMetrics(metrics *monitoring.Metrics, tokens *tokenmanager.Manager, health *tokenhealth.Tracker, proxyCount int) {
	entries := tokens.List()
	unhealthy := 0
	for _, e := range entries {
		if health.Unhealthy(e.Info.Ext.Primary.Key()) {
			unhealthy++
		}
	}
	metrics.UpdateTokenPoolSize(len(entries), unhealthy)
	if proxyCount == 0 {
		proxyCount = 1 // the implicit "sys" fallback proxypool.New always builds
	}
	metrics.UpdateProxyPoolSize(proxyCount)
}

// buildRequestLogSinks wires the optional Postgres and S3 accounting
// sinks per the loaded config; a sink whose dependency fails to connect
// is logged and skipped rather than aborting startup, matching spec.md
// §7's "persistence I/O failures ... are reported but do not alter
// in-memory state" generalized from the admin-mutation case to startup.
func buildRequestLogSinks(cfg *config.Config, log *slog.Logger) []requestlog.Sink {
	var sinks []requestlog.Sink

	if cfg.RequestLog.Postgres.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestLog.Postgres.ConnectTimeout)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(cfg.RequestLog.Postgres.DatabaseURL)
		if err != nil {
			log.Error("requestlog: invalid postgres database_url, sink disabled", "error", err)
		} else {
			poolCfg.MaxConns = int32(cfg.RequestLog.Postgres.MaxConns)
			poolCfg.ConnConfig.ConnectTimeout = cfg.RequestLog.Postgres.ConnectTimeout
			pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
			if err != nil {
				log.Error("requestlog: failed to connect to postgres, sink disabled", "error", err)
			} else {
				sinks = append(sinks, requestlog.NewPGSink(pool, log))
				log.Info("requestlog: postgres sink enabled")
			}
		}
	}

	if cfg.RequestLog.S3.Enabled {
		client, err := minio.New(cfg.RequestLog.S3.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.RequestLog.S3.AccessKey, cfg.RequestLog.S3.SecretKey, ""),
			Secure: cfg.RequestLog.S3.UseSSL,
		})
		if err != nil {
			log.Error("requestlog: failed to build s3 client, sink disabled", "error", err)
		} else {
			sinks = append(sinks, requestlog.NewObjectSink(client, cfg.RequestLog.S3.Bucket, log))
			log.Info("requestlog: s3 sink enabled", "bucket", cfg.RequestLog.S3.Bucket)
		}
	}

	return sinks
}
