package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/kinohub/strangler-proxy/internal/config"
	"github.com/kinohub/strangler-proxy/internal/logging"
	"github.com/kinohub/strangler-proxy/internal/mw"
	"github.com/kinohub/strangler-proxy/internal/netx"
	"github.com/kinohub/strangler-proxy/internal/proxy"
	"github.com/kinohub/strangler-proxy/internal/ratelimit"
	"github.com/kinohub/strangler-proxy/internal/split"
)

const healthBody = "Strangler Fig Proxy is healthy"

func main() {
	var configPath string
	var validateOnly bool
	flag.StringVar(&configPath, "config", "", "path to yaml config (optional, env overrides apply)")
	flag.BoolVar(&validateOnly, "validate-config", false, "validate config and exit")
	flag.Parse()

	log := logging.New()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if validateOnly {
		log.Info("config ok")
		return
	}

	// ---- Rate limiter backend
	var limiter ratelimit.Limiter
	switch strings.ToLower(cfg.RateLimit.Backend) {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.Redis.Addr,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable; falling back to memory limiter", slog.String("error", err.Error()))
			limiter = ratelimit.NewMemoryLimiter(5*time.Minute, time.Minute)
		} else {
			limiter = ratelimit.NewRedisLimiter(rdb)
		}
	default:
		limiter = ratelimit.NewMemoryLimiter(
			time.Duration(cfg.RateLimit.Memory.TTLSeconds)*time.Second,
			time.Duration(cfg.RateLimit.Memory.CleanupSeconds)*time.Second,
		)
	}
	defer limiter.Close()

	// ---- Routing table
	monolithURL, err := url.Parse(cfg.Routing.MonolithURL)
	if err != nil {
		log.Error("invalid monolith url", slog.String("error", err.Error()))
		os.Exit(1)
	}
	services := make([]proxy.Service, 0, len(cfg.Routing.Services))
	for _, sc := range cfg.Routing.Services {
		u, err := url.Parse(sc.Upstream)
		if err != nil {
			log.Error("invalid service upstream", slog.String("service", sc.Name), slog.String("error", err.Error()))
			os.Exit(1)
		}
		svc := proxy.Service{
			Name:       sc.Name,
			PathPrefix: sc.PathPrefix,
			Upstream:   u,
			HealthPath: sc.HealthPath,
			RateLimit: proxy.ServiceRateLimit{
				Enabled: sc.RateLimit.Enabled,
				RPS:     sc.RateLimit.RPS,
				Burst:   sc.RateLimit.Burst,
			},
		}
		if sc.MigrationPercent != nil {
			svc.Splitting = true
			svc.MigrationPercent = *sc.MigrationPercent
		}
		services = append(services, svc)
	}

	rtr, err := proxy.New(monolithURL, cfg.Routing.GradualMigration, services, split.NewRandSource(), log)
	if err != nil {
		log.Error("failed to create router", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// ---- Outbound bridge
	transport := proxy.NewTransport(proxy.TransportConfig{
		DialTimeout:           time.Duration(cfg.Upstream.DialTimeoutSeconds) * time.Second,
		TLSHandshakeTimeout:   time.Duration(cfg.Upstream.TLSHandshakeTimeoutSeconds) * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.Upstream.ResponseHeaderTimeoutSeconds) * time.Second,
		IdleConnTimeout:       time.Duration(cfg.Upstream.IdleConnTimeoutSeconds) * time.Second,
		MaxIdleConns:          cfg.Upstream.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.Upstream.MaxIdleConnsPerHost,
	})
	fwd := proxy.NewForwarder(transport, time.Duration(cfg.Upstream.RelayTimeoutSeconds)*time.Second, log)

	trusted, err := netx.ParseCIDRSet(cfg.Server.TrustedProxies)
	if err != nil {
		log.Error("invalid trusted_proxies", slog.String("error", err.Error()))
		os.Exit(1)
	}
	ipr := mw.IPResolver{Trusted: trusted}

	// ---- Metrics
	reg := prometheus.NewRegistry()
	metrics := mw.NewMetrics(reg)

	// ---- HTTP server / mux
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Local liveness: answers without touching any backend, so the proxy
	// reports healthy even when everything behind it is down.
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(healthBody))
	})

	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dec := rtr.Determine(r.Method, r.URL.Path)
		if dec.Draw >= 0 {
			metrics.Draws.WithLabelValues(dec.SplitService, dec.Destination).Inc()
		}

		var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fwd.Relay(w, r, dec)
		})

		if svc := rtr.ServiceByName(dec.Destination); svc != nil && svc.RateLimit.Enabled {
			h = mw.RateLimit(limiter, ipr, mw.RateLimitConfig{
				Enabled: true,
				RPS:     svc.RateLimit.RPS,
				Burst:   svc.RateLimit.Burst,
				Service: svc.Name,
			}, h)
		}

		h = mw.MaxBodyBytes(cfg.Server.MaxBodyBytes, h)
		h = mw.AccessLog(log, h)
		h = mw.Instrument(metrics, h)
		h = mw.WithDestination(h, dec.Destination)
		h = mw.RequestID(h)
		h = mw.Recover(h)

		h.ServeHTTP(w, r)
	}))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSeconds) * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Info("strangler proxy listening",
			slog.String("addr", cfg.Server.Addr),
			slog.String("monolith", cfg.Routing.MonolithURL),
			slog.Bool("gradual_migration", cfg.Routing.GradualMigration),
			slog.Int("services", len(cfg.Routing.Services)),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	// Graceful shutdown: stop accepting, let in-flight relays finish.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Info("shutdown complete")
}
