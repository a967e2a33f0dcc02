// Command pollsync keeps one user's session state fresh against a backend, logging
// every change and exposing cache metrics.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goforj/pollcache"
	"github.com/goforj/pollcache/backend"
	"github.com/goforj/pollcache/promobserver"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using process environment")
	}
	cfg, err := parseConfig(nil)
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	logger.SetLevel(cfg.level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("pollsync stopped")
	}
	logger.Info("pollsync stopped")
}

func run(ctx context.Context, cfg config, logger *logrus.Logger) error {
	reg := prometheus.NewRegistry()
	obs, err := promobserver.New(reg)
	if err != nil {
		return err
	}

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()
	if err := pollcache.StoreError(store); err != nil {
		return err
	}
	profiles := pollcache.NewProfileStore(store)

	api := backend.New(cfg.APIBase, backend.WithLogger(logger))
	svc := pollcache.NewServices(api, profiles,
		pollcache.WithLogger(logger),
		pollcache.WithObserver(obs),
		pollcache.WithEventInterval(cfg.PollInterval),
	)
	defer svc.Close()

	if err := startSession(ctx, svc, cfg); err != nil {
		return err
	}
	for _, unsubscribe := range watch(svc, logger) {
		defer unsubscribe()
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		if svc.Poll(ctx, false).Profile == nil {
			logger.Warn("no active session")
		}
		svc.Events.Trigger()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// startSession restores the persisted profile or, when none exists, seeds one from
// POLLSYNC_USER_ID.
func startSession(ctx context.Context, svc *pollcache.Services, cfg config) error {
	profile, err := svc.Users.Load(ctx)
	if err != nil {
		return err
	}
	if profile != nil || cfg.UserID == "" {
		return nil
	}
	return svc.Login(ctx, &pollcache.Profile{ID: cfg.UserID, Role: cfg.Role})
}

func watch(svc *pollcache.Services, logger logrus.FieldLogger) []func() {
	unsubs := []func(){
		svc.Users.Subscribe(func(p *pollcache.Profile) {
			if p == nil {
				logger.Warn("session ended")
				return
			}
			logger.WithFields(logrus.Fields{
				"user_id": p.ID,
				"role":    p.Role,
				"balance": p.Balance,
			}).Info("profile updated")
		}),
		svc.Counts.Subscribe(func(c *pollcache.Counts) {
			if c == nil {
				return
			}
			fields := logrus.Fields{
				"notifications": c.Notifications,
				"messages":      c.Messages,
			}
			if c.AdminNotifications != nil {
				fields["admin_notifications"] = *c.AdminNotifications
			}
			logger.WithFields(fields).Info("counts updated")
		}),
	}
	if id := svc.Users.Identity(); id.UserID != "" {
		unsubs = append(unsubs, svc.Verification.Subscribe(id.UserID, func(s *pollcache.VerificationStatus) {
			if s == nil {
				return
			}
			logger.WithField("verified", s.IsVerified).Info("verification updated")
		}))
	}
	return unsubs
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func openStore(ctx context.Context, cfg config) (pollcache.Store, func()) {
	switch cfg.StoreDriver {
	case "file":
		return pollcache.NewFileStore(ctx, cfg.FileDir), func() {}
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return pollcache.NewRedisStore(ctx, client, pollcache.WithPrefix("pollsync")), func() { _ = client.Close() }
	default:
		return pollcache.NewMemoryStore(ctx), func() {}
	}
}
