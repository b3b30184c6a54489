package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"pulsewatch/config"
	"pulsewatch/internal/alert"
	"pulsewatch/internal/engine"
	"pulsewatch/internal/httpapi"
	"pulsewatch/internal/logger"
	"pulsewatch/internal/metrics"
	"pulsewatch/internal/signature"
	"pulsewatch/internal/store"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("pulsewatch.yml"); err == nil {
		return "pulsewatch.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "pulsewatch.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "pulsewatch.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.PulseWatch.Server.Addr == "" {
		cfg.PulseWatch.Server.Addr = ":8080"
	}
	if cfg.PulseWatch.Server.ShutdownTimeout <= 0 {
		cfg.PulseWatch.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.PulseWatch.Store.Backend == "" {
		cfg.PulseWatch.Store.Backend = "redis"
	}
	if cfg.PulseWatch.Store.Redis.Addr == "" {
		cfg.PulseWatch.Store.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.PulseWatch.Store.Redis.KeyPrefix == "" {
		cfg.PulseWatch.Store.Redis.KeyPrefix = "pulsewatch"
	}

	if cfg.PulseWatch.Alerts.QueueSize <= 0 {
		cfg.PulseWatch.Alerts.QueueSize = 256
	}
	if cfg.PulseWatch.Alerts.Timeout <= 0 {
		cfg.PulseWatch.Alerts.Timeout = 5 * time.Second
	}

	if cfg.PulseWatch.Logging.Level == "" {
		cfg.PulseWatch.Logging.Level = "info"
	}
}

func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("PULSEWATCH_SIGNING_SECRET"); v != "" {
		cfg.PulseWatch.Auth.SigningSecret = v
	}
	if v := os.Getenv("PULSEWATCH_ADMIN_TOKEN"); v != "" {
		cfg.PulseWatch.Auth.AdminToken = v
	}
	if v := os.Getenv("PULSEWATCH_REDIS_PASSWORD"); v != "" {
		cfg.PulseWatch.Store.Redis.Password = v
	}
}

func main() {
	configArg := ""
	if len(os.Args) > 1 {
		configArg = os.Args[1]
	}
	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := logger.Init(cfg.PulseWatch.Logging.Enabled, cfg.PulseWatch.Logging.Level, cfg.PulseWatch.Logging.File, cfg.PulseWatch.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("PulseWatch starting")
	logger.Infof("Config loaded from: %s", configPath)

	var tenantStore store.Store
	switch cfg.PulseWatch.Store.Backend {
	case "redis":
		s, err := store.NewRedisStore(store.RedisConfig{
			Addr:      cfg.PulseWatch.Store.Redis.Addr,
			Password:  cfg.PulseWatch.Store.Redis.Password,
			DB:        cfg.PulseWatch.Store.Redis.DB,
			KeyPrefix: cfg.PulseWatch.Store.Redis.KeyPrefix,
		})
		if err != nil {
			logger.Errorf("Failed to create Redis store: %v", err)
			log.Fatalf("Failed to create Redis store: %v", err)
		}
		tenantStore = s
		logger.Infof("Store backend: redis (%s)", cfg.PulseWatch.Store.Redis.Addr)
	case "memory":
		tenantStore = store.NewMemoryStore()
		logger.Warnf("Store backend: memory (state does not survive restarts)")
	default:
		log.Fatalf("Unknown store backend: %s", cfg.PulseWatch.Store.Backend)
	}

	collector := metrics.NewCollector(nil)
	dispatcher := alert.NewDispatcher(alert.Config{
		QueueSize: cfg.PulseWatch.Alerts.QueueSize,
		Timeout:   cfg.PulseWatch.Alerts.Timeout,
	}, collector)

	if cfg.PulseWatch.Auth.SigningSecret == "" {
		logger.Warnf("No signing secret configured; signed pings will be rejected")
	}
	if cfg.PulseWatch.Auth.AdminToken == "" {
		logger.Warnf("No admin token configured; tenant config writes are disabled")
	}

	verifier := signature.NewVerifier(cfg.PulseWatch.Auth.SigningSecret)
	eng := engine.New(tenantStore, dispatcher, verifier, collector)
	api := httpapi.NewServer(eng, cfg.PulseWatch.Auth.AdminToken, collector)

	srv := &http.Server{
		Addr:    cfg.PulseWatch.Server.Addr,
		Handler: api,
	}

	go func() {
		logger.Infof("Listening on %s", cfg.PulseWatch.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("HTTP server error: %v", err)
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.PulseWatch.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Error shutting down HTTP server: %v", err)
	}

	if err := dispatcher.Close(); err != nil {
		logger.Errorf("Error closing alert dispatcher: %v", err)
	}
	if err := tenantStore.Close(); err != nil {
		logger.Errorf("Error closing store: %v", err)
	}

	logger.Infof("PulseWatch stopped")
}
