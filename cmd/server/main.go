package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drm-orchestrator/internal/cdmstub"
	"drm-orchestrator/internal/drm"
	"drm-orchestrator/internal/platform/config"
	"drm-orchestrator/internal/platform/logger"
	"drm-orchestrator/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	keySystem := drm.KeySystem(config.GetEnv("KEY_SYSTEM", string(drm.KeySystemWidevine)))
	maxRetries := config.GetEnvInt("LICENSE_MAX_RETRIES", drm.DefaultMaxRetries)
	licenseTimeout := config.GetEnvDuration("LICENSE_TIMEOUT_SECONDS", drm.DefaultLicenseTimeout)

	log := logger.New(os.Stdout, logLevel, logFormat)

	cfg := drm.Config{
		KeySystem: keySystem,
		LicenseURLs: map[drm.KeySystem]string{
			drm.KeySystemWidevine:  config.GetEnv("WIDEVINE_LICENSE_URL", ""),
			drm.KeySystemPlayReady: config.GetEnv("PLAYREADY_LICENSE_URL", ""),
		},
		MaxRetries: maxRetries,
	}

	// The stub CDM is the only binding this binary ships; a native CDM
	// integration plugs in through the same capability interfaces.
	provider := cdmstub.NewProvider()
	transport := drm.NewHTTPTransport(licenseTimeout)
	met := metrics.New()

	factory := func(report drm.ErrorSink) *drm.Controller {
		return drm.NewController(cfg, provider, transport, report, log, met)
	}
	h := drm.NewHandler(factory, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActivePlaybacks(h.ActivePlaybacks()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"key_system", string(keySystem),
		"license_max_retries", maxRetries,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
