package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-cache/internal/logging"
	"media-cache/internal/media"
	"media-cache/internal/memory"
	"media-cache/internal/startup"
)

const shutdownTimeout = 30 * time.Second

func runServe(ctx context.Context) error {
	startTime := time.Now()

	// Before anything allocates.
	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		return err
	}

	if err := media.InitVips(); err != nil {
		logging.Warn("libvips unavailable: %v", err)
	}
	defer media.ShutdownVips()
	startup.LogMediaToolsInit(media.IsVipsAvailable())

	a, err := newApp(ctx, config)
	if err != nil {
		return err
	}
	defer a.stop()

	if err := a.start(); err != nil {
		return err
	}

	router := setupRouter(a.handlers(), config.MetricsEnabled)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           wrapMiddleware(router, config.LogHealthChecks),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Image renders can be slow; the handlers bound them instead.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	reason := "context cancellation"
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-sigChan:
		reason = sig.String()
	case <-ctx.Done():
	}

	startup.LogShutdownInitiated(reason)
	shutdownStart := time.Now()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	a.stop()
	startup.LogShutdownComplete(time.Since(shutdownStart))
	return nil
}
