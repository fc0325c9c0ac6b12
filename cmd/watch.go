package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/alertwall/internal/client"
	"grimm.is/alertwall/internal/config"
	"grimm.is/alertwall/internal/ids"
	"grimm.is/alertwall/internal/logging"
)

// RunWatch tails the alert log and blocks offending sources until SIGINT
// or SIGTERM. fromStart replays the existing file content first.
func RunWatch(configFile string, fromStart bool) error {
	cfg, logger, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	return runWatch(ctx, cfg, logger, fromStart)
}

func runWatch(ctx context.Context, cfg *config.Config, logger *logging.Logger, fromStart bool) error {
	w := cfg.Watch

	whitelist, err := ids.NewWhitelist(w.Whitelist)
	if err != nil {
		return fmt.Errorf("invalid whitelist: %w", err)
	}

	tailer, err := ids.OpenTailer(w.LogPath, ids.TailerOptions{
		PollInterval: w.PollDuration(),
		FromStart:    fromStart,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer tailer.Close()

	opts := []client.ClientOption{client.WithTimeout(w.TimeoutDuration())}
	if w.APIKey != "" {
		opts = append(opts, client.WithAPIKey(w.APIKey))
	}
	apiClient := client.NewHTTPClient(w.APIURL, opts...)

	blocked := ids.NewBlockedSet()
	dispatcher := ids.NewDispatcher(apiClient, blocked,
		ids.WithAction(strings.ToUpper(w.Action)),
		ids.WithTimeout(w.TimeoutDuration()),
		ids.WithDispatchLogger(logger))
	monitor := ids.NewMonitor(tailer, whitelist, blocked, dispatcher, logger)

	if w.ResyncOnStart {
		n, err := monitor.Resync(ctx, apiClient)
		if err != nil {
			logger.Warn("resync failed, starting with an empty blocked set", "error", err)
		} else {
			logger.Info("resynced blocked set from installed rules", "addresses", n)
		}
	}

	if w.MetricsListen != "" {
		go serveMetrics(ctx, w.MetricsListen, logger)
	}

	logger.Info("watching alert log",
		"path", tailer.Path(),
		"api", apiClient.BaseURL(),
		"action", strings.ToUpper(w.Action),
		"whitelist", strings.Join(whitelist.Entries(), ","))

	if err := monitor.Run(ctx); err != nil {
		return fmt.Errorf("alert log read failed: %w", err)
	}
	logger.Info("monitor stopped", "blocked", blocked.Len())
	return nil
}

// serveMetrics exposes /metrics for the monitor process until ctx is done.
func serveMetrics(ctx context.Context, addr string, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
