package cmd

import (
	"context"
	"fmt"

	"grimm.is/alertwall/internal/api"
	"grimm.is/alertwall/internal/audit"
	"grimm.is/alertwall/internal/brand"
	"grimm.is/alertwall/internal/config"
	"grimm.is/alertwall/internal/events"
	"grimm.is/alertwall/internal/firewall"
	"grimm.is/alertwall/internal/logging"
)

// RunAPI runs the firewall control API until SIGINT or SIGTERM.
func RunAPI(configFile string) error {
	cfg, logger, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	return runAPI(ctx, cfg, logger)
}

func runAPI(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	driver, err := firewall.NewDriver(cfg.Firewall)
	if err != nil {
		return err
	}

	hub := events.NewHub()
	store := firewall.NewStore(driver, firewall.WithEventHub(hub), firewall.WithLogger(logger))
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to prepare chain %s: %w", store.Chain(), err)
	}

	var auditStore *audit.Store
	if cfg.API.AuditDB != "" {
		auditStore, err = audit.NewStore(cfg.API.AuditDB, cfg.API.AuditRetentionDays)
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer auditStore.Close()
	}

	srv, err := api.NewServer(api.ServerOptions{
		Config: cfg.API,
		Store:  store,
		Hub:    hub,
		Audit:  auditStore,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	logger.Info(brand.Name+" control API starting",
		"listen", cfg.API.Listen,
		"backend", store.Backend(),
		"chain", store.Chain(),
		"version", brand.Version,
		"api_key", cfg.API.APIKeyHash != "",
		"audit", auditStore != nil)

	if err := srv.ListenAndServe(ctx, cfg.API.Listen, cfg.API.MaxConnections); err != nil {
		return fmt.Errorf("control API failed: %w", err)
	}
	logger.Info("control API stopped")
	return nil
}
