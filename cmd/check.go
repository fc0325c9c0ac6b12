package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"grimm.is/alertwall/internal/brand"
	"grimm.is/alertwall/internal/config"
)

// RunCheck validates the configuration file syntax and semantics.
func RunCheck(configFile string, verbose bool) error {
	return runCheck(os.Stdout, configFile, verbose)
}

func runCheck(out io.Writer, configFile string, verbose bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	path := configFile
	if path == "" {
		path = brand.DefaultConfigFile()
	}
	Printer.Fprintf(out, "Configuration valid!\n")
	Printer.Fprintf(out, "File: %s\n", path)
	Printer.Fprintf(out, "Schema Version: %s\n", cfg.SchemaVersion)

	if verbose {
		Printer.Fprintln(out)
		printSummary(out, cfg)
	}
	return nil
}

func printSummary(out io.Writer, cfg *config.Config) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	row := func(section, key string, value any) {
		Printer.Fprintf(w, "%s\t%s\t%v\n", section, key, value)
	}

	Printer.Fprintln(w, "SECTION\tSETTING\tVALUE")
	row("watch", "log_path", cfg.Watch.LogPath)
	row("watch", "api_url", cfg.Watch.APIURL)
	row("watch", "whitelist", strings.Join(cfg.Watch.Whitelist, ", "))
	row("watch", "action", strings.ToUpper(cfg.Watch.Action))
	row("watch", "timeout", cfg.Watch.TimeoutDuration())
	row("watch", "poll_interval", cfg.Watch.PollDuration())
	row("watch", "resync_on_start", cfg.Watch.ResyncOnStart)
	row("api", "listen", cfg.API.Listen)
	row("api", "api_key", onOff(cfg.API.APIKeyHash != ""))
	row("api", "max_connections", cfg.API.MaxConnections)
	row("api", "rate_limit", rateLimit(cfg.API.RateLimit))
	row("api", "audit_db", orOff(cfg.API.AuditDB))
	row("firewall", "backend", cfg.Firewall.Backend)
	row("firewall", "chain", cfg.Firewall.Chain)
	if cfg.Firewall.Backend == config.BackendNFTables {
		row("firewall", "table", "inet "+cfg.Firewall.Table)
	} else {
		row("firewall", "parent_chain", cfg.Firewall.ParentChain)
	}
	row("inspector", "queue", cfg.Inspector.Queue)
	w.Flush()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func orOff(s string) string {
	if s == "" {
		return "off"
	}
	return s
}

func rateLimit(n int) string {
	if n == 0 {
		return "off"
	}
	return fmt.Sprintf("%d/min", n)
}
