package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"grimm.is/alertwall/internal/logging"
	"grimm.is/alertwall/internal/validation"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

var (
	validBackends = []string{BackendIPTables, BackendNFTables, BackendMemory}
	validActions  = []string{"ACCEPT", "DROP", "REJECT"}
)

// Validate checks a defaulted configuration.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if err := checkVersion(c.SchemaVersion); err != nil {
		add("schema_version", "%v", err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		add("log_level", "%v", err)
	}

	if w := c.Watch; w != nil {
		if w.LogPath == "" {
			add("watch.log_path", "must not be empty")
		}
		if err := validateURL(w.APIURL); err != nil {
			add("watch.api_url", "%v", err)
		}
		for i, entry := range w.Whitelist {
			if err := validation.ValidateIPOrCIDR(entry); err != nil {
				add(fmt.Sprintf("watch.whitelist[%d]", i), "%v", err)
			}
		}
		if err := validation.ValidateAllowlist(strings.ToUpper(w.Action), validActions); err != nil {
			add("watch.action", "%v", err)
		}
		if err := validateDuration(w.Timeout); err != nil {
			add("watch.timeout", "%v", err)
		}
		if err := validateDuration(w.PollInterval); err != nil {
			add("watch.poll_interval", "%v", err)
		}
		if w.MetricsListen != "" {
			if _, _, err := net.SplitHostPort(w.MetricsListen); err != nil {
				add("watch.metrics_listen", "%v", err)
			}
		}
	}

	if a := c.API; a != nil {
		if _, _, err := net.SplitHostPort(a.Listen); err != nil {
			add("api.listen", "%v", err)
		}
		if a.APIKeyHash != "" && !strings.HasPrefix(a.APIKeyHash, "$2") {
			add("api.api_key_hash", "must be a bcrypt hash (see `alertwall hash-key`)")
		}
		if a.MaxConnections < 0 {
			add("api.max_connections", "must not be negative")
		}
		if a.RateLimit < 0 {
			add("api.rate_limit", "must not be negative")
		}
		if a.AuditRetentionDays < 0 {
			add("api.audit_retention_days", "must not be negative")
		}
	}

	if f := c.Firewall; f != nil {
		if err := validation.ValidateAllowlist(f.Backend, validBackends); err != nil {
			add("firewall.backend", "%v", err)
		}
		if err := validation.ValidateIdentifier(f.Chain); err != nil {
			add("firewall.chain", "%v", err)
		}
		if err := validation.ValidateIdentifier(f.ParentChain); err != nil {
			add("firewall.parent_chain", "%v", err)
		}
		if err := validation.ValidateIdentifier(f.Table); err != nil {
			add("firewall.table", "%v", err)
		}
		if f.Chain == f.ParentChain {
			add("firewall.chain", "must differ from parent_chain")
		}
	}

	if in := c.Inspector; in != nil {
		if in.Queue < 0 || in.Queue > 65535 {
			add("inspector.queue", "must be between 0 and 65535")
		}
		if in.MaxQueueLen < 0 {
			add("inspector.max_queue_len", "must not be negative")
		}
		if in.MaxPacketLen < 0 || in.MaxPacketLen > 0xFFFF {
			add("inspector.max_packet_len", "must be between 0 and 65535")
		}
	}

	return errs
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive, got %s", s)
	}
	return nil
}
