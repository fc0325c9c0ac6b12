package ids

import (
	"context"
	"errors"
	"net/netip"
	"strings"

	"grimm.is/alertwall/internal/client"
	"grimm.is/alertwall/internal/logging"
	"grimm.is/alertwall/internal/metrics"
)

// LineSource yields raw log lines; *Tailer is the production source.
type LineSource interface {
	Next(ctx context.Context) (string, error)
}

// RuleLister lists the rules currently installed, for resync.
type RuleLister interface {
	ListRules(ctx context.Context) ([]client.Rule, error)
}

// Monitor runs the tail, classify, dispatch loop. One line is fully
// handled before the next is read.
type Monitor struct {
	source     LineSource
	whitelist  *Whitelist
	blocked    *BlockedSet
	dispatcher *Dispatcher
	logger     *logging.Logger
	metrics    *metrics.Registry
}

// NewMonitor wires a monitor. blocked must be the set the dispatcher updates.
func NewMonitor(source LineSource, whitelist *Whitelist, blocked *BlockedSet, dispatcher *Dispatcher, logger *logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Monitor{
		source:     source,
		whitelist:  whitelist,
		blocked:    blocked,
		dispatcher: dispatcher,
		logger:     logger.WithComponent("monitor"),
		metrics:    metrics.Get(),
	}
}

// Resync seeds the blocked set from rules already installed: DROP and
// REJECT rules whose source is a single address. It returns how many
// addresses were added.
func (m *Monitor) Resync(ctx context.Context, lister RuleLister) (int, error) {
	rules, err := lister.ListRules(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, r := range rules {
		if r.Target != "DROP" && r.Target != "REJECT" {
			continue
		}
		addr, err := netip.ParseAddr(r.Source)
		if err != nil {
			continue // prefix rules cover more than one host
		}
		if m.blocked.Add(addr) {
			added++
		}
	}
	m.metrics.BlockedSetSize.Set(float64(m.blocked.Len()))
	return added, nil
}

// Run processes lines until ctx is cancelled (returns nil) or the source
// fails (returns the error).
func (m *Monitor) Run(ctx context.Context) error {
	for {
		line, err := m.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				return nil
			}
			return err
		}
		m.Handle(ctx, line)
	}
}

// Handle classifies one line and dispatches it when actionable.
func (m *Monitor) Handle(ctx context.Context, line string) (Classification, Outcome) {
	if strings.TrimSpace(line) == "" {
		return Classification{Result: NotAnAlert}, Outcome{Status: Skipped, Reason: ReasonNotActionable}
	}

	c := Classify(line, m.whitelist, m.blocked)
	m.metrics.AlertsClassified.WithLabelValues(c.Result.String()).Inc()
	m.logClassification(c)

	if c.Result != Actionable {
		return c, Outcome{Status: Skipped, Reason: ReasonNotActionable}
	}
	return c, m.dispatcher.Dispatch(ctx, c)
}

func (m *Monitor) logClassification(c Classification) {
	switch c.Result {
	case MalformedInput:
		m.logger.Warn("skipping malformed line", "error", c.Err, "line", truncate(c.Record.Raw, 200))
	case NotAnAlert:
		m.logger.Debug("not an alert", "event_type", c.Record.EventType)
	case Whitelisted:
		m.logger.Info("alert from whitelisted address ignored", "src_ip", c.Address.String(), "signature", c.Signature)
	case DuplicateSuppressed:
		m.logger.Info("address already blocked, skipping", "src_ip", c.Address.String(), "signature", c.Signature)
	case Actionable:
		m.logger.Warn("alert detected", "src_ip", c.Address.String(), "signature", c.Signature,
			"signature_id", c.Record.SignatureID, "severity", c.Record.Severity, "dest_ip", c.Record.DestAddress)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
