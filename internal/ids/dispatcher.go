package ids

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"grimm.is/alertwall/internal/client"
	"grimm.is/alertwall/internal/clock"
	"grimm.is/alertwall/internal/logging"
	"grimm.is/alertwall/internal/metrics"
)

// Status is the dispatcher's result for one classification.
type Status int

const (
	Skipped Status = iota
	Blocked
	Failed
)

func (s Status) String() string {
	switch s {
	case Blocked:
		return "blocked"
	case Failed:
		return "failed"
	default:
		return "skipped"
	}
}

// Failure and skip reasons.
const (
	ReasonUnreachable      = "unreachable"       // transport error or timeout
	ReasonRejected         = "rejected"          // 4xx
	ReasonServerError      = "server_error"      // 5xx
	ReasonUnexpectedStatus = "unexpected_status" // anything else, 2xx other than 201 included
	ReasonNotActionable    = "not_actionable"
	ReasonAlreadyBlocked   = "already_blocked"
)

// Outcome reports what Dispatch did.
type Outcome struct {
	Status     Status
	Reason     string
	StatusCode int
	Err        error
}

// RuleCreator is the slice of the control API client the dispatcher uses.
type RuleCreator interface {
	CreateRule(ctx context.Context, address, action string) (*client.CreateRuleResponse, error)
}

// Dispatcher installs block rules for actionable alerts.
type Dispatcher struct {
	api     RuleCreator
	blocked *BlockedSet
	action  string
	timeout time.Duration
	logger  *logging.Logger
	metrics *metrics.Registry
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAction sets the rule target requested from the API (default DROP).
func WithAction(action string) DispatcherOption {
	return func(d *Dispatcher) {
		if action != "" {
			d.action = action
		}
	}
}

// WithTimeout bounds each API call (default 5s).
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithDispatchLogger sets the logger.
func WithDispatchLogger(logger *logging.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger.WithComponent("dispatcher")
	}
}

// NewDispatcher creates a dispatcher that records confirmed blocks in blocked.
func NewDispatcher(api RuleCreator, blocked *BlockedSet, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		api:     api,
		blocked: blocked,
		action:  "DROP",
		timeout: 5 * time.Second,
		logger:  logging.WithComponent("dispatcher"),
		metrics: metrics.Get(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch issues one create-rule call for an actionable classification.
// The address joins the blocked set only after the API answers 201.
func (d *Dispatcher) Dispatch(ctx context.Context, c Classification) Outcome {
	if c.Result != Actionable {
		return d.finish(c, Outcome{Status: Skipped, Reason: ReasonNotActionable}, 0)
	}
	if d.blocked.Contains(c.Address) {
		return d.finish(c, Outcome{Status: Skipped, Reason: ReasonAlreadyBlocked}, 0)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := clock.Now()
	_, err := d.api.CreateRule(callCtx, c.Address.String(), d.action)
	elapsed := clock.Since(start)

	if err != nil {
		return d.finish(c, failure(err), elapsed)
	}

	d.blocked.Add(c.Address)
	d.metrics.BlockedSetSize.Set(float64(d.blocked.Len()))
	return d.finish(c, Outcome{Status: Blocked, StatusCode: http.StatusCreated}, elapsed)
}

// failure maps a CreateRule error to a reason.
func failure(err error) Outcome {
	o := Outcome{Status: Failed, Err: err, StatusCode: client.StatusCode(err)}
	switch {
	case client.IsUnreachable(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		o.Reason = ReasonUnreachable
	case o.StatusCode >= 400 && o.StatusCode < 500:
		o.Reason = ReasonRejected
	case o.StatusCode >= 500:
		o.Reason = ReasonServerError
	default:
		o.Reason = ReasonUnexpectedStatus
	}
	return o
}

func (d *Dispatcher) finish(c Classification, o Outcome, elapsed time.Duration) Outcome {
	if o.Status != Skipped || o.Reason != ReasonNotActionable {
		d.metrics.RecordDispatch(o.Status.String(), o.Reason, elapsed.Seconds())
	}

	addr := ""
	if c.Address.IsValid() {
		addr = c.Address.String()
	}
	switch o.Status {
	case Blocked:
		d.logger.Info("address blocked", "src_ip", addr, "signature", c.Signature,
			"action", d.action, "duration", elapsed.Round(time.Millisecond).String())
	case Failed:
		args := []any{"src_ip", addr, "reason", o.Reason, "error", o.Err}
		if o.StatusCode != 0 {
			args = append(args, "status", o.StatusCode)
		}
		if o.Reason == ReasonUnreachable {
			d.logger.Error("control API unreachable, block not applied", args...)
		} else {
			d.logger.Error("control API refused block", args...)
		}
	default:
		d.logger.Debug("dispatch skipped", "src_ip", addr, "reason", o.Reason)
	}
	return o
}

// String renders an outcome for logs and the CLI.
func (o Outcome) String() string {
	switch {
	case o.Status == Failed && o.StatusCode != 0:
		return fmt.Sprintf("%s (%s, HTTP %d)", o.Status, o.Reason, o.StatusCode)
	case o.Reason != "":
		return fmt.Sprintf("%s (%s)", o.Status, o.Reason)
	default:
		return o.Status.String()
	}
}
