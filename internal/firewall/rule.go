package firewall

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Rule targets accepted by the store.
const (
	TargetAccept = "ACCEPT"
	TargetDrop   = "DROP"
	TargetReject = "REJECT"
)

// DestinationAny is the only destination a managed rule carries.
const DestinationAny = "any"

// ValidTargets lists the accepted rule targets in display order.
var ValidTargets = []string{TargetAccept, TargetDrop, TargetReject}

// Rule is one entry of the dedicated chain.
type Rule struct {
	ID          int    `json:"id"`
	Target      string `json:"target"`
	Protocol    string `json:"protocol"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// Driver is the narrow boundary to the packet-filter engine.
// Implementations need not be safe for concurrent use; Store serialises calls.
type Driver interface {
	// Name identifies the backend ("iptables", "nftables", "memory").
	Name() string
	// Chain is the name of the dedicated chain.
	Chain() string
	// EnsureChain creates the chain if absent and hooks it into the
	// inbound path exactly once. Safe to call repeatedly.
	EnsureChain(ctx context.Context) error
	// ListRules returns the chain's rules in evaluation order, IDs from 1.
	ListRules(ctx context.Context) ([]Rule, error)
	// InsertRule puts a rule matching source at the head of the chain.
	InsertRule(ctx context.Context, source, target string) error
	// DeleteRule removes the rule at 1-based position id.
	DeleteRule(ctx context.Context, id int) error
}

var (
	// ErrRuleNotFound is returned when no rule exists at the requested position.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrNotSupported is returned by backends unavailable on this platform.
	ErrNotSupported = errors.New("firewall backend not supported on this platform")
)

// ValidationError reports caller input the store refused. Nothing was executed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// EngineError reports a failed packet-filter invocation. The chain is assumed
// unchanged.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NormalizeTarget upper-cases target, defaulting to DROP when empty.
func NormalizeTarget(target string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(target))
	if t == "" {
		return TargetDrop, nil
	}
	for _, v := range ValidTargets {
		if t == v {
			return t, nil
		}
	}
	return "", &ValidationError{
		Field:   "action",
		Message: fmt.Sprintf("%q is not one of %s", target, strings.Join(ValidTargets, ", ")),
	}
}
