package firewall

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"grimm.is/alertwall/internal/events"
	"grimm.is/alertwall/internal/logging"
	"grimm.is/alertwall/internal/metrics"
	"grimm.is/alertwall/internal/validation"
)

// ipv4Only is implemented by drivers that cannot match IPv6 sources.
type ipv4Only interface {
	IPv4Only() bool
}

// Store is the authoritative view of the dedicated chain. Every operation
// runs under one mutex: read state, compute command, execute, observe.
type Store struct {
	mu      sync.Mutex
	driver  Driver
	hub     *events.Hub
	logger  *logging.Logger
	metrics *metrics.Registry
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithEventHub publishes rule.added/rule.deleted events on hub.
func WithEventHub(hub *events.Hub) StoreOption {
	return func(s *Store) {
		s.hub = hub
	}
}

// WithLogger sets the store's logger.
func WithLogger(logger *logging.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore wraps driver.
func NewStore(driver Driver, opts ...StoreOption) *Store {
	s := &Store{
		driver:  driver,
		metrics: metrics.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.WithComponent("firewall")
	}
	return s
}

// Backend returns the driver name.
func (s *Store) Backend() string {
	return s.driver.Name()
}

// Chain returns the dedicated chain name.
func (s *Store) Chain() string {
	return s.driver.Chain()
}

// Init ensures the dedicated chain exists and is hooked.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureChain(ctx)
}

// List returns the rules in enforced order. Never returns a nil slice on success.
func (s *Store) List(ctx context.Context) ([]Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureChain(ctx); err != nil {
		return nil, err
	}
	return s.list(ctx)
}

// Create validates address and action, then inserts a rule at the head of
// the chain. The returned rule has ID 1.
func (s *Store) Create(ctx context.Context, address, action string) (Rule, error) {
	rule, err := s.create(ctx, address, action)
	s.metrics.RecordRuleMutation("create", err)
	return rule, err
}

func (s *Store) create(ctx context.Context, address, action string) (Rule, error) {
	target, err := NormalizeTarget(action)
	if err != nil {
		return Rule{}, err
	}
	prefix, source, err := validation.NormalizeIPOrCIDR(address)
	if err != nil {
		return Rule{}, &ValidationError{Field: "ip", Message: err.Error()}
	}
	if d, ok := s.driver.(ipv4Only); ok && d.IPv4Only() && prefix.Addr().Is6() {
		return Rule{}, &ValidationError{Field: "ip", Message: fmt.Sprintf("%s backend only supports IPv4 sources", s.driver.Name())}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureChain(ctx); err != nil {
		return Rule{}, err
	}
	if err := s.driver.InsertRule(ctx, source, target); err != nil {
		s.logger.Error("rule insert failed", "source", source, "target", target, "error", err)
		return Rule{}, engineError("insert rule", err)
	}

	rule := Rule{ID: 1, Target: target, Protocol: "all", Source: source, Destination: DestinationAny}
	if rules, err := s.list(ctx); err != nil {
		s.logger.Warn("rule inserted but re-list failed", "source", source, "error", err)
	} else if len(rules) > 0 {
		rule = rules[0]
	}

	s.logger.Info("rule added", "id", rule.ID, "source", rule.Source, "target", rule.Target)
	if s.hub != nil {
		s.hub.EmitRuleAdded(s.driver.Name(), events.RuleData{
			ID: rule.ID, Target: rule.Target, Source: rule.Source, Chain: s.driver.Chain(), Position: 1,
		})
	}
	return rule, nil
}

// Delete removes the rule at position id. When expectSource is non-empty
// the rule currently at that position must match it, otherwise
// ErrRuleNotFound is returned and nothing is deleted.
func (s *Store) Delete(ctx context.Context, id int, expectSource string) (Rule, error) {
	rule, err := s.delete(ctx, id, expectSource)
	s.metrics.RecordRuleMutation("delete", err)
	return rule, err
}

func (s *Store) delete(ctx context.Context, id int, expectSource string) (Rule, error) {
	if id < 1 {
		return Rule{}, &ValidationError{Field: "id", Message: fmt.Sprintf("%d is not a positive rule position", id)}
	}
	var want string
	if expectSource != "" {
		_, norm, err := validation.NormalizeIPOrCIDR(expectSource)
		if err != nil {
			return Rule{}, &ValidationError{Field: "source", Message: err.Error()}
		}
		want = norm
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureChain(ctx); err != nil {
		return Rule{}, err
	}
	rules, err := s.list(ctx)
	if err != nil {
		return Rule{}, err
	}
	if id > len(rules) {
		return Rule{}, fmt.Errorf("rule %d: %w", id, ErrRuleNotFound)
	}
	rule := rules[id-1]
	if want != "" && rule.Source != want {
		return Rule{}, fmt.Errorf("rule %d now matches %s, not %s: %w", id, rule.Source, want, ErrRuleNotFound)
	}

	if err := s.driver.DeleteRule(ctx, id); err != nil {
		s.logger.Error("rule delete failed", "id", id, "error", err)
		return Rule{}, engineError("delete rule", err)
	}
	s.metrics.RulesActive.WithLabelValues(s.driver.Chain()).Set(float64(len(rules) - 1))

	s.logger.Info("rule deleted", "id", id, "source", rule.Source, "target", rule.Target)
	if s.hub != nil {
		s.hub.EmitRuleDeleted(s.driver.Name(), events.RuleData{
			ID: rule.ID, Target: rule.Target, Source: rule.Source, Chain: s.driver.Chain(),
		})
	}
	return rule, nil
}

// ensureChain must be called with mu held.
func (s *Store) ensureChain(ctx context.Context) error {
	if err := s.driver.EnsureChain(ctx); err != nil {
		return engineError("ensure chain", err)
	}
	return nil
}

// list must be called with mu held.
func (s *Store) list(ctx context.Context) ([]Rule, error) {
	rules, err := s.driver.ListRules(ctx)
	if err != nil {
		return nil, engineError("list rules", err)
	}
	if rules == nil {
		rules = []Rule{}
	}
	s.metrics.RulesActive.WithLabelValues(s.driver.Chain()).Set(float64(len(rules)))
	return rules, nil
}

func engineError(op string, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return err
	}
	var eerr *EngineError
	if errors.As(err, &eerr) {
		return err
	}
	return &EngineError{Op: op, Err: err}
}
