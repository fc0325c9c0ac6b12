package firewall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/alertwall/internal/events"
)

func newMemoryStore(t *testing.T) (*Store, *MemoryDriver) {
	t.Helper()
	d := NewMemoryDriver("ALERTWALL")
	return NewStore(d), d
}

func sources(rules []Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Source
	}
	return out
}

func TestStore_ListEmptyIsNotNil(t *testing.T) {
	store, d := newMemoryStore(t)

	rules, err := store.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rules)
	assert.Empty(t, rules)
	assert.Equal(t, 1, d.Hooks())
}

func TestStore_CreateInsertsAtHead(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()

	b, err := store.Create(ctx, "10.0.0.2", "DROP")
	require.NoError(t, err)
	assert.Equal(t, 1, b.ID)

	c, err := store.Create(ctx, "10.0.0.3", "drop")
	require.NoError(t, err)
	assert.Equal(t, Rule{ID: 1, Target: "DROP", Protocol: "all", Source: "10.0.0.3", Destination: "any"}, c)

	rules, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, []string{"10.0.0.3", "10.0.0.2"}, sources(rules))
	assert.Equal(t, 1, rules[0].ID)
	assert.Equal(t, 2, rules[1].ID)
}

func TestStore_CreateDefaultsAndNormalises(t *testing.T) {
	store, _ := newMemoryStore(t)

	rule, err := store.Create(context.Background(), "192.168.1.77/24", "")
	require.NoError(t, err)
	assert.Equal(t, "DROP", rule.Target)
	assert.Equal(t, "192.168.1.0/24", rule.Source)

	rule, err = store.Create(context.Background(), "10.1.1.1", "reject")
	require.NoError(t, err)
	assert.Equal(t, "REJECT", rule.Target)
}

func TestStore_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		ip     string
		action string
		field  string
	}{
		{"bad address", "bad!addr", "DROP", "ip"},
		{"empty address", "", "DROP", "ip"},
		{"unknown action", "10.0.0.5", "LOG", "action"},
		{"flag injection", "10.0.0.5", "DROP -j ACCEPT", "action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newMemoryStore(t)
			_, err := store.Create(context.Background(), tt.ip, tt.action)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)

			rules, err := store.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, rules)
		})
	}
}

func TestStore_EngineFailure(t *testing.T) {
	store, d := newMemoryStore(t)
	d.FailOn = func(op string) error {
		if op == "insert" {
			return errors.New("iptables: Resource temporarily unavailable")
		}
		return nil
	}

	_, err := store.Create(context.Background(), "10.0.0.5", "DROP")
	var eerr *EngineError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, "insert rule", eerr.Op)

	d.FailOn = nil
	rules, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestStore_ListEngineFailure(t *testing.T) {
	store, d := newMemoryStore(t)
	d.FailOn = func(op string) error {
		if op == "list" {
			return errors.New("boom")
		}
		return nil
	}

	_, err := store.List(context.Background())
	var eerr *EngineError
	assert.ErrorAs(t, err, &eerr)
}

func TestStore_DeleteRenumbers(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()
	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"} {
		_, err := store.Create(ctx, ip, "DROP")
		require.NoError(t, err)
	}
	// chain order: .4 .3 .2 .1

	deleted, err := store.Delete(ctx, 2, "")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3", deleted.Source)

	rules, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.4", "10.0.0.2", "10.0.0.1"}, sources(rules))
	for i, r := range rules {
		assert.Equal(t, i+1, r.ID)
	}
}

func TestStore_DeleteNotFound(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()
	_, err := store.Create(ctx, "10.0.0.1", "DROP")
	require.NoError(t, err)

	_, err = store.Delete(ctx, 2, "")
	assert.ErrorIs(t, err, ErrRuleNotFound)

	_, err = store.Delete(ctx, 1, "")
	require.NoError(t, err)

	_, err = store.Delete(ctx, 1, "")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestStore_DeleteInvalidID(t *testing.T) {
	store, _ := newMemoryStore(t)

	_, err := store.Delete(context.Background(), 0, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "id", verr.Field)
}

func TestStore_DeleteSourceGuard(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()
	_, err := store.Create(ctx, "10.0.0.1", "DROP")
	require.NoError(t, err)

	// A concurrent insert shifts 10.0.0.1 to position 2.
	_, err = store.Create(ctx, "10.0.0.2", "DROP")
	require.NoError(t, err)

	_, err = store.Delete(ctx, 1, "10.0.0.1")
	assert.ErrorIs(t, err, ErrRuleNotFound)

	rules, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	deleted, err := store.Delete(ctx, 2, "10.0.0.1/32")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", deleted.Source)
}

func TestStore_EnsureChainIdempotent(t *testing.T) {
	store, d := newMemoryStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Init(ctx))
		_, err := store.List(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, d.Hooks())
}

func TestStore_ConcurrentMutations(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_, err := store.Create(ctx, fmt.Sprintf("10.0.1.%d", n), "DROP")
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			_, err := store.List(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rules, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 20)
	seen := map[string]bool{}
	for i, r := range rules {
		assert.Equal(t, i+1, r.ID)
		seen[r.Source] = true
	}
	assert.Len(t, seen, 20)
}

func TestStore_PublishesEvents(t *testing.T) {
	hub := events.NewHub()
	ch := hub.Subscribe(10)
	store := NewStore(NewMemoryDriver("ALERTWALL"), WithEventHub(hub))
	ctx := context.Background()

	_, err := store.Create(ctx, "10.0.0.5", "DROP")
	require.NoError(t, err)
	_, err = store.Delete(ctx, 1, "")
	require.NoError(t, err)

	var got []events.EventType
	for len(got) < 2 {
		select {
		case e := <-ch:
			got = append(got, e.Type)
			data := e.Data.(events.RuleData)
			assert.Equal(t, "10.0.0.5", data.Source)
			assert.Equal(t, "ALERTWALL", data.Chain)
			assert.Equal(t, "memory", e.Source)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for rule events")
		}
	}
	assert.Equal(t, []events.EventType{events.EventRuleAdded, events.EventRuleDeleted}, got)
}

func TestNormalizeTarget(t *testing.T) {
	got, err := NormalizeTarget(" accept ")
	require.NoError(t, err)
	assert.Equal(t, "ACCEPT", got)

	got, err = NormalizeTarget("")
	require.NoError(t, err)
	assert.Equal(t, "DROP", got)

	_, err = NormalizeTarget("QUEUE")
	assert.Error(t, err)
}
