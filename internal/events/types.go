// Package events provides the in-process pub/sub bus that carries rule
// mutations from the rule store to live subscribers (websocket clients,
// the audit trail).
package events

import "time"

// EventType identifies the category of event.
type EventType string

const (
	EventRuleAdded   EventType = "rule.added"
	EventRuleDeleted EventType = "rule.deleted"
)

// Event is the core message passed through the event bus.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"` // backend that applied the change: "iptables", "nftables", "memory"
	Data      interface{} `json:"data"`
}

// RuleData is the payload for EventRuleAdded/EventRuleDeleted.
type RuleData struct {
	ID       int    `json:"id"`
	Target   string `json:"target"`
	Source   string `json:"source"`
	Chain    string `json:"chain"`
	Position int    `json:"position,omitempty"`
}
