// Package ids turns the intrusion detection sensor's EVE log into firewall
// rules: it tails the log, classifies each record and asks the control API
// to block actionable sources.
package ids

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SignatureUnknown is used when an alert carries no signature text.
const SignatureUnknown = "N/A"

// EventTypeAlert is the EVE event_type of detection alerts.
const EventTypeAlert = "alert"

// AlertRecord is one parsed EVE log line.
type AlertRecord struct {
	EventType     string
	SourceAddress string
	HasSource     bool
	Signature     string
	SignatureID   int64
	Severity      int
	Category      string
	DestAddress   string
	Proto         string
	Timestamp     string
	Raw           string
}

// eveRecord is the subset of the EVE JSON schema alertwall reads.
type eveRecord struct {
	Timestamp string    `json:"timestamp"`
	EventType string    `json:"event_type"`
	SrcIP     string    `json:"src_ip"`
	DestIP    string    `json:"dest_ip"`
	Proto     string    `json:"proto"`
	Alert     *eveAlert `json:"alert"`
}

type eveAlert struct {
	Signature   string `json:"signature"`
	SignatureID int64  `json:"signature_id"`
	Severity    int    `json:"severity"`
	Category    string `json:"category"`
}

var errNotObject = errors.New("record is not a JSON object")

// ParseRecord decodes one log line. Non-JSON input, JSON that is not an
// object and fields of the wrong type are errors.
func ParseRecord(line string) (AlertRecord, error) {
	trimmed := bytes.TrimSpace([]byte(line))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return AlertRecord{Raw: line}, errNotObject
	}

	var eve eveRecord
	if err := json.Unmarshal(trimmed, &eve); err != nil {
		return AlertRecord{Raw: line}, fmt.Errorf("decode record: %w", err)
	}

	rec := AlertRecord{
		EventType:     eve.EventType,
		SourceAddress: strings.TrimSpace(eve.SrcIP),
		Signature:     SignatureUnknown,
		DestAddress:   eve.DestIP,
		Proto:         eve.Proto,
		Timestamp:     eve.Timestamp,
		Raw:           line,
	}
	rec.HasSource = rec.SourceAddress != ""
	if eve.Alert != nil {
		if eve.Alert.Signature != "" {
			rec.Signature = eve.Alert.Signature
		}
		rec.SignatureID = eve.Alert.SignatureID
		rec.Severity = eve.Alert.Severity
		rec.Category = eve.Alert.Category
	}
	return rec, nil
}
