package models

import (
	"encoding/json"
	"time"
)

// MaxFacts caps the per-tenant facts log. Older entries beyond the cap
// are silently dropped.
const MaxFacts = 200

// Fact is an evidence event reported by an external tool, independent
// of the heartbeat state machinery.
type Fact struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"ts"`
	Source    string          `json:"source"`
	Type      string          `json:"type"`
	Entity    string          `json:"entity"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}
