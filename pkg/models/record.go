package models

import (
	"encoding/json"
	"time"
)

// ClientRecord is the latest ping observation for one client. Each ping
// overwrites the previous record; only the most recent survives.
type ClientRecord struct {
	ID        string          `json:"id"`
	LastSeen  time.Time       `json:"last_seen"`
	SourceIP  string          `json:"source_ip,omitempty"`
	UserAgent string          `json:"user_agent,omitempty"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	Verified  bool            `json:"verified"`
}

// ClientStatus pairs a record with its classified state at read time.
type ClientStatus struct {
	ClientRecord
	State     State `json:"state"`
	AgeMillis int64 `json:"age_ms"`
}
