package models

import "time"

// AlertPayload is the JSON body posted to a tenant's webhook when a
// client's persisted state changes.
type AlertPayload struct {
	DeliveryID string    `json:"delivery_id"`
	Tenant     string    `json:"tenant"`
	ClientID   string    `json:"client_id"`
	From       State     `json:"from"`
	To         State     `json:"to"`
	Timestamp  time.Time `json:"ts"`
}
