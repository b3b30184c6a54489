package models

// State is the health classification of a client, derived from the
// elapsed time since its last ping.
type State string

const (
	// StateUnknown means no record exists for the client yet.
	StateUnknown State = "unknown"
	// StateOK means the client pinged recently.
	StateOK State = "ok"
	// StateWarn means the client has missed its expected ping window.
	StateWarn State = "warn"
	// StateDown means the client has been silent long enough to be
	// considered down.
	StateDown State = "down"
)
