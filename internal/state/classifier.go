// Package state classifies client liveness from ping age.
package state

import (
	"time"

	"pulsewatch/pkg/models"
)

// Age thresholds. Boundaries are half-open: an age of exactly WarnAfter
// is warn, exactly DownAfter is down.
const (
	WarnAfter = 60 * time.Second
	DownAfter = 300 * time.Second
)

// Classify maps the elapsed time since a client's last ping to a health
// state. Pure function, no I/O.
func Classify(age time.Duration) models.State {
	switch {
	case age < WarnAfter:
		return models.StateOK
	case age < DownAfter:
		return models.StateWarn
	default:
		return models.StateDown
	}
}
