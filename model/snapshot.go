package model

import "time"

// Snapshot is the latest realtime result of one inverter. Data is replaced
// wholesale on success and carried over untouched when a poll fails.
type Snapshot struct {
	Data              map[string]any `json:"data"`
	LastUpdateSuccess bool           `json:"last_update_success"`
	LastError         string         `json:"last_error,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at"`
	AttemptedAt       time.Time      `json:"attempted_at"`
}

func (s Snapshot) Stale() bool {
	return !s.LastUpdateSuccess
}
