package domain

import (
	"time"
)

// Result identifies one created remote paste. Services that report more
// than a key fill the optional fields; the rest leave them zero.
type Result struct {
	Key       string     `json:"key"`
	URL       string     `json:"url"`
	CreatedAt time.Time  `json:"created_at,omitzero"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Safety    string     `json:"safety,omitempty"`
	Views     int        `json:"views,omitempty"`
}
