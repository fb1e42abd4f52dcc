package model

import "time"

// Setting is a key/value policy entry editable at runtime.
type Setting struct {
	Key         string    `json:"key"`         // settings.name
	Value       string    `json:"value"`       // settings.value
	Description string    `json:"description"` // settings.description
	UpdatedAt   time.Time `json:"updated_at"`  // settings.updated_at
}
