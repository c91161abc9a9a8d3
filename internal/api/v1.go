package api

import "time"

const SchemaVersion = "v1"

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Error         APIError  `json:"error"`
}

type HelpersResponse struct {
	Keyboard bool `json:"keyboard"`
	Rotation bool `json:"rotation"`
}

// ModeResponse is the daemon's view of the currently applied mode. Plan and
// AppliedAt are empty until the first plan has been applied.
type ModeResponse struct {
	SchemaVersion string          `json:"schema_version"`
	GeneratedAt   time.Time       `json:"generated_at"`
	Posture       string          `json:"posture"`
	Docked        bool            `json:"docked"`
	Plan          string          `json:"plan,omitempty"`
	Actions       []string        `json:"actions"`
	Displays      []string        `json:"displays"`
	AppliedAt     *time.Time      `json:"applied_at,omitempty"`
	Helpers       HelpersResponse `json:"helpers"`
}

type TransitionResponse struct {
	TransitionID string    `json:"transition_id"`
	Trigger      string    `json:"trigger"`
	Posture      string    `json:"posture"`
	Docked       bool      `json:"docked"`
	Plan         string    `json:"plan"`
	Actions      []string  `json:"actions"`
	Displays     []string  `json:"displays"`
	AppliedAt    time.Time `json:"applied_at"`
}

type TransitionsEnvelope struct {
	SchemaVersion string               `json:"schema_version"`
	GeneratedAt   time.Time            `json:"generated_at"`
	Transitions   []TransitionResponse `json:"transitions"`
}
