package api

import "time"

type HealthResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Status        string    `json:"status"`
	StreamID      string    `json:"stream_id"`
	StartedAt     time.Time `json:"started_at"`
}
