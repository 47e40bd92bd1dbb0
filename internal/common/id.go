package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique bulk-job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewConnectionID generates a unique WebSocket connection ID with the "conn_" prefix
func NewConnectionID() string {
	return "conn_" + uuid.New().String()
}
