package utils

import (
	"time"

	"github.com/google/uuid"
)

// GenerateSessionID generates a fit session ID
func GenerateSessionID() string {
	return "sess-" + uuid.NewString()
}

// GenerateFitID generates a fit result ID with a timestamp prefix
func GenerateFitID() string {
	return "fit-" + time.Now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}
