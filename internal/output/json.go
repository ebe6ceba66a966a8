// Package output renders command results as machine-readable JSON for
// scripting against locksmith.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Response is a standardized JSON wrapper for command outputs.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"` // RFC3339 format
}

// ServiceStatus is one service's lock status for the status command.
type ServiceStatus struct {
	Service string `json:"service"`
	Image   string `json:"image"`
	State   string `json:"state"` // "locked", "unlocked", "image-changed", "orphaned"
	Version string `json:"version,omitempty"`
	Digest  string `json:"digest,omitempty"`
}

// SuccessResponse creates a successful response with data
func SuccessResponse(data interface{}) Response {
	return Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// ErrorResponse creates an error response
func ErrorResponse(err error) Response {
	return Response{
		Success:   false,
		Error:     err.Error(),
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// WriteJSON writes a Response as indented JSON to the given writer
func WriteJSON(w io.Writer, response Response) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
