package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the envelope of every API response.
//
//   - Status is "healthy", "unhealthy", "ok" or "error"
//   - Timestamp is the response time in UTC
//   - Data carries the payload, Error the failure message
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The header is already sent; an encoding failure can only truncate.
	_ = json.NewEncoder(w).Encode(data)
}

func newResponse(status string, data any, errMsg string) Response {
	return Response{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Error:     errMsg,
	}
}

func healthyResponse(data any) Response        { return newResponse("healthy", data, "") }
func unhealthyResponse(errMsg string) Response { return newResponse("unhealthy", nil, errMsg) }
func okResponse(data any) Response             { return newResponse("ok", data, "") }
func errorResponse(errMsg string) Response     { return newResponse("error", nil, errMsg) }
