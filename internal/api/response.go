// Package api provides HTTP response helpers for the control endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/models"
)

// fallbackErrorBody is marshaled once at startup so an envelope that fails to
// encode can still produce a well-formed error response.
var fallbackErrorBody = func() []byte {
	data, err := json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic("marshal fallback error response: " + err.Error())
	}
	return data
}()

// writeEnvelope marshals the uniform response envelope and writes it with the
// given status code. Marshaling happens before any header is written so an
// encoding failure can still downgrade the response to the fallback error.
func writeEnvelope(w http.ResponseWriter, statusCode int, response models.APIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeEnvelope: marshal failed", "error", err)
		data = fallbackErrorBody
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(data); err != nil {
		slog.Error("Server.writeEnvelope: write failed", "error", err)
	}
}

// writeMethodNotAllowed advertises the allowed methods and rejects the call.
func writeMethodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	w.WriteHeader(http.StatusMethodNotAllowed)
}
