// Package api provides the HTTP handlers and standardized error handling
// for the territory service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/turf/internal/middleware"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeConflict indicates a conflict with the current state.
	ErrCodeConflict = "conflict"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeSessionActive indicates a recording session is already in progress.
	ErrCodeSessionActive = "session_active"

	// ErrCodeNoSession indicates no recording session is in progress.
	ErrCodeNoSession = "no_session"

	// ErrCodeIneligible indicates the session does not qualify for a territory.
	ErrCodeIneligible = "session_ineligible"

	// ErrCodeTerritoryConflict indicates the territory overlaps an existing claim.
	ErrCodeTerritoryConflict = "territory_conflict"

	// ErrCodeClaimInProgress indicates the territory already has a pending claim.
	ErrCodeClaimInProgress = "claim_in_progress"

	// ErrCodeNotClaimable indicates the territory is not in a claimable state.
	ErrCodeNotClaimable = "not_claimable"

	// ErrCodeSettlementUnavailable indicates the settlement ledger is not reachable.
	ErrCodeSettlementUnavailable = "settlement_unavailable"

	// ErrCodeSwitchRejected indicates the wallet refused the network switch.
	ErrCodeSwitchRejected = "network_switch_rejected"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
// It writes the appropriate HTTP status code and returns a JSON error body.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error_code is logged by the logging middleware for all 4xx and 5xx
// responses when SetErrorCode was called on the context.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, middleware.SetErrorCode(ctx, code))

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
