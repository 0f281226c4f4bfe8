// Package httpserver contains HTTP handlers and middleware.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
)

type errorEnvelope struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the §7 error taxonomy onto HTTP status codes. Only
// the synchronous, user-visible codes map to a specific status;
// everything else (the two AI_SERVICE_* kinds, which only ever surface
// inside a terminal FAILED entity, never as a direct HTTP response)
// falls through to 500/INTERNAL.
func writeError(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusInternalServerError
	code := string(domain.CodeInternal)

	var ae *domain.AppError
	if errors.As(err, &ae) {
		code = string(ae.Code)
		switch ae.Code {
		case domain.CodeValidation, domain.CodeTooManyProducts, domain.CodeTooManyPersonas,
			domain.CodeEmailAlreadyExists, domain.CodeInvalidCredentials, domain.CodeUserInactive:
			status = http.StatusBadRequest
		case domain.CodeUnauthorizedAccess:
			status = http.StatusForbidden
		case domain.CodeMissingToken:
			status = http.StatusUnauthorized
		case domain.CodeResourceNotFound:
			status = http.StatusNotFound
		case domain.CodePersonasNotReady:
			status = http.StatusConflict
		default:
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, errorEnvelope{ErrorCode: code, Message: err.Error()})
}
