package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/stacklok/mcp-session-gateway/pkg/ghaerrors"
	"github.com/stacklok/mcp-session-gateway/pkg/logger"
)

// oauthError is the RFC 6749 §5.2 error body shape.
type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeOAuthError(w http.ResponseWriter, status int, errType ghaerrors.ErrorType, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(oauthError{Error: string(errType), ErrorDescription: description})
}

// statusForError maps the domain error taxonomy onto the HTTP status
// the OAuth endpoints are contracted to return for that kind of
// failure.
func statusForError(err error) (int, ghaerrors.ErrorType) {
	switch {
	case ghaerrors.IsInvalidClient(err):
		return http.StatusBadRequest, ghaerrors.TypeInvalidClient
	case ghaerrors.IsInvalidGrant(err):
		return http.StatusBadRequest, ghaerrors.TypeInvalidGrant
	case ghaerrors.Is(err, ghaerrors.TypeInvalidRequest):
		return http.StatusBadRequest, ghaerrors.TypeInvalidRequest
	default:
		logger.Errorw("httpapi: unclassified error", "error", err)
		return http.StatusInternalServerError, ghaerrors.TypeInternal
	}
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, errType := statusForError(err)
	writeOAuthError(w, status, errType, err.Error())
}
