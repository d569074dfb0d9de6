package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/stacklok/mcp-session-gateway/pkg/authserver/clients"
	"github.com/stacklok/mcp-session-gateway/pkg/ghaerrors"
)

// handleRegister implements RFC 7591 dynamic client registration.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var meta clients.Metadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "malformed JSON body")
		return
	}

	reg, err := a.registry.Register(r.Context(), meta)
	if err != nil {
		if ghaerrors.Is(err, ghaerrors.TypeInvalidRequest) {
			writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", err.Error())
			return
		}
		writeMappedError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(reg)
}
