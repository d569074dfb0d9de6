// Package discovery serves the OAuth metadata documents clients use to
// locate this gateway's authorization and resource endpoints: RFC 8414
// authorization server metadata and RFC 9728 protected resource
// metadata.
package discovery

import (
	"encoding/json"
	"net/http"
	"strings"
)

// WellKnownAuthServerPath is the RFC 8414 standard path for
// authorization server metadata.
const WellKnownAuthServerPath = "/.well-known/oauth-authorization-server"

// WellKnownResourcePath is the RFC 9728 standard path for protected
// resource metadata. Per RFC 9728 §3, this path and any subpaths under
// it must be servable without authentication.
const WellKnownResourcePath = "/.well-known/oauth-protected-resource"

// AuthServerMetadata is the RFC 8414 authorization server metadata
// document this gateway publishes for its own issuer.
type AuthServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// ResourceMetadata is the RFC 9728 protected resource metadata
// document. In split auth mode this advertises the external
// authorization server rather than this process's own endpoints.
type ResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
}

// NewAuthServerMetadata builds the authorization server metadata
// document for a gateway whose own endpoints live under baseURI.
func NewAuthServerMetadata(baseURI string) AuthServerMetadata {
	return AuthServerMetadata{
		Issuer:                            baseURI,
		AuthorizationEndpoint:             baseURI + "/authorize",
		TokenEndpoint:                     baseURI + "/token",
		RegistrationEndpoint:              baseURI + "/register",
		IntrospectionEndpoint:             baseURI + "/introspect",
		RevocationEndpoint:                baseURI + "/revoke",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "none"},
	}
}

// NewResourceMetadata builds the protected resource metadata document.
// authorizationServerURI is this gateway's own base URI in embedded
// mode, or the external authorization server's URI in split mode.
func NewResourceMetadata(resourceURI, authorizationServerURI string, scopes []string) ResourceMetadata {
	return ResourceMetadata{
		Resource:               resourceURI,
		AuthorizationServers:   []string{authorizationServerURI},
		BearerMethodsSupported: []string{"header"},
		ScopesSupported:        scopes,
	}
}

// AuthServerHandler serves the RFC 8414 metadata document at its
// well-known path.
func AuthServerHandler(metadata AuthServerMetadata) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, metadata)
	})
}

// ResourceHandler serves the RFC 9728 metadata document at its
// well-known path and any subpath beneath it. Unknown .well-known
// paths fall through to 404.
func ResourceHandler(metadata ResourceMetadata) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, WellKnownResourcePath) {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, metadata)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
