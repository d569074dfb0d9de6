// Package clients implements RFC 7591 dynamic client registration and
// RFC 8252 §7.3 loopback redirect URI matching.
package clients

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/stacklok/mcp-session-gateway/pkg/authcrypto"
	"github.com/stacklok/mcp-session-gateway/pkg/ghaerrors"
	"github.com/stacklok/mcp-session-gateway/pkg/kvstore"
)

// Registration is the persisted client record. The secret is returned
// to the caller once, in the registration response, and is kept in the
// stored record; the token endpoint does not check it.
type Registration struct {
	ClientID     string   `json:"client_id"`
	ClientName   string   `json:"client_name,omitempty"`
	ClientURI    string   `json:"client_uri,omitempty"`
	RedirectURIs []string `json:"redirect_uris"`
	Secret       string   `json:"client_secret,omitempty"`
	Public       bool     `json:"public"`
}

// Metadata is the RFC 7591 registration request body.
type Metadata struct {
	ClientName   string   `json:"client_name,omitempty"`
	ClientURI    string   `json:"client_uri,omitempty"`
	RedirectURIs []string `json:"redirect_uris"`
}

// Registry persists and looks up client registrations.
type Registry struct {
	store kvstore.Store
}

// NewRegistry wraps a kvstore.Store as a client registry.
func NewRegistry(store kvstore.Store) *Registry {
	return &Registry{store: store}
}

// Register validates client metadata and persists a new registration.
func (r *Registry) Register(ctx context.Context, meta Metadata) (*Registration, error) {
	if len(meta.RedirectURIs) == 0 {
		return nil, ghaerrors.NewInvalidRequestError("at least one redirect_uri is required", nil)
	}
	for _, u := range meta.RedirectURIs {
		if !validRedirectURI(u) {
			return nil, ghaerrors.NewInvalidRequestError(fmt.Sprintf("invalid redirect_uri: %s", u), nil)
		}
	}

	secret, err := authcrypto.GenerateToken()
	if err != nil {
		return nil, ghaerrors.NewInternalError("failed to generate client secret", err)
	}

	reg := &Registration{
		ClientID:     uuid.NewString(),
		ClientName:   meta.ClientName,
		ClientURI:    meta.ClientURI,
		RedirectURIs: meta.RedirectURIs,
		Secret:       secret,
	}

	if err := kvstore.SaveJSON(ctx, r.store, kvstore.ClassClient, reg.ClientID, reg, kvstore.TTLClientRegistration); err != nil {
		return nil, ghaerrors.NewInternalError("failed to persist client registration", err)
	}

	return reg, nil
}

// Get returns the registration for clientID, or invalid_client if absent.
func (r *Registry) Get(ctx context.Context, clientID string) (*Registration, error) {
	var reg Registration
	if err := kvstore.LoadJSON(ctx, r.store, kvstore.ClassClient, clientID, &reg); err != nil {
		return nil, ghaerrors.NewInvalidClientError("unknown client_id", err)
	}
	return &reg, nil
}

// MatchRedirectURI reports whether requestedURI is an allowed redirect
// target for reg, applying RFC 8252 §7.3 loopback matching (any port)
// for loopback registered URIs.
func (reg *Registration) MatchRedirectURI(requestedURI string) bool {
	for _, registered := range reg.RedirectURIs {
		if matchesRedirectURI(requestedURI, registered) {
			return true
		}
	}
	return false
}

func validRedirectURI(raw string) bool {
	_, err := url.Parse(raw)
	return err == nil && raw != ""
}

func matchesRedirectURI(requestedURI, registeredURI string) bool {
	if requestedURI == registeredURI {
		return true
	}
	return matchesAsLoopback(requestedURI, registeredURI)
}

// matchesAsLoopback implements RFC 8252 Section 7.3: loopback redirect
// URIs must use "http", have a loopback host, and match path+query
// exactly, but may vary the port.
func matchesAsLoopback(requestedURI, registeredURI string) bool {
	requested, err := url.Parse(requestedURI)
	if err != nil {
		return false
	}
	registered, err := url.Parse(registeredURI)
	if err != nil {
		return false
	}

	if requested.Scheme != "http" || registered.Scheme != "http" {
		return false
	}
	if !IsLoopbackHost(requested.Hostname()) || !IsLoopbackHost(registered.Hostname()) {
		return false
	}
	if !hostnamesMatch(requested.Hostname(), registered.Hostname()) {
		return false
	}
	if requested.Path != registered.Path {
		return false
	}
	if requested.RawQuery != registered.RawQuery {
		return false
	}
	return true
}

// IsLoopbackHost reports whether hostname is a loopback address per
// RFC 8252 §7.3: "127.0.0.1", "[::1]", or "localhost".
func IsLoopbackHost(hostname string) bool {
	if strings.EqualFold(hostname, "localhost") {
		return true
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

func hostnamesMatch(requested, registered string) bool {
	if strings.EqualFold(requested, "localhost") && strings.EqualFold(registered, "localhost") {
		return true
	}
	return requested == registered
}
