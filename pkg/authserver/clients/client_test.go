package clients

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcp-session-gateway/pkg/kvstore"
)

func newRegistry() *Registry {
	return NewRegistry(kvstore.NewMemoryStore())
}

func TestRegisterThenGetRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRegistry()

	reg, err := r.Register(ctx, Metadata{
		ClientName:   "demo",
		RedirectURIs: []string{"https://client.example.com/callback"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, reg.ClientID)
	assert.NotEmpty(t, reg.Secret)

	got, err := r.Get(ctx, reg.ClientID)
	require.NoError(t, err)
	assert.Equal(t, reg.ClientID, got.ClientID)
	assert.Equal(t, reg.RedirectURIs, got.RedirectURIs)
}

func TestRegisterRejectsMissingRedirectURI(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRegistry()

	_, err := r.Register(ctx, Metadata{ClientName: "demo"})
	assert.Error(t, err)
}

func TestGetUnknownClientIsInvalidClient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRegistry()

	_, err := r.Get(ctx, "does-not-exist")
	assert.Error(t, err)
}

func TestLoopbackRedirectMatchesAnyPort(t *testing.T) {
	t.Parallel()

	reg := &Registration{RedirectURIs: []string{"http://127.0.0.1/callback"}}

	assert.True(t, reg.MatchRedirectURI("http://127.0.0.1:54231/callback"))
	assert.True(t, reg.MatchRedirectURI("http://127.0.0.1:9999/callback"))
	assert.False(t, reg.MatchRedirectURI("http://127.0.0.1:54231/other"))
	assert.False(t, reg.MatchRedirectURI("https://127.0.0.1:54231/callback"))
}

func TestLoopbackLocalhostMatchesAnyPort(t *testing.T) {
	t.Parallel()

	reg := &Registration{RedirectURIs: []string{"http://localhost/callback"}}

	assert.True(t, reg.MatchRedirectURI("http://localhost:8080/callback"))
	assert.False(t, reg.MatchRedirectURI("http://127.0.0.1:8080/callback"))
}

func TestNonLoopbackRedirectRequiresExactMatch(t *testing.T) {
	t.Parallel()

	reg := &Registration{RedirectURIs: []string{"https://client.example.com/callback"}}

	assert.True(t, reg.MatchRedirectURI("https://client.example.com/callback"))
	assert.False(t, reg.MatchRedirectURI("https://client.example.com:8443/callback"))
}
