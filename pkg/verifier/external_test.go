package verifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalVerifierActiveToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "tok-1", r.FormValue("token"))

		resp := introspectionResponse{
			Active:   true,
			ClientID: "client-1",
			Sub:      "u42",
			Scope:    "mcp",
			Exp:      time.Now().Add(time.Hour).Unix(),
			Aud:      []string{"https://self"},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	v := NewExternal(srv.URL, "", "", "https://self")
	info, err := v.VerifyAccessToken(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "u42", info.UserID)
	assert.Equal(t, []string{"mcp"}, info.Scopes)
}

func TestExternalVerifierInactiveToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(introspectionResponse{Active: false})
	}))
	defer srv.Close()

	v := NewExternal(srv.URL, "", "", "https://self")
	_, err := v.VerifyAccessToken(context.Background(), "tok-1")
	assert.Error(t, err)
}

func TestExternalVerifierAudienceMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := introspectionResponse{
			Active: true,
			Exp:    time.Now().Add(time.Hour).Unix(),
			Aud:    []string{"https://other"},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	v := NewExternal(srv.URL, "", "", "https://self")
	_, err := v.VerifyAccessToken(context.Background(), "tok-1")
	assert.Error(t, err)
}

func TestExternalVerifierFailsClosedOnNetworkError(t *testing.T) {
	t.Parallel()

	v := NewExternal("http://127.0.0.1:1", "", "", "https://self")
	_, err := v.VerifyAccessToken(context.Background(), "tok-1")
	assert.Error(t, err)
}

func TestExternalVerifierMissingAudienceIsPermissive(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := introspectionResponse{Active: true, Exp: time.Now().Add(time.Hour).Unix()}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	v := NewExternal(srv.URL, "", "", "https://self")
	_, err := v.VerifyAccessToken(context.Background(), "tok-1")
	assert.NoError(t, err)
}
