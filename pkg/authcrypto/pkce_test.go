package authcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 7636 Appendix B test vector.
const (
	rfc7636Verifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	rfc7636Challenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestComputePKCEChallengeMatchesRFCVector(t *testing.T) {
	t.Parallel()

	got := ComputePKCEChallenge(rfc7636Verifier)
	assert.Equal(t, rfc7636Challenge, got)
}

func TestVerifyPKCESuccess(t *testing.T) {
	t.Parallel()

	assert.True(t, VerifyPKCE(rfc7636Verifier, rfc7636Challenge, MethodS256))
}

func TestVerifyPKCERejectsPlainMethod(t *testing.T) {
	t.Parallel()

	assert.False(t, VerifyPKCE(rfc7636Verifier, rfc7636Verifier, "plain"))
}

func TestVerifyPKCERejectsMismatch(t *testing.T) {
	t.Parallel()

	assert.False(t, VerifyPKCE("wrong-verifier", rfc7636Challenge, MethodS256))
}

func TestGeneratePKCEVerifierLength(t *testing.T) {
	t.Parallel()

	v, err := GeneratePKCEVerifier()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(v), 43)
	assert.LessOrEqual(t, len(v), 128)
}
