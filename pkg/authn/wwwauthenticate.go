package authn

import "fmt"

// BearerChallenge builds an RFC 6750 WWW-Authenticate header value for
// the bearer scheme, carrying the RFC 9728 resource_metadata
// parameter so clients can discover this resource server's protected
// resource metadata document. errorCode may be empty for the plain
// "no credentials presented" case, which yields a challenge without an
// error parameter; invalid_token is the only error code the bearer
// gate passes.
func BearerChallenge(resourceMetadataURL, errorCode string) string {
	if errorCode == "" {
		return fmt.Sprintf(`Bearer resource_metadata="%s"`, resourceMetadataURL)
	}
	return fmt.Sprintf(`Bearer error="%s", resource_metadata="%s"`, errorCode, resourceMetadataURL)
}
