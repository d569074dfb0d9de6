package httpapi

import (
	"fmt"
	"html"
	"net/http"
)

// consentCSP is deliberately hard: the consent page is the only route
// in this API that serves HTML, so it is the only route that needs
// 'unsafe-inline' for its own styles/script and can afford to lock
// everything else down.
const consentCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; " +
	"script-src 'self' 'unsafe-inline'; frame-ancestors 'none'; form-action 'self'"

func writeConsentPage(w http.ResponseWriter, clientName, continueURL string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", consentCSP)
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, consentPageTemplate, html.EscapeString(clientName), html.EscapeString(continueURL))
}

const consentPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Authorize access</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 28rem; margin: 4rem auto; }
.btn { display: inline-block; padding: 0.6rem 1.2rem; background: #2563eb; color: #fff; text-decoration: none; border-radius: 0.3rem; }
</style>
</head>
<body>
<h1>Authorize access</h1>
<p><strong>%s</strong> is requesting access to your MCP session.</p>
<a class="btn" href="%s">Continue</a>
</body>
</html>
`
