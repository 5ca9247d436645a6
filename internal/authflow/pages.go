package authflow

import (
	"fmt"
	"html"
	"net/http"
)

// pageTemplate is deliberately minimal: the browser tab is a one-shot
// surface the user only sees for a moment.
const pageTemplate = `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`

// renderSuccessPage tells the user authorization finished and the tab can
// be closed. The agent runtime retries the tool call on its own.
func renderSuccessPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, pageTemplate,
		"Authorization Complete",
		"Authorization Complete",
		"You can close this tab.")
}

// renderErrorPage renders a human-readable failure page. The message must
// never include tokens, codes, or credential material.
func renderErrorPage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, pageTemplate,
		html.EscapeString(title),
		html.EscapeString(title),
		html.EscapeString(message))
}
