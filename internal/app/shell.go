package app

import (
	"io"
	"net/http"
)

// appShell is the document offline clients keep for navigations while the
// network is down.
const appShell = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>TourCompanion</title>
<link rel="manifest" href="/api/manifest">
</head>
<body>
<div id="root"></div>
<noscript>TourCompanion needs JavaScript.</noscript>
</body>
</html>
`

func serveAppShell(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.WriteString(w, appShell)
}
