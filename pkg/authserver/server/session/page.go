// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
)

var logoutPage = template.Must(template.New("logout").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Logout</title>
{{- if .PostLogoutRedirectURI}}
<script>
window.onload = function () { window.location = {{.PostLogoutRedirectURI}}; };
</script>
{{- end}}
</head>
<body>
<p>You have been logged out.</p>
{{- range .FrontChannelURIs}}
<iframe height="0" width="0" style="border:0" sandbox="allow-same-origin allow-scripts" src="{{.}}"></iframe>
{{- end}}
{{- if .PostLogoutRedirectURI}}
<noscript><a href="{{.PostLogoutRedirectURI}}">Continue</a></noscript>
{{- end}}
</body>
</html>
`))

// Write renders the result: a redirect when RedirectURL is set, otherwise
// the logout page.
func (r *EndSessionResult) Write(w http.ResponseWriter, req *http.Request) error {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	if r.RedirectURL != "" {
		http.Redirect(w, req, r.RedirectURL, http.StatusFound)
		return nil
	}

	var buf bytes.Buffer
	if err := logoutPage.Execute(&buf, r); err != nil {
		return fmt.Errorf("failed to render logout page: %w", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(buf.Bytes())
	return err
}
