// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package httpapi

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/samber/oops"

	"github.com/accountd/accountd/pkg/errutil"
)

//go:embed templates/update_password.html.tmpl
var pagesFS embed.FS

func parseUpdatePasswordPage() (*template.Template, error) {
	tmpl, err := template.ParseFS(pagesFS, "templates/update_password.html.tmpl")
	if err != nil {
		return nil, oops.Code("HTTPAPI_TEMPLATE_INVALID").With("page", "update_password").Wrap(err)
	}
	return tmpl, nil
}

// handleUpdatePasswordPage serves the form linked from reset emails. The
// form submits to PUT /user/password/update; the token is not checked here.
func (s *Server) handleUpdatePasswordPage(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	data := struct {
		Token     string
		UpdateURL string
	}{
		Token:     r.PathValue("token"),
		UpdateURL: "/user/password/update",
	}
	if err := s.page.Execute(&buf, data); err != nil {
		errutil.LogError(r.Context(), s.logger, "page render failed", err, "route", r.Pattern)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client may disconnect
	buf.WriteTo(w)
}
