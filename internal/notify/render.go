// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package notify

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/account"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var subjects = map[account.NotificationKind]string{
	account.NotificationAccountValidation: "Validate your account",
	account.NotificationPasswordReset:     "Reset your password",
}

// Message is a rendered notification ready for delivery.
type Message struct {
	Kind    account.NotificationKind
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
	Link    string
}

// Renderer turns notifications into messages using the embedded templates.
type Renderer struct {
	product string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

type templateData struct {
	Name    string
	Link    string
	Product string
}

// NewRenderer parses the embedded templates. product names the service in
// message bodies.
func NewRenderer(product string) (*Renderer, error) {
	text, err := texttemplate.ParseFS(templatesFS, "templates/*.txt.tmpl")
	if err != nil {
		return nil, oops.Code("NOTIFY_TEMPLATE_INVALID").With("format", "text").Wrap(err)
	}
	html, err := htmltemplate.ParseFS(templatesFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, oops.Code("NOTIFY_TEMPLATE_INVALID").With("format", "html").Wrap(err)
	}
	return &Renderer{product: product, text: text, html: html}, nil
}

// Render builds the message for n.
func (r *Renderer) Render(n account.Notification) (Message, error) {
	subject, ok := subjects[n.Kind]
	if !ok {
		return Message{}, oops.Code("NOTIFY_UNKNOWN_KIND").With("kind", string(n.Kind)).Errorf("unknown notification kind")
	}

	data := templateData{Name: n.Name, Link: n.Link, Product: r.product}
	if data.Name == "" {
		data.Name = "there"
	}

	var text, html bytes.Buffer
	if err := r.text.ExecuteTemplate(&text, string(n.Kind)+".txt.tmpl", data); err != nil {
		return Message{}, oops.Code("NOTIFY_RENDER_FAILED").With("kind", string(n.Kind)).Wrap(err)
	}
	if err := r.html.ExecuteTemplate(&html, string(n.Kind)+".html.tmpl", data); err != nil {
		return Message{}, oops.Code("NOTIFY_RENDER_FAILED").With("kind", string(n.Kind)).Wrap(err)
	}

	return Message{
		Kind:    n.Kind,
		To:      n.To,
		ToName:  n.Name,
		Subject: subject,
		Text:    text.String(),
		HTML:    html.String(),
		Link:    n.Link,
	}, nil
}
