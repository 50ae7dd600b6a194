// Package template renders notification and digest emails.
package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
)

// Rendered is a fully rendered email
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

type emailTemplate struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// Renderer renders named email templates
type Renderer struct {
	templates map[string]*emailTemplate
}

var funcs = map[string]any{
	"lower":    strings.ToLower,
	"humanize": humanize,
	"datetime": datetime,
	"plural":   plural,
}

// NewRenderer parses the built-in templates
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*emailTemplate)}

	builtin := []struct {
		name, subject, html, text string
	}{
		{domain.TemplateNotification, notificationSubject, notificationHTML, notificationText},
		{domain.TemplateDigest, digestSubject, digestHTML, digestText},
	}
	for _, b := range builtin {
		if err := r.Register(b.name, b.subject, b.html, b.text); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register parses and adds a template set under name
func (r *Renderer) Register(name, subject, html, text string) error {
	subj, err := texttemplate.New(name + ".subject").Funcs(funcs).Option("missingkey=zero").Parse(subject)
	if err != nil {
		return fmt.Errorf("template %s subject: %w", name, err)
	}
	h, err := htmltemplate.New(name + ".html").Funcs(funcs).Option("missingkey=zero").Parse(html)
	if err != nil {
		return fmt.Errorf("template %s html: %w", name, err)
	}
	t, err := texttemplate.New(name + ".text").Funcs(funcs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return fmt.Errorf("template %s text: %w", name, err)
	}
	r.templates[name] = &emailTemplate{subject: subj, html: h, text: t}
	return nil
}

// Render renders the named template. Data is normalised through JSON so a
// job decoded from the queue renders the same as one built in process.
func (r *Renderer) Render(name string, data map[string]any) (*Rendered, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", name)
	}

	normalized, err := normalize(data)
	if err != nil {
		return nil, fmt.Errorf("template %s data: %w", name, err)
	}

	var subj, html, text bytes.Buffer
	if err := tmpl.subject.Execute(&subj, normalized); err != nil {
		return nil, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := tmpl.html.Execute(&html, normalized); err != nil {
		return nil, fmt.Errorf("render %s html: %w", name, err)
	}
	if err := tmpl.text.Execute(&text, normalized); err != nil {
		return nil, fmt.Errorf("render %s text: %w", name, err)
	}

	return &Rendered{
		Subject: strings.TrimSpace(subj.String()),
		HTML:    html.String(),
		Text:    strings.TrimSpace(text.String()) + "\n",
	}, nil
}

func normalize(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// humanize turns HR_ACTIVITIES into "Hr activities"
func humanize(v any) string {
	s := strings.ToLower(strings.ReplaceAll(fmt.Sprint(v), "_", " "))
	if s == "" || s == "<nil>" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func datetime(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return t.UTC().Format("Jan 2, 15:04 UTC")
}

func plural(n any, one, many string) string {
	if f, ok := n.(float64); ok && f == 1 {
		return one
	}
	if i, ok := n.(int); ok && i == 1 {
		return one
	}
	return many
}
