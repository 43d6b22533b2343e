// Package render substitutes recipient data into message templates.
package render

import (
	"html"
	"strings"
)

// Placeholder is the only token recognised in templates.
const Placeholder = "{{name}}"

// Render replaces every literal {{name}} in template with name. Nothing else
// in the template is interpreted.
func Render(template, name string) string {
	return strings.ReplaceAll(template, Placeholder, name)
}

// Renderer renders the HTML and text bodies of one message.
type Renderer struct {
	// EscapeName HTML-escapes the name before it lands in the HTML body.
	EscapeName bool
}

// HTML renders an HTML template for name.
func (r Renderer) HTML(template, name string) string {
	if r.EscapeName {
		name = html.EscapeString(name)
	}
	return Render(template, name)
}

// Text renders a plain-text template for name. The name is never escaped.
func (r Renderer) Text(template, name string) string {
	return Render(template, name)
}
