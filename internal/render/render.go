// Package render performs {{Variable}} substitution for campaign subjects
// and HTML bodies.
package render

import (
	"regexp"
	"strings"

	"github.com/mcanepa/sendero/internal/models"
)

// UnsubscribeURLPlaceholder is left in rendered drafts and replaced with a
// per-recipient link at transport time.
const UnsubscribeURLPlaceholder = "{{UnsubscribeUrl}}"

// variable pattern for template substitution: {{VariableName}}
var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Rendered holds the output of rendering one template for one contact.
type Rendered struct {
	Subject string
	HTML    string
}

// Contact renders the template against a contact's fields. Unknown
// variables are kept verbatim so a typo is visible in the draft instead of
// silently disappearing.
func Contact(tpl *models.Template, contact *models.Contact) Rendered {
	vars := map[string]string{
		"FirstName":      contact.FirstName,
		"LastName":       contact.LastName,
		"Company":        contact.Company,
		"Position":       contact.Position,
		"Email":          contact.Email,
		"UnsubscribeUrl": UnsubscribeURLPlaceholder,
	}
	return Rendered{
		Subject: Substitute(tpl.SubjectTpl, vars),
		HTML:    Substitute(tpl.HTMLTpl, vars),
	}
}

// Substitute replaces {{name}} tokens with values from vars.
func Substitute(template string, vars map[string]string) string {
	if template == "" {
		return template
	}

	return varPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}
