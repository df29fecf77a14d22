package mail

import "strings"

// Render substitutes {{name}} placeholders in a message template.
// Unknown placeholders are left as-is so a typo is visible in the
// outgoing mail instead of silently vanishing.
func Render(template string, vars map[string]string) string {
	out := template
	for name, value := range vars {
		out = strings.ReplaceAll(out, "{{"+name+"}}", value)
	}
	return out
}

// DefaultSubject and DefaultBody are used when the caller does not
// supply a template.
const (
	DefaultSubject = "Invoice {{period}}"
	DefaultBody    = "Hi {{client}},\n\nplease find attached the invoice for {{period}}.\n\nBest regards"
)
