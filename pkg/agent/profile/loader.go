package profile

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.md
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.md"))

// Values fill in a profile template.
type Values struct {
	Name  string
	Group bool
}

// ResolveSystemProfile renders the default profile as responder instructions.
func ResolveSystemProfile(values Values) (string, error) {
	if strings.TrimSpace(values.Name) == "" {
		values.Name = defaultBotName
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, templateName(defaultProfileName), values); err != nil {
		return "", fmt.Errorf("render %s profile template: %w", defaultProfileName, err)
	}

	profile := strings.TrimSpace(buf.String())
	if profile == "" {
		return "", fmt.Errorf("profile template %q is empty", defaultProfileName)
	}

	return profile, nil
}

func templateName(name string) string {
	return strings.TrimSpace(name) + ".md"
}
