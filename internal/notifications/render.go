package notifications

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// renderMessage builds a subject and body for a pending notification.
// Template payloads are opaque to this subsystem, so the body is the payload
// itself plus the link when one is present; real templating lives with the
// delivery side, not here.
func renderMessage(n *PendingNotification) (subject, body string) {
	subject = titleCaser.String(strings.ReplaceAll(string(n.Kind), "-", " "))

	if n.TemplateData == nil {
		return subject, fmt.Sprintf("You have a new %s notification.", n.Kind)
	}

	var fields map[string]any
	if err := json.Unmarshal(n.TemplateData, &fields); err == nil {
		if title, ok := fields["title"].(string); ok && title != "" {
			subject = fmt.Sprintf("%s: %s", subject, title)
		}
		if link, ok := fields["link"].(string); ok && link != "" {
			body = link + "\n\n"
		}
	}

	pretty, err := json.MarshalIndent(n.TemplateData, "", "  ")
	if err != nil {
		pretty = n.TemplateData
	}

	return subject, body + string(pretty)
}
