package templates

import (
	"html"
	"regexp"
	"strings"

	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

const SMSFooter = "\nSTOP to opt out."

// Content is a rendered message ready for a channel sender.
type Content struct {
	Subject string
	Body    string
}

var htmlTagRE = regexp.MustCompile(`<[a-zA-Z][^>]*>`)

// Compose renders tmpl for channel. SMS bodies carry the opt-out footer unless
// they already mention STOP. Email gets a subject fallback and is wrapped in a
// paragraph when the body has no markup.
func Compose(tmpl model.MessageTemplate, vars Vars, channel model.Channel, businessName string) Content {
	body := Render(tmpl.Body, vars)
	switch channel {
	case model.ChannelSMS:
		if !strings.Contains(strings.ToUpper(body), "STOP") {
			body += SMSFooter
		}
		return Content{Body: body}
	default:
		subject := strings.TrimSpace(Render(tmpl.Subject, vars))
		if subject == "" {
			subject = "Message from " + businessName
		}
		if !htmlTagRE.MatchString(body) {
			body = "<p>" + strings.ReplaceAll(html.EscapeString(body), "\n", "<br>") + "</p>"
		}
		return Content{Subject: subject, Body: body}
	}
}
