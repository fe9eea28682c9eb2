// Package consent decides which channels a customer may be messaged on.
package consent

import (
	"strings"

	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

// ResolveChannels returns the channels allowed by the rule preference and the
// customer's consent and opt-out flags. An empty result is valid.
func ResolveChannels(pref model.ChannelPreference, c model.Customer) []model.Channel {
	var out []model.Channel
	if (pref == model.PreferSMS || pref == model.PreferBoth) && c.ConsentSMS && !c.OptedOutSMS {
		out = append(out, model.ChannelSMS)
	}
	if (pref == model.PreferEmail || pref == model.PreferBoth) && c.ConsentEmail && !c.OptedOutEmail {
		out = append(out, model.ChannelEmail)
	}
	return out
}

// CheckSendable re-validates a channel at send time. The returned reason is
// empty when sending is allowed.
func CheckSendable(ch model.Channel, c model.Customer) string {
	if c.Deleted() {
		return "customer deleted"
	}
	switch ch {
	case model.ChannelSMS:
		switch {
		case !c.ConsentSMS:
			return "no SMS consent"
		case c.OptedOutSMS:
			return "customer opted out of SMS"
		case strings.TrimSpace(c.Phone) == "":
			return "no phone number"
		}
	case model.ChannelEmail:
		switch {
		case !c.ConsentEmail:
			return "no email consent"
		case c.OptedOutEmail:
			return "customer opted out of email"
		case strings.TrimSpace(c.Email) == "":
			return "no email address"
		}
	default:
		return "unsupported channel " + string(ch)
	}
	return ""
}

var optOutKeywords = map[string]struct{}{
	"STOP":        {},
	"STOPALL":     {},
	"UNSUBSCRIBE": {},
	"CANCEL":      {},
	"END":         {},
	"QUIT":        {},
}

// IsOptOutKeyword reports whether an inbound SMS body is an opt-out request.
// Only an exact keyword (after trimming, case-insensitive) counts.
func IsOptOutKeyword(body string) bool {
	_, ok := optOutKeywords[strings.ToUpper(strings.TrimSpace(body))]
	return ok
}
