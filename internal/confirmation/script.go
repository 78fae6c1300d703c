package confirmation

import (
	"fmt"
	"strings"
	"time"
)

// CallScript renders the task prompt the voice agent reads on a confirmation call.
func CallScript(persona, name, service string, scheduledAt time.Time) string {
	who := strings.TrimSpace(name)
	if who == "" {
		who = "patient"
	}
	what := strings.TrimSpace(service)
	if what == "" {
		what = "appointment"
	}
	when := scheduledAt.Format("Monday, January 2 at 3:04 PM")
	return fmt.Sprintf(
		`Hi %s, this is %s confirming your %s on %s. Say "yes" to confirm, "no" to cancel, or "reschedule".`,
		who, persona, what, when,
	)
}

// FallbackSMSBody is the single message sent after the last unanswered call.
func FallbackSMSBody(service string, scheduledAt time.Time) string {
	what := strings.TrimSpace(service)
	if what == "" {
		what = "appointment"
	}
	when := scheduledAt.Format("Monday, January 2 at 3:04 PM")
	return fmt.Sprintf(
		"We tried calling to confirm your %s on %s. Reply YES to confirm, NO to cancel, or RESCHEDULE.",
		what, when,
	)
}
