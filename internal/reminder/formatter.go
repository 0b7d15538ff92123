package reminder

import (
	"fmt"
	"strings"
	"time"
)

const dueLayout = "Jan 02, 2006 3:04 PM"

// Format renders the reminder text for t as seen at now. loc controls how the
// due time is printed; nil means UTC.
func Format(t Task, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	var when string
	if t.DueAt.Before(now) {
		when = fmt.Sprintf("OVERDUE by %d hours", int64(now.Sub(t.DueAt)/time.Hour))
	} else {
		when = fmt.Sprintf("Due in %d hours", int64(t.DueAt.Sub(now)/time.Hour))
	}

	prio := t.Priority
	if prio == "" {
		prio = PriorityMedium
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task Reminder: %q\n\n", t.Title)
	fmt.Fprintf(&b, "%s\n", when)
	fmt.Fprintf(&b, "Due: %s\n", t.DueAt.In(loc).Format(dueLayout))
	fmt.Fprintf(&b, "Priority: %s\n\n", strings.ToUpper(string(prio)))
	if d := strings.TrimSpace(t.Description); d != "" {
		fmt.Fprintf(&b, "%s\n\n", d)
	}
	b.WriteString("Complete your task to stop reminders.")
	return b.String()
}
