package chat

import "time"

// TimeLabel formats a message timestamp relative to now: the time of day
// within 24h, "Yesterday" within 48h, the full date beyond. Timestamps in the
// future show the time of day.
func TimeLabel(now, t time.Time) string {
	age := now.Sub(t)
	switch {
	case age < 24*time.Hour:
		return t.Format("15:04")
	case age < 48*time.Hour:
		return "Yesterday " + t.Format("15:04")
	}
	return t.Format("02 Jan 2006 15:04")
}
