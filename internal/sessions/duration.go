package sessions

import (
	"fmt"
	"time"
)

// SessionDuration renders now-lastLogin as whole minutes below one hour and
// whole hours (floored) from there on: "1 minute", "5 minutes", "2 hours".
func SessionDuration(lastLogin, now time.Time) string {
	d := now.Sub(lastLogin)
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	if minutes < 60 {
		return plural(minutes, "minute")
	}
	return plural(minutes/60, "hour")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
