package logic

import "fmt"

// FormatLine renders the console line for a report, e.g.
// "12s Alt: 359.97km Drop: 0.03km Status: NORMAL".
func FormatLine(r Report) string {
	return fmt.Sprintf("%ds Alt: %.2fkm Drop: %.2fkm Status: %s", r.TimeSec, r.Altitude, r.Drop, r.Status)
}
