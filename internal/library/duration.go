package library

import "fmt"

// FormatDuration renders seconds as m:ss, the display form stored on links.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
