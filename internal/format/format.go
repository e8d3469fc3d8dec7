package format

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Seconds renders a duration in seconds with millisecond display precision.
func Seconds(sec float64) string {
	return fmt.Sprintf("%.3f", sec)
}

// Millis renders a duration in milliseconds with millisecond display
// precision; the input is seconds.
func Millis(sec float64) string {
	return fmt.Sprintf("%.3f", sec*1000)
}

// Duration renders an elapsed duration the way a status line wants it:
// sub-second values in milliseconds, everything else to the second.
func Duration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	return d.Round(time.Second).String()
}

// Bytes renders a byte count with a binary unit suffix.
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Truncate shortens a string to at most max runes, marking the cut.
func Truncate(s string, max int) string {
	if max <= 3 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)

	return string(runes[:max-3]) + "..."
}
