package download

import (
	"fmt"
	"math"
)

// SizeText renders n the way command responses report sizes: whole kilobytes.
func SizeText(n int64) string {
	return fmt.Sprintf("%dKB", int64(math.Round(float64(n)/1024)))
}

func humanSize(n int64) string {
	const mb = 1024 * 1024
	if n >= mb {
		return fmt.Sprintf("%.1fMB", float64(n)/mb)
	}
	return SizeText(n)
}
