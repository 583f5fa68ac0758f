package jobstate

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// IDTimeLayout is the timestamp prefix of every job id.
const IDTimeLayout = "20060102150405"

// NewID returns <yyyymmddHHMMSS><nnn> for now, with nnn a random number in
// [000, 999]. Collisions within one second are possible and not detected.
func NewID(now time.Time) string {
	return FormatID(now, rand.IntN(1000))
}

// FormatID builds a job id from a timestamp and a suffix in [0, 999].
func FormatID(now time.Time, suffix int) string {
	return fmt.Sprintf("%s%03d", now.Format(IDTimeLayout), suffix%1000)
}
