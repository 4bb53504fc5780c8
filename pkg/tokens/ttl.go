package tokens

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidTTL = errors.New("invalid token ttl")

var ttlUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// ParseTTL accepts "<n>s", "<n>m", "<n>h", "<n>d" or a bare "<n>" meaning seconds.
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidTTL)
	}

	unit := time.Second
	digits := s
	if u, ok := ttlUnits[s[len(s)-1]]; ok {
		unit = u
		digits = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n <= 0 || strings.HasPrefix(digits, "+") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTTL, s)
	}
	if n > int64((1<<63-1)/unit) {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidTTL, s)
	}
	return time.Duration(n) * unit, nil
}

// Seconds is the expiresIn value reported to clients for a token ttl.
func Seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
