package protocol

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrBadDuration = errors.New("protocol: malformed duration")

// LegacyDuration renders whole seconds the way the client parses them: "00:00:" followed by the
// plain seconds count, without carrying into minutes.
func LegacyDuration(seconds int) string {
	return "00:00:" + strconv.Itoa(seconds)
}

// ParseDuration reads an "H:M:S" style value. Any number of colon-separated parts is accepted,
// each folded in base 60, so "90" and "0:1:30" both mean 90 seconds.
func ParseDuration(s string) (int, error) {
	if s == "" {
		return 0, ErrBadDuration
	}
	total := 0
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, ErrBadDuration
		}
		total = total*60 + n
	}
	return total, nil
}

// Timestamp renders Unix milliseconds as the UTC ISO-8601 form clients expect.
func Timestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}

// TimestampPtr is Timestamp for optional values.
func TimestampPtr(ms *int64) *string {
	if ms == nil {
		return nil
	}
	s := Timestamp(*ms)
	return &s
}
