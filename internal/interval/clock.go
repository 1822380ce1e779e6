package interval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidClockTime indicates a wall-clock token could not be parsed.
var ErrInvalidClockTime = errors.New("interval: invalid clock time")

// ClockTime is a wall-clock instant with minute resolution. Hour 24 with
// minute 0 is permitted so ranges can close exactly at midnight.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH" or "HH:MM" tokens. Single-digit hours are
// accepted; minutes, when present, must be two digits.
func ParseClockTime(raw string) (ClockTime, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ClockTime{}, ErrInvalidClockTime
	}

	hourPart, minutePart, hasMinute := strings.Cut(s, ":")
	if !isDigits(hourPart) || len(hourPart) == 0 || len(hourPart) > 2 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, raw)
	}

	hour, err := strconv.Atoi(hourPart)
	if err != nil {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, raw)
	}

	minute := 0
	if hasMinute {
		if len(minutePart) != 2 || !isDigits(minutePart) {
			return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, raw)
		}
		minute, err = strconv.Atoi(minutePart)
		if err != nil {
			return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, raw)
		}
	}

	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, raw)
	}

	return ClockTime{Hour: hour, Minute: minute}, nil
}

// String renders the time as zero-padded "HH:MM".
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes returns the minute of day, 0 through 1440.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// LocalRange is an open/close pair of local wall-clock times. A close at or
// before the open is interpreted as rolling past midnight into the next day.
type LocalRange struct {
	Open  ClockTime
	Close ClockTime
}

var dashNormalizer = strings.NewReplacer("–", "-", "−", "-")

// ParseRanges parses a comma or semicolon separated list of "HH[:MM]-HH[:MM]"
// tokens into local ranges. En-dash and minus-sign separators are accepted.
// Tokens that fail to parse are dropped silently.
func ParseRanges(raw string) []LocalRange {
	tokens := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	})

	ranges := make([]LocalRange, 0, len(tokens))
	for _, token := range tokens {
		normalized := dashNormalizer.Replace(token)
		openPart, closePart, found := strings.Cut(normalized, "-")
		if !found {
			continue
		}
		open, err := ParseClockTime(openPart)
		if err != nil {
			continue
		}
		closeTime, err := ParseClockTime(closePart)
		if err != nil {
			continue
		}
		ranges = append(ranges, LocalRange{Open: open, Close: closeTime})
	}

	if len(ranges) == 0 {
		return nil
	}
	return ranges
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
