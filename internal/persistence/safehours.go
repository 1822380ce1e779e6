package persistence

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// WeekdayNames lists the lowercase weekday names used as keys in the
// office-hours and safe-hours files, indexed by time.Weekday.
var WeekdayNames = [7]string{
	"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday",
}

// WeekdayName returns the lowercase file key for a weekday.
func WeekdayName(day time.Weekday) string {
	return WeekdayNames[int(day)%7]
}

// IsWeekdayName reports whether name is a lowercase weekday key.
func IsWeekdayName(name string) bool {
	for _, candidate := range WeekdayNames {
		if name == candidate {
			return true
		}
	}
	return false
}

// ParseWeekdayName resolves a weekday file key to its time.Weekday,
// case-insensitively.
func ParseWeekdayName(name string) (time.Weekday, bool) {
	lowered := strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range WeekdayNames {
		if lowered == candidate {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// SafeHoursDay is the local-clock window within which an event may start
// without operator approval.
type SafeHoursDay struct {
	StartLocal string `json:"startLocal"`
	EndLocal   string `json:"endLocal"`
}

// SafeHours holds per-weekday safe windows keyed by lowercase weekday name.
// Absent days fall back to the built-in default at evaluation time.
type SafeHours struct {
	Days map[string]SafeHoursDay
}

// UnmarshalJSON decodes safe-hours.json. Besides the per-day object form it
// folds the legacy flat keys ("safeStartMonday", "safeEndMonday", and the
// global "safeStartTime"/"safeStartDefault" pair) into the per-day map.
// Modern per-day entries win over legacy ones.
func (sh *SafeHours) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	days := make(map[string]SafeHoursDay)
	legacyStart := make(map[string]string)
	legacyEnd := make(map[string]string)
	var globalStart, globalEnd string

	for key, value := range raw {
		lower := strings.ToLower(strings.TrimSpace(key))

		if IsWeekdayName(lower) {
			var day SafeHoursDay
			if err := json.Unmarshal(value, &day); err != nil {
				return err
			}
			days[lower] = day
			continue
		}

		var text string
		if err := json.Unmarshal(value, &text); err != nil {
			// Unknown non-string keys are ignored rather than rejected so an
			// old file with extra fields still loads.
			continue
		}

		switch {
		case strings.HasPrefix(lower, "safestart"):
			rest := strings.TrimPrefix(lower, "safestart")
			if IsWeekdayName(rest) {
				legacyStart[rest] = text
			} else if rest == "time" || rest == "default" {
				globalStart = text
			}
		case strings.HasPrefix(lower, "safeend"):
			rest := strings.TrimPrefix(lower, "safeend")
			if IsWeekdayName(rest) {
				legacyEnd[rest] = text
			} else if rest == "time" || rest == "default" {
				globalEnd = text
			}
		}
	}

	for _, name := range WeekdayNames {
		day := days[name]
		if day.StartLocal == "" {
			if v, ok := legacyStart[name]; ok {
				day.StartLocal = v
			} else if globalStart != "" {
				day.StartLocal = globalStart
			}
		}
		if day.EndLocal == "" {
			if v, ok := legacyEnd[name]; ok {
				day.EndLocal = v
			} else if globalEnd != "" {
				day.EndLocal = globalEnd
			}
		}
		if day.StartLocal != "" || day.EndLocal != "" {
			days[name] = day
		}
	}

	sh.Days = days
	return nil
}

// MarshalJSON writes the per-day form with days in week order (Sunday first)
// so the file stays diffable for operators.
func (sh SafeHours) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, name := range WeekdayNames {
		day, ok := sh.Days[name]
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		dayJSON, err := json.Marshal(day)
		if err != nil {
			return nil, err
		}
		buf.WriteByte('"')
		buf.WriteString(name)
		buf.WriteString(`":`)
		buf.Write(dayJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
