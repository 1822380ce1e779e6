package interval

import (
	"errors"
	"testing"
)

func TestParseClockTime(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input    string
		expected ClockTime
		wantErr  bool
	}{
		"hour and minute":      {input: "09:30", expected: ClockTime{Hour: 9, Minute: 30}},
		"hour only":            {input: "17", expected: ClockTime{Hour: 17}},
		"single digit hour":    {input: "9", expected: ClockTime{Hour: 9}},
		"surrounding spaces":   {input: " 08:15 ", expected: ClockTime{Hour: 8, Minute: 15}},
		"midnight":             {input: "00:00", expected: ClockTime{}},
		"end of day":           {input: "24:00", expected: ClockTime{Hour: 24}},
		"empty":                {input: "", wantErr: true},
		"hour out of range":    {input: "25:00", wantErr: true},
		"minute out of range":  {input: "10:60", wantErr: true},
		"single digit minute":  {input: "9:5", wantErr: true},
		"past end of day":      {input: "24:01", wantErr: true},
		"not numeric":          {input: "noon", wantErr: true},
		"signed hour":          {input: "+9:00", wantErr: true},
		"three digit hour":     {input: "100:00", wantErr: true},
		"trailing colon":       {input: "09:", wantErr: true},
		"embedded whitespace":  {input: "0 9:00", wantErr: true},
		"three minute digits":  {input: "09:300", wantErr: true},
		"decimal minute value": {input: "09:3.5", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseClockTime(tc.input)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidClockTime) {
					t.Fatalf("expected ErrInvalidClockTime, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if got != tc.expected {
				t.Fatalf("expected %+v, got %+v", tc.expected, got)
			}
		})
	}
}

func TestClockTime_String(t *testing.T) {
	t.Parallel()

	if got := (ClockTime{Hour: 9, Minute: 5}).String(); got != "09:05" {
		t.Fatalf("expected zero padded rendering, got %q", got)
	}
	if got := (ClockTime{Hour: 23, Minute: 45}).String(); got != "23:45" {
		t.Fatalf("expected 23:45, got %q", got)
	}
}

func TestParseRanges(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input    string
		expected []LocalRange
	}{
		"single range": {
			input:    "09:00-17:00",
			expected: []LocalRange{{Open: ClockTime{Hour: 9}, Close: ClockTime{Hour: 17}}},
		},
		"comma separated": {
			input: "09:00-12:00, 13:00-17:00",
			expected: []LocalRange{
				{Open: ClockTime{Hour: 9}, Close: ClockTime{Hour: 12}},
				{Open: ClockTime{Hour: 13}, Close: ClockTime{Hour: 17}},
			},
		},
		"semicolon separated": {
			input: "09-12;13-17",
			expected: []LocalRange{
				{Open: ClockTime{Hour: 9}, Close: ClockTime{Hour: 12}},
				{Open: ClockTime{Hour: 13}, Close: ClockTime{Hour: 17}},
			},
		},
		"en dash separator": {
			input:    "09:00–17:00",
			expected: []LocalRange{{Open: ClockTime{Hour: 9}, Close: ClockTime{Hour: 17}}},
		},
		"minus sign separator": {
			input:    "09:00−17:00",
			expected: []LocalRange{{Open: ClockTime{Hour: 9}, Close: ClockTime{Hour: 17}}},
		},
		"hour only tokens": {
			input:    "9-17",
			expected: []LocalRange{{Open: ClockTime{Hour: 9}, Close: ClockTime{Hour: 17}}},
		},
		"invalid token dropped": {
			input:    "09:00-12:00, bogus, 13:00-17:00",
			expected: []LocalRange{{Open: ClockTime{Hour: 9}, Close: ClockTime{Hour: 12}}, {Open: ClockTime{Hour: 13}, Close: ClockTime{Hour: 17}}},
		},
		"invalid close dropped": {
			input:    "09:00-25:00",
			expected: nil,
		},
		"missing separator dropped": {
			input:    "09:00",
			expected: nil,
		},
		"empty input": {
			input:    "",
			expected: nil,
		},
		"only separators": {
			input:    ", ;",
			expected: nil,
		},
		"overnight range kept": {
			input:    "22:00-02:00",
			expected: []LocalRange{{Open: ClockTime{Hour: 22}, Close: ClockTime{Hour: 2}}},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := ParseRanges(tc.input)
			if len(got) != len(tc.expected) {
				t.Fatalf("expected %d ranges, got %d (%v)", len(tc.expected), len(got), got)
			}
			for i := range got {
				if got[i] != tc.expected[i] {
					t.Fatalf("range %d: expected %+v, got %+v", i, tc.expected[i], got[i])
				}
			}
		})
	}
}
