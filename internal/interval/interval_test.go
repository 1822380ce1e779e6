package interval

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, time.March, 2, hour, minute, 0, 0, time.UTC)
}

func TestMerge(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input    []Interval
		expected []Interval
	}{
		"empty input": {
			input:    nil,
			expected: nil,
		},
		"single interval": {
			input:    []Interval{{Start: at(9, 0), End: at(10, 0)}},
			expected: []Interval{{Start: at(9, 0), End: at(10, 0)}},
		},
		"overlapping intervals merge": {
			input: []Interval{
				{Start: at(9, 0), End: at(10, 30)},
				{Start: at(10, 0), End: at(11, 0)},
			},
			expected: []Interval{{Start: at(9, 0), End: at(11, 0)}},
		},
		"touching intervals merge": {
			input: []Interval{
				{Start: at(9, 0), End: at(10, 0)},
				{Start: at(10, 0), End: at(11, 0)},
			},
			expected: []Interval{{Start: at(9, 0), End: at(11, 0)}},
		},
		"disjoint intervals stay separate": {
			input: []Interval{
				{Start: at(12, 0), End: at(13, 0)},
				{Start: at(9, 0), End: at(10, 0)},
			},
			expected: []Interval{
				{Start: at(9, 0), End: at(10, 0)},
				{Start: at(12, 0), End: at(13, 0)},
			},
		},
		"contained interval is absorbed": {
			input: []Interval{
				{Start: at(9, 0), End: at(12, 0)},
				{Start: at(10, 0), End: at(11, 0)},
			},
			expected: []Interval{{Start: at(9, 0), End: at(12, 0)}},
		},
		"zero duration intervals are dropped": {
			input: []Interval{
				{Start: at(9, 0), End: at(9, 0)},
				{Start: at(10, 0), End: at(11, 0)},
			},
			expected: []Interval{{Start: at(10, 0), End: at(11, 0)}},
		},
		"inverted intervals are dropped": {
			input: []Interval{
				{Start: at(11, 0), End: at(10, 0)},
			},
			expected: nil,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := Merge(tc.input)
			if len(got) != len(tc.expected) {
				t.Fatalf("expected %d intervals, got %d (%v)", len(tc.expected), len(got), got)
			}
			for i := range got {
				if !got[i].Start.Equal(tc.expected[i].Start) || !got[i].End.Equal(tc.expected[i].End) {
					t.Fatalf("interval %d: expected %v-%v, got %v-%v", i, tc.expected[i].Start, tc.expected[i].End, got[i].Start, got[i].End)
				}
			}
		})
	}
}

func TestMerge_DoesNotModifyInput(t *testing.T) {
	t.Parallel()

	input := []Interval{
		{Start: at(12, 0), End: at(13, 0)},
		{Start: at(9, 0), End: at(10, 0)},
	}

	_ = Merge(input)

	if !input[0].Start.Equal(at(12, 0)) {
		t.Fatalf("expected input slice to be untouched, got %v", input)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	t.Parallel()

	input := []Interval{
		{Start: at(9, 0), End: at(10, 30)},
		{Start: at(10, 0), End: at(11, 0)},
		{Start: at(14, 0), End: at(15, 0)},
	}

	once := Merge(input)
	twice := Merge(once)

	if len(once) != len(twice) {
		t.Fatalf("expected merge to be idempotent, got %v then %v", once, twice)
	}
	for i := range once {
		if !once[i].Start.Equal(twice[i].Start) || !once[i].End.Equal(twice[i].End) {
			t.Fatalf("expected merge to be idempotent at %d, got %v then %v", i, once[i], twice[i])
		}
	}
}
