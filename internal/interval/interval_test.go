package interval

import (
	"testing"
	"time"
)

func TestNewRejectsDegenerate(t *testing.T) {
	d1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := New(d1, d1); err != ErrInvalidInterval {
		t.Fatalf("expected ErrInvalidInterval for start == end, got %v", err)
	}
	if _, err := New(d1.Add(time.Hour), d1); err != ErrInvalidInterval {
		t.Fatalf("expected ErrInvalidInterval for start > end, got %v", err)
	}
	if _, err := New(d1, d1.Add(time.Minute)); err != nil {
		t.Fatalf("expected valid interval, got %v", err)
	}
}

func TestOverlaps(t *testing.T) {
	d := func(day, hour int) time.Time {
		return time.Date(2025, 3, day, hour, 0, 0, 0, time.UTC)
	}
	mk := func(s, e time.Time) Interval {
		iv, err := New(s, e)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return iv
	}

	a := mk(d(1, 9), d(3, 9))
	b := mk(d(2, 9), d(4, 9))
	c := mk(d(3, 9), d(5, 9))

	if !Overlaps(a, b) {
		t.Fatalf("expected overlap for intersecting intervals")
	}
	// 对称性
	if Overlaps(a, b) != Overlaps(b, a) {
		t.Fatalf("expected symmetric overlap")
	}
	// 自反性
	if !Overlaps(a, a) {
		t.Fatalf("expected interval to overlap itself")
	}
	// 相邻区间不算重叠：同一时刻还车 + 取车
	if Overlaps(a, c) {
		t.Fatalf("expected adjacent intervals [d1,d3) [d3,d5) to not overlap")
	}
	// 完全包含
	inner := mk(d(1, 12), d(2, 12))
	if !Overlaps(a, inner) || !Overlaps(inner, a) {
		t.Fatalf("expected containment to overlap")
	}
	// 完全分离
	far := mk(d(10, 0), d(11, 0))
	if Overlaps(a, far) {
		t.Fatalf("expected disjoint intervals to not overlap")
	}
}

func TestRentalDays(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		dur  time.Duration
		want int64
	}{
		{"1h bills one day", time.Hour, 1},
		{"23h bills one day", 23 * time.Hour, 1},
		{"exactly 24h bills one day", 24 * time.Hour, 1},
		{"25h bills two days", 25 * time.Hour, 2},
		{"72h bills three days", 72 * time.Hour, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			iv, err := New(start, start.Add(tc.dur))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := RentalDays(iv); got != tc.want {
				t.Fatalf("RentalDays(%v) = %d, want %d", tc.dur, got, tc.want)
			}
		})
	}
}
