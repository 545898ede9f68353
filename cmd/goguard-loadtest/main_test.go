package main

import (
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	cases := map[int]time.Duration{0: 1, 50: 5, 95: 9, 99: 9, 100: 10}
	for p, want := range cases {
		if got := percentile(samples, p); got != want {
			t.Fatalf("p%d = %v, want %v", p, got, want)
		}
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty percentile = %v", got)
	}
}

func TestComputeStatsSortsSamples(t *testing.T) {
	s := computeStats(time.Second, []time.Duration{30, 10, 20}, 1)
	if s.ops != 3 || s.failures != 1 || s.p50 != 20 || s.opsPerS != 3 {
		t.Fatalf("unexpected stats %+v", s)
	}
}
