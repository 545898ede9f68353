package internaldefs

import (
	"strings"
	"testing"

	goGuard "github.com/MrEthical07/goGuard"
)

func TestEveryCounterIsExported(t *testing.T) {
	seen := make(map[goGuard.MetricID]bool)
	names := make(map[string]bool)
	for _, def := range CounterDefs {
		if seen[def.ID] {
			t.Fatalf("metric id %d listed twice", def.ID)
		}
		if names[def.Name] {
			t.Fatalf("metric name %s listed twice", def.Name)
		}
		if !strings.HasPrefix(def.Name, "goguard_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("bad counter name %q", def.Name)
		}
		seen[def.ID] = true
		names[def.Name] = true
	}
	for id := goGuard.MetricID(0); id < goGuard.MetricHashLatency; id++ {
		if !seen[id] {
			t.Fatalf("metric id %d has no export definition", id)
		}
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets([]uint64{1, 2, 0, 3})
	want := [BucketCount]uint64{1, 3, 3, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("CumulativeBuckets() = %v, want %v", got, want)
	}
	if CumulativeBuckets(nil) != ([BucketCount]uint64{}) {
		t.Fatal("nil input must yield zeros")
	}
}
