// Command perf-regression gates goGuard benchmark output in CI.
//
// It fails when a tracked benchmark got slower than the allowed ratio against
// a baseline, and it checks two properties of the candidate run on its own:
// the number of password hash calls per login (a locked-out login must do
// none, a password login exactly one), and that rejecting a locked identifier
// stays a small fraction of the cost of a real login.
//
//	go test -run '^$' -bench . -count 5 ./ > new.txt
//	perf-regression -baseline old.txt -candidate new.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultThreshold   = 0.30
	defaultLockedShare = 0.10

	unitNs     = "ns/op"
	unitAllocs = "allocs/op"
	unitHashes = "hashes/op"
)

// tracked lists the benchmark metrics compared against the baseline.
var tracked = map[string][]string{
	"BenchmarkAuthorize":         {unitNs, unitAllocs},
	"BenchmarkLogin":             {unitNs},
	"BenchmarkLoginLocked":       {unitNs, unitAllocs},
	"BenchmarkSubscriptionCheck": {unitNs},
}

// hashBudget is the exact hashes/op each login benchmark must report.
var hashBudget = map[string]float64{
	"BenchmarkLogin":       1,
	"BenchmarkLoginLocked": 0,
}

// results maps benchmark name to unit to the samples of every -count run.
type results map[string]map[string][]float64

func (r results) median(name, unit string) (float64, bool) {
	samples := r[name][unit]
	if len(samples) == 0 {
		return 0, false
	}
	return median(samples), true
}

type comparison struct {
	benchmark string
	metric    string
	baseline  float64
	candidate float64
	delta     float64
}

func main() {
	baselinePath := flag.String("baseline", "", "path to baseline benchmark output")
	candidatePath := flag.String("candidate", "", "path to candidate benchmark output")
	threshold := flag.Float64("threshold", defaultThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	lockedShare := flag.Float64("locked-share", defaultLockedShare, "maximum locked-login cost as a share of a password login")
	flag.Parse()

	if *baselinePath == "" || *candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-baseline and -candidate are required")
		os.Exit(2)
	}
	if *threshold < 0 || *lockedShare <= 0 {
		fmt.Fprintln(os.Stderr, "-threshold must be >= 0 and -locked-share > 0")
		os.Exit(2)
	}

	baseline, err := readResults(*baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := readResults(*candidatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "candidate: %v\n", err)
		os.Exit(1)
	}

	rows, failures := compare(baseline, candidate, *threshold)
	failures = append(failures, checkCandidate(candidate, *lockedShare)...)

	fmt.Println("benchmark metric baseline candidate delta")
	for _, r := range rows {
		fmt.Printf("%s %s %.3f %.3f %+0.2f%%\n", r.benchmark, r.metric, r.baseline, r.candidate, r.delta*100)
	}
	if len(failures) > 0 {
		fmt.Fprintln(os.Stderr, "performance check failed:")
		for _, f := range failures {
			fmt.Fprintf(os.Stderr, "  - %s\n", f)
		}
		os.Exit(1)
	}
}

// compare returns one row per tracked metric in name order, plus a failure
// line for every missing sample or regression beyond threshold.
func compare(baseline, candidate results, threshold float64) ([]comparison, []string) {
	var (
		rows     []comparison
		failures []string
	)
	for _, name := range sortedKeys(tracked) {
		for _, unit := range tracked[name] {
			base, okBase := baseline.median(name, unit)
			cand, okCand := candidate.median(name, unit)
			if !okBase || !okCand {
				failures = append(failures, fmt.Sprintf("missing samples for %s %s", name, unit))
				continue
			}

			row := comparison{benchmark: name, metric: unit, baseline: base, candidate: cand}
			switch {
			case base > 0:
				row.delta = (cand - base) / base
				if row.delta > threshold {
					failures = append(failures, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)",
						name, unit, row.delta*100, threshold*100))
				}
			case cand > 0:
				// A zero-allocation path has no ratio to compare.
				failures = append(failures, fmt.Sprintf("%s %s went from 0 to %.0f", name, unit, cand))
			}
			rows = append(rows, row)
		}
	}
	return rows, failures
}

// checkCandidate verifies the per-run properties that do not depend on a
// baseline.
func checkCandidate(candidate results, lockedShare float64) []string {
	var failures []string
	for _, name := range sortedKeys(hashBudget) {
		got, ok := candidate.median(name, unitHashes)
		if !ok {
			failures = append(failures, fmt.Sprintf("%s reported no %s", name, unitHashes))
			continue
		}
		if want := hashBudget[name]; math.Abs(got-want) > 0.01 {
			failures = append(failures, fmt.Sprintf("%s does %.2f hash calls per op, want %.0f", name, got, want))
		}
	}

	locked, okLocked := candidate.median("BenchmarkLoginLocked", unitNs)
	login, okLogin := candidate.median("BenchmarkLogin", unitNs)
	if okLocked && okLogin && login > 0 && locked/login > lockedShare {
		failures = append(failures, fmt.Sprintf("locked login costs %.1f%% of a password login (limit %.1f%%)",
			locked/login*100, lockedShare*100))
	}
	return failures
}

func readResults(path string) (results, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseResults(f)
}

// parseResults collects the value/unit pairs of every benchmark line whose
// name appears in tracked or hashBudget.
func parseResults(r io.Reader) (results, error) {
	out := results{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		name, metrics, ok := parseLine(sc.Text())
		if !ok {
			continue
		}
		_, isTracked := tracked[name]
		_, hasBudget := hashBudget[name]
		if !isTracked && !hasBudget {
			continue
		}
		if out[name] == nil {
			out[name] = map[string][]float64{}
		}
		for unit, v := range metrics {
			out[name][unit] = append(out[name][unit], v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// parseLine splits "BenchmarkX-8  N  v1 unit1  v2 unit2 ..." into its
// benchmark name without the GOMAXPROCS suffix and its metrics.
func parseLine(line string) (string, map[string]float64, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
		return "", nil, false
	}
	metrics := make(map[string]float64, (len(fields)-2)/2)
	for i := 2; i+1 < len(fields); i += 2 {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			continue
		}
		metrics[fields[i+1]] = v
	}
	return trimProcs(fields[0]), metrics, true
}

func trimProcs(name string) string {
	i := strings.LastIndexByte(name, '-')
	if i <= 0 {
		return name
	}
	if _, err := strconv.Atoi(name[i+1:]); err != nil {
		return name
	}
	return name[:i]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func median(values []float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
