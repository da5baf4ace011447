// Package timeline builds layer timelines and answers which timesteps are
// adjacent to a point in time.
package timeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/surge-downloader/gridsync/internal/engine/types"
)

const (
	dateLayout = "20060102"
	fileExt    = ".bin"
)

// DefaultCycles are the four daily model runs.
var DefaultCycles = []int{0, 6, 12, 18}

// Generate returns the ascending timesteps between start and end (both
// inclusive) for the given cycle hours. Dual layers get a U and a V source.
func Generate(start, end time.Time, cycles []int, dual bool) ([]types.TimeStep, error) {
	start, end = start.UTC(), end.UTC()
	if end.Before(start) {
		return nil, fmt.Errorf("timeline end %s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if len(cycles) == 0 {
		cycles = DefaultCycles
	}

	hours := make([]int, 0, len(cycles))
	seen := make(map[int]bool, len(cycles))
	for _, h := range cycles {
		if h < 0 || h > 23 {
			return nil, fmt.Errorf("invalid cycle hour %d", h)
		}
		if !seen[h] {
			seen[h] = true
			hours = append(hours, h)
		}
	}
	sort.Ints(hours)

	var steps []types.TimeStep
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	for !day.After(end) {
		for _, h := range hours {
			t := day.Add(time.Duration(h) * time.Hour)
			if t.Before(start) || t.After(end) {
				continue
			}
			steps = append(steps, Step(t, dual))
		}
		day = day.AddDate(0, 0, 1)
	}
	return steps, nil
}

// Step builds the timestep for t.
func Step(t time.Time, dual bool) types.TimeStep {
	t = t.UTC()
	date := t.Format(dateLayout)
	cycle := fmt.Sprintf("%02dz", t.Hour())
	base := date + "_" + cycle

	sources := []string{base + fileExt}
	if dual {
		sources = []string{base + "_u" + fileExt, base + "_v" + fileExt}
	}
	return types.TimeStep{Time: t, Date: date, Cycle: cycle, Sources: sources}
}

// ParseSource recovers the valid time from a source name such as
// "20251028_06z.bin" or "20251028_06z_u.bin".
func ParseSource(name string) (time.Time, error) {
	base := strings.TrimSuffix(name, fileExt)
	parts := strings.Split(base, "_")
	if len(parts) < 2 || !strings.HasSuffix(parts[1], "z") {
		return time.Time{}, fmt.Errorf("malformed source name %q", name)
	}
	day, err := time.Parse(dateLayout, parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed source date %q: %w", name, err)
	}
	hour, err := strconv.Atoi(strings.TrimSuffix(parts[1], "z"))
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("malformed source cycle %q", name)
	}
	return day.Add(time.Duration(hour) * time.Hour), nil
}

// Bracket returns the indices lo, hi with steps[lo].Time <= t < steps[hi].Time.
// Both are 0 before the first step and n-1 at or after the last one.
// It returns -1, -1 for an empty timeline.
func Bracket(steps []types.TimeStep, t time.Time) (lo, hi int) {
	n := len(steps)
	if n == 0 {
		return -1, -1
	}
	// First index whose time is after t.
	i := sort.Search(n, func(i int) bool { return steps[i].Time.After(t) })
	switch {
	case i == 0:
		return 0, 0
	case i == n:
		return n - 1, n - 1
	}
	return i - 1, i
}

// Adjacent returns the bracketing indices for t without duplicates.
func Adjacent(steps []types.TimeStep, t time.Time) []int {
	return Window(steps, t, 1)
}

// Window returns the indices within size steps of the bracket around t,
// in ascending order. A size below 1 is treated as 1.
func Window(steps []types.TimeStep, t time.Time, size int) []int {
	lo, hi := Bracket(steps, t)
	if lo < 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	from := max(lo-(size-1), 0)
	to := min(hi+(size-1), len(steps)-1)

	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

// Nearest returns the index whose time is closest to t, preferring the
// earlier step on a tie. It returns -1 for an empty timeline.
func Nearest(steps []types.TimeStep, t time.Time) int {
	lo, hi := Bracket(steps, t)
	if lo < 0 || lo == hi {
		return lo
	}
	if steps[hi].Time.Sub(t) < t.Sub(steps[lo].Time) {
		return hi
	}
	return lo
}
