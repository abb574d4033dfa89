package compiler

import (
	"sync/atomic"
	"time"
)

// Phase is one stage of producing a generation.
type Phase uint8

const (
	PhaseLower Phase = iota
	PhaseDiff
	PhaseEncode

	numPhases
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseLower:
		return "lower"
	case PhaseDiff:
		return "diff"
	case PhaseEncode:
		return "encode"
	default:
		return "unknown"
	}
}

// Trace accumulates per-phase call counts and elapsed time. The zero value
// is ready to use and a nil *Trace records nothing.
type Trace struct {
	count [numPhases]atomic.Uint64
	nanos [numPhases]atomic.Int64
}

// PhaseStats is the accumulated cost of one phase.
type PhaseStats struct {
	Count uint64
	Total time.Duration
}

// Mean returns the average duration of one call.
func (s PhaseStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// TraceSnapshot is a point-in-time copy of a Trace.
type TraceSnapshot struct {
	Lower  PhaseStats
	Diff   PhaseStats
	Encode PhaseStats
}

// Phase returns the stats of p.
func (s TraceSnapshot) Phase(p Phase) PhaseStats {
	switch p {
	case PhaseLower:
		return s.Lower
	case PhaseDiff:
		return s.Diff
	case PhaseEncode:
		return s.Encode
	}
	return PhaseStats{}
}

// Add records one call of p that took d.
func (t *Trace) Add(p Phase, d time.Duration) {
	if t == nil || p >= numPhases {
		return
	}
	t.count[p].Add(1)
	t.nanos[p].Add(int64(d))
}

// since records one call of p that started at start.
func (t *Trace) since(p Phase, start time.Time) {
	t.Add(p, time.Since(start))
}

// Snapshot returns the current counters.
func (t *Trace) Snapshot() TraceSnapshot {
	if t == nil {
		return TraceSnapshot{}
	}
	load := func(p Phase) PhaseStats {
		return PhaseStats{Count: t.count[p].Load(), Total: time.Duration(t.nanos[p].Load())}
	}
	return TraceSnapshot{
		Lower:  load(PhaseLower),
		Diff:   load(PhaseDiff),
		Encode: load(PhaseEncode),
	}
}

// Reset zeroes every counter.
func (t *Trace) Reset() {
	if t == nil {
		return
	}
	for p := range numPhases {
		t.count[p].Store(0)
		t.nanos[p].Store(0)
	}
}
