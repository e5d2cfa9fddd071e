package session

import (
	"github.com/pkg/errors"
)

// BreakpointKind discriminates Breakpoint (spec.md §3).
type BreakpointKind int

const (
	KindInstructionBreakpoint BreakpointKind = iota
	KindSourceBreakpoint
)

// Breakpoint is the entity spec.md §3 names: an address plus the kind that
// justified installing it.
type Breakpoint struct {
	Address uint64
	Kind    BreakpointKind

	// SourceBreakpoint fields.
	Source string
	Line   int64
	Column int64
}

// BreakpointTable is the bounded pool spec.md §5 describes: "Breakpoint
// slots are a bounded pool whose size is queried once from the target;
// exhaustion yields a per-request warning, never a session-level failure."
type BreakpointTable struct {
	capacity int
	byAddr   map[uint64]Breakpoint
}

func NewBreakpointTable(capacity int) *BreakpointTable {
	return &BreakpointTable{capacity: capacity, byAddr: make(map[uint64]Breakpoint)}
}

func (t *BreakpointTable) Count() int { return len(t.byAddr) }

func (t *BreakpointTable) At(addr uint64) (Breakpoint, bool) {
	bp, ok := t.byAddr[addr]
	return bp, ok
}

// Set installs a breakpoint at addr via target, recording it only on
// success so the table always mirrors what's actually on the target.
func (t *BreakpointTable) Set(target Target, bp Breakpoint) error {
	if len(t.byAddr) >= t.capacity {
		return errors.Errorf("breakpoint slots exhausted (%d available)", t.capacity)
	}
	if err := target.InstallBreakpoint(bp.Address); err != nil {
		return errors.Wrapf(err, "installing breakpoint at 0x%x", bp.Address)
	}
	t.byAddr[bp.Address] = bp
	return nil
}

// ClearSource removes every breakpoint previously installed for the given
// source path, implementing setBreakpoints' "clear all prior source
// breakpoints for this source" step.
func (t *BreakpointTable) ClearSource(target Target, source string) {
	for addr, bp := range t.byAddr {
		if bp.Kind == KindSourceBreakpoint && bp.Source == source {
			_ = target.RemoveBreakpoint(addr)
			delete(t.byAddr, addr)
		}
	}
}

// Remove clears a single breakpoint by address.
func (t *BreakpointTable) Remove(target Target, addr uint64) error {
	if _, ok := t.byAddr[addr]; !ok {
		return nil
	}
	delete(t.byAddr, addr)
	return target.RemoveBreakpoint(addr)
}

// ReinstallAll re-applies every tracked breakpoint, used by restart on
// architectures (RISC-V) where reset forgets them (spec.md §6).
func (t *BreakpointTable) ReinstallAll(target Target) error {
	var firstErr error
	for addr := range t.byAddr {
		if err := target.InstallBreakpoint(addr); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *BreakpointTable) All() []Breakpoint {
	out := make([]Breakpoint, 0, len(t.byAddr))
	for _, bp := range t.byAddr {
		out = append(out, bp)
	}
	return out
}
