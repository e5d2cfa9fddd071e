// Package unwind implements the stack unwinder (spec.md §4.2): the main
// loop that walks caller frames using CFI unwind tables, synthesises
// register values for each previous frame, and detects exception/interrupt
// boundaries through an architecture-specific ExceptionInterface.
package unwind

import (
	"github.com/probe-rs/probe-rs-sub000/arch"
	"github.com/probe-rs/probe-rs-sub000/internal/core"
	"github.com/probe-rs/probe-rs-sub000/internal/dwarfdata"
)

// ControlFlow is the signal unwind_without_debuginfo returns (spec.md §6):
// whether the unwinder should stop (optionally with an error) or continue.
type ControlFlow int

const (
	ControlFlowContinue ControlFlow = iota
	ControlFlowStop
	ControlFlowStopWithError
)

// ExceptionInfo describes a detected exception/interrupt entry boundary
// (spec.md §4.2.2 step 4): a synthetic handler frame plus the register set
// captured in the exception stack entry.
type ExceptionInfo struct {
	HandlerFrameName string
	HandlerRegisters *core.DebugRegisters
}

// ExceptionInterface is the per-architecture capability consumed (never
// implemented) by the generic unwind loop (spec.md §6).
type ExceptionInterface interface {
	// ExceptionDetails inspects regs (already unwound for the current
	// iteration) and returns (nil, nil) if no exception boundary is
	// present, a non-nil ExceptionInfo if one is, or an error if the
	// probe itself failed.
	ExceptionDetails(mem core.Memory, regs *core.DebugRegisters, di *dwarfdata.DebugInfo) (*ExceptionInfo, error)

	// UnwindWithoutDebugInfo is the fallback used when no FDE covers PC
	// (spec.md §4.2.2 step 2): it may update regs to the caller's values
	// and reports whether the unwinder should continue. When it returns
	// ControlFlowContinue with regs unchanged, the loop's next
	// ExceptionDetails call gets the chance to recover the caller.
	UnwindWithoutDebugInfo(regs *core.DebugRegisters, pc uint64, framesSoFar int, set arch.InstructionSet, mem core.Memory) (ControlFlow, error)
}

// NoExceptionSupport is a trivial ExceptionInterface for architectures (or
// test harnesses) with no exception-frame synthesis: it reports no
// exception boundaries and always stops the unwinder when CFI runs out,
// matching probe-rs's behaviour for cores lacking an architecture-specific
// implementation.
type NoExceptionSupport struct{}

func (NoExceptionSupport) ExceptionDetails(core.Memory, *core.DebugRegisters, *dwarfdata.DebugInfo) (*ExceptionInfo, error) {
	return nil, nil
}

func (NoExceptionSupport) UnwindWithoutDebugInfo(*core.DebugRegisters, uint64, int, arch.InstructionSet, core.Memory) (ControlFlow, error) {
	return ControlFlowStop, nil
}
