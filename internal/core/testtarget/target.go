// Package testtarget provides an in-process, no-hardware implementation of
// session.Target, continuing the teacher's own
// demo/ptrace-linux-amd64 pattern of a small standalone program that drives
// a "tracee" without any network transport in between. Where the teacher's
// demo forks a real process and pokes breakpoint opcodes through ptrace,
// FakeTarget backs the memory side with core.FakeMemory and simulates halt
// state directly, so the DAP controller and the local REPL driver
// (cmd/dap-server) can be exercised end to end without a physical probe.
package testtarget

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/probe-rs/probe-rs-sub000/arch"
	"github.com/probe-rs/probe-rs-sub000/internal/core"
)

// FakeTarget is a session.Target backed entirely by an in-process byte
// slice. It does not execute real code: Resume/StepSingleInstruction only
// advance the simulated program counter, and after a Resume, WaitForHalt
// advances the PC by one simulated instruction and halts there, reporting a
// breakpoint halt when that address has a breakpoint installed. This is enough to drive every DAP
// handler's control flow without a physical link.
type FakeTarget struct {
	*core.FakeMemory

	arch *arch.Architecture
	iset arch.InstructionSet

	entryPC uint64
	pc      uint64
	sp      uint64
	halted  bool

	breakpoints    map[uint64]bool
	maxBreakpoints int

	// InstructionWidth is the number of bytes Resume/StepSingleInstruction
	// advance the simulated PC by each "instruction". Defaults to 2 (the
	// minimum Thumb2 encoding width) when zero.
	InstructionWidth uint64

	// lastSignal mirrors the teacher's ptrace demo, which classifies every
	// wait() status by its embedded signal number (SIGTRAP on breakpoint,
	// SIGSTOP on attach). There is no real wait(2) here, so this is just
	// set for parity with that status and surfaced for logging.
	lastSignal unix.Signal
}

// NewFakeTarget builds a FakeTarget whose memory is mem, whose register
// file matches a, and whose PC starts halted at entryPC.
func NewFakeTarget(a *arch.Architecture, iset arch.InstructionSet, mem *core.FakeMemory, entryPC, initialSP uint64) *FakeTarget {
	return &FakeTarget{
		FakeMemory:       mem,
		arch:             a,
		iset:             iset,
		entryPC:          entryPC,
		pc:               entryPC,
		sp:               initialSP,
		halted:           true,
		breakpoints:      make(map[uint64]bool),
		maxBreakpoints:   6,
		InstructionWidth: 2,
	}
}

func (t *FakeTarget) width() uint64 {
	if t.InstructionWidth == 0 {
		return 2
	}
	return t.InstructionWidth
}

func (t *FakeTarget) Halt(deadline time.Duration) error {
	t.halted = true
	return nil
}

func (t *FakeTarget) ResetAndHalt(deadline time.Duration) error {
	t.pc = t.entryPC
	t.halted = true
	return nil
}

func (t *FakeTarget) Resume() error {
	t.halted = false
	return nil
}

func (t *FakeTarget) Status() (core.CoreStatus, error) {
	if t.halted {
		if t.breakpoints[t.pc] {
			t.lastSignal = unix.SIGTRAP
			return core.HaltedOnBreakpoint(core.BreakpointCauseSoftware), nil
		}
		return core.Halted(core.HaltUnknown), nil
	}
	return core.CoreStatus{Kind: core.StatusRunning}, nil
}

// LastSignal reports the Unix signal the most recent halt would have
// carried on a real ptrace wait4, for diagnostic logging only.
func (t *FakeTarget) LastSignal() unix.Signal { return t.lastSignal }

// WaitForHalt simulates execution of a running target by advancing pc by
// one instruction and halting there, whether or not a breakpoint is
// installed at the new pc, returning immediately (no real deadline
// enforcement — there is nothing to wait on).
func (t *FakeTarget) WaitForHalt(deadline time.Duration) (uint64, error) {
	if t.halted {
		return t.pc, nil
	}
	t.pc += t.width()
	t.halted = true
	if t.breakpoints[t.pc] {
		t.lastSignal = unix.SIGTRAP
	} else {
		t.lastSignal = unix.SIGSTOP
	}
	return t.pc, nil
}

func (t *FakeTarget) Registers() (*core.DebugRegisters, error) {
	regs := core.NewDebugRegisters(t.arch)
	regs.SetByRole(arch.RolePC, core.Value64(t.pc))
	regs.SetByRole(arch.RoleSP, core.Value64(t.sp))
	return regs, nil
}

func (t *FakeTarget) StepSingleInstruction() error {
	t.pc += t.width()
	return nil
}

func (t *FakeTarget) InstallBreakpoint(addr uint64) error {
	if len(t.breakpoints) >= t.maxBreakpoints {
		return errors.Errorf("breakpoint slots exhausted (%d available)", t.maxBreakpoints)
	}
	t.breakpoints[addr] = true
	return nil
}

func (t *FakeTarget) RemoveBreakpoint(addr uint64) error {
	delete(t.breakpoints, addr)
	return nil
}

func (t *FakeTarget) AvailableBreakpointUnits() int { return t.maxBreakpoints }

func (t *FakeTarget) Architecture() *arch.Architecture { return t.arch }

func (t *FakeTarget) InstructionSet() arch.InstructionSet { return t.iset }
