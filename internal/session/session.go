// Package session implements the entity spec.md §3 names "Session": one
// active core, its debug-info handle, its breakpoint table, and the cache
// of the last unwound stack frames. Grounded on the teacher's
// internal/gocore.Process (the single "owns everything, refreshed on
// demand" aggregate) and the docker-buildx DAP server's debugContext
// (atomic swap of the per-launch session state).
package session

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/probe-rs/probe-rs-sub000/arch"
	"github.com/probe-rs/probe-rs-sub000/internal/core"
	"github.com/probe-rs/probe-rs-sub000/internal/dwarfdata"
	"github.com/probe-rs/probe-rs-sub000/internal/unwind"
	"github.com/probe-rs/probe-rs-sub000/internal/variable"
)

// Target is the probe-transport capability the session drives. It embeds
// core.Memory (spec.md §6's "memory-interface capability") and adds the
// core-control operations spec.md §4.1's handlers need.
type Target interface {
	core.Memory

	Halt(deadline time.Duration) error
	ResetAndHalt(deadline time.Duration) error
	Resume() error
	Status() (core.CoreStatus, error)
	WaitForHalt(deadline time.Duration) (uint64, error)
	Registers() (*core.DebugRegisters, error)

	StepSingleInstruction() error
	InstallBreakpoint(addr uint64) error
	RemoveBreakpoint(addr uint64) error
	AvailableBreakpointUnits() int

	Architecture() *arch.Architecture
	InstructionSet() arch.InstructionSet
}

// Flags holds the per-session DAP flags spec.md §4.1 lists, each
// initialised to its documented default.
type Flags struct {
	HaltAfterReset             bool
	ConfigurationDone          bool
	AllCoresHalted             bool
	SupportsProgressReporting  bool
	LinesStartAt1              bool
	ColumnsStartAt1            bool
	VSCodeQuirks               bool
}

func defaultFlags() Flags {
	return Flags{AllCoresHalted: true, LinesStartAt1: true, ColumnsStartAt1: true}
}

// Session is the entity spec.md §3 describes: "one active core, debug-info
// handle, breakpoint table, cache of last stack frames."
type Session struct {
	Target    Target
	DebugInfo *dwarfdata.DebugInfo
	Resolver  *variable.Resolver
	Breakpoints *BreakpointTable
	Flags     Flags

	unwinder *unwind.Unwinder
	frames   []StackFrame
	lastStatus core.CoreStatus

	Log *logrus.Entry
}

// New builds a Session around an already-attached Target and loaded debug
// info (spec.md §4.1's launch/attach handler constructs one of these).
func New(target Target, di *dwarfdata.DebugInfo, exc unwind.ExceptionInterface, log *logrus.Entry) *Session {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Session{
		Target:      target,
		DebugInfo:   di,
		Resolver:    variable.NewResolver(di, target),
		Breakpoints: NewBreakpointTable(target.AvailableBreakpointUnits()),
		Flags:       defaultFlags(),
		Log:         log.WithField("session", "core0"),
	}
	s.unwinder = unwind.New(di, target, exc, target.InstructionSet())
	return s
}

// Halt implements spec.md §4.1's pause contract: halt with a 500 ms
// deadline and force the reported reason to Request so the controller does
// not additionally surface a duplicate stop event.
func (s *Session) Halt() (uint64, error) {
	if err := s.Target.Halt(500 * time.Millisecond); err != nil {
		return 0, errors.Wrap(err, "halt")
	}
	pc, err := s.Target.WaitForHalt(500 * time.Millisecond)
	if err != nil {
		return 0, errors.Wrap(err, "waiting for halt")
	}
	s.lastStatus = core.Halted(core.HaltRequest)
	if err := s.RefreshStackTrace(); err != nil {
		s.Log.WithError(err).Warn("stack trace refresh after halt failed")
	}
	return pc, nil
}

// Continue implements spec.md §4.1 and §5's continue contract: a 200 ms
// wait, extended to 500 ms when breakpoints are installed, with transport
// timeouts treated as "still running."
func (s *Session) Continue() error {
	s.frames = nil
	if err := s.Target.Resume(); err != nil {
		return errors.Wrap(err, "resume")
	}
	deadline := 200 * time.Millisecond
	if s.Breakpoints.Count() > 0 {
		deadline = 500 * time.Millisecond
	}
	pc, err := s.Target.WaitForHalt(deadline)
	if err != nil {
		if errors.Cause(err) == ErrTransportTimeout {
			return nil // still running
		}
		return err
	}
	reason := s.classifyHalt(pc)
	s.lastStatus = core.Halted(reason)
	return s.RefreshStackTrace()
}

// classifyHalt reports whether pc lands on an installed breakpoint, for
// the stopped event's reason field.
func (s *Session) classifyHalt(pc uint64) core.HaltReason {
	if _, ok := s.Breakpoints.At(pc); ok {
		return core.HaltBreakpoint
	}
	return core.HaltUnknown
}

// ErrTransportTimeout is the sentinel a Target's WaitForHalt wraps when the
// deadline elapses without observing a halt (spec.md §7's
// Transport-timeout kind).
var ErrTransportTimeout = errors.New("transport timeout waiting for halt")

// RefreshStackTrace re-unwinds the halted core and rebuilds the cached
// StackFrame list. The new frames' variable roots are added to the same
// Resolver cache; previously issued variable keys are not invalidated.
func (s *Session) RefreshStackTrace() error {
	regs, err := s.Target.Registers()
	if err != nil {
		return errors.Wrap(err, "reading registers")
	}
	rawFrames, err := s.unwinder.Unwind(regs)
	if err != nil {
		return errors.Wrap(err, "unwind")
	}
	s.frames = BuildStackFrames(s.Resolver, s.DebugInfo, rawFrames)
	return nil
}

func (s *Session) Frames() []StackFrame { return s.frames }

func (s *Session) Status() core.CoreStatus { return s.lastStatus }

// Restart implements spec.md §4.1's restart contract.
func (s *Session) Restart() error {
	if err := s.Target.Halt(500 * time.Millisecond); err != nil {
		return errors.Wrap(err, "halt before restart")
	}
	if err := s.Target.ResetAndHalt(500 * time.Millisecond); err != nil {
		return errors.Wrap(err, "reset and halt")
	}
	// RISC-V targets forget breakpoints across reset; reinstall them
	// (spec.md §4.1). The software-breakpoint trap is not re-enabled
	// here.
	if s.Target.InstructionSet() == arch.RV32 || s.Target.InstructionSet() == arch.RV32C {
		if err := s.Breakpoints.ReinstallAll(s.Target); err != nil {
			s.Log.WithError(err).Warn("reinstalling breakpoints after restart")
		}
	}
	if !s.Flags.HaltAfterReset {
		if err := s.Target.Resume(); err != nil {
			return errors.Wrap(err, "resume after restart")
		}
		s.lastStatus = core.CoreStatus{Kind: core.StatusRunning}
		return nil
	}
	s.lastStatus = core.Halted(core.HaltRequest)
	return s.RefreshStackTrace()
}

// Disconnect implements spec.md §4.1's disconnect contract.
func (s *Session) Disconnect(terminate, suspend bool) error {
	if terminate || suspend {
		return s.Target.Halt(100 * time.Millisecond)
	}
	return nil
}

// steppingTarget adapts Session to unwind.Target for Step (spec.md
// §4.2.3), since that package only needs the narrower stepping surface.
type steppingTarget struct{ s *Session }

func (t steppingTarget) StepSingleInstruction() error { return t.s.Target.StepSingleInstruction() }
func (t steppingTarget) SetTemporaryBreakpoint(addr uint64) error {
	return t.s.Target.InstallBreakpoint(addr)
}
func (t steppingTarget) RemoveTemporaryBreakpoint(addr uint64) error {
	return t.s.Target.RemoveBreakpoint(addr)
}
func (t steppingTarget) Resume() error { return t.s.Target.Resume() }
func (t steppingTarget) WaitForHalt(deadline time.Duration) (uint64, error) {
	return t.s.Target.WaitForHalt(deadline)
}

// Step implements spec.md §4.2.3's stepping dispatch, forcing the halt
// reason to Step on success.
func (s *Session) Step(mode unwind.StepMode) error {
	var rawFrames []unwind.Frame
	for _, f := range s.frames {
		rawFrames = append(rawFrames, f.Raw)
	}
	_, err := unwind.Step(mode, steppingTarget{s}, s.DebugInfo, rawFrames)
	if err != nil {
		s.lastStatus = core.Halted(core.HaltUnknown)
		if refErr := s.RefreshStackTrace(); refErr != nil {
			s.Log.WithError(refErr).Warn("stack trace refresh after failed step")
		}
		return err
	}
	s.lastStatus = core.Halted(core.HaltStep)
	return s.RefreshStackTrace()
}
