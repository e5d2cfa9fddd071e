package dap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probe-rs/probe-rs-sub000/arch"
	"github.com/probe-rs/probe-rs-sub000/internal/core"
	"github.com/probe-rs/probe-rs-sub000/internal/core/testtarget"
	"github.com/probe-rs/probe-rs-sub000/internal/session"
	"github.com/probe-rs/probe-rs-sub000/internal/unwind"
)

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	a := arch.ForInstructionSet(arch.Thumb2)
	mem := core.NewFakeMemory(0, 1<<16)
	target := testtarget.NewFakeTarget(a, arch.Thumb2, mem, 0x1000, 0x2000)
	return session.New(target, nil, unwind.NoExceptionSupport{}, nil)
}

func TestReplHelpListsCommands(t *testing.T) {
	out := replHelp(nil, nil, nil)
	assert.Contains(t, out, "break")
	assert.Contains(t, out, "quit")
	assert.Contains(t, out, "help")
}

func TestReplQuitReturnsMessage(t *testing.T) {
	out := replQuit(nil, nil, nil)
	assert.NotEmpty(t, out)
}

func TestReplBreakNoSession(t *testing.T) {
	out := replBreak(nil, nil, []string{"0x1000"})
	assert.Contains(t, out, "no active session")
}

func TestReplBreakWrongArgCount(t *testing.T) {
	sess := newTestSession(t)
	out := replBreak(nil, sess, nil)
	assert.Contains(t, out, "usage")
}

func TestReplBreakInvalidAddress(t *testing.T) {
	sess := newTestSession(t)
	out := replBreak(nil, sess, []string{"not-hex!"})
	assert.Contains(t, out, "invalid address")
}

func TestReplBreakInstallsBreakpoint(t *testing.T) {
	sess := newTestSession(t)
	out := replBreak(nil, sess, []string{"0x1004"})
	assert.Contains(t, out, "breakpoint installed")

	bp, ok := sess.Breakpoints.At(0x1004)
	require.True(t, ok)
	assert.Equal(t, session.KindInstructionBreakpoint, bp.Kind)
}

func TestRunningReplCommandsGateBreakHelpQuit(t *testing.T) {
	assert.True(t, runningReplCommands["break"])
	assert.True(t, runningReplCommands["help"])
	assert.True(t, runningReplCommands["quit"])
	assert.False(t, runningReplCommands["variables"])
}
