package main

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

func TestDispatchReplLineHelp(t *testing.T) {
	sess := newTestSession(t)
	out := dispatchReplLine(sess, []string{"help"})
	assert.Contains(t, out, "continue")
}

func TestDispatchReplLineUnknown(t *testing.T) {
	sess := newTestSession(t)
	out := dispatchReplLine(sess, []string{"frobnicate"})
	assert.Contains(t, out, "unknown command")
}

func TestDispatchReplLineBreakInstallsBreakpoint(t *testing.T) {
	sess := newTestSession(t)
	out := dispatchReplLine(sess, []string{"break", "0x1002"})
	assert.Contains(t, out, "breakpoint installed")

	_, ok := sess.Breakpoints.At(0x1002)
	assert.True(t, ok)
}

func TestDispatchReplLineBreakBadUsage(t *testing.T) {
	sess := newTestSession(t)
	out := dispatchReplLine(sess, []string{"break"})
	assert.Contains(t, out, "usage")
}

func TestDispatchReplLineRegisters(t *testing.T) {
	sess := newTestSession(t)
	out := dispatchReplLine(sess, []string{"registers"})
	require.NotEmpty(t, out)
}

func TestDispatchReplLineStatus(t *testing.T) {
	sess := newTestSession(t)
	out := dispatchReplLine(sess, []string{"status"})
	assert.Contains(t, out, "status:")
}
