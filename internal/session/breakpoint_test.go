package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probe-rs/probe-rs-sub000/arch"
	"github.com/probe-rs/probe-rs-sub000/internal/core"
	"github.com/probe-rs/probe-rs-sub000/internal/core/testtarget"
)

func newTarget(t *testing.T) Target {
	t.Helper()
	a := arch.ForInstructionSet(arch.Thumb2)
	mem := core.NewFakeMemory(0, 1<<16)
	return testtarget.NewFakeTarget(a, arch.Thumb2, mem, 0x1000, 0x2000)
}

func TestBreakpointTableSetAndAt(t *testing.T) {
	target := newTarget(t)
	table := NewBreakpointTable(4)

	bp := Breakpoint{Address: 0x1004, Kind: KindInstructionBreakpoint}
	require.NoError(t, table.Set(target, bp))

	got, ok := table.At(0x1004)
	require.True(t, ok)
	assert.Equal(t, bp, got)
	assert.Equal(t, 1, table.Count())
}

func TestBreakpointTableExhaustion(t *testing.T) {
	target := newTarget(t)
	table := NewBreakpointTable(1)

	require.NoError(t, table.Set(target, Breakpoint{Address: 0x1000}))
	err := table.Set(target, Breakpoint{Address: 0x1002})
	assert.Error(t, err)
	assert.Equal(t, 1, table.Count())
}

func TestBreakpointTableClearSource(t *testing.T) {
	target := newTarget(t)
	table := NewBreakpointTable(4)

	require.NoError(t, table.Set(target, Breakpoint{Address: 0x1000, Kind: KindSourceBreakpoint, Source: "a.c"}))
	require.NoError(t, table.Set(target, Breakpoint{Address: 0x1002, Kind: KindSourceBreakpoint, Source: "b.c"}))
	require.NoError(t, table.Set(target, Breakpoint{Address: 0x1004, Kind: KindInstructionBreakpoint}))

	table.ClearSource(target, "a.c")

	_, ok := table.At(0x1000)
	assert.False(t, ok)
	_, ok = table.At(0x1002)
	assert.True(t, ok)
	_, ok = table.At(0x1004)
	assert.True(t, ok, "instruction breakpoints must survive a source clear")
}

func TestBreakpointTableRemove(t *testing.T) {
	target := newTarget(t)
	table := NewBreakpointTable(4)
	require.NoError(t, table.Set(target, Breakpoint{Address: 0x1000}))

	require.NoError(t, table.Remove(target, 0x1000))
	_, ok := table.At(0x1000)
	assert.False(t, ok)

	// removing an address that was never set is a no-op, not an error
	require.NoError(t, table.Remove(target, 0x9999))
}

func TestBreakpointTableReinstallAll(t *testing.T) {
	target := newTarget(t).(*testtarget.FakeTarget)
	table := NewBreakpointTable(4)
	require.NoError(t, table.Set(target, Breakpoint{Address: 0x1000}))
	require.NoError(t, table.Set(target, Breakpoint{Address: 0x1002}))

	// simulate the target forgetting its breakpoints (e.g. after reset)
	require.NoError(t, target.RemoveBreakpoint(0x1000))
	require.NoError(t, target.RemoveBreakpoint(0x1002))

	require.NoError(t, table.ReinstallAll(target))
	assert.Equal(t, 2, table.Count())
}
