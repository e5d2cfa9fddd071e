package testtarget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/probe-rs/probe-rs-sub000/arch"
	"github.com/probe-rs/probe-rs-sub000/internal/core"
)

func newTarget() *FakeTarget {
	mem := core.NewFakeMemory(0, 1<<16)
	a := arch.ForInstructionSet(arch.Thumb2)
	return NewFakeTarget(a, arch.Thumb2, mem, 0x1000, 0x2000)
}

func TestNewFakeTargetStartsHalted(t *testing.T) {
	target := newTarget()

	status, err := target.Status()
	require.NoError(t, err)
	assert.True(t, status.IsHalted())

	regs, err := target.Registers()
	require.NoError(t, err)
	pc, ok := regs.ByRole(arch.RolePC)
	require.True(t, ok)
	assert.Equal(t, uint64(0x1000), pc.Uint64())
}

func TestResumeAndWaitForHaltAdvancesPC(t *testing.T) {
	target := newTarget()
	require.NoError(t, target.Resume())

	status, err := target.Status()
	require.NoError(t, err)
	assert.False(t, status.IsHalted())

	pc, err := target.WaitForHalt(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1002), pc)
	assert.Equal(t, unix.SIGSTOP, target.LastSignal())

	status, err = target.Status()
	require.NoError(t, err)
	assert.True(t, status.IsHalted())
}

func TestBreakpointHaltSetsTrap(t *testing.T) {
	target := newTarget()
	require.NoError(t, target.InstallBreakpoint(0x1002))

	require.NoError(t, target.Resume())
	pc, err := target.WaitForHalt(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1002), pc)
	assert.Equal(t, unix.SIGTRAP, target.LastSignal())

	status, err := target.Status()
	require.NoError(t, err)
	assert.True(t, status.IsHalted())
}

func TestRemoveBreakpointStopsTrap(t *testing.T) {
	target := newTarget()
	require.NoError(t, target.InstallBreakpoint(0x1002))
	require.NoError(t, target.RemoveBreakpoint(0x1002))

	require.NoError(t, target.Resume())
	_, err := target.WaitForHalt(0)
	require.NoError(t, err)
	assert.Equal(t, unix.SIGSTOP, target.LastSignal())
}

func TestInstallBreakpointExhaustsUnits(t *testing.T) {
	target := newTarget()
	units := target.AvailableBreakpointUnits()
	for i := 0; i < units; i++ {
		require.NoError(t, target.InstallBreakpoint(uint64(0x1000+2*i)))
	}
	err := target.InstallBreakpoint(0x9999)
	assert.Error(t, err)
}

func TestResetAndHaltReturnsToEntry(t *testing.T) {
	target := newTarget()
	require.NoError(t, target.Resume())
	_, err := target.WaitForHalt(0)
	require.NoError(t, err)

	require.NoError(t, target.ResetAndHalt(0))
	regs, err := target.Registers()
	require.NoError(t, err)
	pc, ok := regs.ByRole(arch.RolePC)
	require.True(t, ok)
	assert.Equal(t, uint64(0x1000), pc.Uint64())
}

func TestStepSingleInstructionAdvancesWithoutHaltTransition(t *testing.T) {
	target := newTarget()
	require.NoError(t, target.StepSingleInstruction())

	regs, err := target.Registers()
	require.NoError(t, err)
	pc, ok := regs.ByRole(arch.RolePC)
	require.True(t, ok)
	assert.Equal(t, uint64(0x1002), pc.Uint64())
}
