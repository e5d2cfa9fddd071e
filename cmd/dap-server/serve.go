package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/probe-rs/probe-rs-sub000/arch"
	"github.com/probe-rs/probe-rs-sub000/dap"
	"github.com/probe-rs/probe-rs-sub000/internal/core"
	"github.com/probe-rs/probe-rs-sub000/internal/core/testtarget"
	"github.com/probe-rs/probe-rs-sub000/internal/session"
)

func serveCmd() *cobra.Command {
	var memSize int
	var entryPC uint64

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the DAP session controller over stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			server := dap.NewServer(os.Stdin, os.Stdout, log)
			server.NewTarget = fakeTargetFactory(memSize, entryPC)
			return server.Serve()
		},
	}
	cmd.Flags().IntVar(&memSize, "mem-size", 1<<20, "size in bytes of the in-process fake target memory")
	cmd.Flags().Uint64Var(&entryPC, "entry-pc", 0, "initial program counter the fake target halts at")
	return cmd
}

// fakeTargetFactory builds a dap.TargetFactory around testtarget.FakeTarget.
// No real probe transport is wired into this module (spec.md §6 keeps it
// external); this factory exists so the controller can be exercised without
// one, the same role the teacher's demo/ptrace-linux-amd64 plays for a real
// tracee.
func fakeTargetFactory(memSize int, entryPC uint64) dap.TargetFactory {
	return func(cfg dap.LaunchConfig) (session.Target, error) {
		iset := arch.Thumb2
		a := arch.ForInstructionSet(iset)
		mem := core.NewFakeMemory(0, memSize)
		sp := uint64(memSize)
		return testtarget.NewFakeTarget(a, iset, mem, entryPC, sp), nil
	}
}
