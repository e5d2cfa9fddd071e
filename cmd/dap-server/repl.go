package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/probe-rs/probe-rs-sub000/arch"
	"github.com/probe-rs/probe-rs-sub000/internal/core"
	"github.com/probe-rs/probe-rs-sub000/internal/core/testtarget"
	"github.com/probe-rs/probe-rs-sub000/internal/dwarfdata"
	"github.com/probe-rs/probe-rs-sub000/internal/session"
	"github.com/probe-rs/probe-rs-sub000/internal/unwind"
)

// replCmdTree wires github.com/chzyer/readline into a standalone local
// driver against a FakeTarget session, the same manual-testing role
// readline plays for the teacher's historical ogle CLI — independent of the
// DAP wire protocol in dap/repl.go, which instead rides inside an
// evaluate(context="repl") request.
func replCmdTree() *cobra.Command {
	var memSize int
	var entryPC uint64

	cmd := &cobra.Command{
		Use:   "repl <program>",
		Short: "Interactively drive a fake target against a loaded binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			di, err := dwarfdata.Load(args[0])
			if err != nil {
				return errors.Wrap(err, "loading debug info")
			}
			iset := arch.Thumb2
			a := arch.ForInstructionSet(iset)
			mem := core.NewFakeMemory(0, memSize)
			target := testtarget.NewFakeTarget(a, iset, mem, entryPC, uint64(memSize))
			sess := session.New(target, di, unwind.NoExceptionSupport{}, log)

			rl, err := readline.New("(dap) ")
			if err != nil {
				return errors.Wrap(err, "opening readline")
			}
			defer rl.Close()

			return runRepl(rl, sess)
		},
	}
	cmd.Flags().IntVar(&memSize, "mem-size", 1<<20, "size in bytes of the in-process fake target memory")
	cmd.Flags().Uint64Var(&entryPC, "entry-pc", 0, "initial program counter the fake target halts at")
	return cmd
}

func runRepl(rl *readline.Instance, sess *session.Session) error {
	for {
		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return nil
		}
		if err != nil {
			return err
		}
		words, err := shlex.Split(line)
		if err != nil || len(words) == 0 {
			continue
		}
		if words[0] == "quit" {
			return nil
		}
		if out := dispatchReplLine(sess, words); out != "" {
			fmt.Println(out)
		}
	}
}

func dispatchReplLine(sess *session.Session, words []string) string {
	switch words[0] {
	case "help":
		return "commands: continue, step, break <addr>, registers, status, quit"
	case "continue":
		if err := sess.Continue(); err != nil {
			return "continue failed: " + err.Error()
		}
		if sess.Status().IsHalted() {
			return "status: halted (" + sess.Status().Reason.String() + ")"
		}
		return "status: running"
	case "step":
		if err := sess.Step(unwind.OverStatement); err != nil {
			return "step failed: " + err.Error()
		}
		return "stepped"
	case "status":
		return "status: " + sess.Status().Reason.String()
	case "break":
		if len(words) != 2 {
			return "usage: break <addr>"
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(words[1], "0x"), 16, 64)
		if err != nil {
			return "invalid address: " + words[1]
		}
		bp := session.Breakpoint{Address: addr, Kind: session.KindInstructionBreakpoint}
		if err := sess.Breakpoints.Set(sess.Target, bp); err != nil {
			return "break failed: " + err.Error()
		}
		return fmt.Sprintf("breakpoint installed at 0x%x", addr)
	case "registers":
		regs, err := sess.Target.Registers()
		if err != nil {
			return "registers failed: " + err.Error()
		}
		var sb strings.Builder
		for _, r := range regs.All() {
			fmt.Fprintf(&sb, "%-4s 0x%x\n", r.Descriptor.Name, r.Value.Uint64())
		}
		return sb.String()
	default:
		return "unknown command: " + words[0]
	}
}
