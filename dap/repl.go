package dap

import (
	"strings"

	"github.com/google/go-dap"
	"github.com/google/shlex"

	"github.com/probe-rs/probe-rs-sub000/internal/session"
)

// replCommand is one entry in the REPL dispatch table: it receives the
// shlex-split argument words (command word excluded) and returns the text
// shown back to the client.
type replCommand func(s *Server, sess *session.Session, args []string) string

// replCommands mirrors docker-buildx's REPL command table shape (monitor/dap
// dispatches a fixed set of subcommands through a urfave/cli app); this
// controller's domain has no use for a full CLI parser, so the table is a
// plain name-to-handler map instead.
var replCommands = map[string]replCommand{
	"help":  replHelp,
	"quit":  replQuit,
	"break": replBreak,
}

// runningReplCommands is the subset spec.md's REPL contract allows while
// the target is not halted.
var runningReplCommands = map[string]bool{
	"break": true,
	"help":  true,
	"quit":  true,
}

func (s *Server) handleRepl(req *dap.EvaluateRequest) {
	resp := &dap.EvaluateResponse{}
	resp.Response = newResponse(req.Seq, req.Command)

	words, err := shlex.Split(req.Arguments.Expression)
	if err != nil || len(words) == 0 {
		resp.Body.Result = "usage: <command> [args...] (try \"help\")"
		s.send(resp)
		return
	}

	name, args := words[0], words[1:]
	handler, ok := replCommands[name]
	if !ok {
		resp.Body.Result = "unknown command: " + name
		s.send(resp)
		return
	}

	var sess *session.Session
	if s.sess != nil {
		sess = s.sess
		if !sess.Status().IsHalted() && !runningReplCommands[name] {
			resp.Body.Result = "command \"" + name + "\" is unavailable while the target is running"
			s.send(resp)
			return
		}
	}

	resp.Body.Result = handler(s, sess, args)
	s.send(resp)

	switch name {
	case "quit":
		s.sendTerminated()
	}
}

func replHelp(s *Server, sess *session.Session, args []string) string {
	return strings.Join([]string{
		"available commands:",
		"  help               show this message",
		"  quit               terminate the debug session",
		"  break <address>    install a hardware breakpoint at a hex address (0x prefix optional)",
	}, "\n")
}

func replQuit(s *Server, sess *session.Session, args []string) string {
	return "terminating session"
}

func replBreak(s *Server, sess *session.Session, args []string) string {
	if sess == nil {
		return "no active session: launch or attach first"
	}
	if len(args) != 1 {
		return "usage: break <address>"
	}
	addr, err := parseMemoryReference(args[0])
	if err != nil {
		return "invalid address: " + args[0]
	}
	bp := session.Breakpoint{Address: addr, Kind: session.KindInstructionBreakpoint}
	if err := sess.Breakpoints.Set(sess.Target, bp); err != nil {
		return "break failed: " + err.Error()
	}
	return "breakpoint installed at " + formatMemoryReference(addr)
}
