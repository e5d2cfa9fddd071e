package dap

import (
	"github.com/google/go-dap"

	"github.com/probe-rs/probe-rs-sub000/internal/core"
	"github.com/probe-rs/probe-rs-sub000/internal/dwarfdata"
	"github.com/probe-rs/probe-rs-sub000/internal/session"
	"github.com/probe-rs/probe-rs-sub000/internal/unwind"
)

func (s *Server) onInitializeRequest(req *dap.InitializeRequest) {
	if req.Arguments.LinesStartAt1 {
		s.initLinesStartAt1 = true
	}
	if req.Arguments.ColumnsStartAt1 {
		s.initColumnsStartAt1 = true
	}
	s.clientSupportsProgress = req.Arguments.SupportsProgressReporting

	resp := &dap.InitializeResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	resp.Body.SupportsConfigurationDoneRequest = true
	resp.Body.SupportsReadMemoryRequest = true
	resp.Body.SupportsWriteMemoryRequest = true
	resp.Body.SupportsDisassembleRequest = s.Decoder != nil
	resp.Body.SupportsSteppingGranularity = true
	resp.Body.SupportsSetVariable = true
	resp.Body.SupportsEvaluateForHovers = true
	resp.Body.SupportsRestartRequest = true
	resp.Body.SupportsInstructionBreakpoints = true
	resp.Body.SupportsConditionalBreakpoints = false
	resp.Body.SupportsFunctionBreakpoints = false
	resp.Body.SupportsLoadedSourcesRequest = false
	resp.Body.SupportsModulesRequest = false
	resp.Body.SupportsTerminateRequest = false
	resp.Body.SupportTerminateDebuggee = false
	resp.Body.SupportsProgressReporting = s.clientSupportsProgress
	s.send(resp)
	s.send(&dap.InitializedEvent{Event: newEvent("initialized")})
}

func (s *Server) startSession(requestSeq int, command string, arguments []byte) (LaunchConfig, bool) {
	cfg, err := decodeLaunchConfig(arguments)
	if err != nil {
		s.sendError(requestSeq, command, errInvalidArgument, "decoding launch configuration: "+err.Error())
		return cfg, false
	}
	if s.NewTarget == nil {
		s.sendError(requestSeq, command, errFailed, "no target factory configured")
		return cfg, false
	}
	target, err := s.NewTarget(cfg)
	if err != nil {
		s.sendError(requestSeq, command, errInvalidArgument, "attaching to target: "+err.Error())
		return cfg, false
	}
	if cfg.ProgramPath == "" {
		s.sendError(requestSeq, command, errInvalidArgument, "programPath is required")
		return cfg, false
	}
	di, err := dwarfdata.Load(cfg.ProgramPath)
	if err != nil {
		s.sendError(requestSeq, command, errInvalidArgument, "loading debug info: "+err.Error())
		return cfg, false
	}
	exc := s.ExceptionInterface
	if exc == nil {
		exc = unwind.NoExceptionSupport{}
	}
	sess := session.New(target, di, exc, s.log)
	sess.Flags.HaltAfterReset = cfg.HaltAfterReset
	sess.Flags.SupportsProgressReporting = s.clientSupportsProgress
	sess.Flags.LinesStartAt1 = s.initLinesStartAt1
	sess.Flags.ColumnsStartAt1 = s.initColumnsStartAt1
	s.sess = sess
	s.staticScope = nil
	return cfg, true
}

// SetPeripheralCache wires an SVD-backed PeripheralCache into the
// controller, enabling the Peripherals scope (spec.md §4.1 scopes).
func (s *Server) SetPeripheralCache(c PeripheralCache) { s.svd = c }

func (s *Server) onLaunchRequest(req *dap.LaunchRequest) {
	if _, ok := s.startSession(req.Seq, req.Command, req.Arguments); !ok {
		return
	}
	resp := &dap.LaunchResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	s.send(resp)
}

func (s *Server) onAttachRequest(req *dap.AttachRequest) {
	if _, ok := s.startSession(req.Seq, req.Command, req.Arguments); !ok {
		return
	}
	resp := &dap.AttachResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	s.send(resp)
}

// onConfigurationDoneRequest implements spec.md §4.1's configurationDone
// contract: if the core is already halted on a breakpoint, or
// halt_after_reset was requested, report it stopped; otherwise continue.
func (s *Server) onConfigurationDoneRequest(req *dap.ConfigurationDoneRequest) {
	sess, ok := s.requireSession(req.Seq, req.Command)
	resp := &dap.ConfigurationDoneResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	s.send(resp)
	if !ok {
		return
	}
	sess.Flags.ConfigurationDone = true

	status := sess.Status()
	if (status.IsHalted() && status.Reason == core.HaltBreakpoint) || sess.Flags.HaltAfterReset {
		s.sendStopped(status.Reason.String(), "")
		return
	}
	s.sendContinued()
	if err := sess.Continue(); err != nil {
		s.sendShowMessage("error", "continue failed: "+err.Error())
		return
	}
	if sess.Status().IsHalted() {
		s.sendStopped(sess.Status().Reason.String(), "")
	}
}

func (s *Server) onPauseRequest(req *dap.PauseRequest) {
	sess, ok := s.requireSession(req.Seq, req.Command)
	if !ok {
		return
	}
	if _, err := sess.Halt(); err != nil {
		s.sendError(req.Seq, req.Command, errFailed, err.Error())
		return
	}
	resp := &dap.PauseResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	s.send(resp)
	s.sendStopped("pause", "")
}

func (s *Server) onContinueRequest(req *dap.ContinueRequest) {
	sess, ok := s.requireHalted(req.Seq, req.Command)
	if !ok {
		return
	}
	resp := &dap.ContinueResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	resp.Body.AllThreadsContinued = true
	s.send(resp)
	s.sendContinued()

	if err := sess.Continue(); err != nil {
		s.sendShowMessage("error", "continue failed: "+err.Error())
		return
	}
	if sess.Status().IsHalted() {
		s.sendStopped(sess.Status().Reason.String(), "")
	}
}

func (s *Server) stepAndReport(requestSeq int, command string, mode unwind.StepMode) {
	sess, ok := s.requireHalted(requestSeq, command)
	if !ok {
		return
	}
	s.send(stepResponseFor(requestSeq, command))

	if err := sess.Step(mode); err != nil {
		s.sendShowMessage("warning", "step did not fully complete: "+err.Error())
	}
	s.sendStopped("step", "")
}

func stepResponseFor(requestSeq int, command string) dap.ResponseMessage {
	switch command {
	case "next":
		r := &dap.NextResponse{}
		r.Response = newResponse(requestSeq, command)
		return r
	case "stepIn":
		r := &dap.StepInResponse{}
		r.Response = newResponse(requestSeq, command)
		return r
	default:
		r := &dap.StepOutResponse{}
		r.Response = newResponse(requestSeq, command)
		return r
	}
}

func (s *Server) onNextRequest(req *dap.NextRequest) {
	mode := unwind.OverStatement
	if req.Arguments.Granularity == "instruction" {
		mode = unwind.StepInstruction
	}
	s.stepAndReport(req.Seq, req.Command, mode)
}

func (s *Server) onStepInRequest(req *dap.StepInRequest) {
	mode := unwind.IntoStatement
	if req.Arguments.Granularity == "instruction" {
		mode = unwind.StepInstruction
	}
	s.stepAndReport(req.Seq, req.Command, mode)
}

func (s *Server) onStepOutRequest(req *dap.StepOutRequest) {
	s.stepAndReport(req.Seq, req.Command, unwind.OutOfStatement)
}

func (s *Server) onRestartRequest(req *dap.RestartRequest) {
	sess, ok := s.requireSession(req.Seq, req.Command)
	if !ok {
		return
	}
	if err := sess.Restart(); err != nil {
		s.sendError(req.Seq, req.Command, errFailed, err.Error())
		return
	}
	resp := &dap.RestartResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	s.send(resp)
	if sess.Status().IsHalted() {
		s.sendStopped("restart", "")
	} else {
		s.sendContinued()
	}
}

func (s *Server) onDisconnectRequest(req *dap.DisconnectRequest) {
	resp := &dap.DisconnectResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	if s.sess != nil {
		if err := s.sess.Disconnect(req.Arguments.TerminateDebuggee, req.Arguments.Suspend); err != nil {
			s.log.WithError(err).Warn("disconnect")
		}
	}
	s.send(resp)
	s.sendTerminated()
}

func (s *Server) onLoadedSourcesRequest(req *dap.LoadedSourcesRequest) {
	resp := &dap.LoadedSourcesResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	s.send(resp)
}

func (s *Server) onModulesRequest(req *dap.ModulesRequest) {
	resp := &dap.ModulesResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	s.send(resp)
}
