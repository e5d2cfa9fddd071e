package dap

import (
	"github.com/google/go-dap"

	"github.com/probe-rs/probe-rs-sub000/internal/session"
)

func (s *Server) onSetBreakpointsRequest(req *dap.SetBreakpointsRequest) {
	sess, ok := s.requireSession(req.Seq, req.Command)
	resp := &dap.SetBreakpointsResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	if !ok {
		s.send(resp)
		return
	}

	source := req.Arguments.Source.Path
	sess.Breakpoints.ClearSource(sess.Target, source)

	verified := make([]dap.Breakpoint, 0, len(req.Arguments.Breakpoints))
	for _, sbp := range req.Arguments.Breakpoints {
		var col *int64
		if sbp.Column != 0 {
			c := int64(sbp.Column)
			col = &c
		}
		loc, err := sess.DebugInfo.GetBreakpointLocation(source, int64(sbp.Line), col)
		if err != nil {
			verified = append(verified, dap.Breakpoint{Verified: false, Message: err.Error()})
			continue
		}
		bp := session.Breakpoint{
			Address: loc.Address,
			Kind:    session.KindSourceBreakpoint,
			Source:  source,
			Line:    int64(sbp.Line),
		}
		if err := sess.Breakpoints.Set(sess.Target, bp); err != nil {
			verified = append(verified, dap.Breakpoint{Verified: false, Message: err.Error()})
			continue
		}
		verified = append(verified, dap.Breakpoint{
			Verified: true,
			Line:     int(loc.Location.Line),
			Source:   &req.Arguments.Source,
		})
	}

	resp.Body.Breakpoints = verified
	s.send(resp)
}

func (s *Server) onSetInstructionBreakpointsRequest(req *dap.SetInstructionBreakpointsRequest) {
	sess, ok := s.requireSession(req.Seq, req.Command)
	resp := &dap.SetInstructionBreakpointsResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	if !ok {
		s.send(resp)
		return
	}

	for _, bp := range sess.Breakpoints.All() {
		if bp.Kind == session.KindInstructionBreakpoint {
			_ = sess.Breakpoints.Remove(sess.Target, bp.Address)
		}
	}

	verified := make([]dap.Breakpoint, 0, len(req.Arguments.Breakpoints))
	for _, ibp := range req.Arguments.Breakpoints {
		addr, err := parseMemoryReference(ibp.InstructionReference)
		if err != nil {
			verified = append(verified, dap.Breakpoint{Verified: false, Message: err.Error()})
			continue
		}
		bp := session.Breakpoint{Address: addr, Kind: session.KindInstructionBreakpoint}
		if err := sess.Breakpoints.Set(sess.Target, bp); err != nil {
			verified = append(verified, dap.Breakpoint{Verified: false, Message: err.Error()})
			continue
		}
		verified = append(verified, dap.Breakpoint{
			Verified:             true,
			InstructionReference: ibp.InstructionReference,
		})
	}

	resp.Body.Breakpoints = verified
	s.send(resp)
}
