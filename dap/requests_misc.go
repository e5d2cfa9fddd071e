package dap

import "github.com/google/go-dap"

// onCancelRequest mirrors docker-buildx's own monitor/dap controller: this
// module advertises supportsCancelRequest=false at initialize, so a client
// sending one anyway just gets an explicit unsupported response instead of
// silent drop.
func (s *Server) onCancelRequest(req *dap.CancelRequest) {
	s.sendUnsupported(req.Seq, req.Command)
}

// onBreakpointLocationsRequest mirrors the same controller's stub for a
// capability this session also declines (supportsBreakpointLocationsRequest
// is not set in onInitializeRequest).
func (s *Server) onBreakpointLocationsRequest(req *dap.BreakpointLocationsRequest) {
	s.sendUnsupported(req.Seq, req.Command)
}
