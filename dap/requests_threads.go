package dap

import (
	"os"

	"github.com/google/go-dap"

	"github.com/probe-rs/probe-rs-sub000/internal/dwarfdata"
)

func sourceExistsOnDisk(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Server) onThreadsRequest(req *dap.ThreadsRequest) {
	resp := &dap.ThreadsResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	if s.sess != nil {
		resp.Body.Threads = []dap.Thread{{Id: threadID, Name: "core0"}}
	}
	s.send(resp)
}

func (s *Server) onStackTraceRequest(req *dap.StackTraceRequest) {
	sess, ok := s.requireSession(req.Seq, req.Command)
	resp := &dap.StackTraceResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	if !ok {
		s.send(resp)
		return
	}

	frames := sess.Frames()
	resp.Body.TotalFrames = len(frames)

	start, end := stackTraceWindow(len(frames), req.Arguments.StartFrame, req.Arguments.Levels)

	out := make([]dap.StackFrame, 0, end-start)
	for _, f := range frames[start:end] {
		name := f.FunctionName
		if f.IsInlined {
			name += " #[inline]"
		}
		sf := dap.StackFrame{
			Id:                          f.Id,
			Name:                        name,
			InstructionPointerReference: formatMemoryReference(f.Raw.PC),
		}
		if f.SourceLoc != nil && f.SourceLoc.Path != "" {
			sf.Source = &dap.Source{Path: f.SourceLoc.Path}
			if !sourceExistsOnDisk(f.SourceLoc.Path) {
				sf.Source.PresentationHint = "deemphasize"
			}
			if f.SourceLoc.HasLine {
				sf.Line = int(f.SourceLoc.Line)
			}
			if f.SourceLoc.ColumnKind == dwarfdata.ColumnAt {
				sf.Column = int(f.SourceLoc.Column)
			}
		}
		out = append(out, sf)
	}
	resp.Body.StackFrames = out
	s.send(resp)
}

// stackTraceWindow implements spec.md §4.1's stackTrace windowing policy:
// levels==0 means all frames; a levels==1 request starting at frame 0 is
// special-cased to return just that one frame regardless of total, matching
// a client probing "give me the top frame only" (spec.md §8 scenario 3);
// small traces (<=20) otherwise return the tail starting at start; larger
// ones return [start, start+levels) clamped to a tail when the window would
// overrun the end.
func stackTraceWindow(total, start, levels int) (int, int) {
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	if levels == 1 && start == 0 {
		if total < 1 {
			return 0, total
		}
		return 0, 1
	}
	if levels == 0 {
		levels = total
	}
	if total <= 20 {
		return start, total
	}
	end := start + levels
	if end > total {
		tailStart := total - levels
		if tailStart < 0 {
			tailStart = 0
		}
		return tailStart, total
	}
	return start, end
}
