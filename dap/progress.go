package dap

import (
	"strconv"
	"sync"

	"github.com/google/go-dap"
)

// progressTracker assigns monotonically increasing progress ids and clamps
// percentages, implementing spec.md §4.1's progress reporting rules: gated
// on supports_progress_reporting, percentage clamped to [0, 100], "(100%)"
// suppressed at end.
type progressTracker struct {
	mu   sync.Mutex
	next int
}

func newProgressTracker() *progressTracker { return &progressTracker{} }

func (p *progressTracker) newID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return strconv.Itoa(p.next)
}

func clampPercentage(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func (s *Server) progressStart(title, message string) string {
	if !s.clientSupportsProgress {
		return ""
	}
	id := s.progress.newID()
	e := &dap.ProgressStartEvent{}
	e.Event = newEvent("progressStart")
	e.Body.ProgressId = id
	e.Body.Title = title
	e.Body.Message = message
	s.send(e)
	return id
}

func (s *Server) progressUpdate(id, message string, percentage float64) {
	if id == "" {
		return
	}
	e := &dap.ProgressUpdateEvent{}
	e.Event = newEvent("progressUpdate")
	e.Body.ProgressId = id
	e.Body.Message = message
	e.Body.Percentage = clampPercentage(percentage)
	s.send(e)
}

func (s *Server) progressEnd(id, message string) {
	if id == "" {
		return
	}
	e := &dap.ProgressEndEvent{}
	e.Event = newEvent("progressEnd")
	e.Body.ProgressId = id
	e.Body.Message = message
	s.send(e)
}
