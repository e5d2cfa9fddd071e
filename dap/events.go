package dap

import "github.com/google/go-dap"

const threadID = 1 // single-core sessions expose exactly one DAP thread.

func (s *Server) sendStopped(reason, description string) {
	e := &dap.StoppedEvent{}
	e.Event = newEvent("stopped")
	e.Body.Reason = reason
	e.Body.Description = description
	e.Body.ThreadId = threadID
	e.Body.AllThreadsStopped = true
	s.send(e)
}

func (s *Server) sendContinued() {
	e := &dap.ContinuedEvent{}
	e.Event = newEvent("continued")
	e.Body.ThreadId = threadID
	e.Body.AllThreadsContinued = true
	s.send(e)
}

func (s *Server) sendOutput(category, text string) {
	e := &dap.OutputEvent{}
	e.Event = newEvent("output")
	e.Body.Category = category
	e.Body.Output = text
	s.send(e)
}

func (s *Server) sendTerminated() {
	e := &dap.TerminatedEvent{}
	e.Event = newEvent("terminated")
	s.send(e)
}

func (s *Server) sendExited(code int) {
	e := &dap.ExitedEvent{}
	e.Event = newEvent("exited")
	e.Body.ExitCode = code
	s.send(e)
}

func (s *Server) sendMemoryEvent(memoryReference string, offset, count int) {
	e := &MemoryEvent{}
	e.Event = newEvent("memory")
	e.Body.MemoryReference = memoryReference
	e.Body.Offset = offset
	e.Body.Count = count
	s.send(e)
}

// MemoryEvent is the standard DAP "memory" invalidation event (spec.md
// §6's external interface), shaped like go-dap's other Body-typed events
// but not itself defined by go-dap v0.11.
type MemoryEvent struct {
	dap.Event
	Body struct {
		MemoryReference string `json:"memoryReference"`
		Offset          int    `json:"offset"`
		Count           int    `json:"count"`
	} `json:"body"`
}

// ShowMessageEvent is the probe-rs-show-message custom event spec.md §6
// names, surfacing a user-facing diagnostic the controller could not fold
// into a normal response (SVD load failure, RTT setup failure, ...).
type ShowMessageEvent struct {
	dap.Event
	Body ShowMessageBody `json:"body"`
}

type ShowMessageBody struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

func (s *Server) sendShowMessage(severity, message string) {
	e := &ShowMessageEvent{Body: ShowMessageBody{Severity: severity, Message: message}}
	e.Event = newEvent("probe-rs-show-message")
	s.send(e)
}

// RttChannelConfigEvent is the probe-rs-rtt-channel-config custom event:
// one per configured RTT channel, sent once after the target's RTT
// control block is located.
type RttChannelConfigEvent struct {
	dap.Event
	Body RttChannelConfig `json:"body"`
}

func (s *Server) sendRttChannelConfig(cfg RttChannelConfig) {
	e := &RttChannelConfigEvent{Body: cfg}
	e.Event = newEvent("probe-rs-rtt-channel-config")
	s.send(e)
}

// RttDataEvent is the probe-rs-rtt-data custom event carrying base64-coded
// bytes read from a single RTT channel since the last poll.
type RttDataEvent struct {
	dap.Event
	Body RttDataBody `json:"body"`
}

type RttDataBody struct {
	ChannelNumber int    `json:"channel_number"`
	Data          string `json:"data"`
}

func (s *Server) sendRttData(channel int, base64Data string) {
	e := &RttDataEvent{Body: RttDataBody{ChannelNumber: channel, Data: base64Data}}
	e.Event = newEvent("probe-rs-rtt-data")
	s.send(e)
}
