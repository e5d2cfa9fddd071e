// Package dap implements the DAP session controller (spec.md §4.1): it
// translates Debug Adapter Protocol requests into session-level
// operations and emits the matching events. Grounded on docker-buildx's
// monitor/dap package (request dispatch switch, newResponse/newEvent
// helpers, stdio net.Conn adapter, REPL-over-evaluate pattern) adapted
// from a build-debugger shape to an on-chip hardware debugger shape.
package dap

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/go-dap"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/probe-rs/probe-rs-sub000/internal/session"
	"github.com/probe-rs/probe-rs-sub000/internal/unwind"
	"github.com/probe-rs/probe-rs-sub000/internal/variable"
)

// Server is the DAP session controller. One Server serves exactly one
// client connection and, once launched, owns exactly one Session (spec.md
// §5: single-threaded cooperative scheduling — handlers run to completion
// before the next request is read).
type Server struct {
	conn   net.Conn
	sendMu sync.Mutex

	log *logrus.Entry

	sess *session.Session

	progress *progressTracker

	svd PeripheralCache

	// NewTarget constructs the probe-transport Target a launch/attach
	// request should drive. Set by the embedding front end before Serve
	// runs; nil causes launch/attach to fail with errFailed.
	NewTarget TargetFactory

	// ExceptionInterface is passed through to session.New for every
	// launch/attach; nil falls back to unwind.NoExceptionSupport.
	ExceptionInterface unwind.ExceptionInterface

	initLinesStartAt1      bool
	initColumnsStartAt1    bool
	clientSupportsProgress bool

	// Decoder backs the disassemble handler; nil makes disassemble report
	// Unsupported (spec.md §7).
	Decoder InstructionDecoder

	// staticScope caches the session's single Static scope root across
	// scopes() calls (it is not per-frame, spec.md §4.3.8).
	staticScope *variable.Variable
}

// PeripheralCache is the SVD capability consumed (never implemented) per
// SPEC_FULL.md §3's PeripheralRegister/PeripheralField additions. A nil
// PeripheralCache means no SVD file was loaded for this launch.
type PeripheralCache interface {
	Registers() []PeripheralRegister
}

// PeripheralRegister mirrors SPEC_FULL.md §3's supplemental entity.
type PeripheralRegister struct {
	Name    string
	Address uint64
	Fields  []PeripheralField
}

// PeripheralField mirrors SPEC_FULL.md §3's supplemental entity.
type PeripheralField struct {
	Name      string
	BitOffset int
	BitWidth  int
}

// RttChannelConfig mirrors SPEC_FULL.md §3's supplemental entity, carried
// as an inert passthrough record.
type RttChannelConfig struct {
	ChannelNumber int    `json:"channel_number"`
	ChannelName   string `json:"channel_name"`
	DataFormat    string `json:"data_format"`
}

// NewServer wraps an io.Reader/io.Writer pair (typically stdio) as the DAP
// transport, mirroring the teacher's stdioConn adapter.
func NewServer(r io.Reader, w io.Writer, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		conn:     &stdioConn{r, w},
		log:      log,
		progress: newProgressTracker(),
	}
}

// Serve reads protocol messages until EOF or disconnect, dispatching each
// to its handler in turn (spec.md §5: one request consumed at a time).
func (s *Server) Serve() error {
	r := s.conn
	for {
		req, err := dap.ReadProtocolMessage(readerOf(r))
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "reading DAP message")
		}
		s.handle(req)
	}
}

func readerOf(c net.Conn) io.Reader { return c }

func (s *Server) send(message dap.Message) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := dap.WriteProtocolMessage(s.conn, message); err != nil {
		s.log.WithError(err).Warn("writing DAP message failed")
	}
}

func (s *Server) handle(request dap.Message) {
	s.log.WithField("request", requestCommand(request)).Debug("handling DAP request")
	switch r := request.(type) {
	case *dap.InitializeRequest:
		s.onInitializeRequest(r)
	case *dap.LaunchRequest:
		s.onLaunchRequest(r)
	case *dap.AttachRequest:
		s.onAttachRequest(r)
	case *dap.DisconnectRequest:
		s.onDisconnectRequest(r)
	case *dap.RestartRequest:
		s.onRestartRequest(r)
	case *dap.ConfigurationDoneRequest:
		s.onConfigurationDoneRequest(r)
	case *dap.PauseRequest:
		s.onPauseRequest(r)
	case *dap.ContinueRequest:
		s.onContinueRequest(r)
	case *dap.NextRequest:
		s.onNextRequest(r)
	case *dap.StepInRequest:
		s.onStepInRequest(r)
	case *dap.StepOutRequest:
		s.onStepOutRequest(r)
	case *dap.SetBreakpointsRequest:
		s.onSetBreakpointsRequest(r)
	case *dap.SetInstructionBreakpointsRequest:
		s.onSetInstructionBreakpointsRequest(r)
	case *dap.ThreadsRequest:
		s.onThreadsRequest(r)
	case *dap.StackTraceRequest:
		s.onStackTraceRequest(r)
	case *dap.ScopesRequest:
		s.onScopesRequest(r)
	case *dap.VariablesRequest:
		s.onVariablesRequest(r)
	case *dap.SetVariableRequest:
		s.onSetVariableRequest(r)
	case *dap.EvaluateRequest:
		s.onEvaluateRequest(r)
	case *dap.ReadMemoryRequest:
		s.onReadMemoryRequest(r)
	case *dap.WriteMemoryRequest:
		s.onWriteMemoryRequest(r)
	case *dap.DisassembleRequest:
		s.onDisassembleRequest(r)
	case *dap.LoadedSourcesRequest:
		s.onLoadedSourcesRequest(r)
	case *dap.ModulesRequest:
		s.onModulesRequest(r)
	case *dap.CancelRequest:
		s.onCancelRequest(r)
	case *dap.BreakpointLocationsRequest:
		s.onBreakpointLocationsRequest(r)
	case dap.RequestMessage:
		s.log.Warnf("unhandled DAP request: %T", request)
		req := r.GetRequest()
		s.sendUnsupported(req.Seq, req.Command)
	default:
		s.log.Warnf("unhandled DAP message: %T", request)
	}
}

func requestCommand(m dap.Message) string {
	if req, ok := m.(dap.RequestMessage); ok {
		return req.GetRequest().Command
	}
	return "unknown"
}

func newResponse(requestSeq int, command string) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: 0, Type: "response"},
		Command:         command,
		RequestSeq:      requestSeq,
		Success:         true,
	}
}

func newEvent(event string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: 0, Type: "event"},
		Event:           event,
	}
}

// errorKind names the four behavioural error kinds spec.md §7 describes,
// used only to pick the DAP error response's displayed id.
type errorKind int

const (
	errUnsupported errorKind = iota
	errCoreNotHalted
	errInvalidArgument
	errFailed
)

func (s *Server) sendError(requestSeq int, command string, kind errorKind, message string) {
	r := &dap.ErrorResponse{}
	r.Response = newResponse(requestSeq, command)
	r.Success = false
	r.Message = message
	r.Body.Error = &dap.ErrorMessage{Format: message, Id: int(kind), ShowUser: true}
	s.send(r)
}

func (s *Server) requireSession(requestSeq int, command string) (*session.Session, bool) {
	if s.sess == nil {
		s.sendError(requestSeq, command, errFailed, "no active session: launch or attach first")
		return nil, false
	}
	return s.sess, true
}

func (s *Server) requireHalted(requestSeq int, command string) (*session.Session, bool) {
	sess, ok := s.requireSession(requestSeq, command)
	if !ok {
		return nil, false
	}
	if !sess.Status().IsHalted() {
		s.sendError(requestSeq, command, errCoreNotHalted, "core is not halted")
		return nil, false
	}
	return sess, true
}

type stdioConn struct {
	io.Reader
	io.Writer
}

func (c *stdioConn) Close() error                     { return nil }
func (c *stdioConn) LocalAddr() net.Addr              { return dummyAddr{} }
func (c *stdioConn) RemoteAddr() net.Addr             { return dummyAddr{} }
func (c *stdioConn) SetDeadline(time.Time) error      { return nil }
func (c *stdioConn) SetReadDeadline(time.Time) error  { return nil }
func (c *stdioConn) SetWriteDeadline(time.Time) error { return nil }

type dummyAddr struct{}

func (dummyAddr) Network() string { return "stdio" }
func (dummyAddr) String() string  { return "stdio" }
