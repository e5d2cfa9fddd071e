package dap

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/google/go-dap"
	"github.com/pkg/errors"

	"github.com/probe-rs/probe-rs-sub000/internal/core"
)

func parseMemoryReference(ref string) (uint64, error) {
	ref = strings.TrimPrefix(ref, "0x")
	ref = strings.TrimPrefix(ref, "0X")
	v, err := strconv.ParseUint(ref, 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid memory reference %q", ref)
	}
	return v, nil
}

func formatMemoryReference(addr uint64) string {
	return "0x" + strconv.FormatUint(addr, 16)
}

// InstructionDecoder is the capability SPEC_FULL.md §1/§4.1 inject for
// disassemble: the actual instruction-table decode is external, the
// controller only shapes the resulting records.
type InstructionDecoder interface {
	Decode(addr uint64, code []byte) (text string, length int)
}

func (s *Server) onReadMemoryRequest(req *dap.ReadMemoryRequest) {
	sess, ok := s.requireSession(req.Seq, req.Command)
	if !ok {
		return
	}
	base, err := parseMemoryReference(req.Arguments.MemoryReference)
	if err != nil {
		s.sendError(req.Seq, req.Command, errInvalidArgument, err.Error())
		return
	}
	addr := base + uint64(req.Arguments.Offset)
	data, unreadable := core.ReadBestEffort(sess.Target, addr, req.Arguments.Count)

	resp := &dap.ReadMemoryResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	resp.Body.Address = formatMemoryReference(addr)
	resp.Body.UnreadableBytes = unreadable
	resp.Body.Data = base64.StdEncoding.EncodeToString(data)
	s.send(resp)
}

func (s *Server) onWriteMemoryRequest(req *dap.WriteMemoryRequest) {
	sess, ok := s.requireHalted(req.Seq, req.Command)
	if !ok {
		return
	}
	base, err := parseMemoryReference(req.Arguments.MemoryReference)
	if err != nil {
		s.sendError(req.Seq, req.Command, errInvalidArgument, err.Error())
		return
	}
	addr := base + uint64(req.Arguments.Offset)
	data, err := base64.StdEncoding.DecodeString(req.Arguments.Data)
	if err != nil {
		s.sendError(req.Seq, req.Command, errInvalidArgument, "invalid base64 payload: "+err.Error())
		return
	}
	if err := sess.Target.WriteMemory(addr, data); err != nil {
		s.sendError(req.Seq, req.Command, errFailed, err.Error())
		return
	}
	if err := sess.Target.Flush(); err != nil {
		s.sendError(req.Seq, req.Command, errFailed, err.Error())
		return
	}

	resp := &dap.WriteMemoryResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	resp.Body.BytesWritten = len(data)
	s.send(resp)
	s.sendMemoryEvent(req.Arguments.MemoryReference, req.Arguments.Offset, len(data))
}

func (s *Server) onDisassembleRequest(req *dap.DisassembleRequest) {
	sess, ok := s.requireSession(req.Seq, req.Command)
	if !ok {
		return
	}
	if s.Decoder == nil {
		s.sendUnsupported(req.Seq, req.Command)
		return
	}

	base, err := parseMemoryReference(req.Arguments.MemoryReference)
	if err != nil {
		s.sendError(req.Seq, req.Command, errInvalidArgument, err.Error())
		return
	}
	addr := base + uint64(req.Arguments.Offset) + uint64(req.Arguments.InstructionOffset)

	count := req.Arguments.InstructionCount
	instructions := make([]dap.DisassembledInstruction, 0, count)
	for i := 0; i < count; i++ {
		code := make([]byte, 4)
		if err := sess.Target.ReadMemory(addr, code); err != nil {
			instructions = append(instructions, dap.DisassembledInstruction{
				Address:          formatMemoryReference(addr),
				Instruction:      "<unreadable>",
				InstructionBytes: "",
			})
			addr += 2
			continue
		}
		text, length := s.Decoder.Decode(addr, code)
		if length <= 0 {
			length = 2
		}
		instructions = append(instructions, dap.DisassembledInstruction{
			Address:          formatMemoryReference(addr),
			Instruction:      text,
			InstructionBytes: hexBytes(code[:length]),
		})
		addr += uint64(length)
	}

	resp := &dap.DisassembleResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	resp.Body.Instructions = instructions
	s.send(resp)
}

func hexBytes(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatUint(uint64(c), 16))
	}
	return sb.String()
}

func (s *Server) sendUnsupported(requestSeq int, command string) {
	s.sendError(requestSeq, command, errUnsupported, command+" is not supported")
}
