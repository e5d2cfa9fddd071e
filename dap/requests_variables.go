package dap

import (
	"strconv"

	"github.com/google/go-dap"
	"github.com/pkg/errors"

	"github.com/probe-rs/probe-rs-sub000/internal/session"
	"github.com/probe-rs/probe-rs-sub000/internal/variable"
)

var errUnsupportedWidth = errors.New("unsupported base-type width for setVariable")

func (s *Server) frameByID(sess *session.Session, frameID int) (*session.StackFrame, bool) {
	for i, f := range sess.Frames() {
		if f.Id == frameID {
			return &sess.Frames()[i], true
		}
	}
	return nil, false
}

// onScopesRequest implements spec.md §4.1's scopes contract: up to four
// scopes in order Peripherals, Static, Registers, Variables; the first
// three marked expensive.
func (s *Server) onScopesRequest(req *dap.ScopesRequest) {
	sess, ok := s.requireHalted(req.Seq, req.Command)
	resp := &dap.ScopesResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	if !ok {
		s.send(resp)
		return
	}

	frame, found := s.frameByID(sess, req.Arguments.FrameId)
	if !found {
		s.sendError(req.Seq, req.Command, errInvalidArgument, "unknown frameId")
		return
	}

	var scopes []dap.Scope
	if s.svd != nil {
		regs := s.svd.Registers()
		scopes = append(scopes, dap.Scope{
			Name:               "Peripherals",
			VariablesReference: refPeripheralsBase,
			IndexedVariables:   len(regs),
			Expensive:          true,
		})
	}

	if s.staticScope == nil {
		s.staticScope = sess.Resolver.BuildStaticScope()
	}
	scopes = append(scopes, dap.Scope{
		Name:               "Static",
		VariablesReference: cacheRefOf(uint64(s.staticScope.Key)),
		Expensive:          true,
	})

	scopes = append(scopes, dap.Scope{
		Name:               "Registers",
		VariablesReference: frame.Id,
		Expensive:          true,
	})

	if frame.Locals != nil {
		scopes = append(scopes, dap.Scope{
			Name:               "Variables",
			VariablesReference: cacheRefOf(uint64(frame.Locals.Key)),
		})
	}

	resp.Body.Scopes = scopes
	s.send(resp)
}

func dapVariableFor(name string, child *variable.Variable, value variable.VariableValue) dap.Variable {
	v := dap.Variable{Name: name, Value: value.String(), Type: child.Type.String()}
	if child.Location.Kind == variable.LocAddress {
		v.MemoryReference = formatMemoryReference(child.Location.Address)
	}
	switch child.Type.Kind {
	case variable.TypeStruct, variable.TypeUnion:
		v.VariablesReference = cacheRefOf(uint64(child.Key))
	case variable.TypeArray:
		v.VariablesReference = cacheRefOf(uint64(child.Key))
		v.IndexedVariables = int(child.Type.Count)
	}
	return v
}

// onVariablesRequest implements spec.md §4.1's variables(ref, filter?)
// contract across the three reference ranges a scopes() response can
// produce.
func (s *Server) onVariablesRequest(req *dap.VariablesRequest) {
	sess, ok := s.requireHalted(req.Seq, req.Command)
	resp := &dap.VariablesResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	if !ok {
		s.send(resp)
		return
	}

	ref := req.Arguments.VariablesReference

	switch {
	case isPeripheralsRef(ref):
		resp.Body.Variables = s.peripheralVariables(ref)
	case isRegistersRef(ref):
		frame, found := s.frameByID(sess, ref)
		if !found {
			s.sendError(req.Seq, req.Command, errInvalidArgument, "unknown frameId for registers scope")
			return
		}
		resp.Body.Variables = registerVariables(frame)
	default:
		key, okKey := keyFromCacheRef(ref)
		if !okKey {
			s.sendError(req.Seq, req.Command, errInvalidArgument, "out-of-range variablesReference")
			return
		}
		vars, err := s.cacheVariables(sess, variable.ObjectRef(key), req.Arguments.Filter)
		if err != nil {
			s.sendError(req.Seq, req.Command, errInvalidArgument, err.Error())
			return
		}
		resp.Body.Variables = vars
	}
	s.send(resp)
}

func (s *Server) cacheVariables(sess *session.Session, key variable.ObjectRef, filter string) ([]dap.Variable, error) {
	parent, err := sess.Resolver.Cache.Get(key)
	if err != nil {
		return nil, err
	}
	if !parent.HasChildren() {
		if err := sess.Resolver.ExpandDeferred(parent, 0, variable.FrameInfo{}); err != nil {
			return nil, err
		}
	}
	children, err := sess.Resolver.Cache.GetChildren(key)
	if err != nil {
		return nil, err
	}

	out := make([]dap.Variable, 0, len(children))
	for _, c := range children {
		if filter == "indexed" && c.Name.Kind != variable.NameIndexed {
			continue
		}
		if filter == "named" && c.Name.Kind == variable.NameIndexed {
			continue
		}
		value := sess.Resolver.RenderValue(c)
		out = append(out, dapVariableFor(c.Name.String(), c, value))
	}
	return out, nil
}

func registerVariables(frame *session.StackFrame) []dap.Variable {
	if frame.FrameInfo.Registers == nil {
		return nil
	}
	a := frame.FrameInfo.Registers.Architecture()
	out := make([]dap.Variable, 0, len(a.Registers))
	for _, d := range a.Registers {
		v, ok := frame.FrameInfo.Registers.ByDwarfNum(d.DwarfNum)
		if !ok {
			continue
		}
		out = append(out, dap.Variable{
			Name:  d.Name,
			Value: "0x" + strconv.FormatUint(v.Uint64(), 16),
			Type:  "register",
		})
	}
	return out
}

func (s *Server) peripheralVariables(ref int) []dap.Variable {
	if s.svd == nil {
		return nil
	}
	regs := s.svd.Registers()
	if ref == refPeripheralsBase {
		out := make([]dap.Variable, 0, len(regs))
		for i, r := range regs {
			out = append(out, dap.Variable{
				Name:               r.Name,
				Value:              formatMemoryReference(r.Address),
				Type:               "peripheral_register",
				VariablesReference: peripheralRegisterRef(i),
				MemoryReference:    formatMemoryReference(r.Address),
				NamedVariables:     len(r.Fields),
			})
		}
		return out
	}
	idx := peripheralIndexFromRef(ref)
	if idx < 0 || idx >= len(regs) {
		return nil
	}
	reg := regs[idx]
	out := make([]dap.Variable, 0, len(reg.Fields))
	for _, f := range reg.Fields {
		out = append(out, dap.Variable{
			Name: f.Name,
			Type: "peripheral_field",
			Value: strconv.Itoa(f.BitWidth) + " bits @ " + strconv.Itoa(f.BitOffset),
		})
	}
	return out
}

// onSetVariableRequest implements spec.md §4.1's setVariable contract:
// only base-type locals in the cache can be updated; anything else is
// rejected with a user-facing message.
func (s *Server) onSetVariableRequest(req *dap.SetVariableRequest) {
	sess, ok := s.requireHalted(req.Seq, req.Command)
	if !ok {
		return
	}
	if isRegistersRef(req.Arguments.VariablesReference) || isPeripheralsRef(req.Arguments.VariablesReference) {
		s.sendError(req.Seq, req.Command, errInvalidArgument, "register and peripheral values cannot be set")
		return
	}
	key, okKey := keyFromCacheRef(req.Arguments.VariablesReference)
	if !okKey {
		s.sendError(req.Seq, req.Command, errInvalidArgument, "out-of-range variablesReference")
		return
	}
	children, err := sess.Resolver.Cache.GetChildren(variable.ObjectRef(key))
	if err != nil {
		s.sendError(req.Seq, req.Command, errInvalidArgument, err.Error())
		return
	}
	var target *variable.Variable
	for _, c := range children {
		if c.Name.String() == req.Arguments.Name {
			target = c
			break
		}
	}
	if target == nil {
		s.sendError(req.Seq, req.Command, errInvalidArgument, "unknown variable "+req.Arguments.Name)
		return
	}
	if target.Type.Kind != variable.TypeBase || target.Location.Kind != variable.LocAddress {
		s.sendError(req.Seq, req.Command, errFailed, "only base-type locals can be set")
		return
	}
	raw, err := strconv.ParseUint(req.Arguments.Value, 0, 64)
	if err != nil {
		s.sendError(req.Seq, req.Command, errInvalidArgument, "value must be an integer literal: "+err.Error())
		return
	}
	if err := writeScalar(sess, target, raw); err != nil {
		s.sendError(req.Seq, req.Command, errFailed, err.Error())
		return
	}

	resp := &dap.SetVariableResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	resp.Body.Value = req.Arguments.Value
	resp.Body.Type = target.Type.Name
	s.send(resp)
}

func writeScalar(sess *session.Session, v *variable.Variable, raw uint64) error {
	addr := v.Location.Address
	switch v.Size {
	case 1:
		return sess.Target.WriteWord8(addr, uint8(raw))
	case 2:
		return sess.Target.WriteWord16(addr, uint16(raw))
	case 4:
		return sess.Target.WriteWord32(addr, uint32(raw))
	case 8:
		return sess.Target.WriteWord64(addr, raw)
	default:
		return errUnsupportedWidth
	}
}
