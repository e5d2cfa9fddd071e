package dap

import (
	"strconv"

	"github.com/google/go-dap"
	"github.com/pkg/errors"

	"github.com/probe-rs/probe-rs-sub000/internal/session"
	"github.com/probe-rs/probe-rs-sub000/internal/variable"
)

// onEvaluateRequest implements spec.md §4.1's evaluate contract.
func (s *Server) onEvaluateRequest(req *dap.EvaluateRequest) {
	sess, ok := s.requireSession(req.Seq, req.Command)
	if !ok {
		return
	}

	switch req.Arguments.Context {
	case "clipboard":
		resp := &dap.EvaluateResponse{}
		resp.Response = newResponse(req.Seq, req.Command)
		resp.Body.Result = req.Arguments.Expression
		s.send(resp)
		return
	case "repl":
		s.handleRepl(req)
		return
	}

	if !sess.Status().IsHalted() {
		s.sendError(req.Seq, req.Command, errCoreNotHalted, "core is not halted")
		return
	}

	result, err := s.evaluateExpression(sess, req.Arguments.Expression, req.Arguments.FrameId)
	if err != nil {
		s.sendError(req.Seq, req.Command, errInvalidArgument, err.Error())
		return
	}

	resp := &dap.EvaluateResponse{}
	resp.Response = newResponse(req.Seq, req.Command)
	resp.Body.Result = result.Result
	resp.Body.Type = result.Type
	resp.Body.MemoryReference = result.MemoryReference
	resp.Body.VariablesReference = result.VariablesReference
	resp.Body.IndexedVariables = result.IndexedVariables
	s.send(resp)
}

// evaluateResult carries an evaluate handler's outcome independently of
// go-dap's anonymous EvaluateResponse.Body shape.
type evaluateResult struct {
	Result             string
	Type               string
	MemoryReference    string
	VariablesReference int
	IndexedVariables   int
}

func (s *Server) evaluateExpression(sess *session.Session, expr string, frameID int) (evaluateResult, error) {
	frame, haveFrame := s.frameByID(sess, frameID)

	if haveFrame && frame.FrameInfo.Registers != nil {
		a := frame.FrameInfo.Registers.Architecture()
		for _, d := range a.Registers {
			if d.Name == expr {
				v, _ := frame.FrameInfo.Registers.ByDwarfNum(d.DwarfNum)
				return evaluateResult{
					Result: "0x" + strconv.FormatUint(v.Uint64(), 16),
					Type:   "register",
				}, nil
			}
		}
	}

	if key, err := strconv.ParseUint(expr, 10, 64); err == nil {
		if v, err := sess.Resolver.Cache.Get(variable.ObjectRef(key)); err == nil {
			return evaluateResultFor(sess, v), nil
		}
	}

	if haveFrame && frame.Locals != nil {
		if v := findChildNamed(sess, frame.Locals.Key, expr); v != nil {
			return evaluateResultFor(sess, v), nil
		}
	}
	if s.staticScope != nil {
		if v := findChildNamed(sess, s.staticScope.Key, expr); v != nil {
			return evaluateResultFor(sess, v), nil
		}
	}
	if s.svd != nil {
		for _, r := range s.svd.Registers() {
			if r.Name == expr {
				return evaluateResult{
					Result:          formatMemoryReference(r.Address),
					Type:            "peripheral_register",
					MemoryReference: formatMemoryReference(r.Address),
				}, nil
			}
		}
	}

	return evaluateResult{}, errors.New("unknown identifier: " + expr)
}

func findChildNamed(sess *session.Session, root variable.ObjectRef, name string) *variable.Variable {
	parent, err := sess.Resolver.Cache.Get(root)
	if err != nil {
		return nil
	}
	if !parent.HasChildren() {
		if err := sess.Resolver.ExpandDeferred(parent, 0, variable.FrameInfo{}); err != nil {
			return nil
		}
	}
	children, err := sess.Resolver.Cache.GetChildren(root)
	if err != nil {
		return nil
	}
	for _, c := range children {
		if c.Name.String() == name {
			return c
		}
	}
	return nil
}

func evaluateResultFor(sess *session.Session, v *variable.Variable) evaluateResult {
	value := sess.Resolver.RenderValue(v)
	body := evaluateResult{
		Result: value.String(),
		Type:   v.Type.String(),
	}
	if v.Location.Kind == variable.LocAddress {
		body.MemoryReference = formatMemoryReference(v.Location.Address)
	}
	switch v.Type.Kind {
	case variable.TypeStruct, variable.TypeUnion:
		body.VariablesReference = cacheRefOf(uint64(v.Key))
	case variable.TypeArray:
		body.VariablesReference = cacheRefOf(uint64(v.Key))
		body.IndexedVariables = int(v.Type.Count)
	}
	return body
}
