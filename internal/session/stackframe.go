package session

import (
	"github.com/probe-rs/probe-rs-sub000/internal/dwarfdata"
	"github.com/probe-rs/probe-rs-sub000/internal/unwind"
	"github.com/probe-rs/probe-rs-sub000/internal/variable"
)

// StackFrame is the entity spec.md §3 names: "stable id, function name,
// optional SourceLocation, registers snapshot, PC, frame base, CFA,
// is_inlined, optional local-variable cache."
type StackFrame struct {
	Id           int
	FunctionName string
	SourceLoc    *dwarfdata.SourceLocation
	IsInlined    bool

	FrameInfo variable.FrameInfo
	Locals    *variable.Variable // LocalScopeRoot, deferred-expansion

	Raw unwind.Frame
}

// BuildStackFrames implements spec.md §4.2.2 step 1's per-frame allocation
// of a deferred VariableCache rooted at LocalScopeRoot, assigning each
// frame a stable id (innermost first, per spec.md §3's ordering invariant).
func BuildStackFrames(r *variable.Resolver, di *dwarfdata.DebugInfo, raw []unwind.Frame) []StackFrame {
	addrSize := 4
	if len(raw) > 0 && raw[0].Registers != nil {
		addrSize = raw[0].Registers.Architecture().AddressSize
	}

	out := make([]StackFrame, 0, len(raw))
	for i, f := range raw {
		fi := variable.FrameInfo{
			HasFrameBase: f.FrameBase != 0 || f.FunctionEntry != nil,
			FrameBase:    f.FrameBase,
			CFA:          uint64(f.FrameBase),
			Registers:    f.Registers,
			AddressSize:  addrSize,
		}

		sf := StackFrame{
			Id:           i,
			FunctionName: f.FunctionName,
			SourceLoc:    f.SourceLoc,
			IsInlined:    f.IsInlined,
			FrameInfo:    fi,
			Raw:          f,
		}

		if f.FunctionEntry != nil && f.Unit != nil {
			sf.Locals = r.BuildLocalScope(f.FunctionEntry, f.Unit)
		}

		out = append(out, sf)
	}
	return out
}
