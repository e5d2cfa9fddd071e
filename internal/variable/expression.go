package variable

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/probe-rs/probe-rs-sub000/internal/core"
	"github.com/probe-rs/probe-rs-sub000/internal/dwarfexpr"
)

// FrameInfo supplies the per-frame context evaluate_expression needs
// (spec.md §4.3.6): frame base, CFA, and the register snapshot to read
// RequiresRegister results from.
type FrameInfo struct {
	HasFrameBase bool
	FrameBase    int64
	CFA          uint64
	Registers    *core.DebugRegisters
	AddressSize  int
}

// WarnAndContinueError is the non-fatal diagnostic spec.md §4.3.6 and §7
// describe for unsupported expression steps: the affected variable is
// marked with an explanatory value, siblings are unaffected.
type WarnAndContinueError struct {
	Message string
}

func (w *WarnAndContinueError) Error() string { return w.Message }

// EvaluateExpression drives the DWARF expression interpreter to
// completion and interprets its result pieces per spec.md §4.3.6.
func EvaluateExpression(expr []byte, mem core.Memory, frameInfo FrameInfo) (VariableLocation, error) {
	req := dwarfexpr.Requirements{
		ReadMemory: func(addr uint64, size int) (uint64, error) {
			switch size {
			case 1:
				v, err := mem.ReadWord8(addr)
				return uint64(v), err
			case 2:
				v, err := mem.ReadWord16(addr)
				return uint64(v), err
			case 4:
				v, err := mem.ReadWord32(addr)
				return uint64(v), err
			default:
				return 0, &WarnAndContinueError{Message: "unsupported memory read size in location expression"}
			}
		},
		FrameBase: func() (int64, error) {
			if !frameInfo.HasFrameBase {
				return 0, errors.New("no frame base available")
			}
			return frameInfo.FrameBase, nil
		},
		Register: func(dwarfNum int) (uint64, error) {
			if frameInfo.Registers == nil {
				return 0, errors.New("no registers available")
			}
			v, ok := frameInfo.Registers.ByDwarfNum(dwarfNum)
			if !ok {
				return 0, errors.Errorf("register %d unavailable", dwarfNum)
			}
			return v.Uint64(), nil
		},
		RelocatedAddress: func(addr uint64) uint64 { return addr },
		CallFrameCFA: func() (uint64, error) {
			return frameInfo.CFA, nil
		},
	}

	addressSize := frameInfo.AddressSize
	if addressSize == 0 {
		addressSize = 4
	}

	pieces, err := dwarfexpr.Evaluate(expr, req, addressSize)
	if err != nil {
		var wac *WarnAndContinueError
		if errors.As(err, &wac) {
			return VariableLocation{}, wac
		}
		return VariableLocation{}, &WarnAndContinueError{Message: err.Error()}
	}

	loc, err := interpretPieces(pieces, addressSize)
	if err == nil && loc.Kind == LocRegisterValue {
		if frameInfo.Registers == nil {
			return ErrorLocation("no register values available"), nil
		}
		v, ok := frameInfo.Registers.ByDwarfNum(int(loc.Register))
		if !ok {
			return ErrorLocation("register " + strconv.FormatUint(loc.Register, 10) + " unavailable"), nil
		}
		loc.Register = v.Uint64()
	}
	return loc, err
}

func interpretPieces(pieces []dwarfexpr.Piece, addressSize int) (VariableLocation, error) {
	if len(pieces) == 0 {
		return VariableLocation{Kind: LocUnavailable}, nil
	}
	if len(pieces) > 1 {
		return ErrorLocation("multiple location pieces not supported"), nil
	}

	p := pieces[0]
	switch p.Kind {
	case dwarfexpr.PieceEmpty:
		return VariableLocation{Kind: LocUnavailable}, nil
	case dwarfexpr.PieceAddress:
		if p.Address == 0 {
			return ErrorLocation("optimized out of debug info"), nil
		}
		if addressSize == 4 && p.Address >= (1<<32) {
			return ErrorLocation("address exceeds 32-bit target address space"), nil
		}
		return AddressLocation(p.Address), nil
	case dwarfexpr.PieceValue:
		return VariableLocation{Kind: LocValue}, nil
	case dwarfexpr.PieceRegister:
		return VariableLocation{Kind: LocRegisterValue, Register: uint64(p.RegisterNum)}, nil
	default:
		return ErrorLocation("unimplemented location kind"), nil
	}
}

// ValueFromPiece renders a PieceValue's immediate as decimal text (spec.md
// §4.3.6: "Value ⇒ typed immediate rendered as decimal text").
func ValueFromPiece(v uint64) VariableValue {
	return ValidValue(strconv.FormatUint(v, 10))
}
