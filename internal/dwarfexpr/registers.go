package dwarfexpr

import "github.com/probe-rs/probe-rs-sub000/internal/core"

// DwarfRegisters adapts a core.DebugRegisters snapshot to the Requirements
// callbacks Evaluate needs, named after delve's pkg/dwarf/op.DwarfRegisters
// (referenced but not present in the retrieved corpus; reconstructed here
// from its call sites).
type DwarfRegisters struct {
	Regs *core.DebugRegisters
}

func (d DwarfRegisters) Register(dwarfNum int) (uint64, error) {
	v, ok := d.Regs.ByDwarfNum(dwarfNum)
	if !ok {
		return 0, errUnknownRegister(dwarfNum)
	}
	return v.Uint64(), nil
}

type unknownRegisterError int

func (e unknownRegisterError) Error() string { return "unknown DWARF register" }

func errUnknownRegister(n int) error { return unknownRegisterError(n) }
