// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch contains architecture-specific definitions for the embedded
// targets the debugger supports: register layouts, DWARF register numbering
// anchors, and the unwind peculiarities of each instruction set.
package arch

import "encoding/binary"

// InstructionSet names one of the instruction sets a core may be halted in.
// A single physical chip can expose more than one across its lifetime (e.g.
// Armv8-M cores switch between A32 and Thumb2), so it travels with the
// unwinder's input contract rather than being fixed per Architecture.
type InstructionSet int

const (
	Thumb2 InstructionSet = iota
	A32
	A64
	RV32
	RV32C
	Xtensa
)

func (s InstructionSet) String() string {
	switch s {
	case Thumb2:
		return "Thumb2"
	case A32:
		return "A32"
	case A64:
		return "A64"
	case RV32:
		return "RV32"
	case RV32C:
		return "RV32C"
	case Xtensa:
		return "Xtensa"
	default:
		return "unknown"
	}
}

// RegisterRole tags the architectural purpose of a register column so the
// unwinder and the DAP controller can find "the" program counter or stack
// pointer without hard-coding a DWARF number per architecture.
type RegisterRole int

const (
	RoleOther RegisterRole = iota
	RolePC
	RoleSP
	RoleFP
	RoleRA // link register / return address
)

func (r RegisterRole) String() string {
	switch r {
	case RolePC:
		return "PC"
	case RoleSP:
		return "SP"
	case RoleFP:
		return "FP"
	case RoleRA:
		return "RA"
	default:
		return "other"
	}
}

// UnwindRuleKind is the architecture-wide default applied to a register
// column when CFI leaves it Undefined (spec.md §4.2.2, step 2).
type UnwindRuleKind int

const (
	// Preserve keeps the callee's value unchanged.
	Preserve UnwindRuleKind = iota
	// Clear resets the register to zero in the caller's frame.
	Clear
	// SpecialRuleClear is Clear but recorded distinctly so callers can log
	// that an architecture-specific rule (not a blanket default) fired.
	SpecialRuleClear
)

// RegisterDescriptor names one register column of a core: its DWARF
// register number (if the target has a mapped DWARF encoding for it), its
// architectural role, and its default disposition when CFI leaves the
// column Undefined.
type RegisterDescriptor struct {
	Name        string
	DwarfNum    int
	Role        RegisterRole
	BitWidth    int
	DefaultRule UnwindRuleKind
}

// Architecture collects the fixed facts the unwinder and memory layer need
// about one instruction set family: pointer width, byte order, and the
// register file shape.
type Architecture struct {
	Name        string
	AddressSize int // bytes
	ByteOrder   binary.ByteOrder
	Registers   []RegisterDescriptor
}

// Register looks up a descriptor by DWARF number. ok is false if the
// architecture has no register mapped to that number.
func (a *Architecture) Register(dwarfNum int) (RegisterDescriptor, bool) {
	for _, r := range a.Registers {
		if r.DwarfNum == dwarfNum {
			return r, true
		}
	}
	return RegisterDescriptor{}, false
}

// ByRole returns the first register descriptor carrying the given role.
func (a *Architecture) ByRole(role RegisterRole) (RegisterDescriptor, bool) {
	for _, r := range a.Registers {
		if r.Role == role {
			return r, true
		}
	}
	return RegisterDescriptor{}, false
}

// ArmV7M describes the Cortex-M register file (Armv6-M/7-M/8-M, Thumb2
// encoding).
var ArmV7M = Architecture{
	Name:        "armv7m",
	AddressSize: 4,
	ByteOrder:   binary.LittleEndian,
	Registers: []RegisterDescriptor{
		{Name: "R0", DwarfNum: 0, Role: RoleOther, BitWidth: 32, DefaultRule: Clear},
		{Name: "R1", DwarfNum: 1, Role: RoleOther, BitWidth: 32, DefaultRule: Clear},
		{Name: "R2", DwarfNum: 2, Role: RoleOther, BitWidth: 32, DefaultRule: Clear},
		{Name: "R3", DwarfNum: 3, Role: RoleOther, BitWidth: 32, DefaultRule: Clear},
		{Name: "R4", DwarfNum: 4, Role: RoleOther, BitWidth: 32, DefaultRule: Preserve},
		{Name: "R5", DwarfNum: 5, Role: RoleOther, BitWidth: 32, DefaultRule: Preserve},
		{Name: "R6", DwarfNum: 6, Role: RoleOther, BitWidth: 32, DefaultRule: Preserve},
		{Name: "R7", DwarfNum: 7, Role: RoleFP, BitWidth: 32, DefaultRule: Preserve},
		{Name: "R8", DwarfNum: 8, Role: RoleOther, BitWidth: 32, DefaultRule: Preserve},
		{Name: "R9", DwarfNum: 9, Role: RoleOther, BitWidth: 32, DefaultRule: Preserve},
		{Name: "R10", DwarfNum: 10, Role: RoleOther, BitWidth: 32, DefaultRule: Preserve},
		{Name: "R11", DwarfNum: 11, Role: RoleOther, BitWidth: 32, DefaultRule: Preserve},
		{Name: "R12", DwarfNum: 12, Role: RoleOther, BitWidth: 32, DefaultRule: Clear},
		{Name: "SP", DwarfNum: 13, Role: RoleSP, BitWidth: 32, DefaultRule: SpecialRuleClear},
		{Name: "LR", DwarfNum: 14, Role: RoleRA, BitWidth: 32, DefaultRule: SpecialRuleClear},
		{Name: "PC", DwarfNum: 15, Role: RolePC, BitWidth: 32, DefaultRule: Clear},
	},
}

// ArmA32 describes the Armv7-A/Armv8-A AArch32 execution state register file.
var ArmA32 = Architecture{
	Name:        "a32",
	AddressSize: 4,
	ByteOrder:   binary.LittleEndian,
	Registers:   append(append([]RegisterDescriptor{}, ArmV7M.Registers[:13]...), ArmV7M.Registers[13:]...),
}

// ArmA64 describes the Armv8-A AArch64 execution state (X0-X30, SP, PC).
var ArmA64 = Architecture{
	Name:        "a64",
	AddressSize: 8,
	ByteOrder:   binary.LittleEndian,
	Registers:   a64Registers(),
}

func a64Registers() []RegisterDescriptor {
	regs := make([]RegisterDescriptor, 0, 34)
	for i := 0; i < 29; i++ {
		regs = append(regs, RegisterDescriptor{Name: "X" + itoa(i), DwarfNum: i, Role: RoleOther, BitWidth: 64, DefaultRule: Preserve})
	}
	regs = append(regs,
		RegisterDescriptor{Name: "X29", DwarfNum: 29, Role: RoleFP, BitWidth: 64, DefaultRule: Preserve},
		RegisterDescriptor{Name: "X30", DwarfNum: 30, Role: RoleRA, BitWidth: 64, DefaultRule: SpecialRuleClear},
		RegisterDescriptor{Name: "SP", DwarfNum: 31, Role: RoleSP, BitWidth: 64, DefaultRule: SpecialRuleClear},
		RegisterDescriptor{Name: "PC", DwarfNum: 32, Role: RolePC, BitWidth: 64, DefaultRule: Clear},
	)
	return regs
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [4]byte
	n := len(buf)
	for i > 0 {
		n--
		buf[n] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[n:])
}

// RiscV32 describes the RV32I/RV32C integer register file. x1 (ra) is the
// return-address register on both the compressed and non-compressed
// encodings; the decoding offset applied during PC recovery differs by
// encoding and is handled in the unwind package, not here.
var RiscV32 = Architecture{
	Name:        "rv32",
	AddressSize: 4,
	ByteOrder:   binary.LittleEndian,
	Registers: []RegisterDescriptor{
		{Name: "x0", DwarfNum: 0, Role: RoleOther, BitWidth: 32, DefaultRule: Clear},
		{Name: "ra", DwarfNum: 1, Role: RoleRA, BitWidth: 32, DefaultRule: SpecialRuleClear},
		{Name: "sp", DwarfNum: 2, Role: RoleSP, BitWidth: 32, DefaultRule: SpecialRuleClear},
		{Name: "fp", DwarfNum: 8, Role: RoleFP, BitWidth: 32, DefaultRule: Preserve},
		{Name: "pc", DwarfNum: 32, Role: RolePC, BitWidth: 32, DefaultRule: Clear},
	},
}

// XtensaArch describes the subset of the Xtensa windowed register file the
// unwinder needs: a0 (return address alias) and pc. Register-window
// rotation is handled by the architecture's ExceptionInterface, not here.
var XtensaArch = Architecture{
	Name:        "xtensa",
	AddressSize: 4,
	ByteOrder:   binary.LittleEndian,
	Registers: []RegisterDescriptor{
		{Name: "a0", DwarfNum: 0, Role: RoleRA, BitWidth: 32, DefaultRule: SpecialRuleClear},
		{Name: "a1", DwarfNum: 1, Role: RoleSP, BitWidth: 32, DefaultRule: SpecialRuleClear},
		{Name: "pc", DwarfNum: 32, Role: RolePC, BitWidth: 32, DefaultRule: Clear},
	},
}

// ForInstructionSet returns the Architecture backing a given instruction set.
func ForInstructionSet(set InstructionSet) *Architecture {
	switch set {
	case Thumb2:
		return &ArmV7M
	case A32:
		return &ArmA32
	case A64:
		return &ArmA64
	case RV32, RV32C:
		return &RiscV32
	case Xtensa:
		return &XtensaArch
	default:
		return &ArmV7M
	}
}
