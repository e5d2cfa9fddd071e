// Package frame parses DWARF Call Frame Information (CIEs and FDEs) and
// answers, for a given PC, the per-register unwind rule the stack unwinder
// needs (spec.md §4.2.2: "Retrieve FDE via CFI ... fde_for_address, then
// unwind_info_for_address"). Modelled on delve's pkg/dwarf/frame package,
// named in the other_examples stack.go grounding file.
package frame

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// RuleKind is one of the four shapes SPEC_FULL.md §4.2 names.
type RuleKind int

const (
	RuleUndefined RuleKind = iota
	RuleSameValue
	RuleOffset
	RuleRegister
)

// Rule is a single register's recovery recipe for one PC range.
type Rule struct {
	Kind     RuleKind
	Offset   int64 // for RuleOffset: CFA + Offset
	Register int   // for RuleRegister: copy from this DWARF register number
}

// CFARule describes how to compute the canonical frame address: CFA =
// register value + offset (spec.md §4.2.2 "RegisterAndOffset{reg, off}").
type CFARule struct {
	Register int
	Offset   int64
}

// FDE is one frame description entry: the unwind rules for one PC range.
type FDE struct {
	Begin, End uint64
	CIE        *CIE
	// rows holds the accumulated rule-table rows, each keyed by the PC
	// at which that row's rules start applying (rows are kept sorted by
	// PC ascending).
	rows []row
}

type row struct {
	pc   uint64
	cfa  CFARule
	regs map[int]Rule
}

// CIE is a common information entry: the initial rule-table state shared
// by every FDE that references it, plus the address size override spec.md
// §4.3.1 requires ("override the frame-section's address size from each
// unit's encoding — workaround for DWARF 4 CIEs that miss it").
type CIE struct {
	Version           uint8
	AddressSize       uint8 // the unitAddressSize passed to Parse
	CodeAlignment     uint64
	DataAlignment     int64
	ReturnAddressReg  int
	InitialRows       row
	InitialInstrBytes []byte
}

// Table indexes all FDEs parsed from a .debug_frame / .eh_frame section.
type Table struct {
	FDEs []*FDE
}

var ErrNoFDE = errors.New("no FDE covers address")

// FDEForAddress implements spec.md's fde_for_address lookup.
func (t *Table) FDEForAddress(pc uint64) (*FDE, error) {
	for _, fde := range t.FDEs {
		if pc >= fde.Begin && pc < fde.End {
			return fde, nil
		}
	}
	return nil, errors.Wrapf(ErrNoFDE, "pc=0x%x", pc)
}

// UnwindInfoForAddress implements spec.md's unwind_info_for_address: the
// CFA rule and per-register rules in effect at pc, found by scanning the
// FDE's row table for the last row whose pc is <= the queried pc.
func (f *FDE) UnwindInfoForAddress(pc uint64) (CFARule, map[int]Rule) {
	if len(f.rows) == 0 {
		return f.CIE.InitialRows.cfa, f.CIE.InitialRows.regs
	}
	chosen := f.rows[0]
	for _, r := range f.rows {
		if r.pc > pc {
			break
		}
		chosen = r
	}
	return chosen.cfa, chosen.regs
}

// Call Frame Instruction opcodes (high 2 bits are packed opcodes for
// advance_loc/offset/restore; the rest are extended opcodes in the low 6
// bits of the first byte).
const (
	cfaAdvanceLoc       = 0x1 << 6
	cfaOffset           = 0x2 << 6
	cfaRestore          = 0x3 << 6
	cfaHighMask         = 0xc0
	cfaLowMask          = 0x3f
	cfaNop              = 0x00
	cfaSetLoc           = 0x01
	cfaAdvanceLoc1      = 0x02
	cfaAdvanceLoc2      = 0x03
	cfaAdvanceLoc4      = 0x04
	cfaOffsetExtended   = 0x05
	cfaRestoreExtended  = 0x06
	cfaUndefined        = 0x07
	cfaSameValue        = 0x08
	cfaRegister         = 0x09
	cfaRememberState    = 0x0a
	cfaRestoreState     = 0x0b
	cfaDefCfa           = 0x0c
	cfaDefCfaRegister   = 0x0d
	cfaDefCfaOffset     = 0x0e
	cfaDefCfaExpression = 0x0f
	cfaExpression       = 0x10
	cfaOffsetExtSf      = 0x11
	cfaDefCfaSf         = 0x12
	cfaDefCfaOffsetSf   = 0x13
	cfaValOffset        = 0x14
	cfaValOffsetSf      = 0x15
	cfaValExpression    = 0x16
)

// ParseInstructions runs a CIE's (or FDE's) instruction stream and returns
// the resulting row table, starting from an optional initial row (the
// CIE's own InitialRows for an FDE's instructions, or the zero row for a
// CIE's own instructions). codeAlign/dataAlign/startPC drive advance_loc
// and offset scaling.
func ParseInstructions(instrs []byte, start row, codeAlign uint64, dataAlign int64, startPC uint64) ([]row, error) {
	cur := row{pc: startPC, cfa: start.cfa, regs: cloneRegs(start.regs)}
	rows := []row{cur}
	var stack []row

	r := &byteReader{buf: instrs}
	for !r.done() {
		op := r.u8()
		high := op & cfaHighMask
		low := op & cfaLowMask

		switch high {
		case cfaAdvanceLoc:
			cur.pc += uint64(low) * codeAlign
			rows = append(rows, cloneRow(cur))
			continue
		case cfaOffset:
			reg := int(low)
			off := int64(r.uleb()) * dataAlign
			cur.regs[reg] = Rule{Kind: RuleOffset, Offset: off}
			rows = append(rows, cloneRow(cur))
			continue
		case cfaRestore:
			reg := int(low)
			if v, ok := start.regs[reg]; ok {
				cur.regs[reg] = v
			} else {
				delete(cur.regs, reg)
			}
			rows = append(rows, cloneRow(cur))
			continue
		}

		switch low {
		case cfaNop:
		case cfaSetLoc:
			cur.pc = r.u64()
			rows = append(rows, cloneRow(cur))
		case cfaAdvanceLoc1:
			cur.pc += uint64(r.u8()) * codeAlign
			rows = append(rows, cloneRow(cur))
		case cfaAdvanceLoc2:
			cur.pc += uint64(r.u16()) * codeAlign
			rows = append(rows, cloneRow(cur))
		case cfaAdvanceLoc4:
			cur.pc += uint64(r.u32()) * codeAlign
			rows = append(rows, cloneRow(cur))
		case cfaOffsetExtended:
			reg := int(r.uleb())
			off := int64(r.uleb()) * dataAlign
			cur.regs[reg] = Rule{Kind: RuleOffset, Offset: off}
			rows = append(rows, cloneRow(cur))
		case cfaOffsetExtSf:
			reg := int(r.uleb())
			off := r.sleb() * dataAlign
			cur.regs[reg] = Rule{Kind: RuleOffset, Offset: off}
			rows = append(rows, cloneRow(cur))
		case cfaRestoreExtended:
			reg := int(r.uleb())
			if v, ok := start.regs[reg]; ok {
				cur.regs[reg] = v
			} else {
				delete(cur.regs, reg)
			}
			rows = append(rows, cloneRow(cur))
		case cfaUndefined:
			reg := int(r.uleb())
			cur.regs[reg] = Rule{Kind: RuleUndefined}
			rows = append(rows, cloneRow(cur))
		case cfaSameValue:
			reg := int(r.uleb())
			cur.regs[reg] = Rule{Kind: RuleSameValue}
			rows = append(rows, cloneRow(cur))
		case cfaRegister:
			reg := int(r.uleb())
			src := int(r.uleb())
			cur.regs[reg] = Rule{Kind: RuleRegister, Register: src}
			rows = append(rows, cloneRow(cur))
		case cfaRememberState:
			stack = append(stack, cloneRow(cur))
		case cfaRestoreState:
			if len(stack) > 0 {
				pc := cur.pc
				cur = stack[len(stack)-1]
				cur.pc = pc
				stack = stack[:len(stack)-1]
				rows = append(rows, cloneRow(cur))
			}
		case cfaDefCfa:
			cur.cfa.Register = int(r.uleb())
			cur.cfa.Offset = int64(r.uleb())
			rows = append(rows, cloneRow(cur))
		case cfaDefCfaSf:
			cur.cfa.Register = int(r.uleb())
			cur.cfa.Offset = r.sleb() * dataAlign
			rows = append(rows, cloneRow(cur))
		case cfaDefCfaRegister:
			cur.cfa.Register = int(r.uleb())
			rows = append(rows, cloneRow(cur))
		case cfaDefCfaOffset:
			cur.cfa.Offset = int64(r.uleb())
			rows = append(rows, cloneRow(cur))
		case cfaDefCfaOffsetSf:
			cur.cfa.Offset = r.sleb() * dataAlign
			rows = append(rows, cloneRow(cur))
		case cfaValOffset:
			reg := int(r.uleb())
			_ = int64(r.uleb()) * dataAlign
			cur.regs[reg] = Rule{Kind: RuleUndefined}
			rows = append(rows, cloneRow(cur))
		case cfaValOffsetSf:
			reg := int(r.uleb())
			_ = r.sleb() * dataAlign
			cur.regs[reg] = Rule{Kind: RuleUndefined}
			rows = append(rows, cloneRow(cur))
		case cfaDefCfaExpression, cfaExpression, cfaValExpression:
			return nil, errors.New("unimplemented CFI rule: expression-based location")
		default:
			return nil, errors.Errorf("unimplemented CFI opcode 0x%x", op)
		}
	}
	return rows, nil
}

func cloneRegs(m map[int]Rule) map[int]Rule {
	cp := make(map[int]Rule, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func cloneRow(r row) row {
	return row{pc: r.pc, cfa: r.cfa, regs: cloneRegs(r.regs)}
}

type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) done() bool { return r.pos >= len(r.buf) }

func (r *byteReader) u8() byte {
	if r.pos >= len(r.buf) {
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *byteReader) u16() uint16 {
	if r.pos+2 > len(r.buf) {
		r.pos = len(r.buf)
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v
}

func (r *byteReader) u32() uint32 {
	if r.pos+4 > len(r.buf) {
		r.pos = len(r.buf)
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *byteReader) u64() uint64 {
	if r.pos+8 > len(r.buf) {
		r.pos = len(r.buf)
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}

func (r *byteReader) uleb() uint64 {
	var result uint64
	var shift uint
	for {
		b := r.u8()
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result
}

func (r *byteReader) sleb() int64 {
	var result int64
	var shift uint
	var b byte
	for {
		b = r.u8()
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result
}
