package dwarfdata

import (
	"debug/dwarf"
	"fmt"

	"github.com/pkg/errors"
)

// FunctionDIE is one entry in the chain get_function_dies(PC) returns
// (spec.md §4.3.2): the outer (real) DIE first, then inlined children in
// depth order.
type FunctionDIE struct {
	Unit      *Unit
	Entry     *dwarf.Entry
	Name      string
	IsInline  bool
	// CallFile/CallLine/CallColumn are populated on inlined entries: the
	// call site of the next deeper inline (spec.md §4.2.2 step 1).
	CallFile   string
	CallLine   int64
	CallColumn int64
	// EntryPC is the inlinee's entry address, used as the synthetic "PC"
	// for an inlined frame.
	EntryPC uint64
}

var ErrNoFunctionDIE = errors.New("no function DIE covers address")

// GetFunctionDIEs implements spec.md §4.3.2's get_function_dies. It scans
// units for address-range matches and, on a hit, walks the DIE's children
// for DW_TAG_inlined_subroutine nodes, using an abort_depth guard so
// traversal does not cross into unrelated sibling subtrees once an inline
// at a given depth is found.
func (di *DebugInfo) GetFunctionDIEs(pc uint64) ([]FunctionDIE, error) {
	for _, u := range di.Units {
		if !u.Covers(pc) {
			continue
		}
		outer, err := di.findSubprogram(u, pc)
		if err != nil {
			continue
		}
		chain := []FunctionDIE{*outer}
		inlines := di.findInlineChain(u, outer.Entry, pc, -1)
		chain = append(chain, inlines...)
		return chain, nil
	}
	return nil, errors.Wrapf(ErrNoFunctionDIE, "pc=0x%x", pc)
}

func (di *DebugInfo) findSubprogram(u *Unit, pc uint64) (*FunctionDIE, error) {
	r := di.data.Reader()
	r.Seek(u.Off)
	for {
		e, err := r.Next()
		if err != nil {
			return nil, err
		}
		if e == nil {
			break
		}
		if e.Tag != dwarf.TagSubprogram {
			continue
		}
		if di.entryCoversPC(e, pc) {
			name, _ := attrString(e, dwarf.AttrName)
			return &FunctionDIE{Unit: u, Entry: e, Name: name}, nil
		}
	}
	return nil, errors.Errorf("no DW_TAG_subprogram covers pc=0x%x", pc)
}

func (di *DebugInfo) entryCoversPC(e *dwarf.Entry, pc uint64) bool {
	low, lowOK := attrInt64(e, dwarf.AttrLowpc)
	if lowOK {
		var high uint64
		highVal := e.Val(dwarf.AttrHighpc)
		switch h := highVal.(type) {
		case uint64:
			high = h
			if high < uint64(low) {
				high += uint64(low)
			}
		case int64:
			high = uint64(h) + uint64(low)
		}
		if high != 0 {
			return pc >= uint64(low) && pc < high
		}
	}
	if ranges, err := di.data.Ranges(e); err == nil {
		for _, rg := range ranges {
			if pc >= rg[0] && pc < rg[1] {
				return true
			}
		}
	}
	return false
}

// findInlineChain walks children of parent looking for the inlined
// subroutine nesting that covers pc. Once an inline covering pc is found
// at some nesting level, the local abortDepth guard skips deeper entries
// of its later siblings (spec.md §4.3.2); the inline's own children are
// searched by a recursive call. The depth argument is not used.
func (di *DebugInfo) findInlineChain(u *Unit, parent *dwarf.Entry, pc uint64, depth int) []FunctionDIE {
	r := di.data.Reader()
	r.Seek(parent.Offset)
	r.Next() // re-read parent itself to position the cursor at its children

	var result []FunctionDIE
	abortDepth := -1
	level := 0
	for {
		e, err := r.Next()
		if err != nil || e == nil {
			break
		}
		if e.Tag == 0 {
			level--
			if level < 0 {
				break
			}
			continue
		}
		if e.Children {
			level++
		}
		if abortDepth != -1 && level > abortDepth {
			continue
		}
		if e.Tag != dwarf.TagInlinedSubroutine {
			continue
		}
		if !di.entryCoversPC(e, pc) {
			continue
		}
		name, _ := attrString(e, dwarf.AttrName)
		if name == "" {
			name, _ = attrString(e, dwarf.AttrAbstractOrigin)
		}
		entryPC, _ := attrInt64(e, dwarf.AttrLowpc)
		fd := FunctionDIE{Unit: u, Entry: e, Name: name, IsInline: true, EntryPC: uint64(entryPC)}
		if callFile, ok := attrInt64(e, dwarf.AttrCallFile); ok && u.LineReader != nil {
			files := u.LineReader.Files()
			if callFile >= 0 && int(callFile) < len(files) && files[callFile] != nil {
				fd.CallFile = composePath(files[callFile].Name)
			}
		}
		if callLine, ok := attrInt64(e, dwarf.AttrCallLine); ok {
			fd.CallLine = callLine
		}
		if callCol, ok := attrInt64(e, dwarf.AttrCallColumn); ok {
			fd.CallColumn = callCol
		}
		result = append(result, fd)
		abortDepth = level
		nested := di.findInlineChain(u, e, pc, -1)
		result = append(result, nested...)
	}
	return result
}

// SynthesizedName formats the placeholder name used when no DIE or symbol
// covers a PC (spec.md §4.2.2 step 1): "<unknown function @ PC>" with
// width matching the target address size.
func SynthesizedName(pc uint64, addressSize int) string {
	if addressSize == 4 {
		return fmt.Sprintf("<unknown function @ 0x%08x>", pc)
	}
	return fmt.Sprintf("<unknown function @ 0x%016x>", pc)
}
