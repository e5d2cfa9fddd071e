package dwarfdata

import (
	"debug/dwarf"

	"github.com/pkg/errors"
)

// VerifiedBreakpoint is the entity named in spec.md §3: an address paired
// with the resolved source location that justified picking it.
type VerifiedBreakpoint struct {
	Address  uint64
	Location SourceLocation
}

var ErrNoStatementFound = errors.New("no executable statement found at or after requested line")

// GetBreakpointLocation implements spec.md §4.3.10's
// get_breakpoint_location(path, line, col?): picks the earliest executable
// statement at or after `line` (and matching `col` if given) whose address
// lies past the function prologue, so breakpoint hits occur after
// stack-frame establishment.
func (di *DebugInfo) GetBreakpointLocation(path string, line int64, col *int64) (VerifiedBreakpoint, error) {
	var best *dwarf.LineEntry
	var bestUnit *Unit

	for _, u := range di.Units {
		if u.LineReader == nil {
			continue
		}
		lr := u.LineReader
		lr.Reset()
		var entry dwarf.LineEntry
		for {
			if err := lr.Next(&entry); err != nil {
				break
			}
			if entry.EndSequence || !entry.IsStmt {
				continue
			}
			if entry.File == nil || composePath(entry.File.Name) != path {
				continue
			}
			if int64(entry.Line) < line {
				continue
			}
			if col != nil && int64(entry.Column) != *col {
				continue
			}
			candidate := entry
			if best == nil || candidate.Line < best.Line ||
				(candidate.Line == best.Line && candidate.Address < best.Address) {
				cp := candidate
				best = &cp
				bestUnit = u
			}
		}
	}

	if best == nil {
		return VerifiedBreakpoint{}, errors.Wrapf(ErrNoStatementFound, "%s:%d", path, line)
	}

	addr := pastPrologue(di, bestUnit, best.Address)

	loc, err := di.GetSourceLocation(addr)
	if err != nil {
		loc = sourceLocationFromLineEntry(*best)
	}
	return VerifiedBreakpoint{Address: addr, Location: loc}, nil
}

// pastPrologue advances addr to the first line-table row in the same
// function whose line differs from the function's own declaration line —
// the common heuristic for "past the prologue" absent an explicit
// prologue_end flag.
func pastPrologue(di *DebugInfo, u *Unit, addr uint64) uint64 {
	if u == nil || u.LineReader == nil {
		return addr
	}
	fn, err := di.findSubprogram(u, addr)
	if err != nil {
		return addr
	}
	declLine, _ := attrInt64(fn.Entry, dwarf.AttrDeclLine)

	lr := u.LineReader
	lr.Reset()
	var entry dwarf.LineEntry
	var firstPrologueEnd uint64
	found := false
	for {
		if err := lr.Next(&entry); err != nil {
			break
		}
		if entry.EndSequence || entry.Address < addr || !di.entryCoversPC(fn.Entry, entry.Address) {
			continue
		}
		if entry.PrologueEnd {
			return entry.Address
		}
		if !found && int64(entry.Line) != declLine && entry.Address >= addr {
			firstPrologueEnd = entry.Address
			found = true
		}
	}
	if found {
		return firstPrologueEnd
	}
	return addr
}
