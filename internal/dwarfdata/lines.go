package dwarfdata

import (
	"debug/dwarf"
	"path/filepath"

	"github.com/pkg/errors"
)

// ColumnKind discriminates SourceLocation's optional column (spec.md §3:
// "LeftEdge | Column(n)").
type ColumnKind int

const (
	ColumnUnknown ColumnKind = iota
	ColumnLeftEdge
	ColumnAt
)

// SourceLocation is the read-only view named in spec.md §3.
type SourceLocation struct {
	Path       string
	HasLine    bool
	Line       int64
	ColumnKind ColumnKind
	Column     int64
	HasPC      bool
	PC         uint64
}

// GetSourceLocation implements spec.md §4.3.9's get_source_location(PC):
// walk each unit's line program, and within the sequence whose range
// covers PC, attribute PC to the previous row once a row's address
// exceeds PC (avoids attributing a return address to the top of the next
// function).
func (di *DebugInfo) GetSourceLocation(pc uint64) (SourceLocation, error) {
	for _, u := range di.Units {
		if u.LineReader == nil || !u.Covers(pc) {
			continue
		}
		loc, ok, err := walkLineProgram(u, pc)
		if err != nil {
			return SourceLocation{}, err
		}
		if ok {
			return loc, nil
		}
	}
	return SourceLocation{}, errors.Errorf("no source location for pc=0x%x", pc)
}

func walkLineProgram(u *Unit, pc uint64) (SourceLocation, bool, error) {
	lr := u.LineReader
	lr.Reset()

	var previous dwarf.LineEntry
	havePrevious := false
	var entry dwarf.LineEntry

	for {
		err := lr.Next(&entry)
		if err != nil {
			break
		}
		if entry.EndSequence {
			havePrevious = false
			continue
		}
		if entry.Address > pc {
			if havePrevious {
				return sourceLocationFromLineEntry(previous), true, nil
			}
			return SourceLocation{}, false, nil
		}
		previous = entry
		havePrevious = true
		if entry.Address == pc {
			return sourceLocationFromLineEntry(entry), true, nil
		}
	}
	if havePrevious {
		return sourceLocationFromLineEntry(previous), true, nil
	}
	return SourceLocation{}, false, nil
}

func sourceLocationFromLineEntry(e dwarf.LineEntry) SourceLocation {
	loc := SourceLocation{HasLine: true, Line: int64(e.Line), HasPC: true, PC: e.Address}
	if e.File != nil {
		loc.Path = composePath(e.File.Name)
	}
	if e.Column > 0 {
		loc.ColumnKind = ColumnAt
		loc.Column = int64(e.Column)
	} else {
		loc.ColumnKind = ColumnLeftEdge
	}
	return loc
}

// composePath normalises a line-table file name per spec.md §4.3.9's
// "comp_dir / directory / file" rule. debug/dwarf's LineReader already
// joins the unit's comp_dir, the include directory and the file name into
// LineFile.Name; this only converts the separators to forward slashes.
func composePath(name string) string {
	return filepath.ToSlash(name)
}
