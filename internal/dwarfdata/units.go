package dwarfdata

import (
	"debug/dwarf"

	"github.com/pkg/errors"
)

// AddressRange is a [Low, High) PC range, as found in a unit's rnglist or
// its root DIE's low_pc/high_pc pair.
type AddressRange struct {
	Low, High uint64
}

// Language mirrors the handful of DW_LANG_* constants the variable
// resolver's ProgrammingLanguage plug-ins care about (spec.md §4.3.1:
// "default Rust when absent — pluggable formatter").
type Language int

const (
	LanguageRust Language = iota
	LanguageC
	LanguageCPlusPlus
	LanguageOther
)

func languageFromAttr(v int64) Language {
	switch v {
	case int64(dwarf.LangC89), int64(dwarf.LangC), int64(dwarf.LangC99), int64(dwarf.LangC11), int64(dwarf.LangC17):
		return LanguageC
	case int64(dwarf.LangC_plus_plus), int64(dwarf.LangC_plus_plus_03), int64(dwarf.LangC_plus_plus_11),
		int64(dwarf.LangC_plus_plus_14):
		return LanguageCPlusPlus
	case int64(dwarf.LangRust):
		return LanguageRust
	default:
		return LanguageOther
	}
}

// Unit is one compilation unit's indexed facts (spec.md §4.3.1).
type Unit struct {
	Off      dwarf.Offset
	Root     *dwarf.Entry
	Ranges   []AddressRange
	Language Language
	// AddressSize is the target address size in bytes, taken from the ELF
	// class (4 unless the file is ELFCLASS64). Frame parsing does not read
	// this field.
	AddressSize int
	LineReader  *dwarf.LineReader
}

func (u *Unit) Covers(pc uint64) bool {
	for _, r := range u.Ranges {
		if pc >= r.Low && pc < r.High {
			return true
		}
	}
	return false
}

func (di *DebugInfo) indexUnits() error {
	r := di.data.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return err
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}

		u := &Unit{Off: entry.Offset, Root: entry, Language: LanguageRust, AddressSize: 4}

		if langVal, ok := attrInt64(entry, dwarf.AttrLanguage); ok {
			u.Language = languageFromAttr(langVal)
		}

		addrSize := 4
		if di.elf != nil {
			switch di.elf.Class.String() {
			case "ELFCLASS64":
				addrSize = 8
			}
		}
		u.AddressSize = addrSize

		ranges, err := di.data.Ranges(entry)
		if err == nil {
			for _, rg := range ranges {
				u.Ranges = append(u.Ranges, AddressRange{Low: rg[0], High: rg[1]})
			}
		}

		if off, ok := attrInt64(entry, dwarf.AttrStmtList); ok {
			if lr, err := di.data.LineReader(entry); err == nil && lr != nil {
				u.LineReader = lr
			}
			_ = off
		}

		di.Units = append(di.Units, u)
		r.SkipChildren()
	}
	return nil
}

func attrInt64(e *dwarf.Entry, attr dwarf.Attr) (int64, bool) {
	v := e.Val(attr)
	if v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case dwarf.Offset:
		return int64(n), true
	default:
		return 0, false
	}
}

func attrString(e *dwarf.Entry, attr dwarf.Attr) (string, bool) {
	v := e.Val(attr)
	s, ok := v.(string)
	return s, ok
}

// UnitAt returns the compilation unit whose range covers pc.
func (di *DebugInfo) UnitAt(pc uint64) (*Unit, error) {
	for _, u := range di.Units {
		if u.Covers(pc) {
			return u, nil
		}
	}
	return nil, errors.Errorf("no compilation unit covers pc=0x%x", pc)
}
