package variable

import (
	"debug/dwarf"

	"github.com/pkg/errors"

	"github.com/probe-rs/probe-rs-sub000/internal/core"
	"github.com/probe-rs/probe-rs-sub000/internal/dwarfdata"
)

// Resolver ties the debug-info store, live memory, and variable cache
// together to implement spec.md §4.3's DIE traversal and materialisation.
type Resolver struct {
	DI       *dwarfdata.DebugInfo
	Memory   core.Memory
	Cache    *Cache
	Language func(dwarfdata.Language) ProgrammingLanguage
}

func NewResolver(di *dwarfdata.DebugInfo, mem core.Memory) *Resolver {
	return &Resolver{
		DI:       di,
		Memory:   mem,
		Cache:    NewCache(),
		Language: ForLanguage,
	}
}

// resolveOriginChain follows DW_AT_abstract_origin then DW_AT_specification
// reference chains (spec.md §4.3.4), returning the DIE whose attributes
// should actually be read.
func resolveOriginChain(di *dwarfdata.DebugInfo, e *dwarf.Entry) *dwarf.Entry {
	seen := map[dwarf.Offset]bool{}
	cur := e
	for {
		if seen[cur.Offset] {
			return cur
		}
		seen[cur.Offset] = true
		next := followRef(di, cur, dwarf.AttrAbstractOrigin)
		if next == nil {
			next = followRef(di, cur, dwarf.AttrSpecification)
		}
		if next == nil {
			return cur
		}
		cur = next
	}
}

func followRef(di *dwarfdata.DebugInfo, e *dwarf.Entry, attr dwarf.Attr) *dwarf.Entry {
	v := e.Val(attr)
	off, ok := v.(dwarf.Offset)
	if !ok {
		return nil
	}
	r := di.Data().Reader()
	r.Seek(off)
	next, err := r.Next()
	if err != nil || next == nil {
		return nil
	}
	return next
}

// isDeclaration reports DW_AT_declaration, used to drop forward
// declarations during traversal (spec.md §4.3.3).
func isDeclaration(e *dwarf.Entry) bool {
	v := e.Val(dwarf.AttrDeclaration)
	b, ok := v.(bool)
	return ok && b
}

func entryName(e *dwarf.Entry) string {
	v := e.Val(dwarf.AttrName)
	s, _ := v.(string)
	return s
}

func isArtificial(e *dwarf.Entry) bool {
	v := e.Val(dwarf.AttrArtificial)
	b, ok := v.(bool)
	return ok && b
}

func isPhantomData(e *dwarf.Entry) bool {
	name := entryName(e)
	return name == "PhantomData" || (len(name) > 12 && name[:12] == "PhantomData<")
}

var ErrResolve = errors.New("variable resolution error")
