// Package variable implements the DWARF variable resolver (spec.md §4.3):
// DIE tree traversal, type extraction, DWARF expression-driven location
// resolution, and value materialisation, with lazy expansion of compound
// types via a VariableCache arena. Grounded on the teacher's
// internal/gocore/{dwarf.go,type.go} (DIE-tag switch, dwarf.Type mapping,
// location-list iteration) and program/server/print.go's sticky-error,
// cycle-guarded rendering pattern.
package variable

// TypeKind discriminates VariableType (spec.md §3).
type TypeKind int

const (
	TypeUnknown TypeKind = iota
	TypeBase
	TypePointer
	TypeStruct
	TypeEnum
	TypeArray
	TypeUnion
	TypeModified
	TypeBitfield
	TypeNamespace
	TypeOther
)

// Modifier names the wrapping kind for TypeModified (typedef/const/
// volatile/restrict/atomic, spec.md §4.3.5).
type Modifier int

const (
	ModifierTypedef Modifier = iota
	ModifierConst
	ModifierVolatile
	ModifierRestrict
	ModifierAtomic
)

// VariableType is the variant named in spec.md §3. Modified and Bitfield
// each wrap exactly one Inner.
type VariableType struct {
	Kind TypeKind
	Name string // Base/Pointer/Struct/Enum name, or Other(s)'s raw string

	// Array
	Count    int64
	ItemType string

	// Modified
	Modifier Modifier
	Inner    *VariableType

	// Bitfield
	Bitfield *Bitfield
}

func (t VariableType) String() string {
	switch t.Kind {
	case TypeArray:
		return t.ItemType
	case TypeModified:
		if t.Inner != nil {
			return t.Inner.String()
		}
		return t.Name
	default:
		return t.Name
	}
}

// BitOffsetKind discriminates Bitfield's offset (spec.md §3: "FromLsb(n) |
// FromMsb(n)").
type BitOffsetKind int

const (
	FromLsb BitOffsetKind = iota
	FromMsb
)

// Bitfield is the entity named in spec.md §3, derived from DW_AT_bit_*
// attributes and normalised against the container's byte size before
// rendering.
type Bitfield struct {
	Length     int64
	OffsetKind BitOffsetKind
	Offset     int64
	// ContainerSigned records whether the bitfield's base type is signed,
	// so rendering can sign-extend from Length bits
	// (SPEC_FULL.md §4.3 bitfield edge case).
	ContainerSigned bool
	ContainerSize   int64 // bytes
}

// NormalizedLsbOffset converts a Bitfield's offset to a from-LSB bit
// offset within its container, regardless of how it was originally
// encoded.
func (b *Bitfield) NormalizedLsbOffset() int64 {
	if b.OffsetKind == FromLsb {
		return b.Offset
	}
	containerBits := b.ContainerSize * 8
	return containerBits - b.Offset - b.Length
}
