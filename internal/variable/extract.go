package variable

import (
	"debug/dwarf"
	"strconv"

	"github.com/probe-rs/probe-rs-sub000/internal/dwarfdata"
)

// buildAttributeVariable implements spec.md §4.3.4's attribute resolution
// followed by §4.3.5's extract_type dispatch, for one DW_TAG_variable /
// DW_TAG_formal_parameter / DW_TAG_member DIE.
func (r *Resolver) buildAttributeVariable(resolved, original *dwarf.Entry, unit *dwarfdata.Unit, parent *Variable, frameInfo FrameInfo, lang ProgrammingLanguage) *Variable {
	v := &Variable{Name: Named(entryName(resolved))}

	v.Location = r.resolveLocation(resolved, original, unit, parent, frameInfo)

	if cv := resolved.Val(dwarf.AttrConstValue); cv != nil {
		v.Value = constValueToText(cv)
	}

	typeRef, hasType := resolved.Val(dwarf.AttrType).(dwarf.Offset)
	if hasType {
		typeEntry, err := r.entryAt(typeRef)
		if err == nil {
			vt, nodeType := r.extractType(typeEntry, unit, v, frameInfo, lang)
			v.Type = vt
			v.NodeType = nodeType
		}
	} else {
		lang.ProcessTagWithNoType(v)
	}

	r.applyBitfield(resolved, v)
	r.applyMemberLocation(resolved, parent, v)

	return v
}

// resolveLocation evaluates DW_AT_location (single expression or location
// list), falling back to inheriting the parent's location when absent
// (spec.md §4.3.7's "otherwise inherit the parent's memory location").
func (r *Resolver) resolveLocation(resolved, original *dwarf.Entry, unit *dwarfdata.Unit, parent *Variable, frameInfo FrameInfo) VariableLocation {
	loc := resolved.Val(dwarf.AttrLocation)
	if loc == nil {
		loc = original.Val(dwarf.AttrLocation)
	}

	switch l := loc.(type) {
	case []byte:
		vloc, err := EvaluateExpression(l, r.Memory, frameInfo)
		if err != nil {
			return ErrorLocation(err.Error())
		}
		return vloc
	case int64:
		entries, err := r.DI.LocationListEntries(l, 0)
		if err != nil {
			return ErrorLocation(err.Error())
		}
		for _, e := range entries {
			if frameInfo.Registers == nil {
				break
			}
			if pc := frameInfo.Registers.PC(); e.LowPC <= pc && pc < e.HighPC {
				vloc, err := EvaluateExpression(e.Expr, r.Memory, frameInfo)
				if err != nil {
					return ErrorLocation(err.Error())
				}
				return vloc
			}
		}
		return VariableLocation{Kind: LocUnavailable}
	default:
		if parent != nil {
			return parent.Location
		}
		return VariableLocation{Kind: LocUnknown}
	}
}

func constValueToText(v interface{}) VariableValue {
	switch n := v.(type) {
	case int64:
		return ValidValue(strconv.FormatInt(n, 10))
	case uint64:
		return ValidValue(strconv.FormatUint(n, 10))
	case []byte:
		return ValidValue(string(n))
	default:
		return ValueEmptyValue()
	}
}

func ValueEmptyValue() VariableValue { return VariableValue{Kind: ValueEmpty} }

// applyBitfield implements spec.md §4.3.4's bitfield attributes, applied
// only after byte size is known.
func (r *Resolver) applyBitfield(e *dwarf.Entry, v *Variable) {
	bitSize, hasBitSize := attrInt64Local(e, dwarf.AttrBitSize)
	if !hasBitSize {
		return
	}
	bf := &Bitfield{Length: bitSize, ContainerSize: v.Size}
	if off, ok := attrInt64Local(e, dwarf.AttrDataBitOffset); ok {
		bf.OffsetKind = FromLsb
		bf.Offset = off
	} else if off, ok := attrInt64Local(e, dwarf.AttrBitOffset); ok {
		bf.OffsetKind = FromMsb
		bf.Offset = off
	}
	bf.ContainerSigned = v.Type.Kind == TypeBase && isSignedBaseTypeName(v.Type.Name)
	v.Type = VariableType{Kind: TypeBitfield, Inner: cloneType(v.Type), Bitfield: bf}
}

func cloneType(t VariableType) *VariableType {
	cp := t
	return &cp
}

func isSignedBaseTypeName(name string) bool {
	switch name {
	case "i8", "i16", "i32", "i64", "i128", "isize",
		"int", "int8_t", "int16_t", "int32_t", "int64_t", "short", "long", "long long":
		return true
	default:
		return false
	}
}

// applyMemberLocation implements spec.md §4.3.7's array-element and
// struct-member memory location special cases.
func (r *Resolver) applyMemberLocation(e *dwarf.Entry, parent *Variable, v *Variable) {
	if off, ok := attrInt64Local(e, dwarf.AttrDataMemberLoc); ok && parent != nil && parent.Location.Kind == LocAddress {
		v.Location = AddressLocation(parent.Location.Address + uint64(off))
	}
}

// extractType implements spec.md §4.3.5's extract_type dispatch.
func (r *Resolver) extractType(e *dwarf.Entry, unit *dwarfdata.Unit, v *Variable, frameInfo FrameInfo, lang ProgrammingLanguage) (VariableType, NodeType) {
	switch e.Tag {
	case dwarf.TagBaseType:
		v.Size, v.HasSize = byteSize(e), true
		return VariableType{Kind: TypeBase, Name: entryName(e)}, NodeType{Kind: NodeRecurseToBaseType}

	case dwarf.TagPointerType:
		name := entryName(e)
		innerRef, ok := e.Val(dwarf.AttrType).(dwarf.Offset)
		if !ok {
			lang.ProcessTagWithNoType(v)
			return v.Type, NodeType{Kind: NodeDoNotRecurse}
		}
		innerEntry, err := r.entryAt(innerRef)
		if err != nil {
			return VariableType{Kind: TypePointer, Name: name}, NodeType{Kind: NodeDoNotRecurse}
		}
		if innerEntry.Tag == 0 || (innerEntry.Val(dwarf.AttrName) == nil && innerEntry.Tag == dwarf.TagBaseType && byteSize(innerEntry) == 0) {
			// unit type (): drop the would-be dereference child.
			return VariableType{Kind: TypePointer, Name: "*()"}, NodeType{Kind: NodeDoNotRecurse}
		}
		return VariableType{Kind: TypePointer, Name: name}, NodeType{Kind: NodeTypeOffset, UnitIndex: r.unitIndex(unit), DIEOffset: int64(innerRef)}

	case dwarf.TagStructType:
		name := entryName(e)
		nodeType := NodeType{Kind: NodeTypeOffset, UnitIndex: r.unitIndex(unit), DIEOffset: int64(e.Offset)}
		v.Size, v.HasSize = byteSize(e), true
		if lang.AutoResolveChildren(name) {
			r.traverseChildren(e, unit, v, 0, frameInfo, lang)
			children, _ := r.Cache.GetChildren(v.Key)
			lang.ProcessStruct(v, children)
			v.MarkExpanded()
		}
		return VariableType{Kind: TypeStruct, Name: name}, nodeType

	case dwarf.TagArrayType:
		return r.extractArray(e, unit, v, frameInfo, lang)

	case dwarf.TagEnumerationType:
		return r.extractEnum(e, unit, v, lang)

	case dwarf.TagUnionType:
		name := entryName(e)
		v.Size, v.HasSize = byteSize(e), true
		return VariableType{Kind: TypeUnion, Name: name}, NodeType{Kind: NodeTypeOffset, UnitIndex: r.unitIndex(unit), DIEOffset: int64(e.Offset)}

	case dwarf.TagSubroutineType:
		name := ""
		if ret, ok := e.Val(dwarf.AttrType).(dwarf.Offset); ok {
			if retEntry, err := r.entryAt(ret); err == nil {
				name = entryName(retEntry)
			}
		}
		return VariableType{Kind: TypeOther, Name: name}, NodeType{Kind: NodeDoNotRecurse}

	case dwarf.TagTypedef:
		return r.extractModified(e, unit, v, frameInfo, lang, ModifierTypedef, true)
	case dwarf.TagConstType:
		return r.extractModified(e, unit, v, frameInfo, lang, ModifierConst, false)
	case dwarf.TagVolatileType:
		return r.extractModified(e, unit, v, frameInfo, lang, ModifierVolatile, false)
	case dwarf.TagRestrictType:
		return r.extractModified(e, unit, v, frameInfo, lang, ModifierRestrict, false)

	default:
		return VariableType{Kind: TypeUnknown}, NodeType{Kind: NodeDoNotRecurse}
	}
}

func (r *Resolver) extractModified(e *dwarf.Entry, unit *dwarfdata.Unit, v *Variable, frameInfo FrameInfo, lang ProgrammingLanguage, mod Modifier, invalidatesValue bool) (VariableType, NodeType) {
	innerRef, ok := e.Val(dwarf.AttrType).(dwarf.Offset)
	if !ok {
		return VariableType{Kind: TypeModified, Modifier: mod}, NodeType{Kind: NodeDoNotRecurse}
	}
	innerEntry, err := r.entryAt(innerRef)
	if err != nil {
		return VariableType{Kind: TypeModified, Modifier: mod}, NodeType{Kind: NodeDoNotRecurse}
	}
	innerType, nodeType := r.extractType(innerEntry, unit, v, frameInfo, lang)
	if invalidatesValue {
		v.Value = ValueEmptyValue()
	}
	return VariableType{Kind: TypeModified, Modifier: mod, Inner: cloneType(innerType)}, nodeType
}

func byteSize(e *dwarf.Entry) int64 {
	v, _ := attrInt64Local(e, dwarf.AttrByteSize)
	return v
}

// extractArray implements spec.md §4.3.5's array handling: upper_bound is
// inclusive in DWARF and translated to an exclusive end. Only the first
// DW_TAG_subrange_type child's count is used; further subranges (the
// inner dimensions of a nested array) are read but not expanded.
func (r *Resolver) extractArray(e *dwarf.Entry, unit *dwarfdata.Unit, v *Variable, frameInfo FrameInfo, lang ProgrammingLanguage) (VariableType, NodeType) {
	elemRef, ok := e.Val(dwarf.AttrType).(dwarf.Offset)
	if !ok {
		return VariableType{Kind: TypeArray}, NodeType{Kind: NodeDoNotRecurse}
	}
	elemEntry, err := r.entryAt(elemRef)
	if err != nil {
		return VariableType{Kind: TypeArray}, NodeType{Kind: NodeDoNotRecurse}
	}

	rd := r.DI.Data().Reader()
	rd.Seek(e.Offset)
	rd.Next()
	var counts []int64
	for {
		child, err := rd.Next()
		if err != nil || child == nil || child.Tag == 0 {
			break
		}
		if child.Tag != dwarf.TagSubrangeType {
			if child.Children {
				rd.SkipChildren()
			}
			continue
		}
		count := subrangeCount(child)
		counts = append(counts, count)
	}
	if len(counts) == 0 {
		counts = []int64{0}
	}

	elemType, _ := r.extractType(elemEntry, unit, &Variable{}, frameInfo, lang)
	elemSize := byteSize(elemEntry)
	count := counts[0]

	if v.Location.Kind == LocAddress {
		for i := int64(0); i < count; i++ {
			childAddr := v.Location.Address + uint64(i)*uint64(elemSize)
			child := &Variable{Name: Indexed(i), Type: elemType, Location: AddressLocation(childAddr), HasSize: elemSize > 0, Size: elemSize}
			r.Cache.Insert(child, v.Key, true)
		}
		v.MarkExpanded()
	}

	v.Size, v.HasSize = count*elemSize, true
	return VariableType{Kind: TypeArray, Count: count, ItemType: elemType.String()}, NodeType{Kind: NodeDoNotRecurse}
}

func subrangeCount(e *dwarf.Entry) int64 {
	if count, ok := attrInt64Local(e, dwarf.AttrCount); ok {
		return count
	}
	lower := int64(0)
	if l, ok := attrInt64Local(e, dwarf.AttrLowerBound); ok {
		lower = l
	}
	if upper, ok := attrInt64Local(e, dwarf.AttrUpperBound); ok {
		return upper - lower + 1
	}
	return 0
}

// extractEnum implements spec.md §4.3.5's enum handling: read the enum's
// underlying byte and format via the language plug-in.
func (r *Resolver) extractEnum(e *dwarf.Entry, unit *dwarfdata.Unit, v *Variable, lang ProgrammingLanguage) (VariableType, NodeType) {
	name := entryName(e)
	v.Size, v.HasSize = 1, true

	type enumerator struct {
		name  string
		value int64
	}
	var enumerators []enumerator

	rd := r.DI.Data().Reader()
	rd.Seek(e.Offset)
	rd.Next()
	for {
		child, err := rd.Next()
		if err != nil || child == nil || child.Tag == 0 {
			break
		}
		if child.Tag != dwarf.TagEnumerator {
			if child.Children {
				rd.SkipChildren()
			}
			continue
		}
		val, _ := attrInt64Local(child, dwarf.AttrConstValue)
		enumerators = append(enumerators, enumerator{name: entryName(child), value: val})
	}

	if v.Location.Kind == LocAddress {
		b, err := r.Memory.ReadWord8(v.Location.Address)
		if err == nil {
			for _, en := range enumerators {
				if en.value == int64(b) {
					v.Value = ValidValue(lang.FormatEnumValue(name, en.name))
					break
				}
			}
		}
	}

	return VariableType{Kind: TypeEnum, Name: name}, NodeType{Kind: NodeDoNotRecurse}
}
