package variable

import (
	"math"
	"strconv"
)

// RenderValue implements spec.md §4.3.6's remaining step: turning a
// resolved VariableLocation plus VariableType into the display text the
// DAP controller's variables response shows. ConstValue/enum values are
// already filled in by extract_type; this only runs the lazy path for a
// variable materialised from a live address.
func (r *Resolver) RenderValue(v *Variable) VariableValue {
	if v.Value.Kind != ValueEmpty {
		return v.Value
	}
	switch v.Type.Kind {
	case TypeBitfield:
		return r.renderBitfield(v)
	case TypeModified:
		if v.Type.Inner != nil {
			inner := *v
			inner.Type = *v.Type.Inner
			inner.Value = VariableValue{}
			return r.RenderValue(&inner)
		}
		return ValueEmptyValue()
	case TypeBase:
		return r.renderBase(v)
	case TypePointer:
		return r.renderPointer(v)
	default:
		return ValueEmptyValue()
	}
}

func (r *Resolver) readContainer(v *Variable) (uint64, bool) {
	if v.Location.Kind != LocAddress || !v.HasSize {
		return 0, false
	}
	switch v.Size {
	case 1:
		b, err := r.Memory.ReadWord8(v.Location.Address)
		return uint64(b), err == nil
	case 2:
		b, err := r.Memory.ReadWord16(v.Location.Address)
		return uint64(b), err == nil
	case 4:
		b, err := r.Memory.ReadWord32(v.Location.Address)
		return uint64(b), err == nil
	case 8:
		b, err := r.Memory.ReadWord64(v.Location.Address)
		return b, err == nil
	default:
		return 0, false
	}
}

func (r *Resolver) renderBase(v *Variable) VariableValue {
	raw, ok := r.readContainer(v)
	if !ok {
		return ValueEmptyValue()
	}
	name := v.Type.Name
	switch {
	case name == "f32":
		return ValidValue(strconv.FormatFloat(float64(math.Float32frombits(uint32(raw))), 'g', -1, 32))
	case name == "f64":
		return ValidValue(strconv.FormatFloat(math.Float64frombits(raw), 'g', -1, 64))
	case name == "bool":
		return ValidValue(strconv.FormatBool(raw != 0))
	case name == "char":
		return ValidValue(strconv.QuoteRune(rune(raw)))
	case isSignedBaseTypeName(name):
		return ValidValue(strconv.FormatInt(signExtend(raw, v.Size*8), 10))
	default:
		return ValidValue(strconv.FormatUint(raw, 10))
	}
}

func (r *Resolver) renderPointer(v *Variable) VariableValue {
	raw, ok := r.readContainer(v)
	if !ok {
		return ValueEmptyValue()
	}
	return ValidValue("0x" + strconv.FormatUint(raw, 16))
}

func (r *Resolver) renderBitfield(v *Variable) VariableValue {
	bf := v.Type.Bitfield
	if bf == nil || v.Location.Kind != LocAddress {
		return ValueEmptyValue()
	}
	containerAddr := v.Location.Address
	buf := make([]byte, bf.ContainerSize)
	if err := r.Memory.ReadMemory(containerAddr, buf); err != nil {
		return ValueEmptyValue()
	}
	var container uint64
	for i := len(buf) - 1; i >= 0; i-- {
		container = container<<8 | uint64(buf[i])
	}
	offset := bf.NormalizedLsbOffset()
	mask := uint64(1)<<uint(bf.Length) - 1
	field := (container >> uint(offset)) & mask
	if bf.ContainerSigned {
		return ValidValue(strconv.FormatInt(signExtend(field, bf.Length), 10))
	}
	return ValidValue(strconv.FormatUint(field, 10))
}

func signExtend(v uint64, bits int64) int64 {
	if bits <= 0 || bits >= 64 {
		return int64(v)
	}
	shift := uint(64 - bits)
	return int64(v<<shift) >> shift
}
