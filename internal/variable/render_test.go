package variable

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probe-rs/probe-rs-sub000/internal/core"
)

func newResolver(t *testing.T) (*Resolver, *core.FakeMemory) {
	t.Helper()
	mem := core.NewFakeMemory(0, 4096)
	return NewResolver(nil, mem), mem
}

func TestRenderValueUnsignedBase(t *testing.T) {
	r, mem := newResolver(t)
	binary.LittleEndian.PutUint32(mem.Bytes[0x10:], 42)
	v := &Variable{
		Type:     VariableType{Kind: TypeBase, Name: "u32"},
		Location: AddressLocation(0x10),
		HasSize:  true,
		Size:     4,
	}
	got := r.RenderValue(v)
	require.Equal(t, ValueValid, got.Kind)
	assert.Equal(t, "42", got.Text)
}

func TestRenderValueSignedBaseNegative(t *testing.T) {
	r, mem := newResolver(t)
	binary.LittleEndian.PutUint32(mem.Bytes[0x20:], uint32(int32(-7)))
	v := &Variable{
		Type:     VariableType{Kind: TypeBase, Name: "i32"},
		Location: AddressLocation(0x20),
		HasSize:  true,
		Size:     4,
	}
	got := r.RenderValue(v)
	require.Equal(t, ValueValid, got.Kind)
	assert.Equal(t, "-7", got.Text)
}

func TestRenderValueBool(t *testing.T) {
	r, mem := newResolver(t)
	mem.Bytes[0x30] = 1
	v := &Variable{
		Type:     VariableType{Kind: TypeBase, Name: "bool"},
		Location: AddressLocation(0x30),
		HasSize:  true,
		Size:     1,
	}
	got := r.RenderValue(v)
	assert.Equal(t, "true", got.Text)
}

func TestRenderValuePointer(t *testing.T) {
	r, mem := newResolver(t)
	binary.LittleEndian.PutUint32(mem.Bytes[0x40:], 0xcafe)
	v := &Variable{
		Type:     VariableType{Kind: TypePointer, Name: "*const u8"},
		Location: AddressLocation(0x40),
		HasSize:  true,
		Size:     4,
	}
	got := r.RenderValue(v)
	assert.Equal(t, "0xcafe", got.Text)
}

func TestRenderValueBitfieldUnsigned(t *testing.T) {
	r, mem := newResolver(t)
	mem.Bytes[0x50] = 0b0010_1100 // bits 2..5 (length 4, offset-from-lsb 2) = 0b1011 = 11
	v := &Variable{
		Type: VariableType{
			Kind: TypeBitfield,
			Bitfield: &Bitfield{
				Length:          4,
				OffsetKind:      FromLsb,
				Offset:          2,
				ContainerSigned: false,
				ContainerSize:   1,
			},
		},
		Location: AddressLocation(0x50),
	}
	got := r.RenderValue(v)
	require.Equal(t, ValueValid, got.Kind)
	assert.Equal(t, "11", got.Text)
}

func TestRenderValueBitfieldSignedNegative(t *testing.T) {
	r, mem := newResolver(t)
	mem.Bytes[0x60] = 0b0000_1100 // low nibble 1100 = -4 as a signed 4-bit field
	v := &Variable{
		Type: VariableType{
			Kind: TypeBitfield,
			Bitfield: &Bitfield{
				Length:          4,
				OffsetKind:      FromLsb,
				Offset:          0,
				ContainerSigned: true,
				ContainerSize:   1,
			},
		},
		Location: AddressLocation(0x60),
	}
	got := r.RenderValue(v)
	require.Equal(t, ValueValid, got.Kind)
	assert.Equal(t, "-4", got.Text)
}

func TestRenderValueAlreadyResolvedShortCircuits(t *testing.T) {
	r, _ := newResolver(t)
	v := &Variable{Value: ValidValue("precomputed")}
	got := r.RenderValue(v)
	assert.Equal(t, "precomputed", got.Text)
}

func TestRenderValueModifiedUnwrapsInner(t *testing.T) {
	r, mem := newResolver(t)
	binary.LittleEndian.PutUint32(mem.Bytes[0x70:], 99)
	inner := VariableType{Kind: TypeBase, Name: "u32"}
	v := &Variable{
		Type:     VariableType{Kind: TypeModified, Modifier: ModifierConst, Inner: &inner},
		Location: AddressLocation(0x70),
		HasSize:  true,
		Size:     4,
	}
	got := r.RenderValue(v)
	assert.Equal(t, "99", got.Text)
}

func TestRenderValueUnresolvableLocationYieldsEmpty(t *testing.T) {
	r, _ := newResolver(t)
	v := &Variable{
		Type:     VariableType{Kind: TypeBase, Name: "u32"},
		Location: VariableLocation{Kind: LocUnavailable},
		HasSize:  true,
		Size:     4,
	}
	got := r.RenderValue(v)
	assert.Equal(t, ValueEmpty, got.Kind)
}
