package dwarfexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateConstAndAddressResult(t *testing.T) {
	// DW_OP_addr 0x1000
	expr := []byte{byte(OpAddr), 0x00, 0x10, 0x00, 0x00}
	pieces, err := Evaluate(expr, Requirements{}, 4)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, PieceAddress, pieces[0].Kind)
	assert.Equal(t, uint64(0x1000), pieces[0].Address)
}

func TestEvaluateLitPlusStackValue(t *testing.T) {
	// DW_OP_lit5 DW_OP_lit3 DW_OP_plus DW_OP_stack_value
	expr := []byte{byte(OpLit0 + 5), byte(OpLit0 + 3), byte(OpPlus), byte(OpStackValue)}
	pieces, err := Evaluate(expr, Requirements{}, 4)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, PieceValue, pieces[0].Kind)
	assert.Equal(t, uint64(8), pieces[0].Value)
}

func TestEvaluateFbregUsesFrameBase(t *testing.T) {
	expr := []byte{byte(OpFbreg), 0x7e} // sleb128(-2)
	req := Requirements{
		FrameBase: func() (int64, error) { return 100, nil },
	}
	pieces, err := Evaluate(expr, req, 4)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, PieceAddress, pieces[0].Kind)
	assert.Equal(t, uint64(98), pieces[0].Address)
}

func TestEvaluateBregReadsRegister(t *testing.T) {
	expr := []byte{byte(OpBreg0 + 2), 0x05} // DW_OP_breg2 +5
	req := Requirements{
		Register: func(dwarfNum int) (uint64, error) {
			assert.Equal(t, 2, dwarfNum)
			return 0x200, nil
		},
	}
	pieces, err := Evaluate(expr, req, 4)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, uint64(0x205), pieces[0].Address)
}

func TestEvaluateRegPiece(t *testing.T) {
	expr := []byte{byte(OpReg0 + 3)}
	pieces, err := Evaluate(expr, Requirements{}, 4)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, PieceRegister, pieces[0].Kind)
	assert.Equal(t, 3, pieces[0].RegisterNum)
}

func TestEvaluateDerefRequiresMemory(t *testing.T) {
	expr := []byte{byte(OpConstu), 0x10, byte(OpDeref)}
	_, err := Evaluate(expr, Requirements{}, 4)
	assert.Error(t, err)

	req := Requirements{
		ReadMemory: func(addr uint64, size int) (uint64, error) {
			assert.Equal(t, uint64(0x10), addr)
			return 0xdeadbeef, nil
		},
	}
	pieces, err := Evaluate(expr, req, 4)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, uint64(0xdeadbeef), pieces[0].Address)
}

func TestEvaluateEmptyExpressionYieldsEmptyPiece(t *testing.T) {
	pieces, err := Evaluate(nil, Requirements{}, 4)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, PieceEmpty, pieces[0].Kind)
}

func TestEvaluateUnsupportedOpcodeErrors(t *testing.T) {
	expr := []byte{byte(OpEntryValue)}
	_, err := Evaluate(expr, Requirements{}, 4)
	assert.ErrorIs(t, err, ErrUnsupportedOpcode)
}

func TestEvaluateStackUnderflowErrors(t *testing.T) {
	expr := []byte{byte(OpPlus)}
	_, err := Evaluate(expr, Requirements{}, 4)
	assert.Error(t, err)
}
