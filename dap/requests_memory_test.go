package dap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMemoryReferenceHexPrefix(t *testing.T) {
	addr, err := parseMemoryReference("0x1000")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000), addr)
}

func TestParseMemoryReferenceUppercasePrefix(t *testing.T) {
	addr, err := parseMemoryReference("0X20")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x20), addr)
}

func TestParseMemoryReferenceNoPrefix(t *testing.T) {
	addr, err := parseMemoryReference("ff")
	require.NoError(t, err)
	assert.Equal(t, uint64(0xff), addr)
}

func TestParseMemoryReferenceInvalid(t *testing.T) {
	_, err := parseMemoryReference("not-an-address")
	assert.Error(t, err)
}

func TestFormatMemoryReferenceRoundTrip(t *testing.T) {
	s := formatMemoryReference(0xdead)
	assert.Equal(t, "0xdead", s)

	addr, err := parseMemoryReference(s)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xdead), addr)
}
