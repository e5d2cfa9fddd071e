// Package core defines the leaf capabilities the rest of the debugger builds
// on: the target memory interface and the data describing a halted core's
// status and register file.
package core

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Memory is the capability every higher layer depends on exclusively
// (spec.md §2 "Memory interface (leaf)"). Implementations are supplied by
// the probe transport; this module only consumes them.
type Memory interface {
	ReadWord8(address uint64) (uint8, error)
	ReadWord16(address uint64) (uint16, error)
	ReadWord32(address uint64) (uint32, error)
	ReadWord64(address uint64) (uint64, error)
	ReadMemory(address uint64, buf []byte) error

	WriteWord8(address uint64, value uint8) error
	WriteWord16(address uint64, value uint16) error
	WriteWord32(address uint64, value uint32) error
	WriteWord64(address uint64, value uint64) error
	WriteMemory(address uint64, buf []byte) error

	// Flush pushes any buffered writes out to the physical target.
	Flush() error

	SupportsNativeAccess64Bit() bool
	Supports8BitTransfers() bool
}

// ErrMemoryFault is wrapped (via pkg/errors) by Memory implementations when
// a read or write fails against the physical target.
var ErrMemoryFault = errors.New("memory access fault")

// ReadBestEffort reads count bytes starting at address, preferring 8-byte
// chunks and falling back to byte-at-a-time for a ragged tail or on
// transport failure, matching the read_memory handler contract in
// spec.md §4.1. It returns the bytes captured before the first failure and
// the count of bytes that could not be read.
func ReadBestEffort(m Memory, address uint64, count int) (data []byte, unreadable int) {
	data = make([]byte, 0, count)
	addr := address
	remaining := count

	for remaining >= 8 {
		w, err := m.ReadWord64(addr)
		if err != nil {
			break
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], w)
		data = append(data, buf[:]...)
		addr += 8
		remaining -= 8
	}

	for remaining > 0 {
		b, err := m.ReadWord8(addr)
		if err != nil {
			break
		}
		data = append(data, b)
		addr++
		remaining--
	}

	return data, count - len(data)
}
