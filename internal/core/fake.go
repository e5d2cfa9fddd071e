package core

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// FakeMemory is an in-process Memory implementation backed by a flat byte
// slice, used by the test harness and the local REPL driver (SPEC_FULL.md
// §2 DOMAIN STACK, "self-contained example target") in place of a real
// probe link.
type FakeMemory struct {
	Base  uint64
	Bytes []byte

	// FailAt, when non-nil, marks addresses that should report a fault
	// instead of succeeding, to exercise the ragged-tail path in
	// ReadBestEffort and the disassemble padding behaviour.
	FailAt map[uint64]bool
}

func NewFakeMemory(base uint64, size int) *FakeMemory {
	return &FakeMemory{Base: base, Bytes: make([]byte, size)}
}

func (f *FakeMemory) offset(address uint64) (int, error) {
	if f.FailAt[address] {
		return 0, errors.Wrapf(ErrMemoryFault, "address 0x%x marked failing", address)
	}
	if address < f.Base || address-f.Base >= uint64(len(f.Bytes)) {
		return 0, errors.Wrapf(ErrMemoryFault, "address 0x%x out of range", address)
	}
	return int(address - f.Base), nil
}

func (f *FakeMemory) ReadWord8(address uint64) (uint8, error) {
	off, err := f.offset(address)
	if err != nil {
		return 0, err
	}
	return f.Bytes[off], nil
}

func (f *FakeMemory) ReadWord16(address uint64) (uint16, error) {
	var buf [2]byte
	if err := f.ReadMemory(address, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func (f *FakeMemory) ReadWord32(address uint64) (uint32, error) {
	var buf [4]byte
	if err := f.ReadMemory(address, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (f *FakeMemory) ReadWord64(address uint64) (uint64, error) {
	var buf [8]byte
	if err := f.ReadMemory(address, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (f *FakeMemory) ReadMemory(address uint64, buf []byte) error {
	for i := range buf {
		b, err := f.ReadWord8(address + uint64(i))
		if err != nil {
			return err
		}
		buf[i] = b
	}
	return nil
}

func (f *FakeMemory) WriteWord8(address uint64, value uint8) error {
	off, err := f.offset(address)
	if err != nil {
		return err
	}
	f.Bytes[off] = value
	return nil
}

func (f *FakeMemory) WriteWord16(address uint64, value uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], value)
	return f.WriteMemory(address, buf[:])
}

func (f *FakeMemory) WriteWord32(address uint64, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return f.WriteMemory(address, buf[:])
}

func (f *FakeMemory) WriteWord64(address uint64, value uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return f.WriteMemory(address, buf[:])
}

func (f *FakeMemory) WriteMemory(address uint64, buf []byte) error {
	for i, b := range buf {
		if err := f.WriteWord8(address+uint64(i), b); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeMemory) Flush() error { return nil }

func (f *FakeMemory) SupportsNativeAccess64Bit() bool { return true }
func (f *FakeMemory) Supports8BitTransfers() bool     { return true }
