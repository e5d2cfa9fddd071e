package frame

import (
	"github.com/pkg/errors"
)

// Parse reads a raw .debug_frame section into a Table. unitAddressSize, per
// spec.md §4.3.1, overrides a CIE's own (possibly absent) address size —
// DWARF 4 CIEs frequently omit it.
func Parse(section []byte, unitAddressSize uint8) (*Table, error) {
	cies := map[int64]*CIE{}
	t := &Table{}

	r := &byteReader{buf: section}
	for !r.done() {
		entryStart := r.pos
		length := uint64(r.u32())
		if length == 0 {
			break
		}
		if length == 0xffffffff {
			return nil, errors.New("64-bit DWARF frame sections are not supported")
		}
		entryEnd := r.pos + int(length)
		if entryEnd > len(section) {
			return nil, errors.New("truncated CFI entry")
		}

		idField := r.u32()
		if idField == 0xffffffff {
			// CIE
			cie := &CIE{}
			cie.Version = r.u8()
			// augmentation string, NUL-terminated
			for {
				b := r.u8()
				if b == 0 {
					break
				}
			}
			cie.CodeAlignment = r.uleb()
			cie.DataAlignment = r.sleb()
			cie.ReturnAddressReg = int(r.uleb())
			cie.AddressSize = unitAddressSize
			cie.InitialInstrBytes = append([]byte{}, section[r.pos:entryEnd]...)
			rows, err := ParseInstructions(cie.InitialInstrBytes, row{regs: map[int]Rule{}}, cie.CodeAlignment, cie.DataAlignment, 0)
			if err != nil {
				return nil, errors.Wrap(err, "parsing CIE initial instructions")
			}
			if len(rows) > 0 {
				cie.InitialRows = rows[len(rows)-1]
			} else {
				cie.InitialRows = row{regs: map[int]Rule{}}
			}
			cies[int64(entryStart)] = cie
		} else {
			cieOffset := int64(idField)
			cie, ok := cies[cieOffset]
			if !ok {
				return nil, errors.Errorf("FDE references unknown CIE at offset %d", cieOffset)
			}
			addrSize := int(cie.AddressSize)
			if addrSize == 0 {
				addrSize = 4
			}
			begin := r.addrN(addrSize)
			length2 := r.addrN(addrSize)
			fde := &FDE{Begin: begin, End: begin + length2, CIE: cie}
			instrBytes := section[r.pos:entryEnd]
			rows, err := ParseInstructions(instrBytes, cie.InitialRows, cie.CodeAlignment, cie.DataAlignment, begin)
			if err != nil {
				return nil, errors.Wrap(err, "parsing FDE instructions")
			}
			fde.rows = rows
			t.FDEs = append(t.FDEs, fde)
		}

		r.pos = entryEnd
	}

	return t, nil
}

func (r *byteReader) addrN(size int) uint64 {
	switch size {
	case 4:
		return uint64(r.u32())
	case 8:
		return r.u64()
	default:
		return uint64(r.u32())
	}
}
