// Package regnum provides name<->DWARF-register-number lookups per
// architecture, in the spirit of delve's pkg/dwarf/regnum package (the
// golang-debug teacher imports a sibling of this package as
// third_party/delve/dwarf/regnum for its AMD64NameToDwarf table).
package regnum

import "github.com/probe-rs/probe-rs-sub000/arch"

// NameToDwarf resolves a register name (as a user would type it in an
// `evaluate` REPL expression or a DAP `memoryReference`) to its DWARF
// register number for the given architecture.
func NameToDwarf(a *arch.Architecture, name string) (int, bool) {
	for _, r := range a.Registers {
		if r.Name == name {
			return r.DwarfNum, true
		}
	}
	return 0, false
}

// DwarfToName is the inverse of NameToDwarf.
func DwarfToName(a *arch.Architecture, num int) (string, bool) {
	d, ok := a.Register(num)
	if !ok {
		return "", false
	}
	return d.Name, true
}

// PC, SP, FP, RA return the DWARF register number for the architecture's
// register carrying that role.
func PC(a *arch.Architecture) (int, bool) { return roleNum(a, arch.RolePC) }
func SP(a *arch.Architecture) (int, bool) { return roleNum(a, arch.RoleSP) }
func FP(a *arch.Architecture) (int, bool) { return roleNum(a, arch.RoleFP) }
func RA(a *arch.Architecture) (int, bool) { return roleNum(a, arch.RoleRA) }

func roleNum(a *arch.Architecture, role arch.RegisterRole) (int, bool) {
	d, ok := a.ByRole(role)
	if !ok {
		return 0, false
	}
	return d.DwarfNum, true
}
