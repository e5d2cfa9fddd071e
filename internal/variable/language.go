package variable

import (
	"strings"

	"github.com/probe-rs/probe-rs-sub000/internal/dwarfdata"
)

// ProgrammingLanguage is the capability spec.md §9 and SPEC_FULL.md §4.3
// describe: language-specific rendering of struct auto-resolution, enum
// values, and types with no DW_AT_type attribute. DW_AT_language selects
// the implementation; Rust is the fallback (spec.md §4.3.1).
type ProgrammingLanguage interface {
	// AutoResolveChildren decides whether a struct's children should be
	// eagerly expanded instead of left deferred (spec.md §4.3.5's
	// "e.g. Rust &str, Option, Result").
	AutoResolveChildren(typeName string) bool
	// ProcessTagWithNoType handles a variable DIE with no DW_AT_type
	// (e.g. a pointer's "unspecified type" policy, spec.md §4.3.5).
	ProcessTagWithNoType(v *Variable)
	// ProcessStruct performs final formatting for a struct/union variable
	// once its children are known (spec.md §4.3.5).
	ProcessStruct(v *Variable, children []*Variable)
	// FormatEnumValue renders an enum's resolved variant name for display.
	FormatEnumValue(typeName, variantName string) string
}

// RustLanguage implements ProgrammingLanguage for DW_AT_language ==
// DW_LANG_Rust, the spec's default.
type RustLanguage struct{}

var rustAutoResolveTypes = map[string]bool{
	"&str":           true,
	"str":            true,
	"String":         true,
	"Option":         true,
	"Result":         true,
}

func (RustLanguage) AutoResolveChildren(typeName string) bool {
	base := typeName
	if i := strings.IndexByte(base, '<'); i >= 0 {
		base = base[:i]
	}
	return rustAutoResolveTypes[base]
}

func (RustLanguage) ProcessTagWithNoType(v *Variable) {
	v.Type = VariableType{Kind: TypePointer, Name: "void*"}
}

func (RustLanguage) ProcessStruct(v *Variable, children []*Variable) {
	// No special-case formatting beyond what extract_type already built;
	// Rust structs render as their field list.
}

func (RustLanguage) FormatEnumValue(typeName, variantName string) string {
	return typeName + "::" + variantName
}

// CLanguage implements ProgrammingLanguage for C/C++ translation units: no
// auto-resolution (C has no generic containers needing it), structs and
// unions render directly, and there is never a DW_TAG_variant_part to
// handle because C DWARF never emits one (SPEC_FULL.md §4.3).
type CLanguage struct{}

func (CLanguage) AutoResolveChildren(string) bool { return false }

func (CLanguage) ProcessTagWithNoType(v *Variable) {
	v.Type = VariableType{Kind: TypePointer, Name: "void *"}
}

func (CLanguage) ProcessStruct(v *Variable, children []*Variable) {}

func (CLanguage) FormatEnumValue(typeName, variantName string) string {
	return variantName
}

// ForLanguage selects the plug-in per DW_AT_language, defaulting to Rust
// (spec.md §4.3.1). This is the single dispatch point NewResolver installs
// as a Session's default Language callback.
func ForLanguage(lang dwarfdata.Language) ProgrammingLanguage {
	if lang == dwarfdata.LanguageC || lang == dwarfdata.LanguageCPlusPlus {
		return CLanguage{}
	}
	return RustLanguage{}
}
