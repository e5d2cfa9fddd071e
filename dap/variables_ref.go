package dap

// DAP's variablesReference is a single flat integer namespace; the
// controller partitions it into three disjoint ranges so a variables(ref)
// request can tell a register-snapshot lookup from a cache-key lookup from
// a peripheral lookup without ambiguity (spec.md §4.1 scopes/variables).
const (
	refRegistersBase   = 0         // frame.Id values live here, 0..refPeripheralsBase-1
	refPeripheralsBase = 500000    // one entry per configured peripheral register
	refCacheBase       = 1000000   // variable.ObjectRef keys, offset to avoid collision
)

func cacheRefOf(key uint64) int { return refCacheBase + int(key) }

func keyFromCacheRef(ref int) (uint64, bool) {
	if ref < refCacheBase {
		return 0, false
	}
	return uint64(ref - refCacheBase), true
}

func isRegistersRef(ref int) bool {
	return ref >= refRegistersBase && ref < refPeripheralsBase
}

func isPeripheralsRef(ref int) bool {
	return ref >= refPeripheralsBase && ref < refCacheBase
}

func peripheralIndexFromRef(ref int) int { return ref - refPeripheralsBase - 1 }

func peripheralRegisterRef(index int) int { return refPeripheralsBase + 1 + index }
