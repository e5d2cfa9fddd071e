package variable

// expandStaticScope implements spec.md §4.3.8's static scope: unlike the
// local scope (rooted at one function DIE), the static scope has no single
// owning DIE, so every unit's root is walked to gather file-level globals.
func (r *Resolver) expandStaticScope(v *Variable, frameInfo FrameInfo) error {
	for _, unit := range r.DI.Units {
		if unit.Root == nil {
			continue
		}
		lang := r.Language(unit.Language)
		_ = r.traverseChildren(unit.Root, unit, v, 0, frameInfo, lang)
	}
	return nil
}

// BuildStaticScope allocates the deferred static-scope root, mirroring
// BuildLocalScope but keyed by NodeUnitsLookup instead of one function's
// offset (spec.md §4.3.8).
func (r *Resolver) BuildStaticScope() *Variable {
	root := r.Cache.NewRoot("Static")
	root.NodeType = NodeType{Kind: NodeUnitsLookup}
	return root
}
