package variable

import "github.com/pkg/errors"

// Cache is the VariableCache arena named in spec.md §3 and §9: it
// exclusively owns its Variable nodes, keyed by opaque ObjectRef handles;
// references returned by lookups live only as long as the cache borrow.
// Nothing clears the cache when the core resumes or the stack trace is
// refreshed: handles stay valid for the life of the Resolver, and nodes
// are removed only through Prune.
type Cache struct {
	root  ObjectRef
	nodes map[ObjectRef]*Variable
	next  ObjectRef
}

func NewCache() *Cache {
	return &Cache{nodes: make(map[ObjectRef]*Variable), next: 1}
}

// NewRoot creates the cache's LocalScopeRoot/StaticScopeRoot/etc node
// (spec.md §4.2.2 step 1: "allocate a VariableCache rooted at a
// LocalScopeRoot but do not expand children").
func (c *Cache) NewRoot(scope string) *Variable {
	v := &Variable{Key: c.allocKey(), Name: ScopeRoot(scope), NodeType: NodeType{Kind: NodeDoNotRecurse}}
	c.nodes[v.Key] = v
	c.root = v.Key
	return v
}

func (c *Cache) allocKey() ObjectRef {
	k := c.next
	c.next++
	return k
}

// Insert adds a fully-constructed variable to the cache, assigning it a
// fresh key if it doesn't have one yet, and returns the final key.
func (c *Cache) Insert(v *Variable, parent ObjectRef, hasParent bool) ObjectRef {
	if v.Key == 0 {
		v.Key = c.allocKey()
	}
	v.Parent = parent
	v.HasParent = hasParent
	c.nodes[v.Key] = v
	if hasParent {
		if p, ok := c.nodes[parent]; ok {
			p.AddChild(v.Key)
		}
	}
	return v.Key
}

var ErrUnknownKey = errors.New("unknown variable key")

// Get looks up a variable by key. References returned here must not
// outlive the cache (spec.md §3 ownership discipline).
func (c *Cache) Get(key ObjectRef) (*Variable, error) {
	v, ok := c.nodes[key]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownKey, "%d", key)
	}
	return v, nil
}

// GetChildren implements "children reachable only through
// get_children(parent_key)" (spec.md §3).
func (c *Cache) GetChildren(parent ObjectRef) ([]*Variable, error) {
	p, err := c.Get(parent)
	if err != nil {
		return nil, err
	}
	children := make([]*Variable, 0, len(p.childKeys))
	for _, k := range p.childKeys {
		if v, ok := c.nodes[k]; ok {
			children = append(children, v)
		}
	}
	return children, nil
}

// Prune removes a node and detaches it from its parent's child list,
// implementing spec.md §3's "pruned when PhantomData/Artificial" and
// §4.3.3's namespace-pruning rule.
func (c *Cache) Prune(key ObjectRef) {
	v, ok := c.nodes[key]
	if !ok {
		return
	}
	if v.HasParent {
		if p, ok := c.nodes[v.Parent]; ok {
			filtered := p.childKeys[:0]
			for _, k := range p.childKeys {
				if k != key {
					filtered = append(filtered, k)
				}
			}
			p.childKeys = filtered
		}
	}
	delete(c.nodes, key)
}

func (c *Cache) Root() ObjectRef { return c.root }
