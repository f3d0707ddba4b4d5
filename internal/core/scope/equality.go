package scope

// Equal reports structural equality between two scopes. UnionScope
// compares children as a multiset (order-free); TaintScope compares its
// taint list as a multiset; InvalidScope is symmetric in its two fields.
func Equal(a, b Scope) bool {
	switch x := a.(type) {
	case AnyScope:
		_, ok := b.(AnyScope)
		return ok
	case NodeScope:
		y, ok := b.(NodeScope)
		return ok && x.UUID == y.UUID
	case ProcessScope:
		y, ok := b.(ProcessScope)
		return ok && x.Worker == y.Worker && Equal(x.Parent, y.Parent)
	case ExactScope:
		y, ok := b.(ExactScope)
		return ok && Equal(x.Parent, y.Parent) && x.Proc.Equal(y.Proc)
	case TaintScope:
		y, ok := b.(TaintScope)
		return ok && Equal(x.Inner, y.Inner) && taintSetEqual(x.Taints, y.Taints)
	case UnionScope:
		y, ok := b.(UnionScope)
		return ok && scopeSetEqual(x.Children, y.Children)
	case InvalidScope:
		y, ok := b.(InvalidScope)
		if !ok {
			return false
		}
		straight := Equal(x.Left, y.Left) && Equal(x.Right, y.Right)
		crossed := Equal(x.Left, y.Right) && Equal(x.Right, y.Left)
		return straight || crossed
	}
	return false
}

func scopeSetEqual(a, b []Scope) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
outer:
	for _, sa := range a {
		for i, sb := range b {
			if used[i] {
				continue
			}
			if Equal(sa, sb) {
				used[i] = true
				continue outer
			}
		}
		return false
	}
	return true
}

func containsScope(set []Scope, s Scope) bool {
	for _, e := range set {
		if Equal(e, s) {
			return true
		}
	}
	return false
}
