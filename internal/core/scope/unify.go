package scope

// Constrain computes the lattice meet of x and y: the set of processors
// legal for both. It never errors — conflicts surface only as
// InvalidScope, per spec.md §7, since this is called in scheduling hot
// loops over every (thunk, chunk, processor) triple and an exception
// there would dominate. Constrain panics if given an InvalidScope
// operand: that is a caller bug, not a lattice conflict (see
// assertValid).
func (c *Context) Constrain(x, y Scope) Scope {
	assertValid(x)
	assertValid(y)
	c.stats.Constrains.Inc()

	result := c.constrain(x, y)
	if IsInvalid(result) {
		c.stats.Invalids.Inc()
	}
	return result
}

// Constrain on the package-level Default context. Safe for callers that
// provably touch no taint-extension table (e.g. meets with no
// user-registered taints in play); everything else should hold its own
// *Context.
func Constrain(x, y Scope) Scope {
	return Default().Constrain(x, y)
}

func (c *Context) constrain(x, y Scope) Scope {
	// An undecodable wire scope conflicts with everything, even AnyScope
	// (spec.md §6) — checked before rule 1's identity short-circuit.
	if _, ok := x.(UnknownScope); ok {
		return InvalidScope{Left: x, Right: y}
	}
	if _, ok := y.(UnknownScope); ok {
		return InvalidScope{Left: x, Right: y}
	}

	// A one-child UnionScope is equivalent to its child; unwrap it so no
	// rule below returns a one-element union.
	if u, ok := x.(UnionScope); ok && len(u.Children) == 1 {
		x = u.Children[0]
	}
	if u, ok := y.(UnionScope); ok && len(u.Children) == 1 {
		y = u.Children[0]
	}

	// Rule 1: AnyScope is the identity.
	if _, ok := x.(AnyScope); ok {
		return y
	}
	if _, ok := y.(AnyScope); ok {
		return x
	}

	tx, xIsTaint := x.(TaintScope)
	ty, yIsTaint := y.(TaintScope)
	ex, xIsExact := x.(ExactScope)
	ey, yIsExact := y.(ExactScope)

	switch {
	case xIsTaint && yIsTaint:
		// Rule 3: nested taint scopes flatten, taint sets union.
		inner := c.constrain(tx.Inner, ty.Inner)
		if IsInvalid(inner) {
			return InvalidScope{Left: x, Right: y}
		}
		return TaintScope{Inner: inner, Taints: unionTaints(tx.Taints, ty.Taints)}

	case xIsTaint && yIsExact:
		// Rule 4.
		return c.constrainTaintExact(tx, ey, x, y)
	case yIsTaint && xIsExact:
		return c.constrainTaintExact(ty, ex, x, y)

	case xIsTaint:
		// Rule 2: y is neither Taint nor Exact.
		inner := c.constrain(tx.Inner, y)
		if IsInvalid(inner) {
			return InvalidScope{Left: x, Right: y}
		}
		return TaintScope{Inner: inner, Taints: tx.Taints}
	case yIsTaint:
		inner := c.constrain(x, ty.Inner)
		if IsInvalid(inner) {
			return InvalidScope{Left: x, Right: y}
		}
		return TaintScope{Inner: inner, Taints: ty.Taints}
	}

	ux, xIsUnion := x.(UnionScope)
	uy, yIsUnion := y.(UnionScope)
	if xIsUnion || yIsUnion {
		// Rules 5 and 6: distribute over the union(s).
		left := ux.Children
		if !xIsUnion {
			left = []Scope{x}
		}
		right := uy.Children
		if !yIsUnion {
			right = []Scope{y}
		}
		return c.constrainUnions(left, right, x, y)
	}

	// Rules 7-12: NodeScope/ProcessScope/ExactScope, normalized widest-first.
	return c.constrainLeaf(x, y)
}

// constrainTaintExact implements rule 4: every taint in t must accept
// e.Proc, then the inner scope still has to meet the ExactScope.
func (c *Context) constrainTaintExact(t TaintScope, e ExactScope, origX, origY Scope) Scope {
	for _, tt := range t.Taints {
		if !c.matchTaint(tt, e.Proc) {
			return InvalidScope{Left: origX, Right: origY}
		}
	}
	inner := c.constrain(t.Inner, e)
	if IsInvalid(inner) {
		return InvalidScope{Left: origX, Right: origY}
	}
	return inner
}

// constrainUnions implements rules 5 and 6: the cartesian meet of left
// and right, invalids filtered, duplicates (by Equal) removed, order
// preserved left-major then right-minor.
func (c *Context) constrainUnions(left, right []Scope, origX, origY Scope) Scope {
	var results []Scope
	for _, l := range left {
		for _, r := range right {
			m := c.constrain(l, r)
			if IsInvalid(m) {
				continue
			}
			if !containsScope(results, m) {
				results = append(results, m)
			}
		}
	}
	switch len(results) {
	case 0:
		return InvalidScope{Left: origX, Right: origY}
	case 1:
		return results[0]
	default:
		return UnionScope{Children: results}
	}
}

// leafRank orders the three "resolved" variants from widest to narrowest:
// NodeScope < ProcessScope < ExactScope.
func leafRank(s Scope) int {
	switch s.(type) {
	case NodeScope:
		return 0
	case ProcessScope:
		return 1
	case ExactScope:
		return 2
	default:
		panic("scope: constrainLeaf given an unexpected variant")
	}
}

// constrainLeaf implements rules 7-12 over NodeScope/ProcessScope/
// ExactScope, after normalizing so the wider operand is inspected first.
func (c *Context) constrainLeaf(x, y Scope) Scope {
	wider, narrower := x, y
	if leafRank(y) < leafRank(x) {
		wider, narrower = y, x
	}

	switch w := wider.(type) {
	case NodeScope:
		switch n := narrower.(type) {
		case NodeScope:
			if w.UUID == n.UUID {
				return w
			}
		case ProcessScope:
			if w.UUID == n.Parent.UUID {
				return n
			}
		case ExactScope:
			if w.UUID == n.Parent.Parent.UUID {
				return n
			}
		}
	case ProcessScope:
		switch n := narrower.(type) {
		case ProcessScope:
			if Equal(w, n) {
				return w
			}
		case ExactScope:
			if Equal(w, n.Parent) {
				return n
			}
		}
	case ExactScope:
		if n, ok := narrower.(ExactScope); ok && Equal(w, n) {
			return w
		}
	}
	return InvalidScope{Left: x, Right: y}
}
