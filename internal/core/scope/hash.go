package scope

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// Hash returns a hash consistent with Equal: two equal scopes always
// hash the same, including across UnionScope child reordering and
// TaintScope taint reordering. It combines children via a sorted-digest
// list rather than position-dependent folding so the multiset, not the
// sequence, determines the result.
func Hash(s Scope) uint64 {
	h := fnv.New64a()
	writeHash(h, s)
	return h.Sum64()
}

func writeHash(h interface{ Write([]byte) (int, error) }, s Scope) {
	switch x := s.(type) {
	case AnyScope:
		fmt.Fprint(h, "any")
	case NodeScope:
		fmt.Fprintf(h, "node:%s", x.UUID)
	case ProcessScope:
		fmt.Fprintf(h, "proc:%d|", x.Worker)
		writeHash(h, x.Parent)
	case ExactScope:
		fmt.Fprintf(h, "exact:%s|", x.Proc)
		writeHash(h, x.Parent)
	case TaintScope:
		fmt.Fprint(h, "taint[")
		writeSortedDigests(h, x.Taints, func(t Taint) string { return t.String() })
		fmt.Fprint(h, "]|")
		writeHash(h, x.Inner)
	case UnionScope:
		fmt.Fprint(h, "union[")
		digests := make([]string, len(x.Children))
		for i, c := range x.Children {
			digests[i] = fmt.Sprintf("%x", Hash(c))
		}
		sort.Strings(digests)
		for _, d := range digests {
			fmt.Fprintf(h, "%s,", d)
		}
		fmt.Fprint(h, "]")
	case InvalidScope:
		fmt.Fprint(h, "invalid[")
		l := fmt.Sprintf("%x", Hash(x.Left))
		r := fmt.Sprintf("%x", Hash(x.Right))
		if l > r {
			l, r = r, l
		}
		fmt.Fprintf(h, "%s,%s]", l, r)
	default:
		fmt.Fprintf(h, "unknown:%T", s)
	}
}

func writeSortedDigests(h interface{ Write([]byte) (int, error) }, taints []Taint, repr func(Taint) string) {
	strs := make([]string, len(taints))
	for i, t := range taints {
		strs[i] = repr(t)
	}
	sort.Strings(strs)
	for _, s := range strs {
		fmt.Fprintf(h, "%s,", s)
	}
}
