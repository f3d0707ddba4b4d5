package scope

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/latticesched/scope/internal/proc"
)

// TaintTag is the opaque identity of a user-registered taint variant,
// allocated by RegisterTaintVariant. Like proc.Tag, equality is pointer
// identity rather than a reflected type name.
type TaintTag struct {
	name string
}

func (t *TaintTag) String() string {
	if t == nil {
		return "<nil-taint-tag>"
	}
	return t.name
}

var (
	taintVariantMu   sync.Mutex
	taintVariantSeen = map[string]*TaintTag{}
)

// RegisterTaintVariant allocates (or, on repeat calls with the same name,
// returns) the Tag for a user taint variant. Registration is
// publish-once, matching proc.RegisterVariant.
func RegisterTaintVariant(name string) *TaintTag {
	taintVariantMu.Lock()
	defer taintVariantMu.Unlock()
	if t, ok := taintVariantSeen[name]; ok {
		return t
	}
	t := &TaintTag{name: name}
	taintVariantSeen[name] = t
	return t
}

// TaintTagName returns the registration name behind tag, for wire
// encoding.
func TaintTagName(t *TaintTag) string {
	if t == nil {
		return ""
	}
	return t.name
}

// LookupTaintVariant resolves a registration name back to its TaintTag,
// for wire decoding.
func LookupTaintVariant(name string) (*TaintTag, bool) {
	taintVariantMu.Lock()
	defer taintVariantMu.Unlock()
	t, ok := taintVariantSeen[name]
	return t, ok
}

// Taint is a deferred predicate over a concrete Processor, only
// resolvable once a TaintScope meets an ExactScope.
type Taint interface {
	taintNode()
	Tag() *TaintTag
	Equal(other Taint) bool
	fmt.Stringer
}

var (
	defaultEnabledTag = RegisterTaintVariant("default-enabled")
	processorTypeTag  = RegisterTaintVariant("processor-type")
)

// DefaultEnabledTaint matches processors whose DefaultEnabled() is true.
type DefaultEnabledTaint struct{}

func (DefaultEnabledTaint) taintNode()      {}
func (DefaultEnabledTaint) Tag() *TaintTag  { return defaultEnabledTag }
func (DefaultEnabledTaint) String() string  { return "DefaultEnabled" }
func (DefaultEnabledTaint) Equal(o Taint) bool {
	_, ok := o.(DefaultEnabledTaint)
	return ok
}

// ProcessorTypeTaint matches processors whose registered variant tag
// equals VariantTag, irrespective of payload.
type ProcessorTypeTaint struct {
	VariantTag *proc.Tag
}

func (ProcessorTypeTaint) taintNode()     {}
func (ProcessorTypeTaint) Tag() *TaintTag { return processorTypeTag }
func (t ProcessorTypeTaint) String() string {
	return fmt.Sprintf("ProcessorType(%s)", t.VariantTag)
}
func (t ProcessorTypeTaint) Equal(o Taint) bool {
	other, ok := o.(ProcessorTypeTaint)
	return ok && other.VariantTag == t.VariantTag
}

// ExtTaint is the envelope user-registered taint variants are carried in.
// TagRef identifies which registered matcher function applies; Data is
// opaque payload passed to that function.
type ExtTaint struct {
	TagRef *TaintTag
	Data   any
}

func (ExtTaint) taintNode()     {}
func (t ExtTaint) Tag() *TaintTag { return t.TagRef }
func (t ExtTaint) String() string { return fmt.Sprintf("Ext(%s, %v)", t.TagRef, t.Data) }
func (t ExtTaint) Equal(o Taint) bool {
	other, ok := o.(ExtTaint)
	if !ok || other.TagRef != t.TagRef {
		return false
	}
	// reflect.DeepEqual is the only sensible comparator for an opaque
	// user payload of unknown shape; no registered match function
	// implies an Equal override, so this is the fallback.
	return reflect.DeepEqual(t.Data, other.Data)
}

// TaintMatchFunc decides whether an ExtTaint's Data matches a concrete
// processor.
type TaintMatchFunc func(data any, p proc.Processor) bool

// matchTaint resolves t against p. DefaultEnabledTaint and
// ProcessorTypeTaint are resolved directly; any other Taint dispatches
// through the Context's registration table keyed by Tag.
func (c *Context) matchTaint(t Taint, p proc.Processor) bool {
	c.stats.TaintEvals.Inc()
	switch tt := t.(type) {
	case DefaultEnabledTaint:
		return p.DefaultEnabled()
	case ProcessorTypeTaint:
		return p.Tag() == tt.VariantTag
	case ExtTaint:
		c.mu.RLock()
		fn, ok := c.taintFns[tt.TagRef]
		c.mu.RUnlock()
		if !ok {
			return false
		}
		return fn(tt.Data, p)
	default:
		return false
	}
}

// RegisterTaint publishes the matcher for a user taint variant tag. Safe
// to call concurrently with Constrain; appends are visible to subsequent
// readers but registration is not intended to race with itself for the
// same tag.
func (c *Context) RegisterTaint(tag *TaintTag, fn TaintMatchFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taintFns[tag] = fn
}

func unionTaints(a, b []Taint) []Taint {
	result := append([]Taint(nil), a...)
	for _, t := range b {
		if !containsTaint(result, t) {
			result = append(result, t)
		}
	}
	return result
}

func containsTaint(set []Taint, t Taint) bool {
	for _, s := range set {
		if s.Equal(t) {
			return true
		}
	}
	return false
}

func taintSetEqual(a, b []Taint) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
outer:
	for _, ta := range a {
		for i, tb := range b {
			if used[i] {
				continue
			}
			if ta.Equal(tb) {
				used[i] = true
				continue outer
			}
		}
		return false
	}
	return true
}
