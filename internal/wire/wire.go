// Package wire implements the binary wire form scopes use to cross
// worker boundaries (spec.md §6): each Scope/Taint/Processor variant
// carries a stable numeric tag, payloads are otherwise self-describing,
// and an unrecognized incoming variant degrades to
// scope.UnknownScope rather than aborting the decoder.
package wire

import (
	"fmt"

	"github.com/google/uuid"
	msgpack "gopkg.in/vmihailenco/msgpack.v2"

	scopecore "github.com/latticesched/scope/internal/core/scope"
	"github.com/latticesched/scope/internal/proc"
)

// Tag is the stable numeric discriminant for a Scope variant on the
// wire. Values are part of the wire contract and must never be
// renumbered once shipped.
type Tag uint8

const (
	TagAny Tag = iota + 1
	TagTaint
	TagUnion
	TagNode
	TagProcess
	TagExact
	TagInvalid
)

type taintKind uint8

const (
	taintDefaultEnabled taintKind = iota + 1
	taintProcessorType
	taintExt
)

// wireTaint is the self-describing payload for one Taint.
type wireTaint struct {
	Kind       taintKind `msgpack:"kind"`
	VariantTag string    `msgpack:"variant_tag,omitempty"`
	ExtTag     string    `msgpack:"ext_tag,omitempty"`
	ExtData    []byte    `msgpack:"ext_data,omitempty"`
}

// wireProcessor is the self-describing payload for one Processor,
// encoded via its registered codec (ProcessorCodec).
type wireProcessor struct {
	Variant string `msgpack:"variant"`
	Payload []byte `msgpack:"payload"`
}

// wireScope is the on-the-wire envelope for one Scope node. Only the
// fields relevant to Tag are populated.
type wireScope struct {
	Tag      Tag          `msgpack:"tag"`
	Inner    *wireScope   `msgpack:"inner,omitempty"`
	Taints   []wireTaint  `msgpack:"taints,omitempty"`
	Children []wireScope  `msgpack:"children,omitempty"`
	NodeUUID string       `msgpack:"node,omitempty"`
	Worker   int64        `msgpack:"worker,omitempty"`
	Proc     *wireProcessor `msgpack:"proc,omitempty"`
	Left     *wireScope   `msgpack:"left,omitempty"`
	Right    *wireScope   `msgpack:"right,omitempty"`
}

// ProcessorCodec encodes/decodes one processor variant's payload. The
// variant's own Tag identifies which codec applies.
type ProcessorCodec struct {
	Encode func(p proc.Processor) ([]byte, error)
	Decode func(payload []byte) (proc.Processor, error)
}

var processorCodecs = map[string]ProcessorCodec{}

// RegisterProcessorCodec publishes the wire codec for a processor
// variant registered under name (see proc.RegisterVariant). Built-in
// OSProc/ThreadProc codecs are registered by this package's init.
func RegisterProcessorCodec(name string, codec ProcessorCodec) {
	processorCodecs[name] = codec
}

func init() {
	RegisterProcessorCodec("osproc", ProcessorCodec{
		Encode: func(p proc.Processor) ([]byte, error) {
			return msgpack.Marshal(int64(p.(proc.OSProc).WorkerID))
		},
		Decode: func(payload []byte) (proc.Processor, error) {
			var wid int64
			if err := msgpack.Unmarshal(payload, &wid); err != nil {
				return nil, err
			}
			return proc.OSProc{WorkerID: proc.WorkerID(wid)}, nil
		},
	})
	RegisterProcessorCodec("threadproc", ProcessorCodec{
		Encode: func(p proc.Processor) ([]byte, error) {
			tp := p.(proc.ThreadProc)
			return msgpack.Marshal([]int64{int64(tp.WorkerID), int64(tp.TID)})
		},
		Decode: func(payload []byte) (proc.Processor, error) {
			var pair []int64
			if err := msgpack.Unmarshal(payload, &pair); err != nil {
				return nil, err
			}
			if len(pair) != 2 {
				return nil, fmt.Errorf("wire: malformed threadproc payload")
			}
			return proc.ThreadProc{WorkerID: proc.WorkerID(pair[0]), TID: int(pair[1])}, nil
		},
	})
}

// Encode serializes s into its binary wire form.
func Encode(s scopecore.Scope) ([]byte, error) {
	w, err := toWire(s)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(w)
}

// Decode deserializes data back into a Scope. An unrecognized Tag or
// processor/taint variant name does not error: it yields
// scope.UnknownScope, which Constrain treats as conflicting with
// anything (spec.md §6).
func Decode(data []byte) (scopecore.Scope, error) {
	var w wireScope
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(w), nil
}

func toWire(s scopecore.Scope) (wireScope, error) {
	switch x := s.(type) {
	case scopecore.AnyScope:
		return wireScope{Tag: TagAny}, nil
	case scopecore.TaintScope:
		inner, err := toWire(x.Inner)
		if err != nil {
			return wireScope{}, err
		}
		taints := make([]wireTaint, len(x.Taints))
		for i, t := range x.Taints {
			wt, err := toWireTaint(t)
			if err != nil {
				return wireScope{}, err
			}
			taints[i] = wt
		}
		return wireScope{Tag: TagTaint, Inner: &inner, Taints: taints}, nil
	case scopecore.UnionScope:
		children := make([]wireScope, len(x.Children))
		for i, c := range x.Children {
			wc, err := toWire(c)
			if err != nil {
				return wireScope{}, err
			}
			children[i] = wc
		}
		return wireScope{Tag: TagUnion, Children: children}, nil
	case scopecore.NodeScope:
		return wireScope{Tag: TagNode, NodeUUID: x.UUID.String()}, nil
	case scopecore.ProcessScope:
		return wireScope{Tag: TagProcess, NodeUUID: x.Parent.UUID.String(), Worker: int64(x.Worker)}, nil
	case scopecore.ExactScope:
		wp, err := toWireProcessor(x.Proc)
		if err != nil {
			return wireScope{}, err
		}
		return wireScope{
			Tag:      TagExact,
			NodeUUID: x.Parent.Parent.UUID.String(),
			Worker:   int64(x.Parent.Worker),
			Proc:     &wp,
		}, nil
	default:
		return wireScope{}, fmt.Errorf("wire: cannot encode scope variant %T", s)
	}
}

func fromWire(w wireScope) scopecore.Scope {
	switch w.Tag {
	case TagAny:
		return scopecore.AnyScope{}
	case TagTaint:
		if w.Inner == nil {
			return scopecore.UnknownScope{WireTag: uint8(w.Tag)}
		}
		// An unrecognized part anywhere makes the whole scope UnknownScope;
		// fromWireTaint reports an unrecognized taint as a
		// ProcessorTypeTaint with a nil VariantTag.
		inner := fromWire(*w.Inner)
		if _, ok := inner.(scopecore.UnknownScope); ok {
			return inner
		}
		taints := make([]scopecore.Taint, 0, len(w.Taints))
		for _, wt := range w.Taints {
			t := fromWireTaint(wt)
			if pt, ok := t.(scopecore.ProcessorTypeTaint); ok && pt.VariantTag == nil {
				return scopecore.UnknownScope{WireTag: uint8(w.Tag)}
			}
			taints = append(taints, t)
		}
		return scopecore.TaintScope{Inner: inner, Taints: taints}
	case TagUnion:
		children := make([]scopecore.Scope, 0, len(w.Children))
		for _, wc := range w.Children {
			c := fromWire(wc)
			if _, ok := c.(scopecore.UnknownScope); ok {
				return c
			}
			children = append(children, c)
		}
		return scopecore.UnionScope{Children: children}
	case TagNode:
		uuid, err := parseUUID(w.NodeUUID)
		if err != nil {
			return scopecore.UnknownScope{WireTag: uint8(w.Tag)}
		}
		return scopecore.NodeScope{UUID: uuid}
	case TagProcess:
		uuid, err := parseUUID(w.NodeUUID)
		if err != nil {
			return scopecore.UnknownScope{WireTag: uint8(w.Tag)}
		}
		return scopecore.ProcessScope{
			Parent: scopecore.NodeScope{UUID: uuid},
			Worker: proc.WorkerID(w.Worker),
		}
	case TagExact:
		uuid, err := parseUUID(w.NodeUUID)
		if err != nil || w.Proc == nil {
			return scopecore.UnknownScope{WireTag: uint8(w.Tag)}
		}
		p, ok := fromWireProcessor(*w.Proc)
		if !ok {
			return scopecore.UnknownScope{WireTag: uint8(w.Tag)}
		}
		return scopecore.ExactScope{
			Parent: scopecore.ProcessScope{
				Parent: scopecore.NodeScope{UUID: uuid},
				Worker: proc.WorkerID(w.Worker),
			},
			Proc: p,
		}
	default:
		return scopecore.UnknownScope{WireTag: uint8(w.Tag)}
	}
}

func toWireTaint(t scopecore.Taint) (wireTaint, error) {
	switch tt := t.(type) {
	case scopecore.DefaultEnabledTaint:
		return wireTaint{Kind: taintDefaultEnabled}, nil
	case scopecore.ProcessorTypeTaint:
		return wireTaint{Kind: taintProcessorType, VariantTag: proc.TagName(tt.VariantTag)}, nil
	case scopecore.ExtTaint:
		data, err := msgpack.Marshal(tt.Data)
		if err != nil {
			return wireTaint{}, err
		}
		return wireTaint{Kind: taintExt, ExtTag: scopecore.TaintTagName(tt.TagRef), ExtData: data}, nil
	default:
		return wireTaint{}, fmt.Errorf("wire: cannot encode taint variant %T", t)
	}
}

func fromWireTaint(w wireTaint) scopecore.Taint {
	switch w.Kind {
	case taintDefaultEnabled:
		return scopecore.DefaultEnabledTaint{}
	case taintProcessorType:
		tag, ok := proc.LookupVariant(w.VariantTag)
		if !ok {
			return scopecore.ProcessorTypeTaint{}
		}
		return scopecore.ProcessorTypeTaint{VariantTag: tag}
	case taintExt:
		tag, ok := scopecore.LookupTaintVariant(w.ExtTag)
		if !ok {
			return scopecore.ProcessorTypeTaint{}
		}
		var data any
		_ = msgpack.Unmarshal(w.ExtData, &data)
		return scopecore.ExtTaint{TagRef: tag, Data: data}
	default:
		return scopecore.ProcessorTypeTaint{}
	}
}

func toWireProcessor(p proc.Processor) (wireProcessor, error) {
	name := proc.TagName(p.Tag())
	codec, ok := processorCodecs[name]
	if !ok {
		return wireProcessor{}, fmt.Errorf("wire: no codec registered for processor variant %q", name)
	}
	payload, err := codec.Encode(p)
	if err != nil {
		return wireProcessor{}, err
	}
	return wireProcessor{Variant: name, Payload: payload}, nil
}

func fromWireProcessor(w wireProcessor) (proc.Processor, bool) {
	codec, ok := processorCodecs[w.Variant]
	if !ok {
		return nil, false
	}
	p, err := codec.Decode(w.Payload)
	if err != nil {
		return nil, false
	}
	return p, true
}

func parseUUID(s string) (scopecore.NodeUUID, error) {
	return uuid.Parse(s)
}

// EncodeProcessor serializes a single Processor using its registered
// codec, for transports that move bare processors rather than whole
// Scope trees — notably Registry.Children's grpc fallback.
func EncodeProcessor(p proc.Processor) (variant string, payload []byte, err error) {
	wp, err := toWireProcessor(p)
	if err != nil {
		return "", nil, err
	}
	return wp.Variant, wp.Payload, nil
}

// DecodeProcessor is EncodeProcessor's inverse. ok is false if variant
// has no registered codec or payload fails to decode.
func DecodeProcessor(variant string, payload []byte) (p proc.Processor, ok bool) {
	return fromWireProcessor(wireProcessor{Variant: variant, Payload: payload})
}
