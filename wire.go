package scope

import "github.com/latticesched/scope/internal/wire"

// Marshal encodes s into the binary wire form scopes use crossing
// worker boundaries (spec.md §6).
func Marshal(s Scope) ([]byte, error) { return wire.Encode(s) }

// Unmarshal decodes data back into a Scope. An unrecognized variant
// decodes to an UnknownScope rather than failing, per spec.md §6; it
// will conflict with anything Constrain meets it against.
func Unmarshal(data []byte) (Scope, error) { return wire.Decode(data) }

// RegisterProcessorCodec publishes the wire codec for a user processor
// variant registered under name (see RegisterProcessorVariant).
func RegisterProcessorCodec(name string, encode func(Processor) ([]byte, error), decode func([]byte) (Processor, error)) {
	wire.RegisterProcessorCodec(name, wire.ProcessorCodec{Encode: encode, Decode: decode})
}
