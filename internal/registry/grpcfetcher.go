package registry

import (
	"context"
	"fmt"

	msgpack "gopkg.in/vmihailenco/msgpack.v2"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/latticesched/scope/internal/proc"
	"github.com/latticesched/scope/internal/wire"
)

const grpcCodecName = "scope-msgpack"

func init() {
	encoding.RegisterCodec(msgpackCodec{})
}

// msgpackCodec lets a ChildrenFetcher call an ordinary grpc.ClientConn
// without a generated protobuf service: the requests this module sends
// are self-describing msgpack, not proto.Message, so the default
// grpc codec can't carry them. grpc.CallContentSubtype selects this
// one per-call instead.
type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error)     { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (msgpackCodec) Name() string                      { return grpcCodecName }

// DefaultChildrenMethod is the RPC name GRPCChildrenFetcher invokes when
// Method is left unset.
const DefaultChildrenMethod = "/latticesched.scope.registry.v1.Registry/Children"

// GRPCChildrenFetcher implements ChildrenFetcher over an existing
// grpc.ClientConn — the remote-call transport the ChildrenFetcher seam
// (registry.go) is modeled on. Callers own Conn's lifecycle.
type GRPCChildrenFetcher struct {
	Conn   *grpc.ClientConn
	Method string
}

type childrenRequest struct {
	Worker int64 `msgpack:"worker"`
}

type wireProcessorRef struct {
	Variant string `msgpack:"variant"`
	Payload []byte `msgpack:"payload"`
}

type childrenResponse struct {
	Processors []wireProcessorRef `msgpack:"processors"`
}

// FetchChildren issues the Children RPC and decodes each returned
// processor via its registered wire codec (internal/wire), skipping
// (and logging nothing further for, since the caller's Registry already
// logs the overall failure path) any processor variant this binary
// doesn't recognize.
func (f *GRPCChildrenFetcher) FetchChildren(ctx context.Context, worker proc.WorkerID) ([]proc.Processor, error) {
	method := f.Method
	if method == "" {
		method = DefaultChildrenMethod
	}

	req := &childrenRequest{Worker: int64(worker)}
	resp := &childrenResponse{}
	if err := f.Conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(grpcCodecName)); err != nil {
		return nil, fmt.Errorf("registry: grpc Children(worker=%d): %w", worker, err)
	}

	out := make([]proc.Processor, 0, len(resp.Processors))
	for _, ref := range resp.Processors {
		p, ok := wire.DecodeProcessor(ref.Variant, ref.Payload)
		if !ok {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
