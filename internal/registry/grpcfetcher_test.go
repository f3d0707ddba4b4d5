package registry

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/latticesched/scope/internal/proc"
	"github.com/latticesched/scope/internal/wire"
)

// fakeChildrenServer answers every RPC (regardless of method name) with
// a single ThreadProc encoded the same way internal/wire would, so the
// client-side codec round trip is the thing under test, not a real
// scheduler's RPC surface.
func fakeChildrenServer(t *testing.T) *grpc.ClientConn {
	t.Helper()

	variant, payload, err := wire.EncodeProcessor(proc.ThreadProc{WorkerID: 1, TID: 2})
	require.NoError(t, err)

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
		var req childrenRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		return stream.SendMsg(&childrenResponse{
			Processors: []wireProcessorRef{{Variant: variant, Payload: payload}},
		})
	}))

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCChildrenFetcherRoundTrip(t *testing.T) {
	conn := fakeChildrenServer(t)
	fetcher := &GRPCChildrenFetcher{Conn: conn}

	got, err := fetcher.FetchChildren(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	tp, ok := got[0].(proc.ThreadProc)
	require.True(t, ok)
	assert.Equal(t, proc.ThreadProc{WorkerID: 1, TID: 2}, tp)
}
