package server

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ChuLiYu/drf-sim/internal/config"
	"github.com/ChuLiYu/drf-sim/internal/controller"
)

func newController(t *testing.T, name string) *controller.Controller {
	t.Helper()
	s, err := config.Builtin(name)
	require.NoError(t, err)
	c, err := controller.New(s, controller.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// startInspector serves ctrl over an in-memory listener and returns a client
func startInspector(t *testing.T, ctrl *controller.Controller) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, lis, ctrl) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		assert.NoError(t, <-done)
	})
	return NewClient(conn)
}

func TestSnapshot(t *testing.T) {
	ctrl := newController(t, "drf-share")
	require.NoError(t, ctrl.Tick(context.Background(), 10))
	client := startInspector(t, ctrl)

	r, err := client.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ctrl.RunID(), r.RunID)
	assert.Equal(t, int64(10), r.Ticks)
	assert.InDelta(t, 2.0/3, r.Share("default", "A"), 1e-9)
	assert.InDelta(t, 2.0/3, r.Share("default", "B"), 1e-9)

	a, ok := r.Agent("default")
	require.True(t, ok)
	assert.Equal(t, []float64{9, 14}, a.Consumed.Values())
}

func TestScenario(t *testing.T) {
	client := startInspector(t, newController(t, "short-lived"))

	s, err := client.Scenario(context.Background())
	require.NoError(t, err)

	want, err := config.Builtin("short-lived")
	require.NoError(t, err)
	assert.Equal(t, want, s)
}

func TestTick(t *testing.T) {
	ctrl := newController(t, "drf-share")
	client := startInspector(t, ctrl)

	now, err := client.Tick(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), now)

	now, err = client.Tick(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), now)
	assert.Equal(t, int64(5), ctrl.Now())
}

func TestTickInvalidArgument(t *testing.T) {
	client := startInspector(t, newController(t, "drf-share"))

	for _, n := range []int{0, -1, MaxTicksPerCall + 1} {
		_, err := client.Tick(context.Background(), n)
		assert.Equal(t, codes.InvalidArgument, status.Code(err), "ticks=%d", n)
	}
}

func TestTickMissingField(t *testing.T) {
	srv := NewServer(newController(t, "drf-share"))
	_, err := srv.Tick(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestTickAfterClose(t *testing.T) {
	ctrl := newController(t, "drf-share")
	client := startInspector(t, ctrl)
	require.NoError(t, ctrl.Close())

	_, err := client.Tick(context.Background(), 1)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}
