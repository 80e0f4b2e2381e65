package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ChuLiYu/drf-sim/internal/config"
	"github.com/ChuLiYu/drf-sim/internal/report"
)

// Client Inspector 服務的客戶端
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial connects to address without transport security.
func Dial(address string) (*Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("fail to connect to %v: %w", address, err)
	}
	return NewClient(conn), conn, nil
}

// Snapshot fetches the current report.
func (c *Client) Snapshot(ctx context.Context) (*report.Report, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, snapshotMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var r report.Report
	if err := fromStruct(out, &r); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &r, nil
}

// Scenario fetches the running scenario.
func (c *Client) Scenario(ctx context.Context) (*config.Scenario, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, scenarioMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var s config.Scenario
	if err := fromStruct(out, &s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return &s, nil
}

// Tick advances the remote simulation and returns its new time.
func (c *Client) Tick(ctx context.Context, n int) (int64, error) {
	in, err := structpb.NewStruct(map[string]any{"ticks": float64(n)})
	if err != nil {
		return 0, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, tickMethod, in, out); err != nil {
		return 0, err
	}
	return int64(out.GetFields()["now"].GetNumberValue()), nil
}
