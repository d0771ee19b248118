package core

import (
	"context"
	"encoding/json"
	"fmt"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/region"
	"github.com/go-gl/mathgl/mgl64"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type GuardClient struct {
	cc grpc.ClientConnInterface
}

func NewGuardClient(cc grpc.ClientConnInterface) *GuardClient {
	return &GuardClient{cc: cc}
}

// Dial connects to a running daemon. The returned conn must be closed by the caller.
func Dial(address string) (*GuardClient, *grpc.ClientConn, error) {
	var opts []grpc.DialOption
	opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewGuardClient(conn), conn, nil
}

func (gc *GuardClient) Check(ctx context.Context, player string, world string, pos mgl64.Vec3, flag string, opts ...grpc.CallOption) (bool, error) {
	in, err := structpb.NewStruct(map[string]any{
		"player": player,
		"world":  world,
		"x":      pos.X(),
		"y":      pos.Y(),
		"z":      pos.Z(),
		"flag":   flag,
	})
	if err != nil {
		return false, err
	}
	out := new(structpb.Struct)
	if err := gc.cc.Invoke(ctx, "/guard.v1.Guard/Check", in, out, opts...); err != nil {
		return false, err
	}
	return out.GetFields()["allowed"].GetBoolValue(), nil
}

// Event fires event on the daemon and copies the outcome back into it.
func (gc *GuardClient) Event(ctx context.Context, event *pluginabi.Event, opts ...grpc.CallOption) error {
	in, err := structpb.NewStruct(map[string]any{
		"type":    string(event.Type),
		"player":  event.Player,
		"target":  event.Target,
		"world":   event.World,
		"x":       event.Pos.X(),
		"y":       event.Pos.Y(),
		"z":       event.Pos.Z(),
		"yaw":     event.Yaw,
		"item":    event.Item,
		"cause":   event.Cause,
		"message": event.Message,
	})
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := gc.cc.Invoke(ctx, "/guard.v1.Guard/Event", in, out, opts...); err != nil {
		return err
	}
	if out.GetFields()["cancelled"].GetBoolValue() {
		event.Cancel()
	}
	event.Format = out.GetFields()["format"].GetStringValue()
	return nil
}

func (gc *GuardClient) Dispatch(ctx context.Context, player string, line string, opts ...grpc.CallOption) error {
	in, err := structpb.NewStruct(map[string]any{"player": player, "line": line})
	if err != nil {
		return err
	}
	return gc.cc.Invoke(ctx, "/guard.v1.Guard/Dispatch", in, new(emptypb.Empty), opts...)
}

func (gc *GuardClient) Regions(ctx context.Context, opts ...grpc.CallOption) ([]region.Record, error) {
	out := new(structpb.Struct)
	if err := gc.cc.Invoke(ctx, "/guard.v1.Guard/Regions", new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}
	data, err := out.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var resp regionsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode regions: %w", err)
	}
	return resp.Regions, nil
}
