package core

import (
	"context"
	"net"
	"testing"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/region"
	"github.com/go-gl/mathgl/mgl64"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type staticGuard struct {
	denied  map[string]bool
	records []region.Record
}

func (g staticGuard) Allowed(player string, world string, pos mgl64.Vec3, flag string) bool {
	return !g.denied[flag]
}

func (g staticGuard) RegionRecords() []region.Record {
	return g.records
}

func newTestClient(t *testing.T, guard RegionGuard) (*GuardClient, *MinecraftPluginManager) {
	t.Helper()
	pm, _ := newTestManager(t)
	lis := bufconn.Listen(1 << 20)
	server := NewGuardServer(pm, guard)
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewGuardClient(conn), pm
}

func TestRPCCheck(t *testing.T) {
	client, _ := newTestClient(t, staticGuard{denied: map[string]bool{"pvp": true}})
	ctx := context.Background()
	allowed, err := client.Check(ctx, "Steve", "overworld", mgl64.Vec3{1, 2, 3}, "pvp")
	if err != nil {
		t.Fatal(err)
	}
	if allowed {
		t.Error("pvp allowed")
	}
	allowed, err = client.Check(ctx, "Steve", "overworld", mgl64.Vec3{1, 2, 3}, "break")
	if err != nil || !allowed {
		t.Errorf("break: allowed=%v err=%v", allowed, err)
	}
	_, err = client.Check(ctx, "Steve", "", mgl64.Vec3{}, "break")
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("missing world: %v", err)
	}
}

func TestRPCEventAndDispatch(t *testing.T) {
	client, pm := newTestClient(t, staticGuard{})
	pm.RegisterEventHandler(nil, func(e *pluginabi.Event) {
		if e.Type == pluginabi.EventChat {
			e.Format = "<" + e.Player + "> " + e.Message
		}
		if e.Type == pluginabi.EventItemUse && e.Item == "ender_pearl" {
			e.Cancel()
		}
	})
	ctx := context.Background()

	chat := &pluginabi.Event{Type: pluginabi.EventChat, Player: "Steve", Message: "hi"}
	if err := client.Event(ctx, chat); err != nil {
		t.Fatal(err)
	}
	if chat.Cancelled() || chat.Format != "<Steve> hi" {
		t.Errorf("chat: cancelled=%v format=%q", chat.Cancelled(), chat.Format)
	}
	pearl := &pluginabi.Event{Type: pluginabi.EventItemUse, Player: "Steve", Item: "ender_pearl"}
	if err := client.Event(ctx, pearl); err != nil {
		t.Fatal(err)
	}
	if !pearl.Cancelled() {
		t.Error("pearl not cancelled")
	}
	err := client.Event(ctx, &pluginabi.Event{Type: "explode"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("unknown type: %v", err)
	}

	if err := client.Dispatch(ctx, "", "help"); err != nil {
		t.Errorf("dispatch: %v", err)
	}
	if err := client.Dispatch(ctx, "Steve", ""); status.Code(err) != codes.InvalidArgument {
		t.Errorf("empty line: %v", err)
	}
}

func TestRPCRegions(t *testing.T) {
	records := []region.Record{
		region.New("spawn", "overworld", "Admin", region.BlockPos{10, 20, 30}, region.BlockPos{-10, 0, 5}, region.DefaultPermissions(), true).Record(),
	}
	client, _ := newTestClient(t, staticGuard{records: records})
	got, err := client.Regions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != records[0] {
		t.Errorf("regions %+v, want %+v", got, records)
	}
}
