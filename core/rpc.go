// Copyright 2024 bbaa
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/plugin/pluginabi"
	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/region"
	"github.com/fatih/color"
	"github.com/go-gl/mathgl/mgl64"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/stats"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// RegionGuard answers flag checks for the Check and Regions calls.
type RegionGuard interface {
	Allowed(player string, world string, pos mgl64.Vec3, flag string) bool
	RegionRecords() []region.Record
}

type GuardService interface {
	Check(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Event(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Dispatch(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Regions(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

func _Guard_Check_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GuardService).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/guard.v1.Guard/Check"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GuardService).Check(ctx, req.(*structpb.Struct))
	})
}

func _Guard_Event_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GuardService).Event(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/guard.v1.Guard/Event"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GuardService).Event(ctx, req.(*structpb.Struct))
	})
}

func _Guard_Dispatch_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GuardService).Dispatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/guard.v1.Guard/Dispatch"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GuardService).Dispatch(ctx, req.(*structpb.Struct))
	})
}

func _Guard_Regions_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GuardService).Regions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/guard.v1.Guard/Regions"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GuardService).Regions(ctx, req.(*emptypb.Empty))
	})
}

var GuardServiceDesc = grpc.ServiceDesc{
	ServiceName: "guard.v1.Guard",
	HandlerType: (*GuardService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: _Guard_Check_Handler},
		{MethodName: "Event", Handler: _Guard_Event_Handler},
		{MethodName: "Dispatch", Handler: _Guard_Dispatch_Handler},
		{MethodName: "Regions", Handler: _Guard_Regions_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "guard/v1/guard.proto",
}

type RPCHandler struct {
	server        *GuardServer
	clientCounter atomic.Uint64
}

type RPCConnInfo string

func (h *RPCHandler) TagConn(ctx context.Context, a *stats.ConnTagInfo) context.Context {
	id := h.clientCounter.Add(1)
	h.server.kPrintln(color.YellowString("客户端[%d]已连接: %s", id, a.RemoteAddr))
	return context.WithValue(ctx, RPCConnInfo("id"), id)
}

func (h *RPCHandler) HandleConn(c context.Context, s stats.ConnStats) {
	switch s.(type) {
	case *stats.ConnEnd:
		if clientId, ok := c.Value(RPCConnInfo("id")).(uint64); ok {
			h.server.kPrintln(color.YellowString("客户端[%d]已断开", clientId))
		}
	}
}

func (h *RPCHandler) TagRPC(ctx context.Context, s *stats.RPCTagInfo) context.Context {
	return ctx
}

func (h *RPCHandler) HandleRPC(context.Context, stats.RPCStats) {
}

// GuardServer exposes the plugin manager to the server-side intercept hook.
type GuardServer struct {
	pm     pluginabi.PluginManager
	guard  RegionGuard
	server *grpc.Server
}

func NewGuardServer(pm pluginabi.PluginManager, guard RegionGuard) *GuardServer {
	gs := &GuardServer{pm: pm, guard: guard}
	gs.server = grpc.NewServer(grpc.StatsHandler(&RPCHandler{server: gs}))
	gs.server.RegisterService(&GuardServiceDesc, gs)
	return gs
}

func (gs *GuardServer) kPrintln(a ...any) (n int, err error) {
	return gs.pm.Println(color.MagentaString("GuardRPC"), a...)
}

// Serve blocks until the listener fails or Stop is called.
func (gs *GuardServer) Serve(lis net.Listener) error {
	gs.kPrintln(color.GreenString("RPC 服务监听于 %s", lis.Addr()))
	return gs.server.Serve(lis)
}

func (gs *GuardServer) Stop() {
	gs.server.GracefulStop()
}

func stringField(s *structpb.Struct, key string) string {
	if v, ok := s.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func numberField(s *structpb.Struct, key string) float64 {
	if v, ok := s.GetFields()[key]; ok {
		return v.GetNumberValue()
	}
	return 0
}

func vecField(s *structpb.Struct) mgl64.Vec3 {
	return mgl64.Vec3{numberField(s, "x"), numberField(s, "y"), numberField(s, "z")}
}

func (gs *GuardServer) Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	world, flag := stringField(req, "world"), stringField(req, "flag")
	if world == "" || flag == "" {
		return nil, status.Error(codes.InvalidArgument, "world and flag are required")
	}
	if gs.guard == nil {
		return nil, status.Error(codes.Unavailable, "region guard not loaded")
	}
	allowed := gs.guard.Allowed(stringField(req, "player"), world, vecField(req), flag)
	return structpb.NewStruct(map[string]any{"allowed": allowed})
}

func (gs *GuardServer) Event(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	eventType := pluginabi.EventType(stringField(req, "type"))
	if !pluginabi.ValidEventType(eventType) {
		return nil, status.Errorf(codes.InvalidArgument, "unknown event type %q", eventType)
	}
	event := gs.pm.FireEvent(&pluginabi.Event{
		Type:    eventType,
		Player:  stringField(req, "player"),
		Target:  stringField(req, "target"),
		World:   stringField(req, "world"),
		Pos:     vecField(req),
		Yaw:     numberField(req, "yaw"),
		Item:    stringField(req, "item"),
		Cause:   stringField(req, "cause"),
		Message: stringField(req, "message"),
	})
	return structpb.NewStruct(map[string]any{
		"cancelled": event.Cancelled(),
		"format":    event.Format,
	})
}

func (gs *GuardServer) Dispatch(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	line := stringField(req, "line")
	if line == "" {
		return nil, status.Error(codes.InvalidArgument, "line is required")
	}
	player := stringField(req, "player")
	if player == "" {
		player = pluginabi.Console
	}
	gs.pm.Dispatch(player, line)
	return &emptypb.Empty{}, nil
}

type regionsResponse struct {
	Regions []region.Record `json:"regions"`
}

func (gs *GuardServer) Regions(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	resp := regionsResponse{Regions: []region.Record{}}
	if gs.guard != nil {
		resp.Regions = append(resp.Regions, gs.guard.RegionRecords()...)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
