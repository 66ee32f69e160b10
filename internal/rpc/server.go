// Package rpc exposes the chat engine as the gRPC service
// taskchat.v1.ChatService. Messages are google.protobuf.Struct values with
// the same fields as the HTTP JSON body.
package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"hound-taskchat/internal/chat"
	apperrors "hound-taskchat/shared/errors"
	"hound-taskchat/shared/idempotency"
	"hound-taskchat/shared/logging"
)

const (
	ServiceName    = "taskchat.v1.ChatService"
	sendFullMethod = "/" + ServiceName + "/Send"
)

// ChatServiceServer is the server API for ChatService.
type ChatServiceServer interface {
	Send(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// ChatServiceDesc describes ChatService for grpc.Server.RegisterService.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Send", Handler: sendHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "taskchat/v1/chat.proto",
}

func sendHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatServiceServer).Send(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: sendFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChatServiceServer).Send(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Send calls ChatService/Send on cc.
func Send(ctx context.Context, cc grpc.ClientConnInterface, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, sendFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Chatter runs one chat turn.
type Chatter interface {
	Handle(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// Server implements ChatService
type Server struct {
	chat   Chatter
	logger *logging.Logger
}

// New creates a new ChatService implementation
func New(c Chatter, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{chat: c, logger: logger}
}

// Send runs one chat turn.
func (s *Server) Send(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req chat.Request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed request")
	}
	if req.RequestID != "" {
		req.IdempotencyKey = idempotency.GenerateKey("grpc", req.UserID, req.RequestID)
	}

	resp, err := s.chat.Handle(ctx, req)
	if err != nil {
		var verr *apperrors.ValidationError
		if errors.As(err, &verr) {
			return nil, status.Error(codes.InvalidArgument, verr.Error())
		}
		s.logger.Error("Chat turn %s failed: %v", req.RequestID, err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	out, err := toStruct(resp)
	if err != nil {
		s.logger.Error("Failed to encode response %s: %v", resp.RequestID, err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// NewGRPCServer returns a grpc.Server with ChatService, health and
// reflection registered. The returned health server reports SERVING.
func NewGRPCServer(c Chatter, logger *logging.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	gs := grpc.NewServer(opts...)
	gs.RegisterService(&ChatServiceDesc, New(c, logger))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	// Enable reflection for debugging tools like grpcurl
	reflection.Register(gs)
	return gs, hs
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(in *structpb.Struct, v interface{}) error {
	if in == nil {
		return errors.New("nil request")
	}
	b, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
