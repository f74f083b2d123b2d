// Package rpc exposes the extraction engine as the gRPC service
// assay.v1.Extractor. Messages are google.protobuf.Struct so callers need no
// generated stubs: the request carries schema_version and content, the
// response mirrors the HTTP Result JSON.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/assay.report/internal/extract"
	"github.com/banshee-data/assay.report/internal/monitoring"
	"github.com/banshee-data/assay.report/internal/worker"
)

const (
	ServiceName       = "assay.v1.Extractor"
	extractFullMethod = "/" + ServiceName + "/Extract"
)

// ExtractorServer is the server API for the Extractor service.
type ExtractorServer interface {
	Extract(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Ensure Server implements the gRPC interface.
var _ ExtractorServer = (*Server)(nil)

// Server implements ExtractorServer on top of the extract package.
type Server struct{}

// NewServer creates a new Extractor server.
func NewServer() *Server {
	return &Server{}
}

// Extract runs the extractor for req.schema_version over req.content. A
// failed extraction is a normal response with success=false.
func (s *Server) Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	schema := fields["schema_version"].GetStringValue()
	if schema == "" {
		return nil, status.Error(codes.InvalidArgument, "missing schema_version")
	}
	extractor, ok := extract.ForSchema(schema)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, worker.NewUnsupportedSchemaError(schema).Error())
	}
	res := extractor.Extract(fields["content"].GetStringValue())
	out, err := resultToStruct(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

func resultToStruct(res extract.Result) (*structpb.Struct, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

func extractHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExtractorServer).Extract(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: extractFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ExtractorServer).Extract(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes assay.v1.Extractor for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExtractorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Extract", Handler: extractHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "assay/v1/extractor.proto",
}

// RegisterService registers the Extractor service and the standard health
// service with the server.
func RegisterService(grpcServer *grpc.Server, server ExtractorServer) {
	grpcServer.RegisterService(&ServiceDesc, server)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)
}

// NewGRPCServer returns a grpc.Server with request logging and the Extractor
// service registered.
func NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(LoggingInterceptor))
	s := grpc.NewServer(opts...)
	RegisterService(s, NewServer())
	return s
}

// LoggingInterceptor logs each unary call with its status code and latency.
func LoggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	monitoring.Logf("[grpc %s] %s %vms", status.Code(err), info.FullMethod,
		float64(time.Since(start).Nanoseconds())/1e6)
	return resp, err
}

// Client calls a remote Extractor service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Extract sends content for extraction and decodes the response into a
// Result. Feature numbers decode as float64.
func (c *Client) Extract(ctx context.Context, schema, content string, opts ...grpc.CallOption) (extract.Result, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"schema_version": schema,
		"content":        content,
	})
	if err != nil {
		return extract.Result{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, extractFullMethod, req, out, opts...); err != nil {
		return extract.Result{}, err
	}
	b, err := protojson.Marshal(out)
	if err != nil {
		return extract.Result{}, fmt.Errorf("decode response: %w", err)
	}
	var res extract.Result
	if err := json.Unmarshal(b, &res); err != nil {
		return extract.Result{}, fmt.Errorf("decode response: %w", err)
	}
	return res, nil
}
