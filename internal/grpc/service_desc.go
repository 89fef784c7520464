/**
 * Registry Service Descriptor
 *
 * Hand-written gRPC service descriptor for the registry API. The service
 * exchanges plain JSON messages instead of protobuf, so a JSON codec is
 * registered and clients select it with grpc.CallContentSubtype("json").
 */

package grpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const serviceName = "helix.registry.v1.RegistryService"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec marshals gRPC messages as JSON.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}

// RegistryServiceServer is the server API for the registry service.
type RegistryServiceServer interface {
	CreateSchema(ctx context.Context, req *CreateSchemaRequest) (*SchemaResponse, error)
	GetSchema(ctx context.Context, req *GetSchemaRequest) (*SchemaResponse, error)
	ListSchemas(ctx context.Context, req *ListSchemasRequest) (*ListSchemasResponse, error)
	UpdateSchema(ctx context.Context, req *UpdateSchemaRequest) (*SchemaResponse, error)
	ArchiveSchema(ctx context.Context, req *ArchiveSchemaRequest) (*SchemaResponse, error)
	AddVersion(ctx context.Context, req *AddVersionRequest) (*AddVersionResponse, error)
	PublishVersion(ctx context.Context, req *VersionLifecycleRequest) (*SchemaResponse, error)
	DeprecateVersion(ctx context.Context, req *VersionLifecycleRequest) (*SchemaResponse, error)
	ListVersions(ctx context.Context, req *ListVersionsRequest) (*ListVersionsResponse, error)
	PollValidation(ctx context.Context, req *PollValidationRequest) (*PollValidationResponse, error)
	ValidateContent(ctx context.Context, req *ValidateContentRequest) (*ValidateContentResponse, error)
	ResolveIssue(ctx context.Context, req *ResolveIssueRequest) (*SchemaResponse, error)
	RegisterConsumer(ctx context.Context, req *RegisterConsumerRequest) (*ConsumerResponse, error)
	DeregisterConsumer(ctx context.Context, req *DeregisterConsumerRequest) (*ConsumerResponse, error)
	RecordAccess(ctx context.Context, req *RecordAccessRequest) (*ConsumerResponse, error)
	ComputeImpact(ctx context.Context, req *ComputeImpactRequest) (*ComputeImpactResponse, error)
	RequestGeneration(ctx context.Context, req *RequestGenerationRequest) (*ArtifactResponse, error)
	ListArtifacts(ctx context.Context, req *ListArtifactsRequest) (*ListArtifactsResponse, error)
	DownloadArtifact(ctx context.Context, req *DownloadArtifactRequest) (*DownloadArtifactResponse, error)
	GetStats(ctx context.Context, req *GetStatsRequest) (*GetStatsResponse, error)
	CompleteValidation(ctx context.Context, req *CompleteValidationRequest) (*CompletionResponse, error)
	CompleteGeneration(ctx context.Context, req *CompleteGenerationRequest) (*CompletionResponse, error)
}

// RegisterRegistryServiceServer registers the registry service on the given
// gRPC server.
func RegisterRegistryServiceServer(s grpc.ServiceRegistrar, srv RegistryServiceServer) {
	s.RegisterService(&RegistryService_ServiceDesc, srv)
}

func unary[Req, Resp any](name string, call func(RegistryServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RegistryServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + serviceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(RegistryServiceServer), ctx, req.(*Req))
			})
		},
	}
}

var RegistryService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RegistryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateSchema", RegistryServiceServer.CreateSchema),
		unary("GetSchema", RegistryServiceServer.GetSchema),
		unary("ListSchemas", RegistryServiceServer.ListSchemas),
		unary("UpdateSchema", RegistryServiceServer.UpdateSchema),
		unary("ArchiveSchema", RegistryServiceServer.ArchiveSchema),
		unary("AddVersion", RegistryServiceServer.AddVersion),
		unary("PublishVersion", RegistryServiceServer.PublishVersion),
		unary("DeprecateVersion", RegistryServiceServer.DeprecateVersion),
		unary("ListVersions", RegistryServiceServer.ListVersions),
		unary("PollValidation", RegistryServiceServer.PollValidation),
		unary("ValidateContent", RegistryServiceServer.ValidateContent),
		unary("ResolveIssue", RegistryServiceServer.ResolveIssue),
		unary("RegisterConsumer", RegistryServiceServer.RegisterConsumer),
		unary("DeregisterConsumer", RegistryServiceServer.DeregisterConsumer),
		unary("RecordAccess", RegistryServiceServer.RecordAccess),
		unary("ComputeImpact", RegistryServiceServer.ComputeImpact),
		unary("RequestGeneration", RegistryServiceServer.RequestGeneration),
		unary("ListArtifacts", RegistryServiceServer.ListArtifacts),
		unary("DownloadArtifact", RegistryServiceServer.DownloadArtifact),
		unary("GetStats", RegistryServiceServer.GetStats),
		unary("CompleteValidation", RegistryServiceServer.CompleteValidation),
		unary("CompleteGeneration", RegistryServiceServer.CompleteGeneration),
	},
	Streams: []grpc.StreamDesc{},
}
