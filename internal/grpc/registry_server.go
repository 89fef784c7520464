/**
 * Registry gRPC Server Implementation
 *
 * This file implements the gRPC-facing surface for the schema registry:
 * - Schema management (create, read, update, archive)
 * - Version lifecycle (add, publish, deprecate, validation polling)
 * - Ad-hoc content validation and issue resolution
 * - Catalog browsing with filtering, sorting and pagination
 * - Consumer registration and impact analysis
 * - Artifact generation, download and completion callbacks
 *
 * Caller identity travels in gRPC metadata: "user-id" carries the user UUID
 * and "workspace-member" marks workspace membership. Domain error categories
 * are mapped onto gRPC status codes in one place.
 */

package grpc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/helixhq/registry/internal/domain"
	"github.com/helixhq/registry/internal/service"
	"github.com/helixhq/registry/internal/validation"
	"github.com/helixhq/registry/internal/workflows"
)

// RegistryServer exposes the catalog services over gRPC.
type RegistryServer struct {
	schemaService   *service.SchemaService
	queryService    *service.CatalogQueryService
	consumerService *service.ConsumerService
	artifactService *service.ArtifactService
	logger          *slog.Logger
}

// NewRegistryServer creates a new registry gRPC server.
func NewRegistryServer(
	schemaService *service.SchemaService,
	queryService *service.CatalogQueryService,
	consumerService *service.ConsumerService,
	artifactService *service.ArtifactService,
	logger *slog.Logger,
) *RegistryServer {
	return &RegistryServer{
		schemaService:   schemaService,
		queryService:    queryService,
		consumerService: consumerService,
		artifactService: artifactService,
		logger:          logger,
	}
}

// CreateSchemaRequest represents the gRPC request for creating schemas
type CreateSchemaRequest struct {
	WorkspaceID  string   `json:"workspace_id"`
	RepositoryID string   `json:"repository_id,omitempty"`
	Name         string   `json:"name"`
	Slug         string   `json:"slug"`
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	Format       string   `json:"format"`
	Visibility   string   `json:"visibility,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	License      string   `json:"license,omitempty"`
}

// SchemaResponse represents the gRPC response carrying one schema
type SchemaResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Schema  *domain.Schema `json:"schema"`
}

// CreateSchema registers a new schema in the catalog.
func (s *RegistryServer) CreateSchema(ctx context.Context, req *CreateSchemaRequest) (*SchemaResponse, error) {
	s.logger.Info("Creating schema", "name", req.Name, "workspace_id", req.WorkspaceID)

	identity, err := s.extractIdentity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}
	workspaceID, err := uuid.Parse(req.WorkspaceID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid workspace ID: %v", err)
	}

	serviceReq := service.CreateSchemaRequest{
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Slug:        req.Slug,
		Title:       req.Title,
		Description: req.Description,
		Format:      domain.Format(req.Format),
		Visibility:  domain.Visibility(req.Visibility),
		Tags:        req.Tags,
		License:     req.License,
	}
	if req.RepositoryID != "" {
		repositoryID, err := uuid.Parse(req.RepositoryID)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid repository ID: %v", err)
		}
		serviceReq.RepositoryID = &repositoryID
	}

	schema, err := s.schemaService.CreateSchema(ctx, identity, serviceReq)
	if err != nil {
		return nil, s.handleServiceError(err)
	}

	return &SchemaResponse{Success: true, Message: "schema created", Schema: schema}, nil
}

// GetSchemaRequest represents the gRPC request for reading one schema
type GetSchemaRequest struct {
	ID          string `json:"id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	Slug        string `json:"slug,omitempty"`
}

// GetSchema returns a schema by ID or by workspace-scoped slug.
func (s *RegistryServer) GetSchema(ctx context.Context, req *GetSchemaRequest) (*SchemaResponse, error) {
	identity, err := s.extractIdentity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}

	var schema *domain.Schema
	switch {
	case req.ID != "":
		schemaID, err := uuid.Parse(req.ID)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid schema ID: %v", err)
		}
		schema, err = s.schemaService.GetSchema(ctx, identity, schemaID)
		if err != nil {
			return nil, s.handleServiceError(err)
		}
	case req.Slug != "":
		workspaceID, err := uuid.Parse(req.WorkspaceID)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid workspace ID: %v", err)
		}
		schema, err = s.schemaService.GetSchemaBySlug(ctx, identity, workspaceID, req.Slug)
		if err != nil {
			return nil, s.handleServiceError(err)
		}
	default:
		return nil, status.Error(codes.InvalidArgument, "either id or slug is required")
	}

	return &SchemaResponse{Success: true, Schema: schema}, nil
}

// ListSchemasRequest represents the gRPC request for browsing the catalog
type ListSchemasRequest struct {
	WorkspaceID    string   `json:"workspace_id"`
	Format         string   `json:"format,omitempty"`
	Status         string   `json:"status,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Search         string   `json:"search,omitempty"`
	VersionPattern string   `json:"version_pattern,omitempty"`
	IncludeRetired bool     `json:"include_retired,omitempty"`
	SortBy         string   `json:"sort_by,omitempty"`
	Descending     bool     `json:"descending,omitempty"`
	Page           int32    `json:"page,omitempty"`
	PageSize       int32    `json:"page_size,omitempty"`
}

// ListSchemasResponse represents one catalog page
type ListSchemasResponse struct {
	Success    bool             `json:"success"`
	Schemas    []*domain.Schema `json:"schemas"`
	Page       int32            `json:"page"`
	PageSize   int32            `json:"page_size"`
	TotalItems int32            `json:"total_items"`
	TotalPages int32            `json:"total_pages"`
}

// ListSchemas returns a filtered, sorted, paginated catalog listing.
func (s *RegistryServer) ListSchemas(ctx context.Context, req *ListSchemasRequest) (*ListSchemasResponse, error) {
	identity, err := s.extractIdentity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}
	workspaceID, err := uuid.Parse(req.WorkspaceID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid workspace ID: %v", err)
	}

	result, err := s.queryService.List(ctx, identity, service.ListRequest{
		WorkspaceID: workspaceID,
		Filter: service.ListFilter{
			Format:         domain.Format(req.Format),
			Status:         domain.Status(req.Status),
			Tags:           req.Tags,
			Search:         req.Search,
			VersionPattern: req.VersionPattern,
			IncludeRetired: req.IncludeRetired,
		},
		SortBy:     service.SortField(req.SortBy),
		Descending: req.Descending,
		Page:       int(req.Page),
		PageSize:   int(req.PageSize),
	})
	if err != nil {
		return nil, s.handleServiceError(err)
	}

	return &ListSchemasResponse{
		Success:    true,
		Schemas:    result.Items,
		Page:       int32(result.Page),
		PageSize:   int32(result.PageSize),
		TotalItems: int32(result.TotalItems),
		TotalPages: int32(result.TotalPages),
	}, nil
}

// UpdateSchemaRequest represents the gRPC request for metadata updates
type UpdateSchemaRequest struct {
	ID               string   `json:"id"`
	ExpectedRevision int64    `json:"expected_revision"`
	Title            *string  `json:"title,omitempty"`
	Description      *string  `json:"description,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Visibility       *string  `json:"visibility,omitempty"`
	License          *string  `json:"license,omitempty"`
}

// UpdateSchema applies a metadata update under the caller's revision token.
func (s *RegistryServer) UpdateSchema(ctx context.Context, req *UpdateSchemaRequest) (*SchemaResponse, error) {
	identity, err := s.extractIdentity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}
	schemaID, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid schema ID: %v", err)
	}

	update := domain.SchemaUpdate{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		License:     req.License,
	}
	if req.Visibility != nil {
		visibility := domain.Visibility(*req.Visibility)
		update.Visibility = &visibility
	}

	schema, err := s.schemaService.UpdateSchema(ctx, identity, schemaID, req.ExpectedRevision, update)
	if err != nil {
		return nil, s.handleServiceError(err)
	}
	return &SchemaResponse{Success: true, Message: "schema updated", Schema: schema}, nil
}

// ArchiveSchemaRequest represents the gRPC request for archiving a schema
type ArchiveSchemaRequest struct {
	ID               string `json:"id"`
	ExpectedRevision int64  `json:"expected_revision"`
}

// ArchiveSchema retires a schema from the catalog.
func (s *RegistryServer) ArchiveSchema(ctx context.Context, req *ArchiveSchemaRequest) (*SchemaResponse, error) {
	identity, err := s.extractIdentity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}
	schemaID, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid schema ID: %v", err)
	}

	schema, err := s.schemaService.ArchiveSchema(ctx, identity, schemaID, req.ExpectedRevision)
	if err != nil {
		return nil, s.handleServiceError(err)
	}
	return &SchemaResponse{Success: true, Message: "schema archived", Schema: schema}, nil
}

// AddVersionRequest represents the gRPC request for adding a version
type AddVersionRequest struct {
	SchemaID         string `json:"schema_id"`
	ExpectedRevision int64  `json:"expected_revision"`
	Version          string `json:"version"`
	ReleaseNotes     string `json:"release_notes,omitempty"`
	Content          string `json:"content"`
}

// AddVersionResponse reports the stored version and validation mode
type AddVersionResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Schema  *domain.Schema  `json:"schema"`
	Version *domain.Version `json:"version"`
	Async   bool            `json:"async"`
}

// AddVersion appends a draft version to a schema.
func (s *RegistryServer) AddVersion(ctx context.Context, req *AddVersionRequest) (*AddVersionResponse, error) {
	s.logger.Info("Adding schema version", "schema_id", req.SchemaID, "version", req.Version)

	identity, err := s.extractIdentity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}
	schemaID, err := uuid.Parse(req.SchemaID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid schema ID: %v", err)
	}

	result, err := s.schemaService.AddVersion(ctx, identity, service.AddVersionRequest{
		SchemaID:         schemaID,
		ExpectedRevision: req.ExpectedRevision,
		Version:          req.Version,
		ReleaseNotes:     req.ReleaseNotes,
		Content:          req.Content,
	})
	if err != nil {
		return nil, s.handleServiceError(err)
	}

	message := "version validated"
	if result.Async {
		message = "version accepted, validation in progress"
	}
	return &AddVersionResponse{
		Success: true,
		Message: message,
		Schema:  result.Schema,
		Version: result.Version,
		Async:   result.Async,
	}, nil
}

// VersionLifecycleRequest addresses one version of one schema
type VersionLifecycleRequest struct {
	SchemaID         string `json:"schema_id"`
	VersionID        string `json:"version_id"`
	ExpectedRevision int64  `json:"expected_revision"`
}

// PublishVersion promotes a validated version to current.
func (s *RegistryServer) PublishVersion(ctx context.Context, req *VersionLifecycleRequest) (*SchemaResponse, error) {
	s.logger.Info("Publishing schema version", "schema_id", req.SchemaID, "version_id", req.VersionID)

	identity, schemaID, versionID, err := s.extractVersionTarget(ctx, req.SchemaID, req.VersionID)
	if err != nil {
		return nil, err
	}

	schema, err := s.schemaService.PublishVersion(ctx, identity, service.PublishVersionRequest{
		SchemaID:         schemaID,
		VersionID:        versionID,
		ExpectedRevision: req.ExpectedRevision,
	})
	if err != nil {
		return nil, s.handleServiceError(err)
	}
	return &SchemaResponse{Success: true, Message: "version published", Schema: schema}, nil
}

// DeprecateVersion marks a published version as deprecated.
func (s *RegistryServer) DeprecateVersion(ctx context.Context, req *VersionLifecycleRequest) (*SchemaResponse, error) {
	identity, schemaID, versionID, err := s.extractVersionTarget(ctx, req.SchemaID, req.VersionID)
	if err != nil {
		return nil, err
	}

	schema, err := s.schemaService.DeprecateVersion(ctx, identity, schemaID, versionID, req.ExpectedRevision)
	if err != nil {
		return nil, s.handleServiceError(err)
	}
	return &SchemaResponse{Success: true, Message: "version deprecated", Schema: schema}, nil
}

// ListVersionsRequest represents the gRPC request for listing versions
type ListVersionsRequest struct {
	SchemaID string `json:"schema_id"`
}

// ListVersionsResponse carries every version of one schema
type ListVersionsResponse struct {
	Success  bool              `json:"success"`
	Versions []*domain.Version `json:"versions"`
}

// ListVersions returns all versions ordered by descending sequence.
func (s *RegistryServer) ListVersions(ctx context.Context, req *ListVersionsRequest) (*ListVersionsResponse, error) {
	identity, err := s.extractIdentity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}
	schemaID, err := uuid.Parse(req.SchemaID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid schema ID: %v", err)
	}

	versions, err := s.schemaService.ListVersions(ctx, identity, schemaID)
	if err != nil {
		return nil, s.handleServiceError(err)
	}
	return &ListVersionsResponse{Success: true, Versions: versions}, nil
}

// PollValidationRequest asks for the validation state of a pending version
type PollValidationRequest struct {
	SchemaID  string `json:"schema_id"`
	VersionID string `json:"version_id"`
}

// PollValidationResponse reports the validation state
type PollValidationResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// PollValidation reports validation progress for a version.
func (s *RegistryServer) PollValidation(ctx context.Context, req *PollValidationRequest) (*PollValidationResponse, error) {
	identity, schemaID, versionID, err := s.extractVersionTarget(ctx, req.SchemaID, req.VersionID)
	if err != nil {
		return nil, err
	}

	validationStatus, err := s.schemaService.PollValidation(ctx, identity, schemaID, versionID)
	if err != nil {
		return nil, s.handleServiceError(err)
	}
	return &PollValidationResponse{Success: true, Status: string(validationStatus)}, nil
}

// ValidateContentRequest represents the gRPC request for ad-hoc validation
type ValidateContentRequest struct {
	Format  string `json:"format"`
	Content string `json:"content"`
}

// ValidateContentResponse carries the pipeline report
type ValidateContentResponse struct {
	Success  bool                 `json:"success"`
	Valid    bool                 `json:"valid"`
	Findings []validation.Finding `json:"findings,omitempty"`
	RefCount int                  `json:"ref_count"`
}

// ValidateContent runs the validation pipeline without persisting anything.
func (s *RegistryServer) ValidateContent(ctx context.Context, req *ValidateContentRequest) (*ValidateContentResponse, error) {
	if _, err := s.extractIdentity(ctx); err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}

	report, err := s.schemaService.ValidateContent(ctx, domain.Format(req.Format), req.Content)
	if err != nil {
		return nil, s.handleServiceError(err)
	}
	return &ValidateContentResponse{
		Success:  true,
		Valid:    report.Valid,
		Findings: report.Findings,
		RefCount: report.RefCount,
	}, nil
}

// ResolveIssueRequest represents the gRPC request for resolving an issue
type ResolveIssueRequest struct {
	SchemaID         string `json:"schema_id"`
	VersionID        string `json:"version_id"`
	IssueID          string `json:"issue_id"`
	ExpectedRevision int64  `json:"expected_revision"`
	Resolution       string `json:"resolution,omitempty"`
}

// ResolveIssue marks a validation issue resolved.
func (s *RegistryServer) ResolveIssue(ctx context.Context, req *ResolveIssueRequest) (*SchemaResponse, error) {
	identity, schemaID, versionID, err := s.extractVersionTarget(ctx, req.SchemaID, req.VersionID)
	if err != nil {
		return nil, err
	}
	issueID, err := uuid.Parse(req.IssueID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid issue ID: %v", err)
	}

	schema, err := s.schemaService.ResolveIssue(ctx, identity, schemaID, versionID, issueID, req.ExpectedRevision, req.Resolution)
	if err != nil {
		return nil, s.handleServiceError(err)
	}
	return &SchemaResponse{Success: true, Message: "issue resolved", Schema: schema}, nil
}

// RegisterConsumerRequest represents the gRPC request for consumer registration
type RegisterConsumerRequest struct {
	SchemaID         string `json:"schema_id"`
	ExpectedRevision int64  `json:"expected_revision"`
	Kind             string `json:"kind"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	Contact          string `json:"contact,omitempty"`
	RepositoryID     string `json:"repository_id,omitempty"`
	MinVersion       string `json:"min_version,omitempty"`
	MaxVersion       string `json:"max_version,omitempty"`
}

// ConsumerResponse carries one consumer registration
type ConsumerResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Consumer *domain.Consumer `json:"consumer,omitempty"`
}

// RegisterConsumer records a downstream dependency on a schema.
func (s *RegistryServer) RegisterConsumer(ctx context.Context, req *RegisterConsumerRequest) (*ConsumerResponse, error) {
	identity, err := s.extractIdentity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}
	schemaID, err := uuid.Parse(req.SchemaID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid schema ID: %v", err)
	}

	serviceReq := service.RegisterConsumerRequest{
		SchemaID:         schemaID,
		ExpectedRevision: req.ExpectedRevision,
		Kind:             domain.ConsumerKind(req.Kind),
		Name:             req.Name,
		Description:      req.Description,
		Contact:          req.Contact,
		MinVersion:       req.MinVersion,
		MaxVersion:       req.MaxVersion,
	}
	if req.RepositoryID != "" {
		repositoryID, err := uuid.Parse(req.RepositoryID)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid repository ID: %v", err)
		}
		serviceReq.RepositoryID = &repositoryID
	}

	consumer, err := s.consumerService.Register(ctx, identity, serviceReq)
	if err != nil {
		return nil, s.handleServiceError(err)
	}
	return &ConsumerResponse{Success: true, Message: "consumer registered", Consumer: consumer}, nil
}

// DeregisterConsumerRequest represents the gRPC request for deregistration
type DeregisterConsumerRequest struct {
	SchemaID         string `json:"schema_id"`
	ConsumerID       string `json:"consumer_id"`
	ExpectedRevision int64  `json:"expected_revision"`
}

// DeregisterConsumer deactivates a consumer registration.
func (s *RegistryServer) DeregisterConsumer(ctx context.Context, req *DeregisterConsumerRequest) (*ConsumerResponse, error) {
	identity, err := s.extractIdentity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}
	schemaID, err := uuid.Parse(req.SchemaID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid schema ID: %v", err)
	}
	consumerID, err := uuid.Parse(req.ConsumerID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid consumer ID: %v", err)
	}

	if err := s.consumerService.Deregister(ctx, identity, schemaID, consumerID, req.ExpectedRevision); err != nil {
		return nil, s.handleServiceError(err)
	}
	return &ConsumerResponse{Success: true, Message: "consumer deregistered"}, nil
}

// RecordAccessRequest represents the gRPC request for usage tracking
type RecordAccessRequest struct {
	SchemaID    string `json:"schema_id"`
	ConsumerID  string `json:"consumer_id"`
	VersionUsed string `json:"version_used,omitempty"`
}

// RecordAccess updates a consumer's usage counters.
func (s *RegistryServer) RecordAccess(ctx context.Context, req *RecordAccessRequest) (*ConsumerResponse, error) {
	identity, err := s.extractIdentity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}
	schemaID, err := uuid.Parse(req.SchemaID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid schema ID: %v", err)
	}
	consumerID, err := uuid.Parse(req.ConsumerID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid consumer ID: %v", err)
	}

	if err := s.consumerService.RecordAccess(ctx, identity, schemaID, consumerID, req.VersionUsed); err != nil {
		return nil, s.handleServiceError(err)
	}
	return &ConsumerResponse{Success: true, Message: "access recorded"}, nil
}

// ComputeImpactRequest represents the gRPC request for impact analysis
type ComputeImpactRequest struct {
	SchemaID           string `json:"schema_id"`
	VersionID          string `json:"version_id,omitempty"`
	ProspectiveVersion string `json:"prospective_version,omitempty"`
	ProspectiveContent string `json:"prospective_content,omitempty"`
}

// ComputeImpactResponse carries the impact report
type ComputeImpactResponse struct {
	Success bool                  `json:"success"`
	Report  *service.ImpactReport `json:"report"`
}

// ComputeImpact classifies a change and lists the consumers it reaches.
// The target is either a stored version or prospective content.
func (s *RegistryServer) ComputeImpact(ctx context.Context, req *ComputeImpactRequest) (*ComputeImpactResponse, error) {
	identity, err := s.extractIdentity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}
	schemaID, err := uuid.Parse(req.SchemaID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid schema ID: %v", err)
	}

	var report *service.ImpactReport
	if req.VersionID != "" {
		versionID, err := uuid.Parse(req.VersionID)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid version ID: %v", err)
		}
		report, err = s.consumerService.ImpactOfVersion(ctx, identity, schemaID, versionID)
		if err != nil {
			return nil, s.handleServiceError(err)
		}
	} else {
		report, err = s.consumerService.ComputeImpact(ctx, identity, schemaID, req.ProspectiveVersion, req.ProspectiveContent)
		if err != nil {
			return nil, s.handleServiceError(err)
		}
	}
	return &ComputeImpactResponse{Success: true, Report: report}, nil
}

// RequestGenerationRequest represents the gRPC request for artifact generation
type RequestGenerationRequest struct {
	SchemaID         string            `json:"schema_id"`
	VersionID        string            `json:"version_id"`
	ExpectedRevision int64             `json:"expected_revision"`
	Language         string            `json:"language"`
	Kind             string            `json:"kind"`
	GeneratorVersion string            `json:"generator_version"`
	Config           map[string]string `json:"config,omitempty"`
}

// ArtifactResponse carries one artifact
type ArtifactResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Artifact *domain.Artifact `json:"artifact,omitempty"`
	Reused   bool             `json:"reused,omitempty"`
}

// RequestGeneration starts (or dedupes) artifact generation for a version.
func (s *RegistryServer) RequestGeneration(ctx context.Context, req *RequestGenerationRequest) (*ArtifactResponse, error) {
	s.logger.Info("Requesting artifact generation",
		"schema_id", req.SchemaID, "version_id", req.VersionID, "language", req.Language)

	identity, schemaID, versionID, err := s.extractVersionTarget(ctx, req.SchemaID, req.VersionID)
	if err != nil {
		return nil, err
	}

	result, err := s.artifactService.RequestGeneration(ctx, identity, service.RequestGenerationRequest{
		SchemaID:         schemaID,
		VersionID:        versionID,
		ExpectedRevision: req.ExpectedRevision,
		Language:         req.Language,
		Kind:             domain.ArtifactKind(req.Kind),
		GeneratorVersion: req.GeneratorVersion,
		Config:           req.Config,
	})
	if err != nil {
		return nil, s.handleServiceError(err)
	}

	message := "generation started"
	if result.Reused {
		message = "existing artifact returned"
	}
	return &ArtifactResponse{Success: true, Message: message, Artifact: result.Artifact, Reused: result.Reused}, nil
}

// ListArtifactsRequest represents the gRPC request for listing artifacts
type ListArtifactsRequest struct {
	SchemaID string `json:"schema_id"`
}

// ListArtifactsResponse carries the downloadable artifacts of a schema
type ListArtifactsResponse struct {
	Success   bool               `json:"success"`
	Artifacts []*domain.Artifact `json:"artifacts"`
}

// ListArtifacts returns the artifacts currently available for download.
func (s *RegistryServer) ListArtifacts(ctx context.Context, req *ListArtifactsRequest) (*ListArtifactsResponse, error) {
	identity, err := s.extractIdentity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}
	schemaID, err := uuid.Parse(req.SchemaID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid schema ID: %v", err)
	}

	artifacts, err := s.artifactService.ListAvailable(ctx, identity, schemaID)
	if err != nil {
		return nil, s.handleServiceError(err)
	}
	return &ListArtifactsResponse{Success: true, Artifacts: artifacts}, nil
}

// DownloadArtifactRequest represents the gRPC request for a download URL
type DownloadArtifactRequest struct {
	SchemaID   string `json:"schema_id"`
	ArtifactID string `json:"artifact_id"`
}

// DownloadArtifactResponse carries a presigned download URL
type DownloadArtifactResponse struct {
	Success     bool   `json:"success"`
	DownloadURL string `json:"download_url"`
}

// DownloadArtifact returns a presigned URL for a ready artifact.
func (s *RegistryServer) DownloadArtifact(ctx context.Context, req *DownloadArtifactRequest) (*DownloadArtifactResponse, error) {
	identity, err := s.extractIdentity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}
	schemaID, err := uuid.Parse(req.SchemaID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid schema ID: %v", err)
	}
	artifactID, err := uuid.Parse(req.ArtifactID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid artifact ID: %v", err)
	}

	url, err := s.artifactService.Download(ctx, identity, schemaID, artifactID)
	if err != nil {
		return nil, s.handleServiceError(err)
	}
	return &DownloadArtifactResponse{Success: true, DownloadURL: url}, nil
}

// GetStatsRequest represents the gRPC request for schema statistics
type GetStatsRequest struct {
	SchemaID string `json:"schema_id"`
}

// GetStatsResponse carries the schema's summary statistics
type GetStatsResponse struct {
	Success bool                 `json:"success"`
	Stats   *service.SchemaStats `json:"stats"`
}

// GetStats returns summary statistics for one schema.
func (s *RegistryServer) GetStats(ctx context.Context, req *GetStatsRequest) (*GetStatsResponse, error) {
	identity, err := s.extractIdentity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}
	schemaID, err := uuid.Parse(req.SchemaID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid schema ID: %v", err)
	}

	stats, err := s.queryService.Stats(ctx, identity, schemaID)
	if err != nil {
		return nil, s.handleServiceError(err)
	}
	return &GetStatsResponse{Success: true, Stats: stats}, nil
}

// CompleteValidationRequest reports a validation job outcome
type CompleteValidationRequest struct {
	WorkflowID string               `json:"workflow_id"`
	SchemaID   string               `json:"schema_id"`
	VersionID  string               `json:"version_id"`
	Findings   []validation.Finding `json:"findings,omitempty"`
	Failure    string               `json:"failure,omitempty"`
}

// CompletionResponse acknowledges a job outcome
type CompletionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CompleteValidation applies a validation job outcome. Called by workers.
func (s *RegistryServer) CompleteValidation(ctx context.Context, req *CompleteValidationRequest) (*CompletionResponse, error) {
	versionID, err := uuid.Parse(req.VersionID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid version ID: %v", err)
	}
	schemaID := uuid.Nil
	if req.SchemaID != "" {
		if schemaID, err = uuid.Parse(req.SchemaID); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid schema ID: %v", err)
		}
	}

	err = s.schemaService.CompleteValidation(ctx, req.WorkflowID, workflows.ValidationResult{
		SchemaID:  schemaID,
		VersionID: versionID,
		Findings:  req.Findings,
		Failure:   req.Failure,
	})
	if err != nil {
		return nil, s.handleServiceError(err)
	}
	return &CompletionResponse{Success: true, Message: "validation result applied"}, nil
}

// CompleteGenerationRequest reports a generation job outcome
type CompleteGenerationRequest struct {
	WorkflowID string `json:"workflow_id"`
	ArtifactID string `json:"artifact_id"`
	Path       string `json:"path,omitempty"`
	Size       int64  `json:"size"`
	Checksum   string `json:"checksum,omitempty"`
	Failure    string `json:"failure,omitempty"`
}

// CompleteGeneration applies a generation job outcome. Called by workers.
func (s *RegistryServer) CompleteGeneration(ctx context.Context, req *CompleteGenerationRequest) (*CompletionResponse, error) {
	artifactID, err := uuid.Parse(req.ArtifactID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid artifact ID: %v", err)
	}

	err = s.artifactService.CompleteGeneration(ctx, req.WorkflowID, workflows.GenerationResult{
		ArtifactID:  artifactID,
		StoragePath: req.Path,
		Size:        req.Size,
		Checksum:    req.Checksum,
		Failure:     req.Failure,
	})
	if err != nil {
		return nil, s.handleServiceError(err)
	}
	return &CompletionResponse{Success: true, Message: "generation result applied"}, nil
}

func (s *RegistryServer) extractVersionTarget(ctx context.Context, rawSchemaID, rawVersionID string) (service.Identity, uuid.UUID, uuid.UUID, error) {
	identity, err := s.extractIdentity(ctx)
	if err != nil {
		return service.Identity{}, uuid.Nil, uuid.Nil, status.Errorf(codes.Unauthenticated, "authentication required: %v", err)
	}
	schemaID, err := uuid.Parse(rawSchemaID)
	if err != nil {
		return service.Identity{}, uuid.Nil, uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid schema ID: %v", err)
	}
	versionID, err := uuid.Parse(rawVersionID)
	if err != nil {
		return service.Identity{}, uuid.Nil, uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid version ID: %v", err)
	}
	return identity, schemaID, versionID, nil
}

func (s *RegistryServer) extractIdentity(ctx context.Context) (service.Identity, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return service.Identity{}, fmt.Errorf("no metadata in context")
	}

	userIDs := md.Get("user-id")
	if len(userIDs) == 0 {
		return service.Identity{}, fmt.Errorf("user-id not found in metadata")
	}
	userID, err := uuid.Parse(userIDs[0])
	if err != nil {
		return service.Identity{}, fmt.Errorf("invalid user ID format: %v", err)
	}

	member := false
	if values := md.Get("workspace-member"); len(values) > 0 {
		member = values[0] == "true" || values[0] == "1"
	}

	return service.Identity{UserID: userID, WorkspaceMember: member}, nil
}

func (s *RegistryServer) handleServiceError(err error) error {
	if err == nil {
		return nil
	}

	switch domain.CategoryOf(err) {
	case domain.CategoryNotFound:
		return status.Error(codes.NotFound, err.Error())
	case domain.CategoryConflict:
		return status.Error(codes.AlreadyExists, err.Error())
	case domain.CategoryInvalidArgument:
		return status.Error(codes.InvalidArgument, err.Error())
	case domain.CategoryPermissionDenied:
		return status.Error(codes.PermissionDenied, err.Error())
	case domain.CategoryInvalidState:
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.CategoryJobTimeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	case domain.CategoryJobFailed:
		return status.Error(codes.Aborted, err.Error())
	default:
		s.logger.Error("Unhandled service error", "error", err)
		return status.Error(codes.Internal, "internal server error")
	}
}
