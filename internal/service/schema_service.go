/**
 * Schema Service
 *
 * Business logic for the schema aggregate: creation, versioning, the
 * validation pipeline (synchronous for small content, workflow-backed for
 * large content), publication with compatibility classification, deprecation,
 * metadata updates and archival. Mutations are serialized per schema by the
 * store and guarded by the caller's revision token.
 */

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/helixhq/registry/internal/cache"
	"github.com/helixhq/registry/internal/compat"
	"github.com/helixhq/registry/internal/domain"
	"github.com/helixhq/registry/internal/storage"
	"github.com/helixhq/registry/internal/validation"
	"github.com/helixhq/registry/internal/workflows"
)

const (
	// Content at or above this size is validated asynchronously.
	defaultAsyncContentBytes = 64 * 1024
	// Documents with more references than this go asynchronous regardless
	// of size.
	defaultAsyncRefCount = 200
	// Pending validations older than this are treated as timed out.
	defaultJobTimeout = 15 * time.Minute

	validationCacheTTL = 30 * time.Minute
)

// SchemaService owns the write path of the catalog.
type SchemaService struct {
	store          *storage.CatalogStore
	cache          cache.Manager
	workflowClient WorkflowClient
	logger         *slog.Logger

	asyncContentBytes int
	asyncRefCount     int
	jobTimeout        time.Duration
}

func NewSchemaService(
	store *storage.CatalogStore,
	cacheManager cache.Manager,
	workflowClient WorkflowClient,
	logger *slog.Logger,
) *SchemaService {
	return &SchemaService{
		store:             store,
		cache:             cacheManager,
		workflowClient:    workflowClient,
		logger:            logger.With("service", "schema"),
		asyncContentBytes: defaultAsyncContentBytes,
		asyncRefCount:     defaultAsyncRefCount,
		jobTimeout:        defaultJobTimeout,
	}
}

// SetJobTimeout overrides how long a validation job may stay pending before
// the sweeper fails it.
func (s *SchemaService) SetJobTimeout(d time.Duration) {
	s.jobTimeout = d
}

// CreateSchemaRequest contains data for registering a new schema.
type CreateSchemaRequest struct {
	WorkspaceID  uuid.UUID         `json:"workspace_id" validate:"required"`
	RepositoryID *uuid.UUID        `json:"repository_id,omitempty"`
	Name         string            `json:"name" validate:"required,min=1,max=100"`
	Slug         string            `json:"slug" validate:"required,min=1,max=50"`
	Title        string            `json:"title" validate:"max=200"`
	Description  string            `json:"description" validate:"max=500"`
	Format       domain.Format     `json:"format" validate:"required"`
	Visibility   domain.Visibility `json:"visibility,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	License      string            `json:"license,omitempty"`
}

// CreateSchema registers a new schema aggregate with no versions.
func (s *SchemaService) CreateSchema(ctx context.Context, identity Identity, req CreateSchemaRequest) (*domain.Schema, error) {
	s.logger.InfoContext(ctx, "Creating schema",
		"name", req.Name, "format", req.Format, "workspace_id", req.WorkspaceID, "created_by", identity.UserID)

	if err := requireMember(identity); err != nil {
		return nil, err
	}

	schema, err := domain.NewSchema(req.WorkspaceID, req.Name, req.Slug, req.Title, req.Description, req.Format, identity.UserID)
	if err != nil {
		return nil, err
	}
	schema.RepositoryID = req.RepositoryID
	schema.License = req.License
	if req.Visibility != "" {
		switch req.Visibility {
		case domain.VisibilityPrivate, domain.VisibilityInternal, domain.VisibilityPublic:
			schema.Visibility = req.Visibility
		default:
			return nil, domain.NewDomainError("INVALID_VISIBILITY", domain.CategoryInvalidArgument, "Visibility must be private, internal or public")
		}
	}
	if len(req.Tags) > 0 {
		if err := domain.ValidateTags(req.Tags); err != nil {
			return nil, err
		}
		schema.Tags = req.Tags
	}

	if err := s.store.Create(ctx, schema); err != nil {
		return nil, err
	}

	s.invalidateListCaches(ctx, schema.WorkspaceID)
	return schema, nil
}

// AddVersionRequest contains data for adding a version to a schema.
type AddVersionRequest struct {
	SchemaID         uuid.UUID `json:"schema_id" validate:"required"`
	ExpectedRevision int64     `json:"expected_revision"`
	Version          string    `json:"version" validate:"required"`
	ReleaseNotes     string    `json:"release_notes,omitempty"`
	Content          string    `json:"content" validate:"required"`
}

// AddVersionResult reports the stored version and whether validation was
// dispatched to a workflow instead of completing inline.
type AddVersionResult struct {
	Schema  *domain.Schema  `json:"schema"`
	Version *domain.Version `json:"version"`
	Async   bool            `json:"async"`
}

// AddVersion appends a draft version. Small content is validated inline;
// large or reference-heavy content is dispatched to the validation workflow
// and the version stays pending until the job reports back.
func (s *SchemaService) AddVersion(ctx context.Context, identity Identity, req AddVersionRequest) (*AddVersionResult, error) {
	s.logger.InfoContext(ctx, "Adding schema version",
		"schema_id", req.SchemaID, "version", req.Version, "created_by", identity.UserID)

	if err := requireMember(identity); err != nil {
		return nil, err
	}
	current, err := s.store.Get(ctx, req.SchemaID)
	if err != nil {
		return nil, err
	}

	async := len(req.Content) >= s.asyncContentBytes
	var report *validation.Report
	if !async {
		report = s.runPipeline(ctx, current.Format, req.Content)
		if report.RefCount > s.asyncRefCount {
			async = true
			report = nil
		}
	}

	document := documentOf(report, req.Content)

	var added *domain.Version
	schema, err := s.store.Mutate(ctx, req.SchemaID, req.ExpectedRevision, func(schema *domain.Schema) error {
		version, err := schema.AddVersion(req.Version, req.ReleaseNotes, req.Content, document, identity.UserID)
		if err != nil {
			return err
		}
		if report != nil {
			version.SetValidationResult(findingsToIssues(schema.ID, version.ID, report.Findings))
		}
		added = version
		return nil
	})
	if err != nil {
		return nil, err
	}

	if async {
		schema, err = s.dispatchValidation(ctx, schema, added.ID)
		if err != nil {
			return nil, err
		}
		added, _ = schema.Version(added.ID)
	}

	s.invalidateSchemaCaches(ctx, schema)
	return &AddVersionResult{Schema: schema, Version: added, Async: async}, nil
}

// dispatchValidation submits the validation workflow for a stored pending
// version and records the job identity on the aggregate.
func (s *SchemaService) dispatchValidation(ctx context.Context, schema *domain.Schema, versionID uuid.UUID) (*domain.Schema, error) {
	version, err := schema.Version(versionID)
	if err != nil {
		return nil, err
	}

	handle, err := s.workflowClient.StartSchemaValidation(ctx, workflows.ValidationInput{
		SchemaID:  schema.ID,
		VersionID: version.ID,
		Format:    string(schema.Format),
		Content:   version.Content.Raw,
	})
	if err != nil {
		// The version stays pending; the expiry sweep will fail it if no
		// job is ever attached.
		s.logger.ErrorContext(ctx, "Failed to start validation workflow",
			"schema_id", schema.ID, "version_id", versionID, "error", err)
		return nil, domain.NewDomainError("VALIDATION_DISPATCH_FAILED", domain.CategoryJobFailed, "Could not submit validation job")
	}

	s.logger.InfoContext(ctx, "Validation workflow started",
		"schema_id", schema.ID, "version_id", versionID, "workflow_id", handle.WorkflowID)

	return s.store.Mutate(ctx, schema.ID, storage.SkipRevisionCheck, func(schema *domain.Schema) error {
		version, err := schema.Version(versionID)
		if err != nil {
			return err
		}
		version.MarkValidationPending(handle.WorkflowID)
		return nil
	})
}

// PublishVersionRequest promotes a validated version to current.
type PublishVersionRequest struct {
	SchemaID         uuid.UUID `json:"schema_id" validate:"required"`
	VersionID        uuid.UUID `json:"version_id" validate:"required"`
	ExpectedRevision int64     `json:"expected_revision"`
}

// PublishVersion classifies the version against the current published content
// and promotes it. The verdict is stored but never blocks the publish.
func (s *SchemaService) PublishVersion(ctx context.Context, identity Identity, req PublishVersionRequest) (*domain.Schema, error) {
	s.logger.InfoContext(ctx, "Publishing schema version",
		"schema_id", req.SchemaID, "version_id", req.VersionID, "published_by", identity.UserID)

	if err := requireMember(identity); err != nil {
		return nil, err
	}

	schema, err := s.store.Mutate(ctx, req.SchemaID, req.ExpectedRevision, func(schema *domain.Schema) error {
		version, err := schema.Version(req.VersionID)
		if err != nil {
			return err
		}
		verdict, breaking := compat.Classify(schema.Format, schema.CurrentContent.Raw, version.Content.Raw)
		return schema.PublishVersion(req.VersionID, verdict, breaking, identity.UserID)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSchemaCaches(ctx, schema)
	return schema, nil
}

// DeprecateVersion marks a published version as deprecated.
func (s *SchemaService) DeprecateVersion(ctx context.Context, identity Identity, schemaID, versionID uuid.UUID, expectedRevision int64) (*domain.Schema, error) {
	s.logger.InfoContext(ctx, "Deprecating schema version",
		"schema_id", schemaID, "version_id", versionID, "actor", identity.UserID)

	if err := requireMember(identity); err != nil {
		return nil, err
	}

	schema, err := s.store.Mutate(ctx, schemaID, expectedRevision, func(schema *domain.Schema) error {
		return schema.DeprecateVersion(versionID, identity.UserID)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSchemaCaches(ctx, schema)
	return schema, nil
}

// GetSchema returns a read snapshot and counts the view.
func (s *SchemaService) GetSchema(ctx context.Context, identity Identity, schemaID uuid.UUID) (*domain.Schema, error) {
	schema, err := s.store.Get(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	if err := requireAccess(schema, identity); err != nil {
		return nil, err
	}
	schema.RecordView()
	return schema, nil
}

// GetSchemaBySlug resolves a schema through its workspace-scoped slug.
func (s *SchemaService) GetSchemaBySlug(ctx context.Context, identity Identity, workspaceID uuid.UUID, slug string) (*domain.Schema, error) {
	schema, err := s.store.GetBySlug(ctx, workspaceID, slug)
	if err != nil {
		return nil, err
	}
	if err := requireAccess(schema, identity); err != nil {
		return nil, err
	}
	schema.RecordView()
	return schema, nil
}

// GetVersion returns one version of an accessible schema.
func (s *SchemaService) GetVersion(ctx context.Context, identity Identity, schemaID, versionID uuid.UUID) (*domain.Version, error) {
	schema, err := s.store.Get(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	if err := requireAccess(schema, identity); err != nil {
		return nil, err
	}
	return schema.Version(versionID)
}

// ListVersions returns all versions of an accessible schema ordered by
// descending sequence.
func (s *SchemaService) ListVersions(ctx context.Context, identity Identity, schemaID uuid.UUID) ([]*domain.Version, error) {
	schema, err := s.store.Get(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	if err := requireAccess(schema, identity); err != nil {
		return nil, err
	}
	return schema.SortedVersions(), nil
}

// UpdateSchema applies a metadata update under the revision token.
func (s *SchemaService) UpdateSchema(ctx context.Context, identity Identity, schemaID uuid.UUID, expectedRevision int64, update domain.SchemaUpdate) (*domain.Schema, error) {
	s.logger.InfoContext(ctx, "Updating schema metadata", "schema_id", schemaID, "actor", identity.UserID)

	if err := requireMember(identity); err != nil {
		return nil, err
	}

	schema, err := s.store.Mutate(ctx, schemaID, expectedRevision, func(schema *domain.Schema) error {
		return schema.ApplyUpdate(update, identity.UserID)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSchemaCaches(ctx, schema)
	return schema, nil
}

// ArchiveSchema retires a schema. Archival is terminal: no further versions,
// consumers or artifacts can be added afterwards.
func (s *SchemaService) ArchiveSchema(ctx context.Context, identity Identity, schemaID uuid.UUID, expectedRevision int64) (*domain.Schema, error) {
	s.logger.InfoContext(ctx, "Archiving schema", "schema_id", schemaID, "actor", identity.UserID)

	if err := requireMember(identity); err != nil {
		return nil, err
	}

	schema, err := s.store.Mutate(ctx, schemaID, expectedRevision, func(schema *domain.Schema) error {
		return schema.Archive(identity.UserID)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSchemaCaches(ctx, schema)
	return schema, nil
}

// ResolveIssue marks a validation issue as resolved and recomputes the
// version's validity.
func (s *SchemaService) ResolveIssue(ctx context.Context, identity Identity, schemaID, versionID, issueID uuid.UUID, expectedRevision int64, resolution string) (*domain.Schema, error) {
	s.logger.InfoContext(ctx, "Resolving validation issue",
		"schema_id", schemaID, "version_id", versionID, "issue_id", issueID, "actor", identity.UserID)

	if err := requireMember(identity); err != nil {
		return nil, err
	}

	schema, err := s.store.Mutate(ctx, schemaID, expectedRevision, func(schema *domain.Schema) error {
		version, err := schema.Version(versionID)
		if err != nil {
			return err
		}
		return version.ResolveIssue(issueID, identity.UserID, resolution)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSchemaCaches(ctx, schema)
	return schema, nil
}

// ValidateContent runs the pipeline over content without persisting anything.
// Reports are cached by content hash.
func (s *SchemaService) ValidateContent(ctx context.Context, format domain.Format, content string) (*validation.Report, error) {
	if !domain.IsValidFormat(format) {
		return nil, domain.ErrInvalidSchemaFormat
	}
	return s.runPipeline(ctx, format, content), nil
}

func (s *SchemaService) runPipeline(ctx context.Context, format domain.Format, content string) *validation.Report {
	key := fmt.Sprintf("validation:%s:%s", format, domain.ContentHash(content))
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var report validation.Report
		if json.Unmarshal(cached, &report) == nil {
			return &report
		}
	}

	report := validation.Run(format, content)
	if encoded, err := json.Marshal(report); err == nil {
		if err := s.cache.Set(ctx, key, encoded, validationCacheTTL); err != nil {
			s.logger.DebugContext(ctx, "Failed to cache validation report", "error", err)
		}
	}
	return report
}

// CompleteValidation applies the result of a validation workflow to the
// pending version it belongs to. Called from the worker when the job ends.
func (s *SchemaService) CompleteValidation(ctx context.Context, workflowID string, result workflows.ValidationResult) error {
	s.logger.InfoContext(ctx, "Applying validation result",
		"workflow_id", workflowID, "failed", result.Failure != "", "findings", len(result.Findings))

	target, _, err := s.store.FindByValidationJob(ctx, workflowID)
	if err != nil {
		return err
	}

	schema, err := s.store.Mutate(ctx, target.ID, storage.SkipRevisionCheck, func(schema *domain.Schema) error {
		version, err := schema.Version(result.VersionID)
		if err != nil {
			return err
		}
		if version.ValidationStatus != domain.ValidationPending {
			return domain.ErrVersionNotPending
		}
		if result.Failure != "" {
			version.MarkValidationFailed(domain.NewValidationIssue(
				schema.ID, version.ID, domain.SeverityError,
				"VALIDATION_JOB_FAILED", result.Failure, "", 0, 0, "", ""))
			return nil
		}
		version.SetValidationResult(findingsToIssues(schema.ID, version.ID, result.Findings))
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateSchemaCaches(ctx, schema)
	return nil
}

// PollValidation reports the validation state of a version, consulting the
// orchestrator when the version is still pending. A job that exceeded the
// timeout window is failed with a timeout issue.
func (s *SchemaService) PollValidation(ctx context.Context, identity Identity, schemaID, versionID uuid.UUID) (domain.ValidationStatus, error) {
	schema, err := s.store.Get(ctx, schemaID)
	if err != nil {
		return "", err
	}
	if err := requireAccess(schema, identity); err != nil {
		return "", err
	}
	version, err := schema.Version(versionID)
	if err != nil {
		return "", err
	}
	if version.ValidationStatus != domain.ValidationPending || version.ValidationJobID == "" {
		return version.ValidationStatus, nil
	}

	state, err := s.workflowClient.JobState(ctx, version.ValidationJobID, "")
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to query validation job",
			"workflow_id", version.ValidationJobID, "error", err)
		return version.ValidationStatus, nil
	}
	switch state {
	case JobStateFailed, JobStateTimedOut:
		if err := s.failPendingVersion(ctx, schema.ID, versionID, state); err != nil {
			return "", err
		}
		return domain.ValidationInvalid, nil
	default:
		if version.ValidationSentAt != nil && time.Since(*version.ValidationSentAt) > s.jobTimeout {
			if err := s.failPendingVersion(ctx, schema.ID, versionID, JobStateTimedOut); err != nil {
				return "", err
			}
			return domain.ValidationInvalid, nil
		}
		return domain.ValidationPending, nil
	}
}

func (s *SchemaService) failPendingVersion(ctx context.Context, schemaID, versionID uuid.UUID, state JobState) error {
	code, message := "VALIDATION_JOB_FAILED", "Validation job failed"
	if state == JobStateTimedOut {
		code, message = "VALIDATION_JOB_TIMEOUT", "Validation job exceeded the timeout window"
	}

	schema, err := s.store.Mutate(ctx, schemaID, storage.SkipRevisionCheck, func(schema *domain.Schema) error {
		version, err := schema.Version(versionID)
		if err != nil {
			return err
		}
		if version.ValidationStatus != domain.ValidationPending {
			return nil
		}
		version.MarkValidationFailed(domain.NewValidationIssue(
			schema.ID, version.ID, domain.SeverityError, code, message, "", 0, 0, "", ""))
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateSchemaCaches(ctx, schema)
	return nil
}

// ExpirePendingValidations sweeps every schema and fails pending validations
// older than the timeout window. Intended to run periodically.
func (s *SchemaService) ExpirePendingValidations(ctx context.Context) (int, error) {
	schemas, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	cutoff := time.Now().Add(-s.jobTimeout)
	for _, schema := range schemas {
		for _, version := range schema.Versions {
			if version.ValidationStatus != domain.ValidationPending {
				continue
			}
			if version.ValidationSentAt == nil || version.ValidationSentAt.After(cutoff) {
				continue
			}
			if err := s.failPendingVersion(ctx, schema.ID, version.ID, JobStateTimedOut); err != nil {
				s.logger.ErrorContext(ctx, "Failed to expire pending validation",
					"schema_id", schema.ID, "version_id", version.ID, "error", err)
				continue
			}
			expired++
		}
	}

	if expired > 0 {
		s.logger.InfoContext(ctx, "Expired pending validations", "count", expired)
	}
	return expired, nil
}

// documentOf prefers the pipeline's parsed document and falls back to a best
// effort parse for content that skipped the inline pipeline.
func documentOf(report *validation.Report, content string) map[string]any {
	if report != nil {
		return report.Document
	}
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil
	}
	return doc
}

func findingsToIssues(schemaID, versionID uuid.UUID, findings []validation.Finding) []*domain.ValidationIssue {
	issues := make([]*domain.ValidationIssue, 0, len(findings))
	for _, f := range findings {
		issues = append(issues, domain.NewValidationIssue(
			schemaID, versionID, f.Severity, f.Code, f.Message, f.Path, f.Line, f.Column, f.Rule, ""))
	}
	return issues
}

func (s *SchemaService) invalidateSchemaCaches(ctx context.Context, schema *domain.Schema) {
	if err := s.cache.DeleteByPattern(ctx, "catalog:"+schema.WorkspaceID.String()+":*"); err != nil {
		s.logger.DebugContext(ctx, "Failed to invalidate catalog cache", "error", err)
	}
}

func (s *SchemaService) invalidateListCaches(ctx context.Context, workspaceID uuid.UUID) {
	if err := s.cache.DeleteByPattern(ctx, "catalog:"+workspaceID.String()+":*"); err != nil {
		s.logger.DebugContext(ctx, "Failed to invalidate catalog cache", "error", err)
	}
}
