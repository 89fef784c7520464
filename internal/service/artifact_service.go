/**
 * Artifact Service
 *
 * Lifecycle of generated artifacts: idempotent generation requests keyed by
 * (version, language, kind, generator version), workflow dispatch, completion
 * and failure handling, downloads via presigned object-store URLs, and a
 * sweep that times out generation jobs stuck in pending.
 */

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/helixhq/registry/internal/domain"
	"github.com/helixhq/registry/internal/storage"
	"github.com/helixhq/registry/internal/workflows"
)

const (
	defaultArtifactTTL   = 30 * 24 * time.Hour
	downloadURLValidFor  = 15 * time.Minute
	generationJobTimeout = 30 * time.Minute
)

// ArtifactStorage serves download URLs for stored artifact archives.
type ArtifactStorage interface {
	PresignedDownloadURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error)
}

// ArtifactService owns generated-artifact lifecycle management.
type ArtifactService struct {
	store          *storage.CatalogStore
	artifactStore  ArtifactStorage
	workflowClient WorkflowClient
	logger         *slog.Logger

	artifactTTL time.Duration
	jobTimeout  time.Duration
}

func NewArtifactService(
	store *storage.CatalogStore,
	artifactStore ArtifactStorage,
	workflowClient WorkflowClient,
	logger *slog.Logger,
) *ArtifactService {
	return &ArtifactService{
		store:          store,
		artifactStore:  artifactStore,
		workflowClient: workflowClient,
		logger:         logger.With("service", "artifact"),
		artifactTTL:    defaultArtifactTTL,
		jobTimeout:     generationJobTimeout,
	}
}

// RequestGenerationRequest asks for an artifact of a published version.
type RequestGenerationRequest struct {
	SchemaID         uuid.UUID           `json:"schema_id" validate:"required"`
	ExpectedRevision int64               `json:"expected_revision"`
	VersionID        uuid.UUID           `json:"version_id" validate:"required"`
	Language         string              `json:"language" validate:"required"`
	Kind             domain.ArtifactKind `json:"kind" validate:"required"`
	GeneratorVersion string              `json:"generator_version" validate:"required"`
	Config           map[string]string   `json:"config,omitempty"`
}

// RequestGenerationResult reports the artifact and whether an existing one
// satisfied the request without a new job.
type RequestGenerationResult struct {
	Artifact *domain.Artifact `json:"artifact"`
	Reused   bool             `json:"reused"`
}

// RequestGeneration starts artifact generation, or returns the existing
// artifact when one with the same key is already pending or still available.
func (s *ArtifactService) RequestGeneration(ctx context.Context, identity Identity, req RequestGenerationRequest) (*RequestGenerationResult, error) {
	s.logger.InfoContext(ctx, "Requesting artifact generation",
		"schema_id", req.SchemaID, "version_id", req.VersionID,
		"language", req.Language, "kind", req.Kind, "requested_by", identity.UserID)

	if err := requireMember(identity); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	key := domain.ArtifactKey{
		VersionID:        req.VersionID,
		Language:         req.Language,
		Kind:             req.Kind,
		GeneratorVersion: req.GeneratorVersion,
	}

	schema, err := s.store.Get(ctx, req.SchemaID)
	if err != nil {
		return nil, err
	}
	if existing := schema.FindArtifactByKey(key, now); existing != nil {
		s.logger.InfoContext(ctx, "Reusing existing artifact",
			"schema_id", req.SchemaID, "artifact_id", existing.ID, "state", existing.State)
		return &RequestGenerationResult{Artifact: existing, Reused: true}, nil
	}

	var created *domain.Artifact
	schema, err = s.store.Mutate(ctx, req.SchemaID, req.ExpectedRevision, func(schema *domain.Schema) error {
		// A racing request may have created the artifact between the read
		// and this mutation.
		if existing := schema.FindArtifactByKey(key, now); existing != nil {
			created = existing
			return nil
		}
		artifact, err := schema.AddArtifact(req.VersionID, req.Language, req.Kind, req.GeneratorVersion, req.Config, s.artifactTTL, identity.UserID)
		if err != nil {
			return err
		}
		created = artifact
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created.WorkflowID != "" || created.State != domain.ArtifactPending {
		return &RequestGenerationResult{Artifact: created, Reused: true}, nil
	}

	version, err := schema.Version(req.VersionID)
	if err != nil {
		return nil, err
	}
	handle, err := s.workflowClient.StartCodeGeneration(ctx, workflows.GenerationInput{
		SchemaID:         schema.ID,
		VersionID:        version.ID,
		ArtifactID:       created.ID,
		Format:           string(schema.Format),
		Content:          version.Content.Raw,
		Language:         req.Language,
		Kind:             string(req.Kind),
		GeneratorVersion: req.GeneratorVersion,
		Config:           req.Config,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to start generation workflow",
			"schema_id", schema.ID, "artifact_id", created.ID, "error", err)
		_, failErr := s.store.Mutate(ctx, schema.ID, storage.SkipRevisionCheck, func(schema *domain.Schema) error {
			artifact, ok := schema.Artifacts[created.ID]
			if !ok {
				return domain.ErrArtifactNotFound
			}
			return artifact.FailArtifact("generation job could not be submitted")
		})
		if failErr != nil {
			s.logger.ErrorContext(ctx, "Failed to mark artifact failed", "artifact_id", created.ID, "error", failErr)
		}
		return nil, domain.NewDomainError("GENERATION_DISPATCH_FAILED", domain.CategoryJobFailed, "Could not submit generation job")
	}

	schema, err = s.store.Mutate(ctx, schema.ID, storage.SkipRevisionCheck, func(schema *domain.Schema) error {
		artifact, ok := schema.Artifacts[created.ID]
		if !ok {
			return domain.ErrArtifactNotFound
		}
		artifact.WorkflowID = handle.WorkflowID
		artifact.RunID = handle.RunID
		artifact.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	artifact := schema.Artifacts[created.ID]
	s.logger.InfoContext(ctx, "Generation workflow started",
		"schema_id", schema.ID, "artifact_id", artifact.ID, "workflow_id", handle.WorkflowID)
	return &RequestGenerationResult{Artifact: artifact, Reused: false}, nil
}

// CompleteGeneration applies a generation workflow's outcome to its artifact.
// Called from the worker when the job ends.
func (s *ArtifactService) CompleteGeneration(ctx context.Context, workflowID string, result workflows.GenerationResult) error {
	s.logger.InfoContext(ctx, "Applying generation result",
		"workflow_id", workflowID, "failed", result.Failure != "")

	target, artifact, err := s.store.FindByGenerationJob(ctx, workflowID)
	if err != nil {
		return err
	}

	_, err = s.store.Mutate(ctx, target.ID, storage.SkipRevisionCheck, func(schema *domain.Schema) error {
		stored, ok := schema.Artifacts[artifact.ID]
		if !ok {
			return domain.ErrArtifactNotFound
		}
		if result.Failure != "" {
			return stored.FailArtifact(result.Failure)
		}
		return stored.CompleteArtifact(domain.StorageDescriptor{
			Path:     result.StoragePath,
			Size:     result.Size,
			Checksum: result.Checksum,
		})
	})
	return err
}

// ListAvailable returns the artifacts of an accessible schema that can be
// downloaded right now.
func (s *ArtifactService) ListAvailable(ctx context.Context, identity Identity, schemaID uuid.UUID) ([]*domain.Artifact, error) {
	schema, err := s.store.Get(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	if err := requireAccess(schema, identity); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var available []*domain.Artifact
	for _, artifact := range schema.Artifacts {
		if artifact.Available(now) {
			available = append(available, artifact)
		}
	}
	return available, nil
}

// Download returns a presigned URL for a ready artifact and counts the
// download on both the artifact and the schema.
func (s *ArtifactService) Download(ctx context.Context, identity Identity, schemaID, artifactID uuid.UUID) (string, error) {
	schema, err := s.store.Get(ctx, schemaID)
	if err != nil {
		return "", err
	}
	if err := requireAccess(schema, identity); err != nil {
		return "", err
	}
	artifact, ok := schema.Artifacts[artifactID]
	if !ok {
		return "", domain.ErrArtifactNotFound
	}
	if !artifact.Available(time.Now().UTC()) || artifact.Storage == nil {
		return "", domain.NewDomainError("ARTIFACT_NOT_AVAILABLE", domain.CategoryInvalidState, "Artifact is not ready for download")
	}

	url, err := s.artifactStore.PresignedDownloadURL(ctx, artifact.Storage.Path, downloadURLValidFor)
	if err != nil {
		return "", err
	}

	artifact.RecordDownload()
	schema.RecordDownload()
	return url, nil
}

// ExpirePendingJobs fails generation jobs that have been pending longer than
// the timeout window. Intended to run periodically.
func (s *ArtifactService) ExpirePendingJobs(ctx context.Context) (int, error) {
	schemas, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	cutoff := time.Now().UTC().Add(-s.jobTimeout)
	for _, schema := range schemas {
		for _, artifact := range schema.Artifacts {
			if artifact.State != domain.ArtifactPending || artifact.CreatedAt.After(cutoff) {
				continue
			}
			artifactID := artifact.ID
			_, err := s.store.Mutate(ctx, schema.ID, storage.SkipRevisionCheck, func(schema *domain.Schema) error {
				stored, ok := schema.Artifacts[artifactID]
				if !ok || stored.State != domain.ArtifactPending {
					return nil
				}
				return stored.FailArtifact("generation job exceeded the timeout window")
			})
			if err != nil {
				s.logger.ErrorContext(ctx, "Failed to expire pending artifact",
					"schema_id", schema.ID, "artifact_id", artifactID, "error", err)
				continue
			}
			expired++
		}
	}

	if expired > 0 {
		s.logger.InfoContext(ctx, "Expired pending generation jobs", "count", expired)
	}
	return expired, nil
}
