package domain

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactKind identifies what a generated artifact contains
type ArtifactKind string

const (
	ArtifactClient ArtifactKind = "client"
	ArtifactServer ArtifactKind = "server"
	ArtifactDocs   ArtifactKind = "docs"
)

// ArtifactState tracks the external generation job for an artifact
type ArtifactState string

const (
	ArtifactPending ArtifactState = "pending"
	ArtifactReady   ArtifactState = "ready"
	ArtifactFailed  ArtifactState = "failed"
)

// ArtifactKey uniquely identifies an artifact within a schema. Resubmission
// with an identical key must not create a duplicate storage object.
type ArtifactKey struct {
	VersionID        uuid.UUID    `json:"version_id"`
	Language         string       `json:"language"`
	Kind             ArtifactKind `json:"kind"`
	GeneratorVersion string       `json:"generator_version"`
}

// StorageDescriptor points at the generated object in the external store.
// The registry records it verbatim; it never writes bytes itself.
type StorageDescriptor struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
	URL      string `json:"url"`
}

// Artifact represents a generated code/doc output derived from a specific
// version for a specific target language
type Artifact struct {
	ID               uuid.UUID    `json:"id"`
	SchemaID         uuid.UUID    `json:"schema_id"`
	VersionID        uuid.UUID    `json:"version_id"`
	Language         string       `json:"language"`
	Kind             ArtifactKind `json:"kind"`
	GeneratorVersion string       `json:"generator_version"`

	WorkflowID string `json:"workflow_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`

	State         ArtifactState      `json:"state"`
	FailureReason string             `json:"failure_reason,omitempty"`
	Storage       *StorageDescriptor `json:"storage,omitempty"`

	Config    map[string]string `json:"config,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`

	// DownloadCount is materialized from the shared usage cell when a mutation
	// commits a clone; the live total comes from Downloads.
	DownloadCount int64 `json:"download_count"`

	usage *usageCounters

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	RequestedBy uuid.UUID `json:"requested_by"`
}

// Key returns the dedupe key of the artifact
func (a *Artifact) Key() ArtifactKey {
	return ArtifactKey{
		VersionID:        a.VersionID,
		Language:         a.Language,
		Kind:             a.Kind,
		GeneratorVersion: a.GeneratorVersion,
	}
}

// Expired reports whether the artifact's retention window has passed
func (a *Artifact) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// Available reports whether the artifact can be served for download
func (a *Artifact) Available(now time.Time) bool {
	return a.State == ArtifactReady && !a.Expired(now)
}

// RecordDownload bumps the artifact download counter atomically
func (a *Artifact) RecordDownload() {
	a.usage.downloads.Add(1)
}

// Downloads returns the live download total.
func (a *Artifact) Downloads() int64 {
	return a.usage.downloads.Load()
}

// FindArtifactByKey returns the live artifact for a dedupe key, skipping
// failed and expired entries so a retry can create a fresh one.
func (s *Schema) FindArtifactByKey(key ArtifactKey, now time.Time) *Artifact {
	for _, a := range s.Artifacts {
		if a.Key() != key {
			continue
		}
		if a.State == ArtifactFailed {
			continue
		}
		if a.State == ArtifactReady && a.Expired(now) {
			continue
		}
		return a
	}
	return nil
}

// AddArtifact creates a pending artifact record for a published version
func (s *Schema) AddArtifact(versionID uuid.UUID, language string, kind ArtifactKind, generatorVersion string, config map[string]string, ttl time.Duration, requestedBy uuid.UUID) (*Artifact, error) {
	if s.Status == StatusArchived || s.Deleted {
		return nil, ErrSchemaArchived
	}
	v, ok := s.Versions[versionID]
	if !ok {
		return nil, ErrVersionNotFound
	}
	if v.Status != VersionPublished && v.Status != VersionDeprecated {
		return nil, ErrVersionNotPublished
	}
	if language == "" {
		return nil, NewDomainError("INVALID_LANGUAGE", CategoryInvalidArgument, "Target language is required")
	}
	switch kind {
	case ArtifactClient, ArtifactServer, ArtifactDocs:
	default:
		return nil, NewDomainError("INVALID_ARTIFACT_KIND", CategoryInvalidArgument, "Unknown artifact kind")
	}

	now := time.Now().UTC()
	a := &Artifact{
		ID:               uuid.New(),
		SchemaID:         s.ID,
		VersionID:        versionID,
		Language:         language,
		Kind:             kind,
		GeneratorVersion: generatorVersion,
		State:            ArtifactPending,
		Config:           config,
		CreatedAt:        now,
		UpdatedAt:        now,
		RequestedBy:      requestedBy,
		usage:            &usageCounters{},
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		a.ExpiresAt = &expires
	}
	if a.Config == nil {
		a.Config = make(map[string]string)
	}
	s.Artifacts[a.ID] = a
	s.touch(requestedBy, now)
	return a, nil
}

// CompleteArtifact fills in storage metadata for a finished generation job
func (a *Artifact) CompleteArtifact(storage StorageDescriptor) error {
	if a.State != ArtifactPending {
		return ErrArtifactNotPending
	}
	a.State = ArtifactReady
	a.Storage = &storage
	a.FailureReason = ""
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// FailArtifact records a failed generation job. Failed artifacts are
// retryable through a fresh generation request.
func (a *Artifact) FailArtifact(reason string) error {
	if a.State != ArtifactPending {
		return ErrArtifactNotPending
	}
	a.State = ArtifactFailed
	a.FailureReason = reason
	a.UpdatedAt = time.Now().UTC()
	return nil
}
