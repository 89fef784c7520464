/**
 * Workflow Inputs and Results
 *
 * Shared payload types for the validation and generation workflows. These are
 * the contract between the services that submit jobs and the workers that run
 * them, so they carry only serializable data.
 */

package workflows

import (
	"github.com/google/uuid"

	"github.com/helixhq/registry/internal/validation"
)

// Activity type names. Workers register the activity implementations by
// method name, so the workflows schedule activities by these strings rather
// than by function reference.
const (
	RunValidationActivityName    = "RunValidation"
	ReportValidationActivityName = "ReportValidation"
	GenerateCodeActivityName     = "GenerateCode"
	PackageArtifactActivityName  = "PackageArtifact"
	UploadArtifactActivityName   = "UploadArtifact"
	ReportGenerationActivityName = "ReportGeneration"
)

// ValidationInput is the payload of one schema validation job.
type ValidationInput struct {
	SchemaID  uuid.UUID `json:"schema_id"`
	VersionID uuid.UUID `json:"version_id"`
	Format    string    `json:"format"`
	Content   string    `json:"content"`
}

// ValidationResult is reported back to the catalog when a validation job
// ends. Failure is set when the job itself broke, as opposed to the content
// being invalid.
type ValidationResult struct {
	SchemaID  uuid.UUID            `json:"schema_id"`
	VersionID uuid.UUID            `json:"version_id"`
	Findings  []validation.Finding `json:"findings,omitempty"`
	RefCount  int                  `json:"ref_count"`
	Failure   string               `json:"failure,omitempty"`
}

// GenerationInput is the payload of one artifact generation job.
type GenerationInput struct {
	SchemaID         uuid.UUID         `json:"schema_id"`
	VersionID        uuid.UUID         `json:"version_id"`
	ArtifactID       uuid.UUID         `json:"artifact_id"`
	Format           string            `json:"format"`
	Content          string            `json:"content"`
	Language         string            `json:"language"`
	Kind             string            `json:"kind"`
	GeneratorVersion string            `json:"generator_version"`
	Config           map[string]string `json:"config,omitempty"`
}

// GenerationResult is reported back when a generation job ends.
type GenerationResult struct {
	ArtifactID  uuid.UUID `json:"artifact_id"`
	StoragePath string    `json:"storage_path,omitempty"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum,omitempty"`
	Failure     string    `json:"failure,omitempty"`
}
