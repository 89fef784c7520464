/**
 * Validation Activities
 *
 * Worker-side execution of the validation pipeline for content too large or
 * reference-heavy to validate inline, plus the completion callback that hands
 * the outcome back to the catalog.
 */

package activities

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/helixhq/registry/internal/domain"
	"github.com/helixhq/registry/internal/validation"
)

// RunValidationInput carries one content blob through the pipeline.
type RunValidationInput struct {
	Format  string `json:"format"`
	Content string `json:"content"`
}

// RunValidationOutput is the pipeline's findings for the workflow to report.
type RunValidationOutput struct {
	Findings []validation.Finding `json:"findings,omitempty"`
	RefCount int                  `json:"ref_count"`
	Valid    bool                 `json:"valid"`
}

// ValidationActivities runs the validation pipeline on a worker.
type ValidationActivities struct {
	logger *slog.Logger
}

func NewValidationActivities(logger *slog.Logger) *ValidationActivities {
	return &ValidationActivities{logger: logger.With("activities", "validation")}
}

// RunValidation executes every pipeline stage over the input content.
func (a *ValidationActivities) RunValidation(ctx context.Context, input RunValidationInput) (RunValidationOutput, error) {
	a.logger.InfoContext(ctx, "Running validation pipeline",
		"format", input.Format, "content_bytes", len(input.Content))

	format := domain.Format(input.Format)
	if !domain.IsValidFormat(format) {
		return RunValidationOutput{}, domain.ErrInvalidSchemaFormat
	}

	report := validation.Run(format, input.Content)
	a.logger.InfoContext(ctx, "Validation pipeline finished",
		"valid", report.Valid, "findings", len(report.Findings), "refs", report.RefCount)

	return RunValidationOutput{
		Findings: report.Findings,
		RefCount: report.RefCount,
		Valid:    report.Valid,
	}, nil
}

// CatalogCallbacks applies asynchronous job outcomes to the catalog. The
// process hosting the catalog store provides the implementation.
type CatalogCallbacks interface {
	CompleteValidation(ctx context.Context, workflowID string, versionID uuid.UUID, findings []validation.Finding, failure string) error
	CompleteGeneration(ctx context.Context, workflowID string, artifactID uuid.UUID, path string, size int64, checksum, failure string) error
}

// ReportValidationInput hands a finished validation job back to the catalog.
type ReportValidationInput struct {
	WorkflowID string               `json:"workflow_id"`
	SchemaID   uuid.UUID            `json:"schema_id"`
	VersionID  uuid.UUID            `json:"version_id"`
	Findings   []validation.Finding `json:"findings,omitempty"`
	Failure    string               `json:"failure,omitempty"`
}

// ReportGenerationInput hands a finished generation job back to the catalog.
type ReportGenerationInput struct {
	WorkflowID string    `json:"workflow_id"`
	ArtifactID uuid.UUID `json:"artifact_id"`
	Path       string    `json:"path,omitempty"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum,omitempty"`
	Failure    string    `json:"failure,omitempty"`
}

// ReportActivities delivers job outcomes to the catalog process.
type ReportActivities struct {
	callbacks CatalogCallbacks
	logger    *slog.Logger
}

func NewReportActivities(callbacks CatalogCallbacks, logger *slog.Logger) *ReportActivities {
	return &ReportActivities{
		callbacks: callbacks,
		logger:    logger.With("activities", "report"),
	}
}

// ReportValidation applies a validation outcome to the owning version.
func (a *ReportActivities) ReportValidation(ctx context.Context, input ReportValidationInput) error {
	a.logger.InfoContext(ctx, "Reporting validation outcome",
		"workflow_id", input.WorkflowID, "version_id", input.VersionID, "failed", input.Failure != "")
	return a.callbacks.CompleteValidation(ctx, input.WorkflowID, input.VersionID, input.Findings, input.Failure)
}

// ReportGeneration applies a generation outcome to the owning artifact.
func (a *ReportActivities) ReportGeneration(ctx context.Context, input ReportGenerationInput) error {
	a.logger.InfoContext(ctx, "Reporting generation outcome",
		"workflow_id", input.WorkflowID, "artifact_id", input.ArtifactID, "failed", input.Failure != "")
	return a.callbacks.CompleteGeneration(ctx, input.WorkflowID, input.ArtifactID, input.Path, input.Size, input.Checksum, input.Failure)
}
