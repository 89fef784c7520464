package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/helixhq/registry/internal/activities"
)

// CodeGenerationWorkflow generates one artifact for a published schema
// version: generate source, package it as a tar.gz, upload it to the artifact
// store and report the result back to the catalog. A step failure is reported
// so the artifact moves to failed instead of staying pending.
func CodeGenerationWorkflow(ctx workflow.Context, input GenerationInput) (GenerationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting code generation workflow",
		"SchemaID", input.SchemaID,
		"VersionID", input.VersionID,
		"ArtifactID", input.ArtifactID,
		"Language", input.Language,
		"Kind", input.Kind,
	)

	workflowID := workflow.GetInfo(ctx).WorkflowExecution.ID

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	result := GenerationResult{ArtifactID: input.ArtifactID}

	run := func() error {
		logger.Info("Step 1: Generating code", "Language", input.Language)
		var files map[string]string
		err := workflow.ExecuteActivity(ctx, GenerateCodeActivityName, activities.GenerateCodeInput{
			Format:           input.Format,
			Content:          input.Content,
			Language:         input.Language,
			Kind:             input.Kind,
			GeneratorVersion: input.GeneratorVersion,
			Config:           input.Config,
		}).Get(ctx, &files)
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}

		logger.Info("Step 2: Packaging artifact", "FileCount", len(files))
		var archive []byte
		err = workflow.ExecuteActivity(ctx, PackageArtifactActivityName, activities.PackageArtifactInput{
			Files: files,
		}).Get(ctx, &archive)
		if err != nil {
			return fmt.Errorf("package: %w", err)
		}

		logger.Info("Step 3: Uploading artifact", "Size", len(archive))
		objectPath := fmt.Sprintf("artifacts/%s/%s/%s-%s-%s.tar.gz",
			input.SchemaID, input.VersionID, input.Language, input.Kind, input.GeneratorVersion)
		var uploaded activities.UploadArtifactOutput
		err = workflow.ExecuteActivity(ctx, UploadArtifactActivityName, activities.UploadArtifactInput{
			ObjectPath: objectPath,
			Archive:    archive,
		}).Get(ctx, &uploaded)
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}

		result.StoragePath = uploaded.Path
		result.Size = uploaded.Size
		result.Checksum = uploaded.Checksum
		return nil
	}

	if err := run(); err != nil {
		logger.Error("Generation step failed", "Error", err)
		result.Failure = err.Error()
	}

	reportOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    10,
		},
	}
	reportCtx := workflow.WithActivityOptions(ctx, reportOptions)

	err := workflow.ExecuteActivity(reportCtx, ReportGenerationActivityName, activities.ReportGenerationInput{
		WorkflowID: workflowID,
		ArtifactID: input.ArtifactID,
		Path:       result.StoragePath,
		Size:       result.Size,
		Checksum:   result.Checksum,
		Failure:    result.Failure,
	}).Get(reportCtx, nil)
	if err != nil {
		logger.Error("Failed to report generation outcome", "Error", err)
		return result, err
	}

	logger.Info("Code generation workflow completed", "Failed", result.Failure != "")
	return result, nil
}
