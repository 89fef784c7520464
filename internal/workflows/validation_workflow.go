package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/helixhq/registry/internal/activities"
)

// SchemaValidationWorkflow runs the validation pipeline for one schema
// version and reports the outcome back to the catalog. A pipeline failure is
// reported as a job failure, not returned as a workflow error, so the version
// always leaves the pending state.
func SchemaValidationWorkflow(ctx workflow.Context, input ValidationInput) (ValidationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting schema validation workflow",
		"SchemaID", input.SchemaID,
		"VersionID", input.VersionID,
		"Format", input.Format,
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

	result := ValidationResult{
		SchemaID:  input.SchemaID,
		VersionID: input.VersionID,
	}

	var output activities.RunValidationOutput
	err := workflow.ExecuteActivity(ctx, RunValidationActivityName, activities.RunValidationInput{
		Format:  input.Format,
		Content: input.Content,
	}).Get(ctx, &output)
	if err != nil {
		logger.Error("Validation pipeline failed", "Error", err)
		result.Failure = err.Error()
	} else {
		result.Findings = output.Findings
		result.RefCount = output.RefCount
	}

	// Reporting uses a longer retry budget: losing the outcome would strand
	// the version in pending until the expiry sweep.
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

	err = workflow.ExecuteActivity(reportCtx, ReportValidationActivityName, activities.ReportValidationInput{
		WorkflowID: workflowID,
		SchemaID:   input.SchemaID,
		VersionID:  input.VersionID,
		Findings:   result.Findings,
		Failure:    result.Failure,
	}).Get(reportCtx, nil)
	if err != nil {
		logger.Error("Failed to report validation outcome", "Error", err)
		return result, err
	}

	logger.Info("Schema validation workflow completed",
		"Failed", result.Failure != "", "Findings", len(result.Findings))
	return result, nil
}
