package clients

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	enums "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"

	"github.com/helixhq/registry/internal/service"
	"github.com/helixhq/registry/internal/workflows"
)

// TemporalClient submits catalog jobs to a Temporal cluster. It implements
// the service layer's WorkflowClient boundary.
type TemporalClient struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewTemporalClient connects to the Temporal frontend at hostPort.
func NewTemporalClient(hostPort, namespace, taskQueue string, logger *slog.Logger) (*TemporalClient, error) {
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to temporal: %w", err)
	}

	return &TemporalClient{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartSchemaValidation submits a validation workflow and returns without
// waiting for it.
func (c *TemporalClient) StartSchemaValidation(ctx context.Context, input workflows.ValidationInput) (service.WorkflowHandle, error) {
	options := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("schema-validation-%s-%d", input.VersionID, time.Now().Unix()),
		TaskQueue: c.taskQueue,
	}

	run, err := c.client.ExecuteWorkflow(ctx, options, workflows.SchemaValidationWorkflow, input)
	if err != nil {
		return service.WorkflowHandle{}, fmt.Errorf("starting validation workflow: %w", err)
	}

	c.logger.Info("started validation workflow",
		slog.String("workflow_id", run.GetID()),
		slog.String("run_id", run.GetRunID()),
	)
	return service.WorkflowHandle{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

// StartCodeGeneration submits a generation workflow and returns without
// waiting for it.
func (c *TemporalClient) StartCodeGeneration(ctx context.Context, input workflows.GenerationInput) (service.WorkflowHandle, error) {
	options := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("code-generation-%s-%d", input.ArtifactID, time.Now().Unix()),
		TaskQueue: c.taskQueue,
	}

	run, err := c.client.ExecuteWorkflow(ctx, options, workflows.CodeGenerationWorkflow, input)
	if err != nil {
		return service.WorkflowHandle{}, fmt.Errorf("starting generation workflow: %w", err)
	}

	c.logger.Info("started generation workflow",
		slog.String("workflow_id", run.GetID()),
		slog.String("run_id", run.GetRunID()),
	)
	return service.WorkflowHandle{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

// JobState reports the execution state of a submitted workflow.
func (c *TemporalClient) JobState(ctx context.Context, workflowID, runID string) (service.JobState, error) {
	description, err := c.client.DescribeWorkflowExecution(ctx, workflowID, runID)
	if err != nil {
		return service.JobStateUnknown, fmt.Errorf("describing workflow: %w", err)
	}

	switch description.GetWorkflowExecutionInfo().GetStatus() {
	case enums.WORKFLOW_EXECUTION_STATUS_RUNNING, enums.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		return service.JobStateRunning, nil
	case enums.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return service.JobStateCompleted, nil
	case enums.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return service.JobStateTimedOut, nil
	case enums.WORKFLOW_EXECUTION_STATUS_FAILED,
		enums.WORKFLOW_EXECUTION_STATUS_CANCELED,
		enums.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return service.JobStateFailed, nil
	default:
		return service.JobStateUnknown, nil
	}
}

// Close releases the underlying connection.
func (c *TemporalClient) Close() {
	c.client.Close()
}
