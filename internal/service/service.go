/**
 * Service Layer Shared Contracts
 *
 * Caller identity, the workflow client boundary and the error vocabulary
 * shared by the schema, catalog, consumer and artifact services. Workflow
 * execution is external: services submit jobs and return immediately, results
 * arrive through completion callbacks or polling.
 */

package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixhq/registry/internal/domain"
	"github.com/helixhq/registry/internal/workflows"
)

// Identity is the authenticated caller attached to every operation.
type Identity struct {
	UserID          uuid.UUID `json:"user_id"`
	WorkspaceMember bool      `json:"workspace_member"`
}

// JobState is the observed state of an asynchronous workflow execution.
type JobState string

const (
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateTimedOut  JobState = "timed_out"
	JobStateUnknown   JobState = "unknown"
)

// WorkflowHandle identifies a submitted workflow execution.
type WorkflowHandle struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// WorkflowClient submits validation and generation jobs to the orchestrator.
type WorkflowClient interface {
	StartSchemaValidation(ctx context.Context, input workflows.ValidationInput) (WorkflowHandle, error)
	StartCodeGeneration(ctx context.Context, input workflows.GenerationInput) (WorkflowHandle, error)
	JobState(ctx context.Context, workflowID, runID string) (JobState, error)
}

// requireMember gates mutating operations on workspace membership.
func requireMember(identity Identity) error {
	if identity.UserID == uuid.Nil {
		return domain.ErrInvalidUserID
	}
	if !identity.WorkspaceMember {
		return domain.ErrPermissionDenied
	}
	return nil
}

// requireAccess gates read operations on the schema's visibility.
func requireAccess(schema *domain.Schema, identity Identity) error {
	if !domain.CanAccess(schema, identity.UserID, identity.WorkspaceMember) {
		// Hidden schemas are indistinguishable from absent ones.
		return domain.ErrSchemaNotFound
	}
	return nil
}
