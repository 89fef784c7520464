package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/helixhq/registry/internal/service"
	"github.com/helixhq/registry/internal/validation"
	"github.com/helixhq/registry/internal/workflows"
)

// CallbackClient delivers job outcomes from workers to the registry server
// over its internal HTTP surface. It implements the activities package's
// CatalogCallbacks boundary.
type CallbackClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewCallbackClient creates a callback client targeting the registry server.
func NewCallbackClient(baseURL string, logger *slog.Logger) *CallbackClient {
	return &CallbackClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type validationCallbackPayload struct {
	WorkflowID string               `json:"workflow_id"`
	VersionID  uuid.UUID            `json:"version_id"`
	Findings   []validation.Finding `json:"findings,omitempty"`
	Failure    string               `json:"failure,omitempty"`
}

type generationCallbackPayload struct {
	WorkflowID string    `json:"workflow_id"`
	ArtifactID uuid.UUID `json:"artifact_id"`
	Path       string    `json:"storage_path,omitempty"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum,omitempty"`
	Failure    string    `json:"failure,omitempty"`
}

// CompleteValidation posts a validation outcome to the registry server.
func (c *CallbackClient) CompleteValidation(ctx context.Context, workflowID string, versionID uuid.UUID, findings []validation.Finding, failure string) error {
	return c.post(ctx, "/internal/v1/validation-results", validationCallbackPayload{
		WorkflowID: workflowID,
		VersionID:  versionID,
		Findings:   findings,
		Failure:    failure,
	})
}

// CompleteGeneration posts a generation outcome to the registry server.
func (c *CallbackClient) CompleteGeneration(ctx context.Context, workflowID string, artifactID uuid.UUID, path string, size int64, checksum, failure string) error {
	return c.post(ctx, "/internal/v1/generation-results", generationCallbackPayload{
		WorkflowID: workflowID,
		ArtifactID: artifactID,
		Path:       path,
		Size:       size,
		Checksum:   checksum,
		Failure:    failure,
	})
}

func (c *CallbackClient) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("callback rejected with status %d", resp.StatusCode)
	}

	c.logger.Debug("callback delivered", slog.String("path", path))
	return nil
}

// DisabledWorkflowClient rejects every job submission. Used when no Temporal
// cluster is reachable so synchronous operations keep working.
type DisabledWorkflowClient struct{}

func (DisabledWorkflowClient) StartSchemaValidation(context.Context, workflows.ValidationInput) (service.WorkflowHandle, error) {
	return service.WorkflowHandle{}, fmt.Errorf("workflow orchestration is not available")
}

func (DisabledWorkflowClient) StartCodeGeneration(context.Context, workflows.GenerationInput) (service.WorkflowHandle, error) {
	return service.WorkflowHandle{}, fmt.Errorf("workflow orchestration is not available")
}

func (DisabledWorkflowClient) JobState(context.Context, string, string) (service.JobState, error) {
	return service.JobStateUnknown, fmt.Errorf("workflow orchestration is not available")
}
