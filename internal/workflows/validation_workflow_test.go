package workflows

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/helixhq/registry/internal/activities"
	"github.com/helixhq/registry/internal/validation"
)

type SchemaValidationWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *SchemaValidationWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()

	// Register typed activities under the names the workflow schedules so
	// name-based OnActivity mocks can decode the inputs.
	s.env.RegisterActivityWithOptions(
		func(ctx context.Context, input activities.RunValidationInput) (activities.RunValidationOutput, error) {
			return activities.RunValidationOutput{}, nil
		},
		activity.RegisterOptions{Name: RunValidationActivityName},
	)
	s.env.RegisterActivityWithOptions(
		func(ctx context.Context, input activities.ReportValidationInput) error {
			return nil
		},
		activity.RegisterOptions{Name: ReportValidationActivityName},
	)
}

func (s *SchemaValidationWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func TestSchemaValidationWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(SchemaValidationWorkflowTestSuite))
}

func (s *SchemaValidationWorkflowTestSuite) TestValidationWorkflow_Success() {
	input := ValidationInput{
		SchemaID:  uuid.New(),
		VersionID: uuid.New(),
		Format:    "openapi",
		Content:   "openapi: 3.0.3\ninfo:\n  title: T\n  version: 1.0.0\npaths: {}\n",
	}

	findings := []validation.Finding{
		{Severity: "warning", Code: "NO_PATHS", Message: "Document declares no paths"},
	}
	s.env.OnActivity(RunValidationActivityName, mock.Anything, mock.Anything).
		Return(activities.RunValidationOutput{Findings: findings, RefCount: 0, Valid: true}, nil)

	var reported activities.ReportValidationInput
	s.env.OnActivity(ReportValidationActivityName, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			reported = args.Get(1).(activities.ReportValidationInput)
		}).
		Return(nil)

	s.env.ExecuteWorkflow(SchemaValidationWorkflow, input)

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var result ValidationResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(input.VersionID, result.VersionID)
	s.Empty(result.Failure)
	s.Len(result.Findings, 1)

	s.Equal(input.VersionID, reported.VersionID)
	s.Empty(reported.Failure)
	s.Len(reported.Findings, 1)
}

// A pipeline failure is reported as a job failure so the version leaves the
// pending state; the workflow itself still completes.
func (s *SchemaValidationWorkflowTestSuite) TestValidationWorkflow_PipelineFailureIsReported() {
	input := ValidationInput{
		SchemaID:  uuid.New(),
		VersionID: uuid.New(),
		Format:    "openapi",
		Content:   "openapi: 3.0.3\n",
	}

	s.env.OnActivity(RunValidationActivityName, mock.Anything, mock.Anything).
		Return(activities.RunValidationOutput{}, errors.New("pipeline crashed"))

	var reported activities.ReportValidationInput
	s.env.OnActivity(ReportValidationActivityName, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			reported = args.Get(1).(activities.ReportValidationInput)
		}).
		Return(nil)

	s.env.ExecuteWorkflow(SchemaValidationWorkflow, input)

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var result ValidationResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Contains(result.Failure, "pipeline crashed")
	s.Contains(reported.Failure, "pipeline crashed")
}

func (s *SchemaValidationWorkflowTestSuite) TestValidationWorkflow_ReportFailureFailsWorkflow() {
	input := ValidationInput{
		SchemaID:  uuid.New(),
		VersionID: uuid.New(),
		Format:    "openapi",
		Content:   "openapi: 3.0.3\n",
	}

	s.env.OnActivity(RunValidationActivityName, mock.Anything, mock.Anything).
		Return(activities.RunValidationOutput{Valid: true}, nil)
	s.env.OnActivity(ReportValidationActivityName, mock.Anything, mock.Anything).
		Return(errors.New("catalog unreachable"))

	s.env.ExecuteWorkflow(SchemaValidationWorkflow, input)

	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

// The workflow must schedule activity types under the exact names the worker
// produces when it registers the activity methods. Registering the real
// implementations, with no name overrides, catches any drift.
func (s *SchemaValidationWorkflowTestSuite) TestValidationWorkflow_MatchesWorkerRegistration() {
	env := s.NewTestWorkflowEnvironment()
	logg := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.RegisterActivity(activities.NewValidationActivities(logg).RunValidation)
	env.RegisterActivity(activities.NewReportActivities(recordingCallbacks{}, logg).ReportValidation)

	env.ExecuteWorkflow(SchemaValidationWorkflow, ValidationInput{
		SchemaID:  uuid.New(),
		VersionID: uuid.New(),
		Format:    "openapi",
		Content:   "openapi: 3.0.3\ninfo:\n  title: T\n  version: 1.0.0\npaths: {}\n",
	})

	s.True(env.IsWorkflowCompleted())
	s.NoError(env.GetWorkflowError())

	var result ValidationResult
	s.NoError(env.GetWorkflowResult(&result))
	s.Empty(result.Failure)
}

type recordingCallbacks struct{}

func (recordingCallbacks) CompleteValidation(context.Context, string, uuid.UUID, []validation.Finding, string) error {
	return nil
}

func (recordingCallbacks) CompleteGeneration(context.Context, string, uuid.UUID, string, int64, string, string) error {
	return nil
}
