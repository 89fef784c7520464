/**
 * Domain Error Taxonomy
 *
 * Every user-facing failure in the registry maps to one of the error
 * categories below. Transport layers translate the category into their own
 * status codes; services return DomainError values unchanged so callers can
 * branch on the code.
 */

package domain

import "errors"

// Error categories. Every DomainError carries one of these so transports can
// map failures without string matching.
const (
	CategoryInvalidArgument  = "INVALID_ARGUMENT"
	CategoryNotFound         = "NOT_FOUND"
	CategoryConflict         = "CONFLICT"
	CategoryPermissionDenied = "PERMISSION_DENIED"
	CategoryInvalidState     = "INVALID_STATE"
	CategoryJobTimeout       = "JOB_TIMEOUT"
	CategoryJobFailed        = "JOB_FAILED"
)

// DomainError represents a business logic error with a stable machine code
type DomainError struct {
	Code     string `json:"code"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Error implements the error interface
func (e DomainError) Error() string {
	return e.Code + ": " + e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, category, message string) DomainError {
	return DomainError{
		Code:     code,
		Category: category,
		Message:  message,
	}
}

// CategoryOf returns the category of err if it is a DomainError, or "" otherwise.
func CategoryOf(err error) string {
	var de DomainError
	if errors.As(err, &de) {
		return de.Category
	}
	return ""
}

// IsConflict reports whether err is a Conflict-category domain error.
func IsConflict(err error) bool { return CategoryOf(err) == CategoryConflict }

// IsNotFound reports whether err is a NotFound-category domain error.
func IsNotFound(err error) bool { return CategoryOf(err) == CategoryNotFound }

// Shared error values used across the aggregate
var (
	ErrInvalidSchemaName    = NewDomainError("INVALID_SCHEMA_NAME", CategoryInvalidArgument, "Schema name is required and must be valid")
	ErrInvalidSchemaSlug    = NewDomainError("INVALID_SCHEMA_SLUG", CategoryInvalidArgument, "Schema slug must be URL-safe (lowercase letters, digits, hyphens)")
	ErrInvalidSchemaFormat  = NewDomainError("INVALID_SCHEMA_FORMAT", CategoryInvalidArgument, "Schema format is not supported")
	ErrInvalidVersionString = NewDomainError("INVALID_VERSION_STRING", CategoryInvalidArgument, "Version must be a semantic version string")
	ErrInvalidTag           = NewDomainError("INVALID_TAG", CategoryInvalidArgument, "Tags must be 2-50 lowercase alphanumeric/hyphen characters")
	ErrDuplicateTag         = NewDomainError("DUPLICATE_TAG", CategoryConflict, "Duplicate tag on the same schema")
	ErrInvalidWorkspaceID   = NewDomainError("INVALID_WORKSPACE_ID", CategoryInvalidArgument, "Workspace ID is required")
	ErrInvalidUserID        = NewDomainError("INVALID_USER_ID", CategoryInvalidArgument, "User ID is required")
	ErrInvalidContent       = NewDomainError("INVALID_CONTENT", CategoryInvalidArgument, "Schema content is required")

	ErrSchemaNotFound   = NewDomainError("SCHEMA_NOT_FOUND", CategoryNotFound, "Schema not found")
	ErrVersionNotFound  = NewDomainError("VERSION_NOT_FOUND", CategoryNotFound, "Schema version not found")
	ErrConsumerNotFound = NewDomainError("CONSUMER_NOT_FOUND", CategoryNotFound, "Consumer not found")
	ErrArtifactNotFound = NewDomainError("ARTIFACT_NOT_FOUND", CategoryNotFound, "Artifact not found")
	ErrIssueNotFound    = NewDomainError("ISSUE_NOT_FOUND", CategoryNotFound, "Validation issue not found")

	ErrSchemaExists     = NewDomainError("SCHEMA_EXISTS", CategoryConflict, "Schema with the same name or slug already exists")
	ErrVersionExists    = NewDomainError("VERSION_EXISTS", CategoryConflict, "Schema version already exists")
	ErrDuplicateContent = NewDomainError("DUPLICATE_CONTENT", CategoryConflict, "Content hash matches an existing version of this schema")
	ErrConsumerExists   = NewDomainError("CONSUMER_EXISTS", CategoryConflict, "An active consumer with this kind and name is already registered")
	ErrRevisionConflict = NewDomainError("REVISION_CONFLICT", CategoryConflict, "Schema was modified concurrently; re-read and retry")

	ErrPermissionDenied = NewDomainError("PERMISSION_DENIED", CategoryPermissionDenied, "Requester may not access this schema")

	ErrVersionNotValid      = NewDomainError("VERSION_NOT_VALID", CategoryInvalidState, "Version has unresolved errors and cannot be published")
	ErrVersionNotPublished  = NewDomainError("VERSION_NOT_PUBLISHED", CategoryInvalidState, "Operation requires a published version")
	ErrVersionNotPending    = NewDomainError("VERSION_NOT_PENDING", CategoryInvalidState, "Version is not awaiting validation")
	ErrAlreadyPublished     = NewDomainError("ALREADY_PUBLISHED", CategoryInvalidState, "Version is already published")
	ErrAlreadyDeprecated    = NewDomainError("ALREADY_DEPRECATED", CategoryInvalidState, "Version is already deprecated")
	ErrSchemaArchived       = NewDomainError("SCHEMA_ARCHIVED", CategoryInvalidState, "Schema is archived and cannot be modified")
	ErrArtifactNotPending   = NewDomainError("ARTIFACT_NOT_PENDING", CategoryInvalidState, "Artifact is not awaiting generation")
	ErrValidationInProgress = NewDomainError("VALIDATION_IN_PROGRESS", CategoryInvalidState, "Version validation has not completed")

	ErrJobTimeout = NewDomainError("JOB_TIMEOUT", CategoryJobTimeout, "External job did not complete within the configured window")
	ErrJobFailed  = NewDomainError("JOB_FAILED", CategoryJobFailed, "External job reported failure")
)
