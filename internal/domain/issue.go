package domain

import (
	"time"

	"github.com/google/uuid"
)

// Severity ranks validation issues; only unresolved error-severity issues
// make a version invalid
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityHint    Severity = "hint"
)

// ValidationIssue represents one finding of the validation pipeline against a
// specific version
type ValidationIssue struct {
	ID        uuid.UUID `json:"id"`
	SchemaID  uuid.UUID `json:"schema_id"`
	VersionID uuid.UUID `json:"version_id"`

	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`

	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column"`

	Rule    string `json:"rule"`
	RuleRef string `json:"rule_ref,omitempty"`

	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy *uuid.UUID `json:"resolved_by,omitempty"`
	Resolution string     `json:"resolution,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewValidationIssue creates an issue bound to a schema version
func NewValidationIssue(schemaID, versionID uuid.UUID, severity Severity, code, message, path string, line, column int, rule, ruleRef string) *ValidationIssue {
	return &ValidationIssue{
		ID:        uuid.New(),
		SchemaID:  schemaID,
		VersionID: versionID,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Path:      path,
		Line:      line,
		Column:    column,
		Rule:      rule,
		RuleRef:   ruleRef,
		CreatedAt: time.Now().UTC(),
	}
}

// Resolve marks the issue as handled
func (i *ValidationIssue) Resolve(by uuid.UUID, resolution string) {
	now := time.Now().UTC()
	i.Resolved = true
	i.ResolvedAt = &now
	i.ResolvedBy = &by
	i.Resolution = resolution
}
