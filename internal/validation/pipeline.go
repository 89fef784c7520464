/**
 * Validation Pipeline
 *
 * Staged validation of schema content: syntax, structural conformance,
 * reference resolution, then lint. A syntax failure short-circuits the
 * remaining stages. Only error-severity findings make content invalid;
 * lint output is advisory.
 */

package validation

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/helixhq/registry/internal/domain"
)

// Finding is one pipeline observation, later projected onto a stored
// validation issue by the owning service.
type Finding struct {
	Severity domain.Severity
	Code     string
	Message  string
	Path     string
	Line     int
	Column   int
	Rule     string
}

// Report is the outcome of running the full pipeline over one content blob.
type Report struct {
	Valid    bool
	Findings []Finding
	Document map[string]any
	RefCount int
}

func (r *Report) errorFinding(code, message, path string) {
	r.Findings = append(r.Findings, Finding{
		Severity: domain.SeverityError,
		Code:     code,
		Message:  message,
		Path:     path,
	})
}

// Run validates raw content for the given format through all stages.
func Run(format domain.Format, raw string) *Report {
	report := &Report{}

	if strings.TrimSpace(raw) == "" {
		report.errorFinding("EMPTY_CONTENT", "content is empty", "")
		return report
	}

	switch format {
	case domain.FormatGraphQL:
		checkGraphQL(raw, report)
	case domain.FormatProtobuf:
		checkProtobuf(raw, report)
	default:
		doc, ok := parseSyntax(raw, report)
		if !ok {
			return report
		}
		report.Document = doc
		checkStructure(format, doc, report)
		resolveReferences(doc, report)
	}

	if hasErrors(report) {
		return report
	}

	lint(format, raw, report)
	report.Valid = !hasErrors(report)
	return report
}

func hasErrors(r *Report) bool {
	for _, f := range r.Findings {
		if f.Severity == domain.SeverityError {
			return true
		}
	}
	return false
}

// parseSyntax parses YAML (a JSON superset for our purposes) into a document
// tree. Content that looks like JSON goes through the JSON decoder so its
// error positions are not hidden behind a YAML error.
func parseSyntax(raw string, report *Report) (map[string]any, bool) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			report.errorFinding("SYNTAX_ERROR", "invalid JSON: "+err.Error(), "")
			return nil, false
		}
		return doc, true
	}

	var doc map[string]any
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		finding := Finding{
			Severity: domain.SeverityError,
			Code:     "SYNTAX_ERROR",
			Message:  "invalid YAML: " + err.Error(),
		}
		if typeErr, ok := err.(*yaml.TypeError); ok && len(typeErr.Errors) > 0 {
			finding.Message = "invalid YAML: " + typeErr.Errors[0]
		}
		report.Findings = append(report.Findings, finding)
		return nil, false
	}
	if doc == nil {
		report.errorFinding("SYNTAX_ERROR", "document is empty", "")
		return nil, false
	}
	return doc, true
}
