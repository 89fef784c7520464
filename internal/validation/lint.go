package validation

import (
	"strings"

	"github.com/helixhq/registry/internal/domain"
)

// lint applies advisory rules. Lint findings are at most warning severity and
// never flip content to invalid.
func lint(format domain.Format, raw string, report *Report) {
	if report.Document != nil {
		lintDocument(format, report)
	}
	for i, line := range strings.Split(raw, "\n") {
		if len(line) > 300 {
			report.Findings = append(report.Findings, Finding{
				Severity: domain.SeverityHint,
				Code:     "LONG_LINE",
				Message:  "line exceeds 300 characters",
				Line:     i + 1,
				Rule:     "style-line-length",
			})
		}
	}
}

func lintDocument(format domain.Format, report *Report) {
	doc := report.Document
	if info, ok := doc["info"].(map[string]any); ok {
		if desc, _ := info["description"].(string); strings.TrimSpace(desc) == "" {
			report.Findings = append(report.Findings, Finding{
				Severity: domain.SeverityInfo,
				Code:     "MISSING_DESCRIPTION",
				Message:  "info.description is empty",
				Path:     "info.description",
				Rule:     "docs-info-description",
			})
		}
	}

	if format != domain.FormatOpenAPI {
		return
	}
	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		return
	}
	for path, node := range paths {
		operations, ok := node.(map[string]any)
		if !ok {
			continue
		}
		for method, op := range operations {
			opDoc, ok := op.(map[string]any)
			if !ok {
				continue
			}
			if id, _ := opDoc["operationId"].(string); strings.TrimSpace(id) == "" {
				report.Findings = append(report.Findings, Finding{
					Severity: domain.SeverityWarning,
					Code:     "MISSING_OPERATION_ID",
					Message:  "operation has no operationId",
					Path:     "paths." + path + "." + method,
					Rule:     "openapi-operation-id",
				})
			}
		}
	}
}
