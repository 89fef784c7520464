package validation

import (
	"fmt"
	"strings"

	"github.com/helixhq/registry/internal/domain"
)

// checkStructure verifies the format-specific skeleton of a parsed document.
func checkStructure(format domain.Format, doc map[string]any, report *Report) {
	switch format {
	case domain.FormatOpenAPI:
		checkOpenAPI(doc, report)
	case domain.FormatAsyncAPI:
		checkAsyncAPI(doc, report)
	case domain.FormatJSONSchema:
		checkJSONSchema(doc, report)
	case domain.FormatAvro:
		checkAvro(doc, report)
	}
}

func checkOpenAPI(doc map[string]any, report *Report) {
	version, ok := doc["openapi"].(string)
	if !ok {
		report.errorFinding("MISSING_OPENAPI_VERSION", "document must declare an openapi version", "openapi")
	} else if !strings.HasPrefix(version, "3.") {
		report.errorFinding("UNSUPPORTED_OPENAPI_VERSION", fmt.Sprintf("openapi version %q is not supported, expected 3.x", version), "openapi")
	}

	info, ok := doc["info"].(map[string]any)
	if !ok {
		report.errorFinding("MISSING_INFO", "document must contain an info object", "info")
		return
	}
	if title, ok := info["title"].(string); !ok || strings.TrimSpace(title) == "" {
		report.errorFinding("MISSING_INFO_TITLE", "info.title is required", "info.title")
	}
	if v, ok := info["version"].(string); !ok || strings.TrimSpace(v) == "" {
		report.errorFinding("MISSING_INFO_VERSION", "info.version is required", "info.version")
	}
	if _, hasPaths := doc["paths"]; !hasPaths {
		if _, hasWebhooks := doc["webhooks"]; !hasWebhooks {
			report.Findings = append(report.Findings, Finding{
				Severity: domain.SeverityWarning,
				Code:     "NO_PATHS",
				Message:  "document declares neither paths nor webhooks",
				Path:     "paths",
				Rule:     "openapi-paths",
			})
		}
	}
}

func checkAsyncAPI(doc map[string]any, report *Report) {
	if _, ok := doc["asyncapi"].(string); !ok {
		report.errorFinding("MISSING_ASYNCAPI_VERSION", "document must declare an asyncapi version", "asyncapi")
	}
	info, ok := doc["info"].(map[string]any)
	if !ok {
		report.errorFinding("MISSING_INFO", "document must contain an info object", "info")
	} else {
		if title, ok := info["title"].(string); !ok || strings.TrimSpace(title) == "" {
			report.errorFinding("MISSING_INFO_TITLE", "info.title is required", "info.title")
		}
	}
	if _, ok := doc["channels"]; !ok {
		report.errorFinding("MISSING_CHANNELS", "document must declare channels", "channels")
	}
}

func checkJSONSchema(doc map[string]any, report *Report) {
	if _, ok := doc["$schema"]; !ok {
		report.Findings = append(report.Findings, Finding{
			Severity: domain.SeverityWarning,
			Code:     "MISSING_SCHEMA_DIALECT",
			Message:  "document does not declare a $schema dialect",
			Path:     "$schema",
			Rule:     "jsonschema-dialect",
		})
	}
	if t, ok := doc["type"].(string); ok {
		switch t {
		case "object", "array", "string", "number", "integer", "boolean", "null":
		default:
			report.errorFinding("INVALID_TYPE", fmt.Sprintf("unknown type %q", t), "type")
		}
	}
	if props, ok := doc["properties"]; ok {
		if _, isMap := props.(map[string]any); !isMap {
			report.errorFinding("INVALID_PROPERTIES", "properties must be an object", "properties")
		}
	}
}

func checkAvro(doc map[string]any, report *Report) {
	recordType, _ := doc["type"].(string)
	if recordType == "" {
		report.errorFinding("MISSING_TYPE", "avro schema must declare a type", "type")
		return
	}
	if recordType != "record" && recordType != "enum" && recordType != "fixed" {
		return
	}
	if name, ok := doc["name"].(string); !ok || strings.TrimSpace(name) == "" {
		report.errorFinding("MISSING_NAME", "named avro types require a name", "name")
	}
	if recordType == "record" {
		fields, ok := doc["fields"].([]any)
		if !ok {
			report.errorFinding("MISSING_FIELDS", "record schemas require a fields array", "fields")
			return
		}
		for i, entry := range fields {
			field, ok := entry.(map[string]any)
			if !ok {
				report.errorFinding("INVALID_FIELD", "record field must be an object", fmt.Sprintf("fields[%d]", i))
				continue
			}
			if name, ok := field["name"].(string); !ok || name == "" {
				report.errorFinding("MISSING_FIELD_NAME", "record field requires a name", fmt.Sprintf("fields[%d].name", i))
			}
			if _, ok := field["type"]; !ok {
				report.errorFinding("MISSING_FIELD_TYPE", "record field requires a type", fmt.Sprintf("fields[%d].type", i))
			}
		}
	}
}

// checkGraphQL applies line-level checks to SDL content: at least one type
// definition and balanced braces.
func checkGraphQL(raw string, report *Report) {
	hasDefinition := false
	depth := 0
	for i, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		for _, prefix := range []string{"type ", "interface ", "input ", "enum ", "union ", "scalar ", "schema ", "extend ", "directive "} {
			if strings.HasPrefix(trimmed, prefix) {
				hasDefinition = true
			}
		}
		depth += strings.Count(trimmed, "{") - strings.Count(trimmed, "}")
		if depth < 0 {
			report.errorFinding("UNBALANCED_BRACES", "unexpected closing brace", "")
			report.Findings[len(report.Findings)-1].Line = i + 1
			return
		}
	}
	if depth != 0 {
		report.errorFinding("UNBALANCED_BRACES", "unclosed brace in document", "")
	}
	if !hasDefinition {
		report.errorFinding("NO_TYPE_DEFINITIONS", "document contains no type definitions", "")
	}
}

// checkProtobuf requires a proto3 syntax declaration and balanced braces.
func checkProtobuf(raw string, report *Report) {
	hasSyntax := false
	depth := 0
	for i, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") {
			continue
		}
		if strings.HasPrefix(trimmed, "syntax") {
			hasSyntax = true
			if !strings.Contains(trimmed, "proto3") {
				report.errorFinding("UNSUPPORTED_SYNTAX", "only proto3 syntax is supported", "syntax")
				report.Findings[len(report.Findings)-1].Line = i + 1
			}
		}
		depth += strings.Count(trimmed, "{") - strings.Count(trimmed, "}")
		if depth < 0 {
			report.errorFinding("UNBALANCED_BRACES", "unexpected closing brace", "")
			report.Findings[len(report.Findings)-1].Line = i + 1
			return
		}
	}
	if depth != 0 {
		report.errorFinding("UNBALANCED_BRACES", "unclosed brace in document", "")
	}
	if !hasSyntax {
		report.errorFinding("MISSING_SYNTAX", "document must declare a syntax version", "syntax")
	}
}
