package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixhq/registry/internal/domain"
)

const validOpenAPI = `
openapi: 3.0.3
info:
  title: Orders
  version: 1.0.0
  description: The orders API
paths:
  /orders:
    get:
      operationId: listOrders
      responses:
        "200":
          $ref: "#/components/responses/OrderList"
components:
  responses:
    OrderList:
      description: A page of orders
`

func findingCodes(r *Report) []string {
	codes := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		codes = append(codes, f.Code)
	}
	return codes
}

func TestRun_ValidOpenAPI(t *testing.T) {
	report := Run(domain.FormatOpenAPI, validOpenAPI)
	assert.True(t, report.Valid)
	assert.NotNil(t, report.Document)
	assert.Equal(t, 1, report.RefCount)
	for _, f := range report.Findings {
		assert.NotEqual(t, domain.SeverityError, f.Severity)
	}
}

func TestRun_EmptyContent(t *testing.T) {
	for _, raw := range []string{"", "   \n\t"} {
		report := Run(domain.FormatOpenAPI, raw)
		assert.False(t, report.Valid)
		require.Len(t, report.Findings, 1)
		assert.Equal(t, "EMPTY_CONTENT", report.Findings[0].Code)
	}
}

func TestRun_SyntaxErrors(t *testing.T) {
	t.Run("broken YAML", func(t *testing.T) {
		report := Run(domain.FormatOpenAPI, "openapi: [3.0.0\ninfo:")
		assert.False(t, report.Valid)
		require.Len(t, report.Findings, 1)
		assert.Equal(t, "SYNTAX_ERROR", report.Findings[0].Code)
		assert.Contains(t, report.Findings[0].Message, "YAML")
	})

	t.Run("broken JSON routes through the JSON decoder", func(t *testing.T) {
		report := Run(domain.FormatOpenAPI, `{"openapi": "3.0.0",}`)
		assert.False(t, report.Valid)
		require.Len(t, report.Findings, 1)
		assert.Equal(t, "SYNTAX_ERROR", report.Findings[0].Code)
		assert.Contains(t, report.Findings[0].Message, "JSON")
	})

	t.Run("valid JSON parses", func(t *testing.T) {
		report := Run(domain.FormatOpenAPI, `{"openapi": "3.0.0", "info": {"title": "Orders", "version": "1.0.0"}, "paths": {}}`)
		assert.True(t, report.Valid)
	})
}

func TestRun_StructuralFailures(t *testing.T) {
	tests := []struct {
		name   string
		format domain.Format
		raw    string
		code   string
	}{
		{
			name:   "openapi missing info",
			format: domain.FormatOpenAPI,
			raw:    "openapi: 3.0.0\npaths: {}\n",
			code:   "MISSING_INFO",
		},
		{
			name:   "openapi 2.x rejected",
			format: domain.FormatOpenAPI,
			raw:    "openapi: 2.0.0\ninfo:\n  title: Old\n  version: 1.0.0\n",
			code:   "UNSUPPORTED_OPENAPI_VERSION",
		},
		{
			name:   "asyncapi missing channels",
			format: domain.FormatAsyncAPI,
			raw:    "asyncapi: 2.6.0\ninfo:\n  title: Events\n",
			code:   "MISSING_CHANNELS",
		},
		{
			name:   "jsonschema unknown type",
			format: domain.FormatJSONSchema,
			raw:    "$schema: https://json-schema.org/draft/2020-12/schema\ntype: structure\n",
			code:   "INVALID_TYPE",
		},
		{
			name:   "avro record without fields",
			format: domain.FormatAvro,
			raw:    "type: record\nname: Order\n",
			code:   "MISSING_FIELDS",
		},
		{
			name:   "avro field without type",
			format: domain.FormatAvro,
			raw:    "type: record\nname: Order\nfields:\n  - name: id\n",
			code:   "MISSING_FIELD_TYPE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Run(tt.format, tt.raw)
			assert.False(t, report.Valid)
			assert.Contains(t, findingCodes(report), tt.code)
		})
	}
}

func TestRun_GraphQL(t *testing.T) {
	t.Run("valid SDL", func(t *testing.T) {
		report := Run(domain.FormatGraphQL, "type Order {\n  id: ID!\n}\n")
		assert.True(t, report.Valid)
	})

	t.Run("unclosed brace", func(t *testing.T) {
		report := Run(domain.FormatGraphQL, "type Order {\n  id: ID!\n")
		assert.False(t, report.Valid)
		assert.Contains(t, findingCodes(report), "UNBALANCED_BRACES")
	})

	t.Run("stray closing brace records the line", func(t *testing.T) {
		report := Run(domain.FormatGraphQL, "type Order {\n  id: ID!\n}\n}\n")
		assert.False(t, report.Valid)
		require.Len(t, report.Findings, 1)
		assert.Equal(t, "UNBALANCED_BRACES", report.Findings[0].Code)
		assert.Equal(t, 4, report.Findings[0].Line)
	})

	t.Run("no definitions", func(t *testing.T) {
		report := Run(domain.FormatGraphQL, "# just a comment\n")
		assert.False(t, report.Valid)
		assert.Contains(t, findingCodes(report), "NO_TYPE_DEFINITIONS")
	})
}

func TestRun_Protobuf(t *testing.T) {
	t.Run("proto3 accepted", func(t *testing.T) {
		report := Run(domain.FormatProtobuf, "syntax = \"proto3\";\nmessage Order {\n  string id = 1;\n}\n")
		assert.True(t, report.Valid)
	})

	t.Run("proto2 rejected", func(t *testing.T) {
		report := Run(domain.FormatProtobuf, "syntax = \"proto2\";\nmessage Order {\n}\n")
		assert.False(t, report.Valid)
		assert.Contains(t, findingCodes(report), "UNSUPPORTED_SYNTAX")
	})

	t.Run("missing syntax declaration", func(t *testing.T) {
		report := Run(domain.FormatProtobuf, "message Order {\n  string id = 1;\n}\n")
		assert.False(t, report.Valid)
		assert.Contains(t, findingCodes(report), "MISSING_SYNTAX")
	})
}

func TestRun_References(t *testing.T) {
	t.Run("unresolved local ref", func(t *testing.T) {
		raw := `
openapi: 3.0.0
info:
  title: Orders
  version: 1.0.0
paths:
  /orders:
    get:
      operationId: listOrders
      responses:
        "200":
          $ref: "#/components/responses/Missing"
`
		report := Run(domain.FormatOpenAPI, raw)
		assert.False(t, report.Valid)
		var found *Finding
		for i := range report.Findings {
			if report.Findings[i].Code == "UNRESOLVED_REFERENCE" {
				found = &report.Findings[i]
			}
		}
		require.NotNil(t, found)
		assert.Contains(t, found.Message, "#/components/responses/Missing")
	})

	t.Run("file refs are rejected, URL refs are not", func(t *testing.T) {
		raw := `
openapi: 3.0.0
info:
  title: Orders
  version: 1.0.0
paths:
  /orders:
    get:
      operationId: listOrders
      responses:
        "200":
          $ref: "./shared/responses.yaml#/OrderList"
        "404":
          $ref: "https://example.com/shared.yaml#/NotFound"
`
		report := Run(domain.FormatOpenAPI, raw)
		assert.False(t, report.Valid)
		assert.Equal(t, 2, report.RefCount)

		errors := 0
		for _, f := range report.Findings {
			if f.Code == "UNRESOLVED_REFERENCE" {
				errors++
			}
		}
		assert.Equal(t, 1, errors)
	})

	t.Run("escaped pointer segments resolve", func(t *testing.T) {
		doc := map[string]any{
			"paths": map[string]any{
				"/orders": map[string]any{"get": "handler"},
			},
		}
		assert.True(t, pointerExists(doc, "#/paths/~1orders/get"))
		assert.False(t, pointerExists(doc, "#/paths/~1orders/post"))
	})
}

func TestRun_LintStaysAdvisory(t *testing.T) {
	longLine := "# " + strings.Repeat("x", 320)
	raw := `
openapi: 3.0.0
info:
  title: Orders
  version: 1.0.0
paths:
  /orders:
    get:
      responses: {}
` + longLine + "\n"

	report := Run(domain.FormatOpenAPI, raw)
	assert.True(t, report.Valid, "warnings and hints never invalidate content")

	codes := findingCodes(report)
	assert.Contains(t, codes, "MISSING_OPERATION_ID")
	assert.Contains(t, codes, "MISSING_DESCRIPTION")
	assert.Contains(t, codes, "LONG_LINE")
	for _, f := range report.Findings {
		assert.NotEqual(t, domain.SeverityError, f.Severity)
	}
}
