/**
 * Code Generation Activities
 *
 * Worker-side artifact generation: turn schema content into client/server
 * stubs or docs for a target language, package the output as a tar.gz
 * archive and upload it to the artifact store. All activities are idempotent
 * so the workflow can retry them safely.
 */

package activities

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ArchiveStore persists packaged artifacts. Implemented by the object store
// client.
type ArchiveStore interface {
	UploadArchive(ctx context.Context, objectPath string, archive []byte) error
}

// CodeGenActivities provides generation, packaging and upload operations.
type CodeGenActivities struct {
	archives ArchiveStore
	logger   *slog.Logger
}

func NewCodeGenActivities(archives ArchiveStore, logger *slog.Logger) *CodeGenActivities {
	return &CodeGenActivities{
		archives: archives,
		logger:   logger.With("activities", "codegen"),
	}
}

// GenerateCodeInput contains parameters for one generation run.
type GenerateCodeInput struct {
	Format           string            `json:"format"`
	Content          string            `json:"content"`
	Language         string            `json:"language"`
	Kind             string            `json:"kind"`
	GeneratorVersion string            `json:"generator_version"`
	Config           map[string]string `json:"config,omitempty"`
}

// PackageArtifactInput contains the generated files to archive.
type PackageArtifactInput struct {
	Files map[string]string `json:"files"`
}

// UploadArtifactInput contains a packaged archive and its destination.
type UploadArtifactInput struct {
	ObjectPath string `json:"object_path"`
	Archive    []byte `json:"archive"`
}

// UploadArtifactOutput describes the stored archive.
type UploadArtifactOutput struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

var supportedLanguages = map[string]bool{
	"go":         true,
	"typescript": true,
	"python":     true,
	"java":       true,
}

// GenerateCode produces source files for the requested language and kind.
// Same input produces the same output.
func (a *CodeGenActivities) GenerateCode(ctx context.Context, input GenerateCodeInput) (map[string]string, error) {
	a.logger.InfoContext(ctx, "Generating code",
		"format", input.Format, "language", input.Language, "kind", input.Kind)

	if input.Content == "" {
		return nil, errors.New("schema content cannot be empty")
	}
	if !supportedLanguages[input.Language] {
		return nil, fmt.Errorf("unsupported language: %s", input.Language)
	}

	symbols := extractSymbols(input.Format, input.Content)

	files := make(map[string]string)
	switch input.Kind {
	case "docs":
		files["README.md"] = renderDocs(input.Format, symbols)
	default:
		source, name := renderStub(input.Language, input.Kind, symbols)
		files[name] = source
		files["MANIFEST"] = renderManifest(input, symbols)
	}
	return files, nil
}

// PackageArtifact archives generated files into a tar.gz blob. Entries are
// written in sorted order so the archive bytes are reproducible.
func (a *CodeGenActivities) PackageArtifact(ctx context.Context, input PackageArtifactInput) ([]byte, error) {
	if len(input.Files) == 0 {
		return nil, errors.New("no files to package")
	}

	names := make([]string, 0, len(input.Files))
	for name := range input.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)

	for _, name := range names {
		content := []byte(input.Files[name])
		header := &tar.Header{
			Name:    name,
			Mode:    0o644,
			Size:    int64(len(content)),
			ModTime: time.Unix(0, 0),
		}
		if err := tw.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("failed to write tar header for %s: %w", name, err)
		}
		if _, err := tw.Write(content); err != nil {
			return nil, fmt.Errorf("failed to write tar entry for %s: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// UploadArtifact stores the archive and returns its descriptor.
func (a *CodeGenActivities) UploadArtifact(ctx context.Context, input UploadArtifactInput) (UploadArtifactOutput, error) {
	a.logger.InfoContext(ctx, "Uploading artifact",
		"object_path", input.ObjectPath, "size", len(input.Archive))

	if len(input.Archive) == 0 {
		return UploadArtifactOutput{}, errors.New("archive is empty")
	}
	if err := a.archives.UploadArchive(ctx, input.ObjectPath, input.Archive); err != nil {
		return UploadArtifactOutput{}, fmt.Errorf("failed to upload archive: %w", err)
	}

	sum := sha256.Sum256(input.Archive)
	return UploadArtifactOutput{
		Path:     input.ObjectPath,
		Size:     int64(len(input.Archive)),
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}

// extractSymbols pulls the operation and type names the stubs expose out of
// the schema content.
func extractSymbols(format, content string) []string {
	var symbols []string
	switch format {
	case "graphql", "protobuf":
		for _, line := range strings.Split(content, "\n") {
			trimmed := strings.TrimSpace(line)
			fields := strings.Fields(trimmed)
			if len(fields) < 2 {
				continue
			}
			switch fields[0] {
			case "type", "interface", "input", "enum", "message", "service":
				symbols = append(symbols, strings.TrimSuffix(fields[1], "{"))
			}
		}
	default:
		var doc map[string]any
		if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
			break
		}
		if paths, ok := doc["paths"].(map[string]any); ok {
			for _, node := range paths {
				operations, ok := node.(map[string]any)
				if !ok {
					continue
				}
				for _, op := range operations {
					opDoc, ok := op.(map[string]any)
					if !ok {
						continue
					}
					if id, _ := opDoc["operationId"].(string); id != "" {
						symbols = append(symbols, id)
					}
				}
			}
		}
		if components, ok := doc["components"].(map[string]any); ok {
			if schemas, ok := components["schemas"].(map[string]any); ok {
				for name := range schemas {
					symbols = append(symbols, name)
				}
			}
		}
	}
	sort.Strings(symbols)
	return symbols
}

func renderStub(language, kind string, symbols []string) (source, filename string) {
	role := "Client"
	if kind == "server" {
		role = "Server"
	}
	methods := symbols
	if len(methods) == 0 {
		methods = []string{"Call"}
	}

	switch language {
	case "go":
		var b strings.Builder
		fmt.Fprintf(&b, "// Code generated by registry codegen. DO NOT EDIT.\npackage %s\n\ntype %s struct {\n\tbaseURL string\n}\n\nfunc New%s(baseURL string) *%s {\n\treturn &%s{baseURL: baseURL}\n}\n", strings.ToLower(role), role, role, role, role)
		for _, method := range methods {
			fmt.Fprintf(&b, "\nfunc (c *%s) %s() error {\n\treturn nil\n}\n", role, exportName(method))
		}
		return b.String(), strings.ToLower(role) + ".go"
	case "typescript":
		var b strings.Builder
		fmt.Fprintf(&b, "// Code generated by registry codegen. DO NOT EDIT.\n\nexport class %s {\n  constructor(private baseURL: string) {}\n", role)
		for _, method := range methods {
			fmt.Fprintf(&b, "\n  %s(): Promise<void> {\n    return Promise.resolve();\n  }\n", lowerFirst(exportName(method)))
		}
		b.WriteString("}\n")
		return b.String(), strings.ToLower(role) + ".ts"
	case "python":
		var b strings.Builder
		fmt.Fprintf(&b, "\"\"\"Code generated by registry codegen. DO NOT EDIT.\"\"\"\n\n\nclass %s:\n    def __init__(self, base_url: str):\n        self.base_url = base_url\n", role)
		for _, method := range methods {
			fmt.Fprintf(&b, "\n    def %s(self):\n        pass\n", snakeName(method))
		}
		return b.String(), strings.ToLower(role) + ".py"
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "// Code generated by registry codegen. DO NOT EDIT.\npackage registry.generated;\n\npublic class %s {\n    private final String baseURL;\n\n    public %s(String baseURL) {\n        this.baseURL = baseURL;\n    }\n", role, role)
		for _, method := range methods {
			fmt.Fprintf(&b, "\n    public void %s() {\n    }\n", lowerFirst(exportName(method)))
		}
		b.WriteString("}\n")
		return b.String(), role + ".java"
	}
}

func renderDocs(format string, symbols []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# API Reference\n\nFormat: %s\n\n", format)
	if len(symbols) == 0 {
		b.WriteString("No operations or types were found in the schema.\n")
		return b.String()
	}
	b.WriteString("## Operations and Types\n\n")
	for _, symbol := range symbols {
		fmt.Fprintf(&b, "- `%s`\n", symbol)
	}
	return b.String()
}

func renderManifest(input GenerateCodeInput, symbols []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "format=%s\nlanguage=%s\nkind=%s\ngenerator_version=%s\nsymbols=%d\n",
		input.Format, input.Language, input.Kind, input.GeneratorVersion, len(symbols))
	keys := make([]string, 0, len(input.Config))
	for key := range input.Config {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "config.%s=%s\n", key, input.Config[key])
	}
	return b.String()
}

func exportName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, name)
	if cleaned == "" {
		return "Call"
	}
	return strings.ToUpper(cleaned[:1]) + cleaned[1:]
}

func lowerFirst(name string) string {
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func snakeName(name string) string {
	var b strings.Builder
	for i, r := range exportName(name) {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
