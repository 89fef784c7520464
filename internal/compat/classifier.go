/**
 * Compatibility Classifier
 *
 * Pure comparison of two version contents producing a major/minor/patch
 * verdict plus the list of breaking changes. The verdict is advisory
 * metadata stored on the version; it never blocks a publish on its own.
 *
 * Policy:
 *   - removal of a previously documented field/operation/declaration,
 *     narrowing of a type, or removal of an enum value -> major
 *   - addition of a new optional field/operation/enum value -> minor
 *   - documentation/metadata-only deltas -> patch
 *   - no prior version -> unknown, no breaking-change list
 */

package compat

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/helixhq/registry/internal/domain"
)

// Keys that carry documentation or metadata only; changes beneath them never
// affect the verdict beyond patch.
var docKeys = map[string]struct{}{
	"description":    {},
	"summary":        {},
	"example":        {},
	"examples":       {},
	"externalDocs":   {},
	"contact":        {},
	"license":        {},
	"termsOfService": {},
	"doc":            {},
	"x-tags":         {},
}

// Classify compares the prior content against the new content of a schema.
// An empty old content means there is no predecessor and yields unknown.
func Classify(format domain.Format, oldRaw, newRaw string) (domain.Verdict, []domain.BreakingChange) {
	if oldRaw == "" {
		return domain.VerdictUnknown, nil
	}
	if oldRaw == newRaw {
		return domain.VerdictPatch, nil
	}

	switch format {
	case domain.FormatGraphQL:
		return classifyText(oldRaw, newRaw, "#")
	case domain.FormatProtobuf:
		return classifyText(oldRaw, newRaw, "//")
	default:
		oldDoc, okOld := parseDocument(oldRaw)
		newDoc, okNew := parseDocument(newRaw)
		if !okOld || !okNew {
			// Unparseable content still gets a structural answer from the
			// line-level comparison.
			return classifyText(oldRaw, newRaw, "#")
		}
		return classifyDocuments(oldDoc, newDoc)
	}
}

func parseDocument(raw string) (map[string]any, bool) {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil || doc == nil {
		return nil, false
	}
	return doc, true
}

// classifyDocuments diffs two parsed documents structurally.
func classifyDocuments(oldDoc, newDoc map[string]any) (domain.Verdict, []domain.BreakingChange) {
	oldLeaves := flatten("", oldDoc)
	newLeaves := flatten("", newDoc)

	var breaking []domain.BreakingChange
	added := false

	for path, oldVal := range oldLeaves {
		newVal, exists := newLeaves[path]
		if !exists {
			breaking = append(breaking, domain.BreakingChange{
				Path:        path,
				Category:    categoryFor(path),
				Description: fmt.Sprintf("%s was removed", path),
			})
			continue
		}
		switch ov := oldVal.(type) {
		case stringSet:
			nv, ok := newVal.(stringSet)
			if !ok {
				breaking = append(breaking, typeChange(path, oldVal, newVal))
				continue
			}
			removedItems, addedItems := ov.diff(nv)
			leaf := lastSegment(path)
			for _, item := range removedItems {
				if leaf == "required" {
					// Dropping an entry from a required list loosens the
					// contract; that is an addition-compatible change.
					added = true
					continue
				}
				breaking = append(breaking, domain.BreakingChange{
					Path:        path,
					Category:    "enum",
					Description: fmt.Sprintf("value %q was removed from %s", item, path),
				})
			}
			for _, item := range addedItems {
				if leaf == "required" {
					// A newly required entry narrows what callers may send.
					breaking = append(breaking, domain.BreakingChange{
						Path:        path,
						Category:    "field",
						Description: fmt.Sprintf("%q became required at %s", item, path),
					})
					continue
				}
				added = true
			}
		default:
			if fmt.Sprintf("%v", oldVal) == fmt.Sprintf("%v", newVal) {
				continue
			}
			if lastSegment(path) == "type" {
				breaking = append(breaking, typeChange(path, oldVal, newVal))
				continue
			}
			// A changed structural scalar is at least an observable delta.
			added = true
		}
	}
	for path := range newLeaves {
		if _, exists := oldLeaves[path]; !exists {
			added = true
		}
	}

	if len(breaking) > 0 {
		return domain.VerdictMajor, breaking
	}
	if added {
		return domain.VerdictMinor, nil
	}
	return domain.VerdictPatch, nil
}

func typeChange(path string, oldVal, newVal any) domain.BreakingChange {
	return domain.BreakingChange{
		Path:        path,
		Category:    "type",
		Description: fmt.Sprintf("type at %s changed from %v to %v", path, oldVal, newVal),
	}
}

// stringSet is the flattened form of a scalar list, compared as a set.
type stringSet map[string]struct{}

func (s stringSet) diff(other stringSet) (removed, added []string) {
	for item := range s {
		if _, ok := other[item]; !ok {
			removed = append(removed, item)
		}
	}
	for item := range other {
		if _, ok := s[item]; !ok {
			added = append(added, item)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)
	return removed, added
}

// flatten walks a document into path -> leaf pairs, dropping documentation
// keys. Scalar lists become stringSet leaves; lists of maps are indexed.
func flatten(prefix string, node any) map[string]any {
	out := make(map[string]any)
	switch n := node.(type) {
	case map[string]any:
		for key, val := range n {
			if _, doc := docKeys[key]; doc {
				continue
			}
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			for p, v := range flatten(path, val) {
				out[p] = v
			}
		}
	case []any:
		if scalars, ok := toStringSet(n); ok {
			out[prefix] = scalars
			return out
		}
		for i, item := range n {
			for p, v := range flatten(fmt.Sprintf("%s[%d]", prefix, i), item) {
				out[p] = v
			}
		}
	default:
		if prefix != "" {
			out[prefix] = node
		}
	}
	return out
}

func toStringSet(list []any) (stringSet, bool) {
	set := make(stringSet, len(list))
	for _, item := range list {
		switch item.(type) {
		case map[string]any, []any:
			return nil, false
		}
		set[fmt.Sprintf("%v", item)] = struct{}{}
	}
	return set, true
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return path
}

func categoryFor(path string) string {
	switch {
	case strings.HasPrefix(path, "paths.") || strings.HasPrefix(path, "channels."):
		return "operation"
	case lastSegment(path) == "type":
		return "type"
	default:
		return "field"
	}
}

// classifyText compares IDL/SDL content line-by-line: removing any structural
// line is breaking, adding one is minor, comment-only changes are patch.
func classifyText(oldRaw, newRaw, commentPrefix string) (domain.Verdict, []domain.BreakingChange) {
	oldLines := structuralLines(oldRaw, commentPrefix)
	newLines := structuralLines(newRaw, commentPrefix)

	var breaking []domain.BreakingChange
	added := false
	for line := range oldLines {
		if _, ok := newLines[line]; !ok {
			breaking = append(breaking, domain.BreakingChange{
				Path:        line,
				Category:    declarationCategory(line),
				Description: fmt.Sprintf("declaration %q was removed", line),
			})
		}
	}
	for line := range newLines {
		if _, ok := oldLines[line]; !ok {
			added = true
		}
	}

	sort.Slice(breaking, func(i, j int) bool { return breaking[i].Path < breaking[j].Path })
	if len(breaking) > 0 {
		return domain.VerdictMajor, breaking
	}
	if added {
		return domain.VerdictMinor, nil
	}
	return domain.VerdictPatch, nil
}

func structuralLines(raw, commentPrefix string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, commentPrefix) {
			continue
		}
		if trimmed == "}" || trimmed == "{" {
			continue
		}
		if i := strings.Index(trimmed, commentPrefix); i > 0 {
			trimmed = strings.TrimSpace(trimmed[:i])
		}
		out[trimmed] = struct{}{}
	}
	return out
}

func declarationCategory(line string) string {
	switch {
	case strings.HasPrefix(line, "rpc ") || strings.HasPrefix(line, "service "):
		return "operation"
	case strings.HasPrefix(line, "type ") || strings.HasPrefix(line, "message ") ||
		strings.HasPrefix(line, "enum ") || strings.HasPrefix(line, "interface "):
		return "type"
	default:
		return "field"
	}
}
