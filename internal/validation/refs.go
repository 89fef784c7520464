package validation

import (
	"fmt"
	"strings"
)

// resolveReferences walks every local $ref in the document and verifies the
// pointer lands on an existing node. External references are counted but not
// followed. The total ref count is recorded on the report so callers can
// gauge document complexity.
func resolveReferences(doc map[string]any, report *Report) {
	walkRefs("", doc, doc, report)
}

func walkRefs(path string, node any, root map[string]any, report *Report) {
	switch n := node.(type) {
	case map[string]any:
		if ref, ok := n["$ref"].(string); ok {
			report.RefCount++
			refPath := path + ".$ref"
			if path == "" {
				refPath = "$ref"
			}
			if strings.HasPrefix(ref, "#/") {
				if !pointerExists(root, ref) {
					report.errorFinding("UNRESOLVED_REFERENCE", fmt.Sprintf("reference %q does not resolve", ref), refPath)
				}
			} else if !strings.Contains(ref, "://") && !strings.HasPrefix(ref, "#") {
				report.errorFinding("UNRESOLVED_REFERENCE", fmt.Sprintf("file reference %q cannot be resolved", ref), refPath)
			}
		}
		for key, val := range n {
			if key == "$ref" {
				continue
			}
			child := key
			if path != "" {
				child = path + "." + key
			}
			walkRefs(child, val, root, report)
		}
	case []any:
		for i, item := range n {
			walkRefs(fmt.Sprintf("%s[%d]", path, i), item, root, report)
		}
	}
}

// pointerExists resolves a JSON pointer of the form #/a/b/c against the root.
func pointerExists(root map[string]any, ref string) bool {
	segments := strings.Split(strings.TrimPrefix(ref, "#/"), "/")
	var current any = root
	for _, segment := range segments {
		segment = strings.ReplaceAll(segment, "~1", "/")
		segment = strings.ReplaceAll(segment, "~0", "~")
		node, ok := current.(map[string]any)
		if !ok {
			return false
		}
		current, ok = node[segment]
		if !ok {
			return false
		}
	}
	return true
}
