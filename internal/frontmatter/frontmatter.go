// Package frontmatter parses and edits YAML frontmatter in Markdown files.
// Edits are textual so that unrelated keys, comments, and the document body
// survive byte-for-byte.
package frontmatter

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Split separates a Markdown document into its parsed frontmatter map and
// the untouched body. A document without a leading frontmatter block yields
// a nil map and the whole content as body.
func Split(content string) (map[string]any, string, error) {
	if !strings.HasPrefix(content, delimiter+"\n") && content != delimiter {
		return nil, content, nil
	}
	rest := content[len(delimiter)+1:]
	end := strings.Index(rest, "\n"+delimiter)
	if end < 0 {
		return nil, "", fmt.Errorf("unterminated frontmatter block")
	}
	raw := rest[:end]
	body := rest[end+len(delimiter)+1:]
	body = strings.TrimPrefix(body, "\n")

	fm := map[string]any{}
	if err := yaml.Unmarshal([]byte(raw), &fm); err != nil {
		return nil, "", fmt.Errorf("parsing frontmatter: %w", err)
	}
	return fm, body, nil
}

// StringField returns a top-level frontmatter value as a trimmed string.
// Missing keys and non-scalar values return ok=false.
func StringField(fm map[string]any, key string) (string, bool) {
	v, ok := fm[key]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), true
	case int, int64, float64, bool:
		return fmt.Sprintf("%v", s), true
	default:
		return "", false
	}
}

// ReplaceField rewrites a single top-level `key: value` line inside the
// frontmatter block, leaving every other byte of the document intact.
// Returns the updated document and the previous raw value. A key absent
// from the block is inserted as its last line.
func ReplaceField(content, key, value string) (string, string, error) {
	if !strings.HasPrefix(content, delimiter+"\n") {
		return "", "", fmt.Errorf("document has no frontmatter block")
	}
	lines := strings.Split(content, "\n")
	prefix := key + ":"
	old := ""
	closing := -1
	for i := 1; i < len(lines); i++ {
		if lines[i] == delimiter {
			closing = i
			break
		}
		if strings.HasPrefix(lines[i], prefix) {
			old = strings.TrimSpace(strings.TrimPrefix(lines[i], prefix))
			lines[i] = fmt.Sprintf("%s: %s", key, value)
			return strings.Join(lines, "\n"), old, nil
		}
	}
	if closing < 0 {
		return "", "", fmt.Errorf("unterminated frontmatter block")
	}
	inserted := append([]string{}, lines[:closing]...)
	inserted = append(inserted, fmt.Sprintf("%s: %s", key, value))
	inserted = append(inserted, lines[closing:]...)
	return strings.Join(inserted, "\n"), "", nil
}
