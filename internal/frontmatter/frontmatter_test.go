package frontmatter

import (
	"strings"
	"testing"
)

const sampleDoc = `---
title: Parser work
lane: planned
owner: alice
---

# WP01 — Parser

Body text stays untouched.
`

func TestSplit(t *testing.T) {
	fm, body, err := Split(sampleDoc)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if fm["lane"] != "planned" || fm["owner"] != "alice" {
		t.Errorf("unexpected frontmatter: %+v", fm)
	}
	if !strings.HasPrefix(body, "\n# WP01") && !strings.HasPrefix(body, "# WP01") {
		t.Errorf("unexpected body start: %q", body[:20])
	}
}

func TestSplit_NoFrontmatter(t *testing.T) {
	content := "# Just a document\n"
	fm, body, err := Split(content)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if fm != nil {
		t.Errorf("no frontmatter must yield nil map, got %+v", fm)
	}
	if body != content {
		t.Errorf("body must be the whole content, got %q", body)
	}
}

func TestSplit_Unterminated(t *testing.T) {
	if _, _, err := Split("---\nlane: planned\n"); err == nil {
		t.Fatal("unterminated block must error")
	}
}

func TestSplit_BadYAML(t *testing.T) {
	if _, _, err := Split("---\nlane: [unclosed\n---\nbody\n"); err == nil {
		t.Fatal("malformed YAML must error")
	}
}

func TestStringField(t *testing.T) {
	fm := map[string]any{
		"lane":  "  planned  ",
		"count": 3,
		"flag":  true,
		"list":  []any{"x"},
	}
	if v, ok := StringField(fm, "lane"); !ok || v != "planned" {
		t.Errorf("lane = %q, %v", v, ok)
	}
	if v, ok := StringField(fm, "count"); !ok || v != "3" {
		t.Errorf("count = %q, %v", v, ok)
	}
	if v, ok := StringField(fm, "flag"); !ok || v != "true" {
		t.Errorf("flag = %q, %v", v, ok)
	}
	if _, ok := StringField(fm, "list"); ok {
		t.Error("non-scalar value must return ok=false")
	}
	if _, ok := StringField(fm, "missing"); ok {
		t.Error("missing key must return ok=false")
	}
}

func TestReplaceField(t *testing.T) {
	updated, old, err := ReplaceField(sampleDoc, "lane", "in_progress")
	if err != nil {
		t.Fatalf("ReplaceField: %v", err)
	}
	if old != "planned" {
		t.Errorf("old value = %q, want planned", old)
	}
	if !strings.Contains(updated, "lane: in_progress") {
		t.Error("updated document missing the new lane line")
	}
	// Every other byte is preserved
	if !strings.Contains(updated, "title: Parser work") ||
		!strings.Contains(updated, "owner: alice") ||
		!strings.Contains(updated, "Body text stays untouched.") {
		t.Error("unrelated content must survive the edit")
	}
	if strings.Count(updated, "---") != strings.Count(sampleDoc, "---") {
		t.Error("delimiters must be unchanged")
	}
}

func TestReplaceField_InsertsMissingKey(t *testing.T) {
	doc := "---\ntitle: x\n---\nbody\n"
	updated, old, err := ReplaceField(doc, "lane", "claimed")
	if err != nil {
		t.Fatalf("ReplaceField: %v", err)
	}
	if old != "" {
		t.Errorf("old value for inserted key = %q, want empty", old)
	}
	fm, _, err := Split(updated)
	if err != nil {
		t.Fatalf("re-splitting updated doc: %v", err)
	}
	if fm["lane"] != "claimed" || fm["title"] != "x" {
		t.Errorf("inserted key must land inside the block: %+v", fm)
	}
}

func TestReplaceField_NoFrontmatter(t *testing.T) {
	if _, _, err := ReplaceField("# no block\n", "lane", "done"); err == nil {
		t.Fatal("document without frontmatter must error")
	}
}
