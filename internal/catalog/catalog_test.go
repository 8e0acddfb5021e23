package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if c.Len() != 12 {
		t.Fatalf("expected 12 archetypes, got %d", c.Len())
	}
	if !c.Has("T-1") || !c.Has("T-12") {
		t.Fatal("expected T-1 and T-12 in catalog")
	}
	if c.Has("T-13") {
		t.Fatal("T-13 should not exist")
	}
	if c.Position("T-3") != 2 {
		t.Fatalf("expected T-3 at position 2, got %d", c.Position("T-3"))
	}
	if len(c.Sets()) == 0 {
		t.Fatal("expected a non-empty quiz pool")
	}
}

func TestOptionsInheritSetTopic(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	opt, ok := c.Option("opt-color-1a")
	if !ok {
		t.Fatal("expected opt-color-1a")
	}
	if opt.Topic != "color" {
		t.Fatalf("expected topic color, got %q", opt.Topic)
	}
	if opt.ArchetypeHint != "T-2" {
		t.Fatalf("expected hint T-2, got %q", opt.ArchetypeHint)
	}
}

func TestSetOf(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	set, ok := c.SetOf("opt-hook-1c")
	if !ok || set.ID != "set-hook-1" || len(set.Options) != 4 {
		t.Fatalf("expected set-hook-1 with 4 options, got %+v (ok=%v)", set, ok)
	}
	if _, ok := c.SetOf("opt-missing"); ok {
		t.Fatal("unknown option must not resolve")
	}
}

func TestParseRejectsUnknownHint(t *testing.T) {
	doc := []byte(`
archetypes:
  - {designation: A}
  - {designation: B}
quiz:
  - id: s1
    topic: t
    options:
      - {id: o1, archetypeHint: A}
      - {id: o2, archetypeHint: Z}
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected error for unknown archetype hint")
	}
}

func TestParseRejectsOddSetSize(t *testing.T) {
	doc := []byte(`
archetypes:
  - {designation: A}
  - {designation: B}
quiz:
  - id: s1
    topic: t
    options:
      - {id: o1, archetypeHint: A}
      - {id: o2, archetypeHint: B}
      - {id: o3, archetypeHint: B}
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected error for 3-option set")
	}
}

func TestParseRejectsDuplicateDesignation(t *testing.T) {
	doc := []byte(`
archetypes:
  - {designation: A}
  - {designation: A}
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected error for duplicate designation")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := []byte(`
archetypes:
  - {designation: A, title: Alpha}
  - {designation: B, title: Beta}
`)
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a, ok := c.Archetype("B")
	if !ok || a.Title != "Beta" {
		t.Fatalf("expected Beta, got %+v", a)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
