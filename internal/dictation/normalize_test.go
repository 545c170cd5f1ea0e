package dictation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeDefaultRules(t *testing.T) {
	n := NewNormalizer(DefaultRules())
	for _, r := range DefaultRules() {
		if got := n.Normalize(r.From); got != r.To {
			t.Fatalf("rule %q: expected %q, got %q", r.From, r.To, got)
		}
	}
}

func TestNormalizeNoOpRule(t *testing.T) {
	n := NewNormalizer(DefaultRules())
	if got := n.Normalize("propriocepção"); got != "propriocepção" {
		t.Fatalf("expected identity, got %q", got)
	}
}

func TestNormalizeInSentence(t *testing.T) {
	n := NewNormalizer(DefaultRules())
	got := n.Normalize("paciente relata algia moderada")
	if got != "paciente relata dor moderada" {
		t.Fatalf("expected substitution inside sentence, got %q", got)
	}
}

func TestNormalizeTrimsWhitespace(t *testing.T) {
	n := NewNormalizer(nil)
	if got := n.Normalize("  texto  "); got != "texto" {
		t.Fatalf("expected trimmed text, got %q", got)
	}
	if got := n.Normalize("   "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestNormalizerDropsEmptyFrom(t *testing.T) {
	n := NewNormalizer([]Rule{{From: "", To: "x"}, {From: "a", To: "b"}})
	if len(n.Rules()) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(n.Rules()))
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrections.yaml")
	content := "rules:\n  - from: \"tendinite\"\n    to: \"tendinopatia\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 1 || rules[0].From != "tendinite" || rules[0].To != "tendinopatia" {
		t.Fatalf("unexpected rules: %+v", rules)
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
