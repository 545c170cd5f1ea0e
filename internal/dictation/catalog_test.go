package dictation

import "testing"

func TestCatalogResolveContainment(t *testing.T) {
	c := DefaultCatalog()

	cases := map[string]string{
		"queixa":                 "queixa_principal",
		"queixa principal":       "queixa_principal",
		"história da doença":     "historia_doenca",
		"exame físico":           "exame_fisico",
		"plano de tratamento":    "plano_tratamento",
		"QUEIXA":                 "queixa_principal",
	}
	for query, want := range cases {
		id, ok := c.Resolve(query)
		if !ok {
			t.Fatalf("%q: expected a match", query)
		}
		if id != want {
			t.Fatalf("%q: expected %q, got %q", query, want, id)
		}
	}
}

func TestCatalogResolveFirstInOrder(t *testing.T) {
	c := Catalog{
		{ID: "a", Label: "Dor Lombar"},
		{ID: "b", Label: "Dor Cervical"},
	}
	id, ok := c.Resolve("dor")
	if !ok || id != "a" {
		t.Fatalf("expected first catalog match, got %q ok=%t", id, ok)
	}
}

func TestCatalogResolvePhonetic(t *testing.T) {
	c := DefaultCatalog()

	// Containment fails on the misheard first word; the phonetic fallback
	// still lands on the right field.
	id, ok := c.Resolve("cueixa principal")
	if !ok {
		t.Fatal("expected phonetic match")
	}
	if id != "queixa_principal" {
		t.Fatalf("expected queixa_principal, got %q", id)
	}
}

func TestCatalogResolveRejectsGarbage(t *testing.T) {
	c := DefaultCatalog()
	if id, ok := c.Resolve("zzz"); ok {
		t.Fatalf("expected no match, got %q", id)
	}
	if _, ok := c.Resolve(""); ok {
		t.Fatal("expected no match for empty query")
	}
}

func TestCatalogIndexOf(t *testing.T) {
	c := DefaultCatalog()
	if idx := c.IndexOf("exame_fisico"); idx != 2 {
		t.Fatalf("expected index 2, got %d", idx)
	}
	if idx := c.IndexOf("nope"); idx != -1 {
		t.Fatalf("expected -1, got %d", idx)
	}
}
