package dictation

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Field is one entry of a structured intake form.
type Field struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

// Catalog is the ordered list of fields of a form template. Order defines
// next/previous navigation. A Catalog is read-only at runtime.
type Catalog []Field

// Jaro-Winkler floor for the phonetic fallback. Below this a spoken query
// that matched a Double Metaphone code is still rejected.
const phoneticThreshold = 0.70

// DefaultCatalog is the anamnesis intake form used when a template carries
// no field list of its own.
func DefaultCatalog() Catalog {
	return Catalog{
		{ID: "queixa_principal", Label: "Queixa Principal"},
		{ID: "historia_doenca", Label: "História da Doença Atual"},
		{ID: "exame_fisico", Label: "Exame Físico"},
		{ID: "diagnostico", Label: "Diagnóstico Fisioterapêutico"},
		{ID: "plano_tratamento", Label: "Plano de Tratamento"},
	}
}

// IndexOf returns the catalog position of the field with the given id, or -1.
func (c Catalog) IndexOf(id string) int {
	for i, f := range c {
		if f.ID == id {
			return i
		}
	}
	return -1
}

// Resolve maps a spoken field query to a catalog field id. The primary rule
// is substring containment: the lowercased query must be contained in a
// lowercased field label (first match in catalog order wins). When
// containment fails, a phonetic pass rescues near-miss pronunciations:
// Double Metaphone candidate filtering ranked by Jaro-Winkler on the full
// strings.
func (c Catalog) Resolve(query string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return "", false
	}
	for _, f := range c {
		if strings.Contains(strings.ToLower(f.Label), q) {
			return f.ID, true
		}
	}
	if id, ok := c.resolvePhonetic(q); ok {
		return id, true
	}
	return "", false
}

func (c Catalog) resolvePhonetic(q string) (string, bool) {
	qCodes := metaphoneCodes(q)

	bestID := ""
	bestScore := 0.0
	for _, f := range c {
		label := strings.ToLower(f.Label)
		if !codesOverlap(qCodes, metaphoneCodes(label)) {
			continue
		}
		if score := matchr.JaroWinkler(q, label, false); score > bestScore {
			bestScore = score
			bestID = f.ID
		}
	}
	if bestID == "" || bestScore < phoneticThreshold {
		return "", false
	}
	return bestID, true
}

func metaphoneCodes(text string) map[string]struct{} {
	codes := make(map[string]struct{})
	for _, tok := range strings.Fields(text) {
		p, s := matchr.DoubleMetaphone(tok)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
