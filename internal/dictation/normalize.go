package dictation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule is one literal term substitution applied to transcribed text.
type Rule struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Normalizer fixes predictable speech-recognition errors in physiotherapy
// vocabulary before a segment is interpreted. Rules are literal substring
// replacements applied once each, in list order, as a single left-to-right
// scan per rule; rules do not feed each other. Normalizer is read-only after
// construction and safe for concurrent use.
type Normalizer struct {
	rules []Rule
}

// DefaultRules returns the built-in correction map. Pairs where From equals
// To are tolerated no-ops kept for terms that recognizers tend to mangle in
// some accents but not others.
func DefaultRules() []Rule {
	return []Rule{
		{From: "palmo", To: "palpação"},
		{From: "pamo", To: "palpação"},
		{From: "algia", To: "dor"},
		{From: "rom", To: "amplitude de movimento"},
		{From: "rôm", To: "amplitude de movimento"},
		{From: "robin", To: "rubbing"},
		{From: "propriocepção", To: "propriocepção"},
		{From: "estiramento", To: "alongamento"},
	}
}

// NewNormalizer builds a Normalizer from the given rules. Rules with an
// empty From are dropped.
func NewNormalizer(rules []Rule) *Normalizer {
	kept := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.From == "" {
			continue
		}
		kept = append(kept, r)
	}
	return &Normalizer{rules: kept}
}

// LoadRules reads additional correction rules from a YAML file of the form:
//
//	rules:
//	  - from: "palmo"
//	    to: "palpação"
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corrections file: %w", err)
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse corrections file: %w", err)
	}
	return doc.Rules, nil
}

// Normalize applies every rule once and trims surrounding whitespace. It
// never fails; empty input yields an empty string.
func (n *Normalizer) Normalize(raw string) string {
	text := raw
	for _, r := range n.rules {
		text = strings.ReplaceAll(text, r.From, r.To)
	}
	return strings.TrimSpace(text)
}

// Rules returns a copy of the active rule list.
func (n *Normalizer) Rules() []Rule {
	return append([]Rule(nil), n.rules...)
}
