package dictation

import (
	"regexp"
	"strconv"
	"strings"
)

// pattern pairs a matcher with the command it produces. build receives the
// submatch slice from FindStringSubmatch (nil for contains-style patterns).
type pattern struct {
	name     string
	contains []string
	regex    *regexp.Regexp
	build    func(matches []string) (Command, bool)
}

// Grammar recognizes voice commands in normalized, lowercased segments. The
// pattern list is ordered: the first pattern that matches wins and no second
// command is ever recognized from the same segment. Ordering matters because
// some command vocabularies share words; the patient-record pattern is tried
// before the template pattern so the longer anchor phrase "ficha do paciente"
// can never be shadowed by "ficha de".
//
// Grammar is stateless and safe for concurrent use.
type Grammar struct {
	patterns []pattern
}

var (
	reOpenTemplate  = regexp.MustCompile(`(?:abrir|mostrar) ficha de\s+(.+)`)
	reOpenPatient   = regexp.MustCompile(`abrir ficha do paciente\s+(.+?)\s+(?:de|da)\s+(.+)`)
	reCreateRecord  = regexp.MustCompile(`nova ficha de\s+(.+)`)
	reActivateField = regexp.MustCompile(`preencher\s+(.+)`)
	reGoToSession   = regexp.MustCompile(`ir para a sessão\s+(\d+)`)
)

// NewGrammar builds the full command set in priority order.
func NewGrammar() *Grammar {
	return &Grammar{patterns: []pattern{
		{
			name:     "pause",
			contains: []string{"pausar anotação"},
			build:    func([]string) (Command, bool) { return Command{Kind: CommandPause}, true },
		},
		{
			name:     "resume",
			contains: []string{"retomar anotação"},
			build:    func([]string) (Command, bool) { return Command{Kind: CommandResume}, true },
		},
		{
			name:  "open-patient-record",
			regex: reOpenPatient,
			build: func(m []string) (Command, bool) {
				return Command{
					Kind:       CommandOpenPatientRecord,
					Patient:    strings.TrimSpace(m[1]),
					RecordType: strings.TrimSpace(m[2]),
				}, true
			},
		},
		{
			name:  "open-template",
			regex: reOpenTemplate,
			build: func(m []string) (Command, bool) {
				return Command{Kind: CommandOpenTemplate, Name: strings.TrimSpace(m[1])}, true
			},
		},
		{
			name:  "create-blank-record",
			regex: reCreateRecord,
			build: func(m []string) (Command, bool) {
				return Command{Kind: CommandCreateBlankRecord, Name: strings.TrimSpace(m[1])}, true
			},
		},
		{
			name:  "activate-field",
			regex: reActivateField,
			build: func(m []string) (Command, bool) {
				return Command{Kind: CommandActivateField, Name: strings.TrimSpace(m[1])}, true
			},
		},
		{
			name:     "next-field",
			contains: []string{"próximo campo", "proximo campo"},
			build:    func([]string) (Command, bool) { return Command{Kind: CommandNextField}, true },
		},
		{
			name:     "previous-field",
			contains: []string{"campo anterior"},
			build:    func([]string) (Command, bool) { return Command{Kind: CommandPreviousField}, true },
		},
		{
			name:     "deactivate-field",
			contains: []string{"finalizar campo", "parar preenchimento", "sair do campo"},
			build:    func([]string) (Command, bool) { return Command{Kind: CommandDeactivateField}, true },
		},
		{
			name:     "new-session",
			contains: []string{"nova sessão"},
			build:    func([]string) (Command, bool) { return Command{Kind: CommandNewSession}, true },
		},
		{
			name:  "go-to-session",
			regex: reGoToSession,
			build: func(m []string) (Command, bool) {
				n, err := strconv.Atoi(m[1])
				if err != nil {
					return Command{}, false
				}
				return Command{Kind: CommandGoToSession, SessionNumber: n}, true
			},
		},
	}}
}

// Match tests text against every pattern in priority order. text must
// already be normalized and lowercased. It returns the recognized command
// and true, or the zero Command and false when the segment is plain speech.
func (g *Grammar) Match(text string) (Command, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Command{}, false
	}
	for _, p := range g.patterns {
		if len(p.contains) > 0 {
			for _, sub := range p.contains {
				if strings.Contains(trimmed, sub) {
					return p.build(nil)
				}
			}
			continue
		}
		if m := p.regex.FindStringSubmatch(trimmed); m != nil {
			if cmd, ok := p.build(m); ok {
				return cmd, true
			}
		}
	}
	return Command{}, false
}
