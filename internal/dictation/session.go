package dictation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// GeneralSection is the section key of the free-form notes buffer, used both
// for routing and as the persisted section name.
const GeneralSection = "geral"

// sessionPrefix starts every session-note label ("Sessão 1", "Sessão 2", ...).
const sessionPrefix = "Sessão "

// Session is the single mutable context of one dictation session. It holds
// the authoritative state the command grammar mutates and the dictation
// router appends to. Session is not safe for concurrent use; the dispatcher
// processes segments strictly one at a time.
type Session struct {
	// ID identifies the bus session this state belongs to.
	ID string

	// OpenRecord names the currently open template or record type, or "".
	OpenRecord string

	// Patient is the associated patient id, or "". Independent of
	// OpenRecord: a template can be open with no patient.
	Patient string

	// ActiveField is the catalog field currently receiving dictation.
	// Empty means general notes.
	ActiveField string

	// Listening gates whether plain speech is appended anywhere.
	Listening bool

	// Notes is the free-form general notes buffer.
	Notes string

	// Fields maps catalog field ids to their text buffers.
	Fields map[string]string

	// SessionNotes maps session labels ("Sessão 1", ...) to text buffers.
	SessionNotes map[string]string

	// ActiveSession is the session label receiving general dictation when
	// no field is active, or "".
	ActiveSession string

	// Catalog is the field list of the open template. Read-only.
	Catalog Catalog

	// LastSegment mirrors the most recent routed segment for display. It is
	// cleared on pause but content buffers are not.
	LastSegment string

	// pending holds segments received while paused, only when the
	// buffer-while-paused improvement is enabled.
	pending []string
}

// NewSession returns a session in its initial state: listening, no record
// open, no field active, empty buffers.
func NewSession(id string) *Session {
	return &Session{
		ID:           id,
		Listening:    true,
		Fields:       make(map[string]string),
		SessionNotes: make(map[string]string),
	}
}

// Clear atomically resets every attribute to its initial value.
func (s *Session) Clear() {
	s.OpenRecord = ""
	s.Patient = ""
	s.ActiveField = ""
	s.Listening = true
	s.Notes = ""
	s.Fields = make(map[string]string)
	s.SessionNotes = make(map[string]string)
	s.ActiveSession = ""
	s.Catalog = nil
	s.LastSegment = ""
	s.pending = nil
}

// Pause stops routing of future segments. Content buffers are untouched;
// only the last-segment display buffer is cleared.
func (s *Session) Pause() {
	s.Listening = false
	s.LastSegment = ""
}

// Resume re-enables routing and returns any segments buffered while paused,
// in arrival order. The returned slice is empty unless buffering was used.
func (s *Session) Resume() []string {
	s.Listening = true
	flushed := s.pending
	s.pending = nil
	return flushed
}

// HoldWhilePaused stores a segment received while paused for replay on
// resume.
func (s *Session) HoldWhilePaused(text string) {
	s.pending = append(s.pending, text)
}

// OpenTemplate opens a template for a fresh, patient-less form. All buffers
// start blank: the template guide is read-only reference material and is
// never loaded into the editable buffers.
func (s *Session) OpenTemplate(name string, catalog Catalog) {
	s.OpenRecord = name
	s.Patient = ""
	s.ActiveField = ""
	s.Notes = ""
	s.Fields = make(map[string]string)
	s.SessionNotes = make(map[string]string)
	s.ActiveSession = ""
	s.Catalog = catalog
}

// OpenPatientRecord replaces the session buffers with persisted content for
// one patient and record type. Section keys are routed by shape: catalog
// field ids fill Fields, "Sessão N" labels fill SessionNotes (the highest
// numbered label becomes active), and the general section fills Notes.
func (s *Session) OpenPatientRecord(patient, recordType string, sections map[string]string, catalog Catalog) {
	s.OpenRecord = recordType
	s.Patient = patient
	s.ActiveField = ""
	s.Notes = ""
	s.Fields = make(map[string]string)
	s.SessionNotes = make(map[string]string)
	s.ActiveSession = ""
	s.Catalog = catalog

	var labels, unknown []string
	for key, content := range sections {
		switch {
		case key == GeneralSection:
			s.Notes = content
		case catalog.IndexOf(key) >= 0:
			s.Fields[key] = content
		case strings.HasPrefix(key, sessionPrefix):
			s.SessionNotes[key] = content
			labels = append(labels, key)
		default:
			unknown = append(unknown, key)
		}
	}
	// Unknown sections survive round trips through the general notes rather
	// than being dropped.
	sort.Strings(unknown)
	for _, key := range unknown {
		s.Notes += sections[key]
	}
	if len(labels) > 0 {
		sort.Slice(labels, func(i, j int) bool {
			return sessionNumber(labels[i]) < sessionNumber(labels[j])
		})
		s.ActiveSession = labels[len(labels)-1]
	}
}

// CreateBlank starts a new unsaved record. When a catalog exists, dictation
// starts on its first field so a freshly created structured form can be
// filled top to bottom without a field command.
func (s *Session) CreateBlank(name string, catalog Catalog) {
	s.OpenRecord = "Nova: " + name
	s.Patient = ""
	s.Notes = ""
	s.Fields = make(map[string]string)
	s.SessionNotes = make(map[string]string)
	s.ActiveSession = ""
	s.Catalog = catalog
	if len(catalog) > 0 {
		s.ActiveField = catalog[0].ID
	} else {
		s.ActiveField = ""
	}
}

// ActivateField designates a resolved catalog field as the dictation target.
func (s *Session) ActivateField(id string) {
	s.ActiveField = id
}

// NextField advances the active field along the catalog. Past the last entry
// the active field is cleared and dictation falls back to general notes.
// With no active field it starts at the first entry.
func (s *Session) NextField() {
	if len(s.Catalog) == 0 {
		return
	}
	if s.ActiveField == "" {
		s.ActiveField = s.Catalog[0].ID
		return
	}
	idx := s.Catalog.IndexOf(s.ActiveField)
	if idx < 0 || idx+1 >= len(s.Catalog) {
		s.ActiveField = ""
		return
	}
	s.ActiveField = s.Catalog[idx+1].ID
}

// PreviousField steps back along the catalog. At the first entry it stays
// put; the asymmetry with NextField is inherited source behavior, preserved
// deliberately.
func (s *Session) PreviousField() {
	if len(s.Catalog) == 0 || s.ActiveField == "" {
		return
	}
	idx := s.Catalog.IndexOf(s.ActiveField)
	if idx <= 0 {
		return
	}
	s.ActiveField = s.Catalog[idx-1].ID
}

// DeactivateField clears the active field unconditionally.
func (s *Session) DeactivateField() {
	s.ActiveField = ""
}

// NewSessionNote creates the next numbered session note and makes it the
// active one. It returns the new label.
func (s *Session) NewSessionNote() string {
	next := 1
	for label := range s.SessionNotes {
		if n := sessionNumber(label); n >= next {
			next = n + 1
		}
	}
	label := sessionPrefix + strconv.Itoa(next)
	s.SessionNotes[label] = ""
	s.ActiveSession = label
	return label
}

// GoToSessionNote switches to an existing numbered session note. It reports
// whether the session exists.
func (s *Session) GoToSessionNote(n int) (string, bool) {
	label := sessionPrefix + strconv.Itoa(n)
	if _, ok := s.SessionNotes[label]; !ok {
		return label, false
	}
	s.ActiveSession = label
	return label, true
}

// Append routes one segment of plain speech to the single active
// destination and returns the destination key: a field id, a session label,
// or GeneralSection. A single space separator is always prefixed, even into
// an empty buffer.
func (s *Session) Append(text string) string {
	s.LastSegment = text
	switch {
	case s.ActiveField != "":
		s.Fields[s.ActiveField] += " " + text
		return s.ActiveField
	case s.ActiveSession != "":
		s.SessionNotes[s.ActiveSession] += " " + text
		return s.ActiveSession
	default:
		s.Notes += " " + text
		return GeneralSection
	}
}

// Sections snapshots every buffer for persistence: the general notes under
// GeneralSection, each field under its id, each session note under its
// label. Empty buffers are included so a saved record round-trips exactly.
func (s *Session) Sections() map[string]string {
	sections := make(map[string]string, len(s.Fields)+len(s.SessionNotes)+1)
	sections[GeneralSection] = s.Notes
	for id, content := range s.Fields {
		sections[id] = content
	}
	for label, content := range s.SessionNotes {
		sections[label] = content
	}
	return sections
}

func sessionNumber(label string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(label, sessionPrefix))
	if err != nil {
		return 0
	}
	return n
}

// String summarizes the session for logs.
func (s *Session) String() string {
	return fmt.Sprintf("session %s record=%q patient=%q field=%q listening=%t",
		s.ID, s.OpenRecord, s.Patient, s.ActiveField, s.Listening)
}
