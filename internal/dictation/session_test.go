package dictation

import (
	"reflect"
	"testing"
)

func navCatalog() Catalog {
	return Catalog{
		{ID: "a", Label: "Campo A"},
		{ID: "b", Label: "Campo B"},
		{ID: "c", Label: "Campo C"},
	}
}

func TestSessionInitialState(t *testing.T) {
	s := NewSession("test")
	if !s.Listening {
		t.Fatal("expected new session to be listening")
	}
	if s.OpenRecord != "" || s.ActiveField != "" || s.Notes != "" {
		t.Fatalf("expected blank session, got %s", s)
	}
}

func TestFieldNavigationBoundaries(t *testing.T) {
	s := NewSession("test")
	s.Catalog = navCatalog()

	// With no active field, next starts at the first entry.
	s.NextField()
	if s.ActiveField != "a" {
		t.Fatalf("expected a, got %q", s.ActiveField)
	}
	s.NextField()
	s.NextField()
	if s.ActiveField != "c" {
		t.Fatalf("expected c, got %q", s.ActiveField)
	}

	// Past the last entry the active field clears.
	s.NextField()
	if s.ActiveField != "" {
		t.Fatalf("expected cleared field past the end, got %q", s.ActiveField)
	}

	// At the first entry, previous stays put.
	s.ActivateField("a")
	s.PreviousField()
	if s.ActiveField != "a" {
		t.Fatalf("expected a after previous at first entry, got %q", s.ActiveField)
	}

	s.ActivateField("c")
	s.PreviousField()
	if s.ActiveField != "b" {
		t.Fatalf("expected b, got %q", s.ActiveField)
	}

	// Previous with no active field is a no-op.
	s.DeactivateField()
	s.PreviousField()
	if s.ActiveField != "" {
		t.Fatalf("expected no-op previous without active field, got %q", s.ActiveField)
	}
}

func TestAppendDestinationPrecedence(t *testing.T) {
	s := NewSession("test")
	s.Catalog = navCatalog()

	if dest := s.Append("geral um"); dest != GeneralSection {
		t.Fatalf("expected general notes, got %q", dest)
	}
	if s.Notes != " geral um" {
		t.Fatalf("expected leading-space append, got %q", s.Notes)
	}

	s.NewSessionNote()
	if dest := s.Append("na sessão"); dest != "Sessão 1" {
		t.Fatalf("expected session note, got %q", dest)
	}

	// An active field beats the active session note.
	s.ActivateField("b")
	if dest := s.Append("no campo"); dest != "b" {
		t.Fatalf("expected field b, got %q", dest)
	}
	if s.Fields["b"] != " no campo" {
		t.Fatalf("expected field buffer, got %q", s.Fields["b"])
	}
	if s.SessionNotes["Sessão 1"] != " na sessão" {
		t.Fatalf("session note changed unexpectedly: %q", s.SessionNotes["Sessão 1"])
	}
}

func TestSessionNoteNumbering(t *testing.T) {
	s := NewSession("test")

	if label := s.NewSessionNote(); label != "Sessão 1" {
		t.Fatalf("expected Sessão 1, got %q", label)
	}
	if label := s.NewSessionNote(); label != "Sessão 2" {
		t.Fatalf("expected Sessão 2, got %q", label)
	}

	if _, ok := s.GoToSessionNote(1); !ok {
		t.Fatal("expected existing session note")
	}
	if s.ActiveSession != "Sessão 1" {
		t.Fatalf("expected active Sessão 1, got %q", s.ActiveSession)
	}
	if _, ok := s.GoToSessionNote(9); ok {
		t.Fatal("expected missing session note")
	}
	if s.ActiveSession != "Sessão 1" {
		t.Fatalf("failed navigation must not change active session, got %q", s.ActiveSession)
	}
}

func TestOpenPatientRecordRoutesSections(t *testing.T) {
	s := NewSession("test")
	sections := map[string]string{
		GeneralSection:     " nota geral",
		"a":                " conteúdo a",
		"Sessão 1":         " primeira",
		"Sessão 2":         " segunda",
		"seção_antiga":     " legado",
	}
	s.OpenPatientRecord("joão", "anamnese", sections, navCatalog())

	if s.Patient != "joão" || s.OpenRecord != "anamnese" {
		t.Fatalf("unexpected identity: %s", s)
	}
	if s.Fields["a"] != " conteúdo a" {
		t.Fatalf("expected field routed, got %q", s.Fields["a"])
	}
	if s.SessionNotes["Sessão 2"] != " segunda" {
		t.Fatalf("expected session note routed, got %q", s.SessionNotes["Sessão 2"])
	}
	// The highest numbered session note becomes active.
	if s.ActiveSession != "Sessão 2" {
		t.Fatalf("expected Sessão 2 active, got %q", s.ActiveSession)
	}
	// Unknown sections survive through the general notes.
	if s.Notes != " nota geral legado" {
		t.Fatalf("expected unknown section folded into notes, got %q", s.Notes)
	}
}

func TestSectionsRoundTrip(t *testing.T) {
	s := NewSession("test")
	s.Catalog = navCatalog()
	s.Append("geral")
	s.ActivateField("a")
	s.Append("campo")
	s.DeactivateField()
	s.NewSessionNote()
	s.Append("sessão")

	snapshot := s.Sections()

	restored := NewSession("test")
	restored.OpenPatientRecord("p", "anamnese", snapshot, navCatalog())
	if !reflect.DeepEqual(restored.Sections(), snapshot) {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", restored.Sections(), snapshot)
	}
}

func TestSectionsIncludeEmptyGeneral(t *testing.T) {
	s := NewSession("test")
	sections := s.Sections()
	if _, ok := sections[GeneralSection]; !ok {
		t.Fatal("expected general section present even when empty")
	}
}

func TestPauseResumeBuffers(t *testing.T) {
	s := NewSession("test")
	s.Append("antes")
	s.Pause()
	if s.Listening {
		t.Fatal("expected paused")
	}
	if s.LastSegment != "" {
		t.Fatal("expected last segment cleared on pause")
	}
	if s.Notes != " antes" {
		t.Fatalf("content buffers must survive pause, got %q", s.Notes)
	}

	s.HoldWhilePaused("um")
	s.HoldWhilePaused("dois")
	flushed := s.Resume()
	if !s.Listening {
		t.Fatal("expected listening after resume")
	}
	if !reflect.DeepEqual(flushed, []string{"um", "dois"}) {
		t.Fatalf("expected held segments in order, got %v", flushed)
	}
}

func TestClearResetsEverything(t *testing.T) {
	s := NewSession("test")
	s.OpenTemplate("anamnese", navCatalog())
	s.ActivateField("a")
	s.Append("algo")
	s.NewSessionNote()
	s.Pause()

	s.Clear()

	if s.OpenRecord != "" || s.Patient != "" || s.ActiveField != "" || s.ActiveSession != "" {
		t.Fatalf("expected cleared session, got %s", s)
	}
	if !s.Listening {
		t.Fatal("expected listening after clear")
	}
	if s.Notes != "" || len(s.Fields) != 0 || len(s.SessionNotes) != 0 {
		t.Fatal("expected empty buffers after clear")
	}
}

func TestCreateBlankActivatesFirstField(t *testing.T) {
	s := NewSession("test")
	s.CreateBlank("evolução", navCatalog())
	if s.OpenRecord != "Nova: evolução" {
		t.Fatalf("unexpected record name %q", s.OpenRecord)
	}
	if s.ActiveField != "a" {
		t.Fatalf("expected first field active, got %q", s.ActiveField)
	}

	s.CreateBlank("livre", nil)
	if s.ActiveField != "" {
		t.Fatalf("expected no active field without catalog, got %q", s.ActiveField)
	}
}
