package dictation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type fakeTemplates struct {
	templates map[string]Catalog
}

func (f *fakeTemplates) ResolveTemplate(name string) (string, Catalog, bool) {
	q := strings.ToLower(strings.TrimSpace(name))
	for key, catalog := range f.templates {
		if strings.Contains(key, q) {
			return key, catalog, true
		}
	}
	return "", nil, false
}

type fakeRecords struct {
	patients map[string]map[string]map[string]string // patient -> type -> sections
	saved    map[string]map[string]string
	loadErr  error
	saveErr  error
}

func (f *fakeRecords) ResolvePatient(_ context.Context, spoken string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(spoken))
	for id := range f.patients {
		if strings.Contains(id, q) {
			return id, true
		}
	}
	return "", false
}

func (f *fakeRecords) LoadRecord(_ context.Context, patientID, recordType string) (map[string]string, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if byType, ok := f.patients[patientID]; ok {
		if sections, ok := byType[recordType]; ok {
			return sections, nil
		}
	}
	return map[string]string{}, nil
}

func (f *fakeRecords) SaveRecord(_ context.Context, patientID, recordType string, sections map[string]string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.saved == nil {
		f.saved = make(map[string]map[string]string)
	}
	f.saved[patientID+"/"+recordType] = sections
	return nil
}

func testDispatcher(t *testing.T, opts ...DispatcherOption) (*Dispatcher, *fakeRecords) {
	t.Helper()
	records := &fakeRecords{
		patients: map[string]map[string]map[string]string{
			"joão silva": {
				"anamnese": {GeneralSection: " histórico antigo"},
			},
		},
	}
	templates := &fakeTemplates{
		templates: map[string]Catalog{
			"anamnese": DefaultCatalog(),
		},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher("test", NewNormalizer(DefaultRules()), templates, records, log, opts...), records
}

func TestDispatchScenario(t *testing.T) {
	d, _ := testDispatcher(t)
	ctx := context.Background()

	segments := []string{
		"abrir ficha de anamnese",
		"paciente relata dor lombar",
		"pausar anotação",
		"este texto deve sumir",
		"retomar anotação",
		"algia moderada",
	}
	for _, seg := range segments {
		d.ProcessSegment(ctx, seg)
	}

	s := d.Session()
	if s.OpenRecord != "anamnese" {
		t.Fatalf("expected anamnese open, got %q", s.OpenRecord)
	}
	if s.Notes != " paciente relata dor lombar dor moderada" {
		t.Fatalf("unexpected notes: %q", s.Notes)
	}
	if !s.Listening {
		t.Fatal("expected listening at end of scenario")
	}
}

func TestDispatchUnmatchedSegmentIsIdempotent(t *testing.T) {
	d, _ := testDispatcher(t)
	ctx := context.Background()

	effects := d.ProcessSegment(ctx, "paciente caminha sem auxílio")
	if effects.Consumed {
		t.Fatal("plain speech must not be consumed as a command")
	}
	if effects.AppendedTo != GeneralSection {
		t.Fatalf("expected general notes destination, got %q", effects.AppendedTo)
	}

	before := d.Session().Notes
	d.ProcessSegment(ctx, "   ")
	if d.Session().Notes != before {
		t.Fatal("empty segment must not change state")
	}
}

func TestDispatchCommandsWorkWhilePaused(t *testing.T) {
	d, _ := testDispatcher(t)
	ctx := context.Background()

	d.ProcessSegment(ctx, "abrir ficha de anamnese")
	d.ProcessSegment(ctx, "pausar anotação")

	// Content is dropped while paused.
	effects := d.ProcessSegment(ctx, "texto perdido")
	if effects.Consumed || effects.AppendedTo != "" {
		t.Fatalf("expected dropped segment, got %+v", effects)
	}

	// Commands still execute.
	effects = d.ProcessSegment(ctx, "preencher exame físico")
	if !effects.Consumed || effects.FieldActivated != "exame_fisico" {
		t.Fatalf("expected field activation while paused, got %+v", effects)
	}

	d.ProcessSegment(ctx, "retomar anotação")
	if d.Session().Fields["exame_fisico"] != "" {
		t.Fatalf("dropped content leaked into buffers: %q", d.Session().Fields["exame_fisico"])
	}
}

func TestDispatchBufferWhilePaused(t *testing.T) {
	d, _ := testDispatcher(t, WithBufferWhilePaused())
	ctx := context.Background()

	d.ProcessSegment(ctx, "pausar anotação")
	d.ProcessSegment(ctx, "primeiro trecho")
	d.ProcessSegment(ctx, "segundo trecho")
	effects := d.ProcessSegment(ctx, "retomar anotação")

	if !effects.Consumed || !effects.ListeningToggled {
		t.Fatalf("expected resume effects, got %+v", effects)
	}
	if d.Session().Notes != " primeiro trecho segundo trecho" {
		t.Fatalf("expected held segments replayed in order, got %q", d.Session().Notes)
	}
}

func TestDispatchUnresolvedArgumentsConsume(t *testing.T) {
	d, _ := testDispatcher(t)
	ctx := context.Background()

	cases := []string{
		"abrir ficha de inexistente",
		"abrir ficha do paciente desconhecido de anamnese",
		"preencher campo que não existe",
		"ir para a sessão 7",
	}
	for _, seg := range cases {
		before := *d.Session()
		effects := d.ProcessSegment(ctx, seg)
		if !effects.Consumed {
			t.Fatalf("%q: garbled command must be consumed", seg)
		}
		if effects.Warning == "" {
			t.Fatalf("%q: expected a warning", seg)
		}
		if effects.AppendedTo != "" {
			t.Fatalf("%q: must not pollute notes", seg)
		}
		if d.Session().Notes != before.Notes || d.Session().OpenRecord != before.OpenRecord {
			t.Fatalf("%q: session must be unchanged", seg)
		}
	}
}

func TestDispatchOpenPatientRecord(t *testing.T) {
	d, _ := testDispatcher(t)
	ctx := context.Background()

	effects := d.ProcessSegment(ctx, "abrir ficha do paciente silva de anamnese")
	if effects.PatientOpened != "joão silva" || effects.RecordOpened != "anamnese" {
		t.Fatalf("unexpected effects: %+v", effects)
	}
	if d.Session().Notes != " histórico antigo" {
		t.Fatalf("expected persisted notes loaded, got %q", d.Session().Notes)
	}
}

func TestDispatchLoadFailureLeavesSessionUnchanged(t *testing.T) {
	d, records := testDispatcher(t)
	records.loadErr = errors.New("disk on fire")
	ctx := context.Background()

	d.ProcessSegment(ctx, "texto qualquer")
	before := d.Session().Notes

	effects := d.ProcessSegment(ctx, "abrir ficha do paciente silva de anamnese")
	if effects.Warning == "" {
		t.Fatal("expected warning on load failure")
	}
	if d.Session().OpenRecord != "" || d.Session().Notes != before {
		t.Fatal("failed open must leave session unchanged")
	}
}

func TestDispatchSave(t *testing.T) {
	d, records := testDispatcher(t)
	ctx := context.Background()

	if err := d.Save(ctx); err == nil {
		t.Fatal("expected error without an open patient record")
	}

	d.ProcessSegment(ctx, "abrir ficha do paciente silva de anamnese")
	d.ProcessSegment(ctx, "evolução favorável")
	if err := d.Save(ctx); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	saved := records.saved["joão silva/anamnese"]
	if saved == nil {
		t.Fatal("expected saved sections")
	}
	if saved[GeneralSection] != " histórico antigo evolução favorável" {
		t.Fatalf("unexpected saved notes: %q", saved[GeneralSection])
	}
}

func TestDispatchSessionNotes(t *testing.T) {
	d, _ := testDispatcher(t)
	ctx := context.Background()

	effects := d.ProcessSegment(ctx, "nova sessão")
	if effects.SessionSwitched != "Sessão 1" {
		t.Fatalf("expected Sessão 1, got %q", effects.SessionSwitched)
	}
	d.ProcessSegment(ctx, "nova sessão")
	effects = d.ProcessSegment(ctx, "ir para a sessão 1")
	if effects.SessionSwitched != "Sessão 1" {
		t.Fatalf("expected switch back to Sessão 1, got %+v", effects)
	}
	d.ProcessSegment(ctx, "paciente evolui bem")
	if d.Session().SessionNotes["Sessão 1"] != " paciente evolui bem" {
		t.Fatalf("unexpected session note: %q", d.Session().SessionNotes["Sessão 1"])
	}
}

func TestDispatchFieldNavigationEffects(t *testing.T) {
	d, _ := testDispatcher(t)
	ctx := context.Background()

	d.ProcessSegment(ctx, "abrir ficha de anamnese")
	effects := d.ProcessSegment(ctx, "próximo campo")
	if effects.FieldActivated != "queixa_principal" {
		t.Fatalf("expected first field, got %+v", effects)
	}

	effects = d.ProcessSegment(ctx, "finalizar campo")
	if !effects.FieldCleared {
		t.Fatalf("expected field cleared, got %+v", effects)
	}
}
