package dictation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marcelrenan-web/Fisiotech-app/internal/protocol"
)

// TemplateSource resolves spoken template names. Lookup order (uploaded
// before static) is the source's concern.
type TemplateSource interface {
	// ResolveTemplate maps a spoken name to a known template and its field
	// catalog. ok is false when no template matches.
	ResolveTemplate(name string) (resolved string, catalog Catalog, ok bool)
}

// RecordSource is the record store adapter contract the core depends on.
// All reads and writes are whole-record.
type RecordSource interface {
	// ResolvePatient maps a spoken patient name to a stored patient id by
	// substring containment, first match in stored order.
	ResolvePatient(ctx context.Context, spoken string) (string, bool)

	// LoadRecord returns every persisted section of one patient record.
	LoadRecord(ctx context.Context, patientID, recordType string) (map[string]string, error)

	// SaveRecord replaces the persisted content of one patient record.
	SaveRecord(ctx context.Context, patientID, recordType string, sections map[string]string) error
}

// Dispatcher processes transcribed segments for one dictation session:
// normalize, try the command grammar, then either apply the command to the
// session state or route the text to the active destination.
//
// Consumption policy: any segment matching a command pattern is consumed,
// even when its argument does not resolve. A garbled command attempt
// produces a warning instead of polluting the clinical notes.
//
// Dispatcher is single-writer: segments arrive strictly sequentially from
// the transcription service and each is processed to completion before the
// next. No locking is needed.
type Dispatcher struct {
	session   *Session
	norm      *Normalizer
	grammar   *Grammar
	templates TemplateSource
	records   RecordSource
	log       *slog.Logger

	// bufferWhilePaused keeps paused segments for replay on resume instead
	// of dropping them. Off by default to preserve source behavior.
	bufferWhilePaused bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBufferWhilePaused enables buffering of segments received while
// listening is paused; they are appended in order on resume.
func WithBufferWhilePaused() DispatcherOption {
	return func(d *Dispatcher) { d.bufferWhilePaused = true }
}

// NewDispatcher wires a dispatcher for one session.
func NewDispatcher(sessionID string, norm *Normalizer, templates TemplateSource, records RecordSource, log *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		session:   NewSession(sessionID),
		norm:      norm,
		grammar:   NewGrammar(),
		templates: templates,
		records:   records,
		log:       log.With(slog.String("component", "dictation.dispatcher"), slog.String("session", sessionID)),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Session exposes the session state for rendering and persistence.
func (d *Dispatcher) Session() *Session {
	return d.session
}

// ProcessSegment is the single entry point per transcribed segment. It
// never fails: adapter errors and unresolved arguments surface as the
// Warning side effect with the session left unchanged.
func (d *Dispatcher) ProcessSegment(ctx context.Context, raw string) protocol.SideEffects {
	effects := protocol.SideEffects{SessionID: d.session.ID}

	normalized := d.norm.Normalize(raw)
	if normalized == "" {
		return effects
	}
	lowered := strings.ToLower(normalized)

	if cmd, ok := d.grammar.Match(lowered); ok {
		effects.Consumed = true
		d.apply(ctx, cmd, &effects)
		return effects
	}

	if !d.session.Listening {
		if d.bufferWhilePaused {
			d.session.HoldWhilePaused(normalized)
		}
		// Dropped, deliberately. Paused dictation is not an error.
		return effects
	}

	effects.AppendedTo = d.session.Append(normalized)
	return effects
}

// Save persists the current buffers for the open patient record.
func (d *Dispatcher) Save(ctx context.Context) error {
	s := d.session
	if s.Patient == "" || s.OpenRecord == "" {
		return fmt.Errorf("no patient record open in session %s", s.ID)
	}
	if err := d.records.SaveRecord(ctx, s.Patient, s.OpenRecord, s.Sections()); err != nil {
		return fmt.Errorf("save record %s/%s: %w", s.Patient, s.OpenRecord, err)
	}
	return nil
}

// Clear resets the session to its initial state.
func (d *Dispatcher) Clear() {
	d.session.Clear()
}

func (d *Dispatcher) apply(ctx context.Context, cmd Command, effects *protocol.SideEffects) {
	switch cmd.Kind {
	case CommandPause:
		if d.session.Listening {
			effects.ListeningToggled = true
		}
		d.session.Pause()

	case CommandResume:
		if !d.session.Listening {
			effects.ListeningToggled = true
		}
		for _, held := range d.session.Resume() {
			effects.AppendedTo = d.session.Append(held)
		}

	case CommandOpenTemplate:
		resolved, catalog, ok := d.templates.ResolveTemplate(cmd.Name)
		if !ok {
			effects.Warning = fmt.Sprintf("Ficha %q não encontrada", cmd.Name)
			return
		}
		d.session.OpenTemplate(resolved, catalog)
		effects.RecordOpened = resolved

	case CommandOpenPatientRecord:
		patientID, ok := d.records.ResolvePatient(ctx, cmd.Patient)
		if !ok {
			effects.Warning = fmt.Sprintf("Paciente %q não encontrado", cmd.Patient)
			return
		}
		sections, err := d.records.LoadRecord(ctx, patientID, cmd.RecordType)
		if err != nil {
			d.log.Warn("load patient record failed",
				slog.String("patient", patientID),
				slog.String("record_type", cmd.RecordType),
				slog.String("error", err.Error()))
			effects.Warning = fmt.Sprintf("Não foi possível abrir a ficha de %s", cmd.Patient)
			return
		}
		catalog := d.catalogFor(cmd.RecordType)
		d.session.OpenPatientRecord(patientID, cmd.RecordType, sections, catalog)
		effects.RecordOpened = cmd.RecordType
		effects.PatientOpened = patientID

	case CommandCreateBlankRecord:
		d.session.CreateBlank(cmd.Name, d.catalogFor(cmd.Name))
		effects.RecordOpened = d.session.OpenRecord
		if d.session.ActiveField != "" {
			effects.FieldActivated = d.session.ActiveField
		}

	case CommandActivateField:
		id, ok := d.session.Catalog.Resolve(cmd.Name)
		if !ok {
			effects.Warning = fmt.Sprintf("Campo %q não encontrado", cmd.Name)
			return
		}
		d.session.ActivateField(id)
		effects.FieldActivated = id

	case CommandNextField:
		d.session.NextField()
		if d.session.ActiveField != "" {
			effects.FieldActivated = d.session.ActiveField
		} else {
			effects.FieldCleared = true
		}

	case CommandPreviousField:
		d.session.PreviousField()
		if d.session.ActiveField != "" {
			effects.FieldActivated = d.session.ActiveField
		}

	case CommandDeactivateField:
		d.session.DeactivateField()
		effects.FieldCleared = true

	case CommandNewSession:
		effects.SessionSwitched = d.session.NewSessionNote()

	case CommandGoToSession:
		label, ok := d.session.GoToSessionNote(cmd.SessionNumber)
		if !ok {
			effects.Warning = fmt.Sprintf("%s não existe", label)
			return
		}
		effects.SessionSwitched = label
	}
}

// catalogFor picks the field catalog for a record type: the matching
// template's catalog when one exists, else the default anamnesis form.
func (d *Dispatcher) catalogFor(name string) Catalog {
	if _, catalog, ok := d.templates.ResolveTemplate(name); ok && len(catalog) > 0 {
		return catalog
	}
	return DefaultCatalog()
}
