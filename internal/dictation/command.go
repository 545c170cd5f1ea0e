package dictation

// CommandKind identifies the spoken instruction recognized in a segment.
type CommandKind int

const (
	CommandPause CommandKind = iota
	CommandResume
	CommandOpenTemplate
	CommandOpenPatientRecord
	CommandCreateBlankRecord
	CommandActivateField
	CommandNextField
	CommandPreviousField
	CommandDeactivateField
	CommandNewSession
	CommandGoToSession
)

func (k CommandKind) String() string {
	switch k {
	case CommandPause:
		return "pause"
	case CommandResume:
		return "resume"
	case CommandOpenTemplate:
		return "open-template"
	case CommandOpenPatientRecord:
		return "open-patient-record"
	case CommandCreateBlankRecord:
		return "create-blank-record"
	case CommandActivateField:
		return "activate-field"
	case CommandNextField:
		return "next-field"
	case CommandPreviousField:
		return "previous-field"
	case CommandDeactivateField:
		return "deactivate-field"
	case CommandNewSession:
		return "new-session"
	case CommandGoToSession:
		return "go-to-session"
	}
	return "unknown"
}

// Command is a recognized imperative utterance. It is constructed per
// segment and discarded after its effect has been applied to the session.
type Command struct {
	Kind CommandKind

	// Name carries the template or blank-record name for OpenTemplate and
	// CreateBlankRecord, and the field query for ActivateField.
	Name string

	// Patient and RecordType are set for OpenPatientRecord.
	Patient    string
	RecordType string

	// SessionNumber is set for GoToSession.
	SessionNumber int
}
