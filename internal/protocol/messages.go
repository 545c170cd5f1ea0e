package protocol

import "time"

// AudioFrame represents PCM audio data streamed from edge microphone devices.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// Segment is one unit of transcribed text produced per audio window.
type Segment struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
}

// SideEffects describes what a processed segment changed, so the UI layer
// can decide what to re-render. Zero-value fields mean "nothing happened".
type SideEffects struct {
	SessionID        string `json:"session_id"`
	RecordOpened     string `json:"record_opened,omitempty"`
	PatientOpened    string `json:"patient_opened,omitempty"`
	FieldActivated   string `json:"field_activated,omitempty"`
	FieldCleared     bool   `json:"field_cleared,omitempty"`
	ListeningToggled bool   `json:"listening_toggled,omitempty"`
	SessionSwitched  string `json:"session_switched,omitempty"`
	AppendedTo       string `json:"appended_to,omitempty"`
	Warning          string `json:"warning,omitempty"`
	Consumed         bool   `json:"consumed"`
}

// SaveRequest asks the dictation service to persist the current buffers of
// one dictation session.
type SaveRequest struct {
	SessionID string `json:"session_id"`
}

// ClearRequest asks the dictation service to reset one dictation session to
// its initial state.
type ClearRequest struct {
	SessionID string `json:"session_id"`
}

// RecordSaved is published after a patient record has been persisted. SaveID
// is unique per save so downstream consumers can deduplicate redeliveries.
type RecordSaved struct {
	SaveID     string    `json:"save_id"`
	SessionID  string    `json:"session_id"`
	PatientID  string    `json:"patient_id"`
	RecordType string    `json:"record_type"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	SubjectAudioFramePrefix = "audio.frame"
	SubjectSegment          = "dictation.segment"
	SubjectSideEffects      = "dictation.effects"
	SubjectSaveRecord       = "dictation.ctrl.save"
	SubjectClearSession     = "dictation.ctrl.clear"
	SubjectRecordSaved      = "record.saved"
	SubjectDeviceAnnounce   = "ctrl.device.announce"
	SubjectDeviceHeartbeat  = "ctrl.device.heartbeat"
)
