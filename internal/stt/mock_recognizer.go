package stt

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

// NewMockRecognizer returns a recognizer that describes its input instead
// of transcribing it. Used in development and tests.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, pcm []byte, _ int, _ int) (Result, error) {
	return Result{
		Text: fmt.Sprintf("[transcript length=%d]", len(pcm)),
	}, nil
}
