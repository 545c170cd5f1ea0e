package stt

import (
	"context"
)

// Result captures recognizer output for one audio window.
type Result struct {
	Text       string
	Confidence float64
}

// Recognizer abstracts speech-to-text backends. Implementations receive
// 16-bit little-endian PCM.
type Recognizer interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int) (Result, error)
}
