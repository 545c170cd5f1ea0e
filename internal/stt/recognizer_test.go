package stt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marcelrenan-web/Fisiotech-app/internal/config"
)

func TestNewRecognizerFactory(t *testing.T) {
	if _, err := NewRecognizer(config.STTConfig{Mode: "mock"}); err != nil {
		t.Fatalf("mock: unexpected error: %v", err)
	}
	if _, err := NewRecognizer(config.STTConfig{Mode: "exec", Command: "transcrever --rapido"}); err != nil {
		t.Fatalf("exec: unexpected error: %v", err)
	}
	if _, err := NewRecognizer(config.STTConfig{Mode: "exec"}); err == nil {
		t.Fatal("exec without command must fail")
	}
	if _, err := NewRecognizer(config.STTConfig{Mode: "whisper"}); err == nil {
		t.Fatal("whisper without endpoint must fail")
	}
	if _, err := NewRecognizer(config.STTConfig{Mode: "telepatia"}); err == nil {
		t.Fatal("unknown mode must fail")
	}
}

func TestMockRecognizer(t *testing.T) {
	r := NewMockRecognizer()
	result, err := r.Transcribe(context.Background(), make([]byte, 320), 16000, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "[transcript length=320]" {
		t.Fatalf("unexpected text %q", result.Text)
	}
}

func TestWhisperRecognizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("language"); got != "pt" {
			t.Errorf("expected language pt, got %q", got)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing audio file: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			file.Close()
			if len(data) < 44 || string(data[:4]) != "RIFF" {
				t.Errorf("expected WAV payload, got %d bytes", len(data))
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": " paciente relata dor"})
	}))
	defer srv.Close()

	r, err := NewWhisperRecognizer(config.STTConfig{Endpoint: srv.URL, Language: "pt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := r.Transcribe(context.Background(), make([]byte, 640), 16000, 1)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if result.Text != " paciente relata dor" {
		t.Fatalf("unexpected text %q", result.Text)
	}
}

func TestWhisperRecognizerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, err := NewWhisperRecognizer(config.STTConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Transcribe(context.Background(), nil, 16000, 1); err == nil {
		t.Fatal("expected error on HTTP 500")
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	pcm := make([]byte, 320)
	data := encodeWAV(pcm, 16000, 1)

	if len(data) != 44+len(pcm) {
		t.Fatalf("unexpected length %d", len(data))
	}
	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE markers")
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Fatalf("unexpected sample rate %d", rate)
	}
	if size := binary.LittleEndian.Uint32(data[40:44]); size != uint32(len(pcm)) {
		t.Fatalf("unexpected data size %d", size)
	}
}

func TestWindowBytes(t *testing.T) {
	s := &Service{cfg: config.STTConfig{WindowMS: 5000}}
	// 16 kHz mono 16-bit over 5 s.
	if got := s.windowBytes(16000, 1); got != 160000 {
		t.Fatalf("unexpected window size %d", got)
	}
	if got := s.windowBytes(48000, 2); got != 960000 {
		t.Fatalf("unexpected window size %d", got)
	}
}
