package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voiceai/quill/pkg/backend/openai"
)

func TestNew_EmptyAPIKey_ReturnsError(t *testing.T) {
	t.Parallel()

	_, err := openai.New("", "")
	if err == nil {
		t.Fatal("expected error for empty apiKey, got nil")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	t.Parallel()

	tr, err := openai.New("sk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := tr.ModelID(); got != openai.DefaultModel {
		t.Errorf("ModelID() = %q, want %q", got, openai.DefaultModel)
	}
}

func TestTranscribe_AgainstCompatibleServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language field = %q, want %q", got, "en")
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		if hdr.Filename != "audio.wav" {
			t.Errorf("filename = %q, want audio.wav", hdr.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": " transcribed text "})
	}))
	defer srv.Close()

	tr, err := openai.New("sk-test", "whisper-1", openai.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := tr.Transcribe(context.Background(), make([]byte, 3200), "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "transcribed text" {
		t.Errorf("Transcribe() = %q, want %q (trimmed)", got, "transcribed text")
	}
}
