package musicgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/evarantes/codexia-app/internal/config"
)

func TestGenerateMusic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer hf-token" {
			t.Errorf("auth header = %q", got)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !strings.Contains(req["inputs"], "epic style") {
			t.Errorf("inputs = %q, prompt not folded in", req["inputs"])
		}
		_, _ = w.Write([]byte("wav-bytes"))
	}))
	defer srv.Close()

	c := New(config.MusicGenSettings{APIURL: srv.URL, Token: "hf-token"})

	audio, err := c.GenerateMusic(context.Background(), "epic style, inspired by Disciplina")
	if err != nil {
		t.Fatalf("GenerateMusic: %v", err)
	}
	if string(audio) != "wav-bytes" {
		t.Fatalf("audio = %q", audio)
	}
}

func TestGenerateMusic_ModelLoading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Model is currently loading"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(config.MusicGenSettings{APIURL: srv.URL})
	if _, err := c.GenerateMusic(context.Background(), "drama"); err == nil {
		t.Fatal("503 should surface as an error so the chain falls back")
	}
}
