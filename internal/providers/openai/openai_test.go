package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/evarantes/codexia-app/internal/config"
	"github.com/evarantes/codexia-app/internal/providers"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.OpenAISettings{
		BaseURL:    srv.URL,
		APIKey:     "sk-test",
		ChatModel:  "gpt-4o-mini",
		ImageModel: "dall-e-3",
		TTSModel:   "tts-1",
	})
}

func TestGenerateScript(t *testing.T) {
	scriptJSON := `{"title":"Disciplina Vence","description":"desc","tags":["foco"],` +
		`"scenes":[{"text":"Cena um.","image_prompt":"stoic statue"}],"music_mood":"epic"}`

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header = %q", got)
		}
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "Motivacional") {
			t.Errorf("unexpected prompt: %+v", req.Messages)
		}
		// Models often wrap output in a fence; the client must strip it.
		fenced := "```json\n" + scriptJSON + "\n```"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": fenced}},
			},
		})
	})

	script, err := client.GenerateScript(context.Background(), "disciplina", 5)
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if script.Title != "Disciplina Vence" || len(script.Scenes) != 1 {
		t.Fatalf("parsed script mismatch: %+v", script)
	}
	if script.DurationMinutes != 5 {
		t.Fatalf("DurationMinutes = %d, want 5", script.DurationMinutes)
	}
}

func TestGenerateScript_IncompleteRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"title\":\"\",\"scenes\":[]}"}}]}`))
	})
	if _, err := client.GenerateScript(context.Background(), "x", 1); err == nil {
		t.Fatal("script without title or scenes should be rejected")
	}
}

func TestGenerateImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req imageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Size != "1024x1792" || req.N != 1 {
			t.Errorf("unexpected image request: %+v", req)
		}
		_, _ = w.Write([]byte(`{"data":[{"url":"https://img.example/1.png"}]}`))
	})

	url, err := client.GenerateImage(context.Background(), "a mountain")
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if url != "https://img.example/1.png" {
		t.Fatalf("url = %q", url)
	}
}

func TestSynthesize(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req speechRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Voice != "nova" {
			t.Errorf("voice = %q, want nova for female", req.Voice)
		}
		_, _ = w.Write([]byte("audio-bytes"))
	})

	audio, err := client.Synthesize(context.Background(), "texto", providers.Voice{Gender: "female"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "audio-bytes" {
		t.Fatalf("audio = %q", audio)
	}
}

func TestAPIErrorSurfaced(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	})
	_, err := client.GenerateImage(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want status surfaced", err)
	}
}

func TestPickVoice(t *testing.T) {
	tests := []struct {
		voice providers.Voice
		want  string
	}{
		{providers.Voice{Style: "echo"}, "echo"},
		{providers.Voice{Gender: "female"}, "nova"},
		{providers.Voice{Gender: "male"}, "onyx"},
		{providers.Voice{}, "onyx"},
	}
	for _, tc := range tests {
		if got := pickVoice(tc.voice); got != tc.want {
			t.Errorf("pickVoice(%+v) = %q, want %q", tc.voice, got, tc.want)
		}
	}
}

func TestStripJSONFences(t *testing.T) {
	in := "```json\n{\"a\":1}\n```"
	if got := stripJSONFences(in); got != `{"a":1}` {
		t.Errorf("stripJSONFences = %q", got)
	}
	if got := stripJSONFences(`{"a":1}`); got != `{"a":1}` {
		t.Errorf("plain json altered: %q", got)
	}
}
