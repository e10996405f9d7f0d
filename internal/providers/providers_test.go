package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/evarantes/codexia-app/internal/jobs"
)

type stubScript struct {
	name   string
	script *jobs.Script
	err    error
	calls  int
}

func (s *stubScript) Name() string { return s.name }
func (s *stubScript) GenerateScript(ctx context.Context, topic string, durationMinutes int) (*jobs.Script, error) {
	s.calls++
	return s.script, s.err
}

type stubTTS struct {
	name  string
	audio []byte
	err   error
}

func (s *stubTTS) Name() string { return s.name }
func (s *stubTTS) Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error) {
	return s.audio, s.err
}

func TestChain_FirstSuccessWins(t *testing.T) {
	broken := &stubScript{name: "broken", err: errors.New("down")}
	working := &stubScript{name: "working", script: &jobs.Script{Title: "ok"}}
	never := &stubScript{name: "never", script: &jobs.Script{Title: "unused"}}

	chain := &Chain{Script: []ScriptProvider{broken, working, never}}

	script, err := chain.GenerateScript(context.Background(), "disciplina", 5)
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if script.Title != "ok" {
		t.Fatalf("got script %q, want the first working provider's", script.Title)
	}
	if broken.calls != 1 || working.calls != 1 || never.calls != 0 {
		t.Fatalf("call counts = %d/%d/%d, want 1/1/0", broken.calls, working.calls, never.calls)
	}
}

func TestChain_AllFailed(t *testing.T) {
	chain := &Chain{Script: []ScriptProvider{
		&stubScript{name: "a", err: errors.New("down")},
		&stubScript{name: "b", err: errors.New("down")},
	}}
	if _, err := chain.GenerateScript(context.Background(), "x", 1); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
}

func TestChain_EmptyChain(t *testing.T) {
	chain := &Chain{}
	if _, err := chain.Synthesize(context.Background(), "texto", Voice{}); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
	if _, err := chain.GenerateImage(context.Background(), "p"); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
	if _, err := chain.GenerateMusic(context.Background(), "p"); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
}

func TestChain_SkipsEmptyResults(t *testing.T) {
	chain := &Chain{TTS: []TTSProvider{
		&stubTTS{name: "empty", audio: nil},
		&stubTTS{name: "full", audio: []byte("mp3")},
	}}
	audio, err := chain.Synthesize(context.Background(), "texto", Voice{Gender: "male"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "mp3" {
		t.Fatalf("audio = %q, want from the non-empty provider", audio)
	}
}
