package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/evarantes/codexia-app/internal/jobs"
)

// ErrNoProvider is returned by a chain when every provider failed or the
// chain is empty. Callers treat it as "use the local fallback", never as a
// job failure.
var ErrNoProvider = errors.New("no provider produced a result")

// ScriptProvider turns a topic into a structured script.
type ScriptProvider interface {
	Name() string
	GenerateScript(ctx context.Context, topic string, durationMinutes int) (*jobs.Script, error)
}

// ImageProvider renders a background image for a prompt and returns a URL
// the caller can download.
type ImageProvider interface {
	Name() string
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// TTSProvider synthesizes narration audio for a piece of text.
type TTSProvider interface {
	Name() string
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)
}

// Voice carries narration preferences through to TTS providers.
type Voice struct {
	Style  string // provider-specific voice name, e.g. "onyx"
	Gender string // male | female, used when Style is empty
}

// MusicProvider generates a background track for a mood prompt.
type MusicProvider interface {
	Name() string
	GenerateMusic(ctx context.Context, prompt string) ([]byte, error)
}

// ScriptSource is the script-generation surface of a Chain, split out so
// consumers can swap in a stub.
type ScriptSource interface {
	GenerateScript(ctx context.Context, topic string, durationMinutes int) (*jobs.Script, error)
}

// Chain groups the provider lists the assembly pipeline consumes. Each
// list is tried in priority order until the first success.
type Chain struct {
	Log    *slog.Logger
	Script []ScriptProvider
	Image  []ImageProvider
	TTS    []TTSProvider
	Music  []MusicProvider
}

var _ ScriptSource = (*Chain)(nil)

func (c *Chain) log() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

// GenerateScript returns the first script any provider produces.
func (c *Chain) GenerateScript(ctx context.Context, topic string, durationMinutes int) (*jobs.Script, error) {
	for _, p := range c.Script {
		script, err := p.GenerateScript(ctx, topic, durationMinutes)
		if err == nil && script != nil {
			return script, nil
		}
		c.log().Warn("script provider failed", "provider", p.Name(), "err", err)
	}
	return nil, fmt.Errorf("generate script: %w", ErrNoProvider)
}

// GenerateImage returns the first image URL any provider produces.
func (c *Chain) GenerateImage(ctx context.Context, prompt string) (string, error) {
	for _, p := range c.Image {
		url, err := p.GenerateImage(ctx, prompt)
		if err == nil && url != "" {
			return url, nil
		}
		c.log().Warn("image provider failed", "provider", p.Name(), "err", err)
	}
	return "", fmt.Errorf("generate image: %w", ErrNoProvider)
}

// Synthesize returns the first narration audio any provider produces.
func (c *Chain) Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error) {
	for _, p := range c.TTS {
		audio, err := p.Synthesize(ctx, text, voice)
		if err == nil && len(audio) > 0 {
			return audio, nil
		}
		c.log().Warn("tts provider failed", "provider", p.Name(), "err", err)
	}
	return nil, fmt.Errorf("synthesize: %w", ErrNoProvider)
}

// GenerateMusic returns the first track any provider produces.
func (c *Chain) GenerateMusic(ctx context.Context, prompt string) ([]byte, error) {
	for _, p := range c.Music {
		audio, err := p.GenerateMusic(ctx, prompt)
		if err == nil && len(audio) > 0 {
			return audio, nil
		}
		c.log().Warn("music provider failed", "provider", p.Name(), "err", err)
	}
	return nil, fmt.Errorf("generate music: %w", ErrNoProvider)
}
