package edgetts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/evarantes/codexia-app/internal/common"
	"github.com/evarantes/codexia-app/internal/config"
	"github.com/evarantes/codexia-app/internal/providers"
)

var _ providers.TTSProvider = (*Synthesizer)(nil)

const (
	defaultMaleVoice   = "pt-BR-AntonioNeural"
	defaultFemaleVoice = "pt-BR-FranciscaNeural"
)

// Synthesizer is the narration fallback when no API-backed TTS is
// available. It shells out to the free edge-tts tool, which needs no key.
type Synthesizer struct {
	maleVoice   string
	femaleVoice string
}

// New creates a synthesizer from configuration.
func New(cfg config.EdgeTTSSettings) *Synthesizer {
	s := &Synthesizer{
		maleVoice:   strings.TrimSpace(cfg.MaleVoice),
		femaleVoice: strings.TrimSpace(cfg.FemaleVoice),
	}
	if s.maleVoice == "" {
		s.maleVoice = defaultMaleVoice
	}
	if s.femaleVoice == "" {
		s.femaleVoice = defaultFemaleVoice
	}
	return s
}

func (s *Synthesizer) Name() string { return "edge-tts" }

// Synthesize runs edge-tts and returns the generated audio bytes.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice providers.Voice) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text")
	}
	if _, err := exec.LookPath(common.EdgeTTSExecutable); err != nil {
		return nil, fmt.Errorf("edge-tts not installed: %w", err)
	}

	dir, err := os.MkdirTemp("", "edgetts-*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	outFile := filepath.Join(dir, "narration.mp3")
	cmd := exec.CommandContext(ctx, common.EdgeTTSExecutable,
		"--voice", s.pickVoice(voice),
		"--text", text,
		"--write-media", outFile,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("edge-tts: %w: %s", err, strings.TrimSpace(string(out)))
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("edge-tts produced no audio")
	}
	return data, nil
}

func (s *Synthesizer) pickVoice(v providers.Voice) string {
	if strings.EqualFold(v.Gender, "female") {
		return s.femaleVoice
	}
	return s.maleVoice
}
