package assembly

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/evarantes/codexia-app/internal/config"
	"github.com/evarantes/codexia-app/internal/jobs"
	"github.com/evarantes/codexia-app/internal/media"
	"github.com/evarantes/codexia-app/internal/providers"
	"github.com/evarantes/codexia-app/internal/storage"
)

// ProgressEvent is emitted while a render advances. The caller persists
// it; the engine itself has no access to the job store.
type ProgressEvent struct {
	JobID   string
	Percent int
	Message string
}

// ProgressFunc receives progress events. May be nil.
type ProgressFunc func(ProgressEvent)

// RenderRequest describes one render.
type RenderRequest struct {
	JobID      string
	Script     jobs.Script
	VideoType  jobs.VideoType
	Voice      providers.Voice
	CoverImage string // optional local background for title and closing cards
	Progress   ProgressFunc
}

// Result is a finished render.
type Result struct {
	WebURL      string // web-relative path persisted on the job
	Attribution string // license credit when a library track was used
}

// Renderer turns a structured script into a video file.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (Result, error)
}

// Fixed call-to-action copy for the closing card.
const (
	ctaCaption   = "Inscreva-se no Canal!\nLink na Bio."
	ctaNarration = "Inscreva-se no canal e ative o sininho."
)

// Clip padding after narration ends.
const (
	cardPadding  = 1.5 // title and closing cards
	scenePadding = 0.5
	// Durations when no narration could be synthesized at all.
	silentCardSeconds  = 3.0
	silentSceneSeconds = 4.0
)

// Flat background palette cycled by scene index when no provider image is
// available. Deterministic, not random.
var scenePalette = [...]string{"0x1E1E1E", "0x001E3C", "0x3C001E", "0x1E3C00"}

const (
	titleCardColor   = "0x320064"
	closingCardColor = "0x006432"
)

// musicCredits maps library track name fragments to the attribution text
// their license requires in the video description.
var musicCredits = map[string]string{
	"drama": "Music: Impact Prelude by Kevin MacLeod\nFree download: https://filmmusic.io/song/3900-impact-prelude\nLicense (CC BY 4.0): https://filmmusic.io/standard-license",
	"epic":  "Music: Impact Andante by Kevin MacLeod\nFree download: https://filmmusic.io/song/3898-impact-andante\nLicense (CC BY 4.0): https://filmmusic.io/standard-license",
	"happy": "Music: Carefree by Kevin MacLeod\nFree download: https://filmmusic.io/song/3476-carefree\nLicense (CC BY 4.0): https://filmmusic.io/standard-license",
}

// Engine composes title card, scenes, closing card and background music
// into one encoded file. Every provider call has a local fallback; only
// encode and I/O failures propagate to the caller.
type Engine struct {
	log        *slog.Logger
	chain      *providers.Chain
	tools      *media.Toolchain
	layout     *storage.Layout
	cfg        config.RenderConfig
	httpClient *http.Client
}

var _ Renderer = (*Engine)(nil)

func NewEngine(log *slog.Logger, chain *providers.Chain, tools *media.Toolchain, layout *storage.Layout, cfg config.RenderConfig) *Engine {
	return &Engine{
		log:        log,
		chain:      chain,
		tools:      tools,
		layout:     layout,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Render executes the full assembly pipeline for one script.
func (e *Engine) Render(ctx context.Context, req RenderRequest) (result Result, err error) {
	log := e.log.With("job_id", req.JobID)
	emit := func(percent int, message string) {
		if req.Progress != nil {
			req.Progress(ProgressEvent{JobID: req.JobID, Percent: percent, Message: message})
		}
	}
	emit(0, "starting video composition")

	if err := e.tools.Available(); err != nil {
		return Result{}, err
	}

	tmpDir, err := os.MkdirTemp("", "render-*")
	if err != nil {
		return Result{}, fmt.Errorf("temp dir: %w", err)
	}
	// All intermediate media lives in tmpDir; remove it and force a
	// collection pass on success and failure alike. The render loop has
	// to survive on memory-constrained hosts.
	defer func() {
		_ = os.RemoveAll(tmpDir)
		runtime.GC()
	}()

	width, height := frameSize(req.VideoType)
	hasNarration := false
	var clips []string

	compose := func(name string, card cardSpec) error {
		audioPath, narrDur := e.narrate(ctx, log, card.narration, req.Voice, tmpDir, name)
		duration := card.silentSeconds
		if audioPath != "" {
			duration = narrDur + card.padding
			hasNarration = true
		}
		out := filepath.Join(tmpDir, name+".mp4")
		mc := media.Card{
			Background: card.background,
			Color:      card.color,
			Caption:    wrapText(card.caption, e.cfg.CaptionCharsPerLine),
			FontFile:   e.cfg.FontFile,
			Audio:      audioPath,
			Duration:   duration,
			Width:      width,
			Height:     height,
			FPS:        e.cfg.FPS,
			Threads:    e.cfg.EncodeThreads,
		}
		if err := e.tools.ComposeCard(ctx, mc, out); err != nil {
			return err
		}
		clips = append(clips, out)
		// Release per-scene artifacts before moving on; only the cut clip
		// is kept until concatenation.
		if audioPath != "" {
			_ = os.Remove(audioPath)
		}
		if card.background != "" && strings.HasPrefix(card.background, tmpDir) {
			_ = os.Remove(card.background)
		}
		runtime.GC()
		return nil
	}

	// Title card.
	emit(5, "creating title card")
	title := req.Script.Title
	if title == "" {
		title = "Vídeo Sem Título"
	}
	if err := compose("title", cardSpec{
		caption:       title,
		narration:     title,
		background:    existingFile(req.CoverImage),
		color:         titleCardColor,
		padding:       cardPadding,
		silentSeconds: silentCardSeconds,
	}); err != nil {
		return Result{}, fmt.Errorf("title card: %w", err)
	}

	// Scenes.
	total := len(req.Script.Scenes)
	for i, scene := range req.Script.Scenes {
		emit(10+(70*i)/max(total, 1), fmt.Sprintf("processing scene %d of %d", i+1, total))
		if err := compose(fmt.Sprintf("scene_%03d", i), cardSpec{
			caption:       scene.Text,
			narration:     scene.Text,
			background:    e.fetchBackground(ctx, log, scene.ImagePrompt, req.VideoType, tmpDir, i),
			color:         scenePalette[i%len(scenePalette)],
			padding:       scenePadding,
			silentSeconds: silentSceneSeconds,
		}); err != nil {
			return Result{}, fmt.Errorf("scene %d: %w", i, err)
		}
	}

	// Closing call-to-action card.
	emit(85, "creating closing card")
	if err := compose("closing", cardSpec{
		caption:       ctaCaption,
		narration:     ctaNarration,
		background:    existingFile(req.CoverImage),
		color:         closingCardColor,
		padding:       1.0,
		silentSeconds: silentCardSeconds,
	}); err != nil {
		return Result{}, fmt.Errorf("closing card: %w", err)
	}

	// Concatenate in order: title, scenes, CTA.
	timeline := filepath.Join(tmpDir, "timeline.mp4")
	if err := e.tools.Concat(ctx, clips, timeline); err != nil {
		return Result{}, fmt.Errorf("concatenate timeline: %w", err)
	}

	// Background music.
	emit(90, "adding soundtrack")
	musicPath, attribution := e.findMusic(ctx, log, req.Script.MusicMood, title, tmpDir)

	emit(95, "rendering final file")
	outFile, webURL := e.layout.NewVideoPath()
	if musicPath != "" {
		if err := e.tools.AddMusic(ctx, timeline, musicPath, e.cfg.MusicVolume, !hasNarration, e.cfg.EncodeThreads, outFile); err != nil {
			// Music is best-effort; fall back to the narration-only timeline.
			log.Warn("background music mix failed", "err", err)
			attribution = ""
			if err := e.tools.Remux(ctx, timeline, outFile); err != nil {
				return Result{}, fmt.Errorf("final remux: %w", err)
			}
		}
	} else {
		if err := e.tools.Remux(ctx, timeline, outFile); err != nil {
			return Result{}, fmt.Errorf("final remux: %w", err)
		}
	}

	emit(100, "video rendered")
	return Result{WebURL: webURL, Attribution: attribution}, nil
}

type cardSpec struct {
	caption       string
	narration     string
	background    string
	color         string
	padding       float64
	silentSeconds float64
}

// narrate synthesizes narration via the TTS chain. Failures return an
// empty path; the card then falls back to its fixed silent duration.
func (e *Engine) narrate(ctx context.Context, log *slog.Logger, text string, voice providers.Voice, tmpDir, name string) (string, float64) {
	if strings.TrimSpace(text) == "" {
		return "", 0
	}
	audio, err := e.chain.Synthesize(ctx, text, voice)
	if err != nil {
		log.Warn("narration unavailable", "card", name, "err", err)
		return "", 0
	}
	path := filepath.Join(tmpDir, name+".mp3")
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		log.Warn("write narration", "card", name, "err", err)
		return "", 0
	}
	dur, err := e.tools.Duration(ctx, path)
	if err != nil || dur <= 0 {
		log.Warn("probe narration duration", "card", name, "err", err)
		_ = os.Remove(path)
		return "", 0
	}
	return path, dur
}

// fetchBackground asks the image chain for a scene background and
// downloads it. Any failure falls back to the palette color.
func (e *Engine) fetchBackground(ctx context.Context, log *slog.Logger, prompt string, vt jobs.VideoType, tmpDir string, idx int) string {
	if strings.TrimSpace(prompt) == "" {
		return ""
	}
	url, err := e.chain.GenerateImage(ctx, prompt+". Aspect ratio "+aspectRatio(vt)+".")
	if err != nil {
		log.Warn("scene image unavailable", "scene", idx, "err", err)
		return ""
	}
	path := filepath.Join(tmpDir, fmt.Sprintf("bg_%03d.png", idx))
	if err := e.download(ctx, url, path); err != nil {
		log.Warn("scene image download failed", "scene", idx, "err", err)
		return ""
	}
	return path
}

func (e *Engine) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return err
	}
	if n < 100 {
		// Too small to be a real image, likely an error page.
		_ = os.Remove(path)
		return fmt.Errorf("response too small (%d bytes)", n)
	}
	return nil
}

// findMusic resolves the background track: generated by the music chain,
// else the local library keyed by mood, else any local track. Returns the
// required attribution text for known library tracks.
func (e *Engine) findMusic(ctx context.Context, log *slog.Logger, mood, title, tmpDir string) (string, string) {
	if mood == "" {
		mood = "drama"
	}
	audio, err := e.chain.GenerateMusic(ctx, fmt.Sprintf("%s style, inspired by %s", mood, title))
	if err == nil {
		path := filepath.Join(tmpDir, "music_generated.wav")
		if werr := os.WriteFile(path, audio, 0o644); werr == nil {
			return path, ""
		}
	} else {
		log.Warn("generated music unavailable", "mood", mood, "err", err)
	}

	local := e.layout.LocalMusic(mood)
	if local == "" {
		log.Warn("no local music track available", "mood", mood)
		return "", ""
	}
	name := strings.ToLower(filepath.Base(local))
	for key, credit := range musicCredits {
		if strings.Contains(name, key) {
			return local, credit
		}
	}
	return local, ""
}

func frameSize(vt jobs.VideoType) (int, int) {
	// Reduced resolutions keep peak encoder memory within small-host budgets.
	if vt == jobs.TypeShort {
		return 720, 1280
	}
	return 1280, 720
}

func aspectRatio(vt jobs.VideoType) string {
	if vt == jobs.TypeShort {
		return "9:16"
	}
	return "16:9"
}

func existingFile(path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// wrapText breaks text into lines of at most width characters, keeping
// explicit newlines.
func wrapText(text string, width int) string {
	if width <= 0 {
		width = 40
	}
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len(line)+1+len(w) > width {
				out = append(out, line)
				line = w
				continue
			}
			line += " " + w
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
