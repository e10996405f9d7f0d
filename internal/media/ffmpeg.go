package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/evarantes/codexia-app/internal/common"
)

// Toolchain wraps the ffmpeg/ffprobe binaries. The assembly engine drives
// it; nothing here knows about jobs or persistence.
type Toolchain struct {
	log     *slog.Logger
	ffmpeg  string
	ffprobe string
}

// Card describes one still-image clip with an optional narration track.
type Card struct {
	Background string  // image file; empty means solid color background
	Color      string  // hex color like "0x1E1E1E", used when Background is empty
	Caption    string  // pre-wrapped caption text, lines separated by \n
	FontFile   string  // optional drawtext font file
	Audio      string  // optional narration audio file
	Duration   float64 // seconds
	Width      int
	Height     int
	FPS        int
	Threads    int
}

// NewToolchain builds a toolchain using the ffmpeg/ffprobe on PATH.
func NewToolchain(log *slog.Logger) *Toolchain {
	return &Toolchain{
		log:     log,
		ffmpeg:  common.FFmpegExecutable,
		ffprobe: common.FFprobeExecutable,
	}
}

// Available reports whether both binaries can be found.
func (t *Toolchain) Available() error {
	for _, bin := range []string{t.ffmpeg, t.ffprobe} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not installed: %w", bin, err)
		}
	}
	return nil
}

// Duration returns the media duration in seconds via ffprobe.
func (t *Toolchain) Duration(ctx context.Context, file string) (float64, error) {
	out, err := t.output(ctx, t.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		file,
	)
	if err != nil {
		return 0, err
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(out), err)
	}
	return dur, nil
}

// ComposeCard renders a single clip: background, caption overlay and
// narration (or silence, so every clip carries matching streams for a
// later codec-copy concat).
func (t *Toolchain) ComposeCard(ctx context.Context, card Card, outFile string) error {
	size := fmt.Sprintf("%dx%d", card.Width, card.Height)

	args := []string{"-y"}
	if card.Background != "" {
		args = append(args, "-loop", "1", "-i", card.Background)
	} else {
		color := card.Color
		if color == "" {
			color = "0x141414"
		}
		args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("color=c=%s:s=%s:r=%d", color, size, card.FPS))
	}
	if card.Audio != "" {
		args = append(args, "-i", card.Audio)
	} else {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=44100")
	}

	var filters []string
	if card.Background != "" {
		// Fill the frame and darken the image so the caption stays legible.
		filters = append(filters,
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", card.Width, card.Height),
			fmt.Sprintf("crop=%d:%d", card.Width, card.Height),
			"eq=brightness=-0.25",
		)
	}
	if card.Caption != "" {
		filters = append(filters, drawtextFilter(card))
	}
	filters = append(filters, "setsar=1")

	args = append(args,
		"-vf", strings.Join(filters, ","),
		"-t", fmt.Sprintf("%.3f", card.Duration),
		"-r", strconv.Itoa(card.FPS),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "44100",
		"-ac", "2",
		"-threads", strconv.Itoa(card.Threads),
		"-shortest",
		outFile,
	)
	return t.run(ctx, t.ffmpeg, args...)
}

// Concat joins clips in order using the concat demuxer with stream copy.
func (t *Toolchain) Concat(ctx context.Context, clips []string, outFile string) error {
	if len(clips) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}
	listFile := filepath.Join(filepath.Dir(outFile), "concat_list.txt")
	var lines []string
	for _, clip := range clips {
		lines = append(lines, fmt.Sprintf("file '%s'", clip))
	}
	if err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return t.run(ctx, t.ffmpeg,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		outFile,
	)
}

// AddMusic loops or truncates the track to the video's length and mixes it
// under the narration at the given volume. With musicOnly the track
// replaces the timeline audio entirely.
func (t *Toolchain) AddMusic(ctx context.Context, videoFile, musicFile string, volume float64, musicOnly bool, threads int, outFile string) error {
	args := []string{
		"-y",
		"-i", videoFile,
		"-stream_loop", "-1",
		"-i", musicFile,
	}
	if musicOnly {
		args = append(args,
			"-map", "0:v",
			"-map", "1:a",
		)
	} else {
		filter := fmt.Sprintf("[1:a]volume=%.2f[m];[0:a][m]amix=inputs=2:duration=first:normalize=0[aout]", volume)
		args = append(args,
			"-filter_complex", filter,
			"-map", "0:v",
			"-map", "[aout]",
		)
	}
	args = append(args,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "128k",
		"-threads", strconv.Itoa(threads),
		"-shortest",
		"-movflags", "+faststart",
		outFile,
	)
	return t.run(ctx, t.ffmpeg, args...)
}

// Remux rewrites the container with the moov atom up front for streaming.
func (t *Toolchain) Remux(ctx context.Context, inFile, outFile string) error {
	return t.run(ctx, t.ffmpeg,
		"-y",
		"-i", inFile,
		"-c", "copy",
		"-movflags", "+faststart",
		outFile,
	)
}

func drawtextFilter(card Card) string {
	opts := []string{
		"text='" + escapeDrawtext(card.Caption) + "'",
		"fontcolor=white",
		fmt.Sprintf("fontsize=%d", card.Height/24),
		"borderw=2",
		"bordercolor=black",
		"box=1",
		"boxcolor=black@0.6",
		"boxborderw=20",
		"x=(w-text_w)/2",
		"y=h-text_h-150",
		"line_spacing=10",
	}
	if card.FontFile != "" {
		opts = append(opts, "fontfile="+card.FontFile)
	}
	return "drawtext=" + strings.Join(opts, ":")
}

// escapeDrawtext escapes the characters ffmpeg's drawtext treats specially.
func escapeDrawtext(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(s)
}

func (t *Toolchain) run(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if t.log != nil {
		t.log.Debug("exec", "bin", bin, "args", strings.Join(args, " "))
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", bin, err, tail(stderr.String(), 400))
	}
	return nil
}

func (t *Toolchain) output(ctx context.Context, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", bin, err, tail(stderr.String(), 400))
	}
	return stdout.String(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
