package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/evarantes/codexia-app/internal/common"
)

// Layout maps between web-relative video paths stored on jobs and the
// filesystem. Records never hold absolute paths, so the storage root can
// be relocated without breaking them.
type Layout struct {
	baseDir string
}

// New creates a layout rooted at baseDir and ensures its subdirectories.
func New(baseDir string) (*Layout, error) {
	l := &Layout{baseDir: baseDir}
	for _, dir := range []string{l.VideosDir(), l.MusicDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("ensure dir %s: %w", dir, err)
		}
	}
	return l, nil
}

func (l *Layout) VideosDir() string {
	return filepath.Join(l.baseDir, common.VideosDirName)
}

func (l *Layout) MusicDir() string {
	return filepath.Join(l.baseDir, common.MusicDirName)
}

// NewVideoPath returns a unique output file path and the web-relative URL
// to persist on the job record.
func (l *Layout) NewVideoPath() (absPath string, webURL string) {
	filename := uuid.NewString() + ".mp4"
	return filepath.Join(l.VideosDir(), filename), common.PathStatic + filename
}

// Resolve maps a stored web-relative URL back to the filesystem.
func (l *Layout) Resolve(webURL string) (string, error) {
	trimmed := strings.TrimPrefix(webURL, common.PathStatic)
	if trimmed == webURL || trimmed == "" {
		return "", fmt.Errorf("not a managed video path: %q", webURL)
	}
	// Reject traversal out of the videos dir.
	name := filepath.Base(filepath.Clean(trimmed))
	if name != trimmed {
		return "", fmt.Errorf("invalid video path: %q", webURL)
	}
	return filepath.Join(l.VideosDir(), name), nil
}

// Exists reports whether the stored URL resolves to an existing file.
func (l *Layout) Exists(webURL string) bool {
	abs, err := l.Resolve(webURL)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Remove deletes the backing file for a stored URL. A missing file is not
// an error.
func (l *Layout) Remove(webURL string) error {
	abs, err := l.Resolve(webURL)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove video: %w", err)
	}
	return nil
}

// LocalMusic returns a library track for the mood, falling back to any
// available track when the mood has none. Returns "" when the library is
// empty.
func (l *Layout) LocalMusic(mood string) string {
	if mood != "" {
		exact := filepath.Join(l.MusicDir(), mood+".mp3")
		if _, err := os.Stat(exact); err == nil {
			return exact
		}
	}
	matches, err := filepath.Glob(filepath.Join(l.MusicDir(), "*.mp3"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}
