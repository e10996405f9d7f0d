package pollinations

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/evarantes/codexia-app/internal/config"
	"github.com/evarantes/codexia-app/internal/providers"
)

var _ providers.ImageProvider = (*Fetcher)(nil)

const defaultTimeout = 60 * time.Second

// Fetcher generates AI images via Pollinations.ai (free, no key needed).
// It only builds and validates the URL; the assembly pipeline downloads it
// like any other provider image.
type Fetcher struct {
	httpClient *http.Client
	baseURL    string
	width      int
	height     int
}

// New creates a new fetcher.
func New(cfg config.PollinationsSettings) *Fetcher {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://image.pollinations.ai"
	}
	w, h := cfg.Width, cfg.Height
	if w <= 0 {
		w = 720
	}
	if h <= 0 {
		h = 1280
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    base,
		width:      w,
		height:     h,
	}
}

func (f *Fetcher) Name() string { return "pollinations" }

// GenerateImage returns a Pollinations URL for the prompt after checking
// the service will serve it. The seed is derived from the prompt so a
// re-render produces the same image.
func (f *Fetcher) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("empty prompt")
	}
	imageURL := fmt.Sprintf("%s/prompt/%s?width=%d&height=%d&nologo=true&model=flux&seed=%d",
		f.baseURL, url.PathEscape(prompt), f.width, f.height, promptSeed(prompt))

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pollinations status %d", resp.StatusCode)
	}
	return imageURL, nil
}

func promptSeed(prompt string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	return h.Sum32()
}
