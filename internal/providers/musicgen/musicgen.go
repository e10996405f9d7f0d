package musicgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/evarantes/codexia-app/internal/common"
	"github.com/evarantes/codexia-app/internal/config"
	"github.com/evarantes/codexia-app/internal/providers"
)

var _ providers.MusicProvider = (*Client)(nil)

const (
	defaultAPIURL     = "https://api-inference.huggingface.co/models/facebook/musicgen-small"
	defaultTimeout    = 120 * time.Second
	errorSnippetLimit = 200
)

// Client generates background tracks through the HuggingFace inference API
// (MusicGen). Works without a token, subject to rate limits.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
}

// New creates a MusicGen client from configuration.
func New(cfg config.MusicGenSettings) *Client {
	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		apiURL:     apiURL,
		token:      cfg.Token,
	}
}

func (c *Client) Name() string { return "musicgen" }

// GenerateMusic returns raw audio bytes for the mood prompt.
func (c *Client) GenerateMusic(ctx context.Context, prompt string) ([]byte, error) {
	musicPrompt := fmt.Sprintf("Background music, %s. High quality, cinematic, ambient, no lyrics, loopable.", prompt)
	body, err := json.Marshal(map[string]string{"inputs": musicPrompt})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", common.ContentTypeJSON)
	if strings.TrimSpace(c.token) != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("musicgen status %d: %s", resp.StatusCode, truncate(string(data), errorSnippetLimit))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio response")
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
