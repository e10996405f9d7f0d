package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/evarantes/codexia-app/internal/common"
	"github.com/evarantes/codexia-app/internal/config"
	"github.com/evarantes/codexia-app/internal/jobs"
	"github.com/evarantes/codexia-app/internal/providers"
)

var (
	_ providers.ScriptProvider = (*Client)(nil)
	_ providers.ImageProvider  = (*Client)(nil)
	_ providers.TTSProvider    = (*Client)(nil)
)

const (
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	authSchemeBearer    = "Bearer"

	endpointChatCompletions = "v1/chat/completions"
	endpointImages          = "v1/images/generations"
	endpointSpeech          = "v1/audio/speech"

	defaultTimeout    = 120 * time.Second
	errorSnippetLimit = 400

	defaultFemaleVoice = "nova"
	defaultMaleVoice   = "onyx"
)

const scriptPromptTemplate = `Crie um Roteiro de Vídeo Motivacional Profundo de %d minutos sobre '%s'.
Estilo: Inspirador, Estoico, Narrativa Poderosa.

O roteiro deve ser estruturado para manter a retenção.
Divida em 5 partes principais (Introdução, Problema, Virada, Solução/Mindset, Conclusão/CTA).

Retorne APENAS um JSON válido com a estrutura:
{
  "title": "Título Impactante (SEO Friendly)",
  "description": "Descrição otimizada para YouTube com hashtags",
  "tags": ["tag1", "tag2", "tag3", "tag4", "tag5"],
  "scenes": [
    {"text": "Texto EXATO da narração, apenas o que será falado...", "image_prompt": "Descrição visual detalhada em inglês..."}
  ],
  "music_mood": "epic_cinematic"
}`

// Client talks to the OpenAI REST API for scripts, images and narration.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	chatModel  string
	imageModel string
	ttsModel   string
}

// New creates an OpenAI client from configuration.
func New(cfg config.OpenAISettings) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		chatModel:  cfg.ChatModel,
		imageModel: cfg.ImageModel,
		ttsModel:   cfg.TTSModel,
	}
}

func (c *Client) Name() string { return "openai" }

// GenerateScript asks the chat model for a structured motivational script.
func (c *Client) GenerateScript(ctx context.Context, topic string, durationMinutes int) (*jobs.Script, error) {
	if durationMinutes <= 0 {
		durationMinutes = 3
	}
	reqBody := chatCompletionRequest{
		Model:       c.chatModel,
		Temperature: 0.8,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf(scriptPromptTemplate, durationMinutes, topic)},
		},
	}
	var comp chatCompletionResponse
	if err := c.postJSON(ctx, endpointChatCompletions, reqBody, &comp); err != nil {
		return nil, err
	}
	if len(comp.Choices) == 0 || comp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("empty completion")
	}
	content := stripJSONFences(comp.Choices[0].Message.Content)

	var script jobs.Script
	if err := json.Unmarshal([]byte(content), &script); err != nil {
		return nil, fmt.Errorf("parse script json: %w", err)
	}
	if script.Title == "" || len(script.Scenes) == 0 {
		return nil, fmt.Errorf("incomplete script: title=%q scenes=%d", script.Title, len(script.Scenes))
	}
	script.DurationMinutes = durationMinutes
	return &script, nil
}

// GenerateImage requests a DALL-E image and returns its URL.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	full := prompt + ". Original digital art, unique composition, cinematic lighting, 8k resolution, highly detailed. No text, copyright free style."
	reqBody := imageRequest{
		Model:   c.imageModel,
		Prompt:  full,
		Size:    "1024x1792",
		Quality: "standard",
		N:       1,
	}
	var resp imageResponse
	if err := c.postJSON(ctx, endpointImages, reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("empty image response")
	}
	return resp.Data[0].URL, nil
}

// Synthesize requests narration audio from the speech endpoint.
func (c *Client) Synthesize(ctx context.Context, text string, voice providers.Voice) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text")
	}
	reqBody := speechRequest{
		Model: c.ttsModel,
		Voice: pickVoice(voice),
		Input: text,
	}
	data, err := c.postRaw(ctx, endpointSpeech, reqBody)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio response")
	}
	return data, nil
}

func pickVoice(v providers.Voice) string {
	if strings.TrimSpace(v.Style) != "" {
		return v.Style
	}
	if strings.EqualFold(v.Gender, "female") {
		return defaultFemaleVoice
	}
	return defaultMaleVoice
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body any, out any) error {
	respBytes, err := c.postRaw(ctx, endpoint, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *Client) postRaw(ctx context.Context, endpoint string, body any) ([]byte, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, fmt.Errorf("openai api key not configured")
	}
	u, err := url.JoinPath(c.baseURL, endpoint)
	if err != nil {
		return nil, fmt.Errorf("join url: %w", err)
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set(headerContentType, common.ContentTypeJSON)
	req.Header.Set(headerAuthorization, authSchemeBearer+" "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, truncate(string(respBytes), errorSnippetLimit))
	}
	return respBytes, nil
}

// stripJSONFences removes markdown code fences models wrap JSON in.
func stripJSONFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// OpenAI request/response types

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type imageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size"`
	Quality string `json:"quality,omitempty"`
	N       int    `json:"n"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

type speechRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
	Input string `json:"input"`
}
