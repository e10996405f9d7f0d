package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/evarantes/codexia-app/internal/config"
)

// Upload input beyond the file itself.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
}

// ChannelStats is a snapshot of the destination channel.
type ChannelStats struct {
	ChannelID   string `json:"channel_id"`
	Title       string `json:"title"`
	Subscribers uint64 `json:"subscribers"`
	VideoCount  uint64 `json:"video_count"`
	ViewCount   uint64 `json:"view_count"`
}

// Publisher pushes a finished video to an external platform.
type Publisher interface {
	Upload(ctx context.Context, filePath string, meta Metadata) (externalID string, err error)
	Stats(ctx context.Context) (*ChannelStats, error)
}

// ErrNotConfigured is returned when the platform credentials are absent.
var ErrNotConfigured = errors.New("publisher: credentials not configured")

// YouTube uploads via the Data API v3 using a long-lived refresh token.
type YouTube struct {
	log *slog.Logger
	cfg config.YouTubeConfig
}

var _ Publisher = (*YouTube)(nil)

func NewYouTube(log *slog.Logger, cfg config.YouTubeConfig) *YouTube {
	return &YouTube{log: log, cfg: cfg}
}

// Configured reports whether credentials are present without making a call.
func (y *YouTube) Configured() bool {
	return y.cfg.ClientID != "" && y.cfg.ClientSecret != "" && y.cfg.RefreshToken != ""
}

func (y *YouTube) service(ctx context.Context) (*youtube.Service, error) {
	if !y.Configured() {
		return nil, ErrNotConfigured
	}
	conf := &oauth2.Config{
		ClientID:     y.cfg.ClientID,
		ClientSecret: y.cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
	token := &oauth2.Token{
		RefreshToken: y.cfg.RefreshToken,
		// Expired on purpose so the first call refreshes.
		Expiry: time.Now().Add(-time.Hour),
	}
	client := oauth2.NewClient(ctx, conf.TokenSource(ctx, token))
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return svc, nil
}

// Upload sends the file with its metadata and returns the platform video ID.
func (y *YouTube) Upload(ctx context.Context, filePath string, meta Metadata) (string, error) {
	svc, err := y.service(ctx)
	if err != nil {
		return "", err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if fi, err := f.Stat(); err == nil {
		y.log.Info("uploading video", "title", meta.Title, "size_mb", fmt.Sprintf("%.1f", float64(fi.Size())/1024/1024))
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  y.cfg.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           y.cfg.Privacy,
			SelfDeclaredMadeForKids: false,
		},
	}

	// Resumable upload, required above 5 MB.
	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(f).Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}

	y.log.Info("video uploaded", "video_id", uploaded.Id,
		"url", "https://www.youtube.com/watch?v="+uploaded.Id)
	return uploaded.Id, nil
}

// Stats fetches the authenticated channel's public statistics.
func (y *YouTube) Stats(ctx context.Context) (*ChannelStats, error) {
	svc, err := y.service(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Channels.List([]string{"snippet", "statistics"}).Mine(true).Do()
	if err != nil {
		return nil, fmt.Errorf("channel stats: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, errors.New("publisher: no channel for credentials")
	}
	ch := resp.Items[0]
	return &ChannelStats{
		ChannelID:   ch.Id,
		Title:       ch.Snippet.Title,
		Subscribers: ch.Statistics.SubscriberCount,
		VideoCount:  ch.Statistics.VideoCount,
		ViewCount:   ch.Statistics.ViewCount,
	}, nil
}
