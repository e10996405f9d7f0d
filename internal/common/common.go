package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderAPIKey    = "X-API-Key" // #nosec G101 - header name constant, not a credential
	ContentTypeJSON = "application/json"
)

// API paths
const (
	PathHealthz = "/healthz"
	PathVideos  = "/v1/videos"
	PathPlan    = "/v1/plan"
	PathChannel = "/v1/channel/stats"
	PathStatic  = "/static/videos/"
)

// Defaults and limits
const (
	SQLiteBusyTimeoutMS = 5000

	// MaxDiagnosticRunes bounds error text folded into a job description.
	MaxDiagnosticRunes = 5000

	// DefaultPublishAttemptCap stops publish retries on permanently failing uploads.
	DefaultPublishAttemptCap = 10
)

// Subdirectory names under the storage dir
const (
	VideosDirName = "videos"
	MusicDirName  = "music"
)

// External tool executables
const (
	FFmpegExecutable  = "ffmpeg"
	FFprobeExecutable = "ffprobe"
	EdgeTTSExecutable = "edge-tts"
)

// DefaultPublishTags are applied at publish time when the stored script carries none.
var DefaultPublishTags = []string{"motivation", "success"}
