package jobs

import (
	"time"
)

// Status represents the lifecycle state of a scheduled video job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusPublished  Status = "published"
)

// ValidTransition reports whether moving a job from one status to another
// is allowed. Requeueing (regenerate, self-heal, recovery) is always
// allowed and is therefore not modelled here.
func ValidTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted:
		return to == StatusPublished
	}
	return false
}

// VideoType selects aspect ratio and target duration.
type VideoType string

const (
	TypeVideo VideoType = "video" // 16:9 long form
	TypeShort VideoType = "short" // 9:16 vertical
)

// Scene is one narrated segment of a script.
type Scene struct {
	Text        string `json:"text"`
	ImagePrompt string `json:"image_prompt"`
}

// Script is the structured document a script provider produces. It is
// stored verbatim on the job so a render can be reproduced later.
type Script struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags"`
	Scenes          []Scene  `json:"scenes"`
	MusicMood       string   `json:"music_mood"`
	DurationMinutes int      `json:"duration_minutes"`
}

// VideoJob describes one video to render and optionally auto-publish.
type VideoJob struct {
	ID              string     // UUIDv4
	Theme           string     // theme of the day the job belongs to
	Title           string     // video title, also used for the title card
	Description     string     // upload description; doubles as a bounded diagnostic sink
	Status          Status     // current lifecycle state
	Progress        int        // 0-100, monotonic during one render
	VideoType       VideoType  // video | short
	VoiceStyle      string     // narration voice, provider specific
	VoiceGender     string     // male | female
	ParentVideoID   *string    // set on shorts derived from a long video
	Script          *Script    // stored plan, nil until planned
	VideoURL        *string    // web-relative path, set iff completed or published
	ScheduledFor    time.Time  // target publish time
	AutoPost        bool       // upload automatically once due
	YouTubeVideoID  *string    // external id, set together with UploadedAt
	UploadedAt      *time.Time // publish timestamp
	PublishAttempts int        // failed upload tries so far
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Store defines persistence for VideoJobs and their lifecycle.
type Store interface {
	CreateJob(job *VideoJob) error
	GetJob(id string) (*VideoJob, error)
	// ListJobs returns all jobs, most recently created first.
	ListJobs() ([]*VideoJob, error)
	// ClaimNextQueued atomically moves the oldest queued job to processing
	// and returns it. Returns nil, nil when the queue is empty.
	ClaimNextQueued() (*VideoJob, error)
	// CountProcessing reports how many jobs are currently processing.
	CountProcessing() (int, error)
	SetProgress(id string, progress int) error
	// SetScript persists a generated script on the job so a later
	// regenerate can reuse it.
	SetScript(id string, script *Script) error
	// MarkCompleted sets status=completed, progress=100 and the video URL.
	MarkCompleted(id string, videoURL string) error
	// MarkFailed sets status=failed, progress=0, clears the video URL and
	// folds a bounded diagnostic into the description without duplicating
	// an existing one.
	MarkFailed(id string, diagnostic string) error
	// MarkPublished records the external id and upload time.
	MarkPublished(id string, externalID string, uploadedAt time.Time) error
	IncrementPublishAttempts(id string) error
	// AppendDescription folds extra text (music attribution) into the
	// description, skipping the append when it is already present.
	AppendDescription(id string, text string) error
	// Requeue forces any job back to queued with progress 0, clearing the
	// video URL, upload markers and publish attempt count. Used by
	// regenerate, self-heal and the recovery sweep.
	Requeue(id string) error
	// ResetOrphanedProcessing requeues every job left in processing by a
	// crash. Returns the number of jobs repaired.
	ResetOrphanedProcessing() (int, error)
	// ListCompletedUnuploaded returns completed jobs that were never
	// uploaded, for the recovery sweep's file integrity check.
	ListCompletedUnuploaded() ([]*VideoJob, error)
	// ListDueForPublish returns completed auto-post jobs whose scheduled
	// time has passed, excluding already uploaded jobs and jobs that
	// exhausted their publish attempts.
	ListDueForPublish(now time.Time, attemptCap int) ([]*VideoJob, error)
	UpdateMutable(id string, upd MutableFields) error
	DeleteJob(id string) error
	Close() error
}

// MutableFields are the job fields a management client may change.
// Nil pointers leave the current value untouched.
type MutableFields struct {
	Title        *string
	Description  *string
	ScheduledFor *time.Time
	AutoPost     *bool
	VoiceStyle   *string
	VoiceGender  *string
}
