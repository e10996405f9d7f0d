package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/evarantes/codexia-app/internal/common"
	"github.com/evarantes/codexia-app/internal/jobs"
	"github.com/evarantes/codexia-app/internal/publisher"
	"github.com/evarantes/codexia-app/internal/storage"
)

// PublishChecker uploads completed jobs once their scheduled time passes.
type PublishChecker struct {
	Log           *slog.Logger
	Store         jobs.Store
	Publisher     publisher.Publisher
	Layout        *storage.Layout
	LateThreshold time.Duration
	AttemptCap    int
}

func NewPublishChecker(log *slog.Logger, store jobs.Store, pub publisher.Publisher, layout *storage.Layout, lateThreshold time.Duration, attemptCap int) *PublishChecker {
	if attemptCap <= 0 {
		attemptCap = common.DefaultPublishAttemptCap
	}
	return &PublishChecker{
		Log:           log,
		Store:         store,
		Publisher:     pub,
		Layout:        layout,
		LateThreshold: lateThreshold,
		AttemptCap:    attemptCap,
	}
}

// Tick uploads every due job. A job whose video file went missing is
// requeued for a fresh render instead of being uploaded. Upload failures
// count against the job's attempt cap; the next tick retries until the
// cap is reached.
func (c *PublishChecker) Tick(ctx context.Context, now time.Time) error {
	due, err := c.Store.ListDueForPublish(now, c.AttemptCap)
	if err != nil {
		return err
	}
	for _, job := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.publishOne(ctx, job, now)
	}
	return nil
}

func (c *PublishChecker) publishOne(ctx context.Context, job *jobs.VideoJob, now time.Time) {
	log := c.Log.With("job_id", job.ID, "title", job.Title)

	// Self-heal: a completed job whose file is gone renders again.
	if job.VideoURL == nil || !c.Layout.Exists(*job.VideoURL) {
		log.Warn("video file missing at publish time, requeueing for render")
		if err := c.Store.Requeue(job.ID); err != nil {
			log.Error("requeue after missing file", "err", err)
		}
		return
	}

	if late := now.Sub(job.ScheduledFor); late > c.LateThreshold {
		log.Warn("publishing behind schedule", "late", late.Round(time.Second))
	}

	path, err := c.Layout.Resolve(*job.VideoURL)
	if err != nil {
		log.Error("resolve video path", "err", err)
		return
	}

	meta := publisher.Metadata{
		Title:       job.Title,
		Description: job.Description,
		Tags:        common.DefaultPublishTags,
	}
	if job.Script != nil {
		if meta.Title == "" {
			meta.Title = job.Script.Title
		}
		if len(job.Script.Tags) > 0 {
			meta.Tags = job.Script.Tags
		}
	}

	externalID, err := c.Publisher.Upload(ctx, path, meta)
	if err != nil {
		log.Error("upload failed", "attempt", job.PublishAttempts+1, "cap", c.AttemptCap, "err", err)
		if ierr := c.Store.IncrementPublishAttempts(job.ID); ierr != nil {
			log.Error("record publish attempt", "err", ierr)
		}
		return
	}

	if err := c.Store.MarkPublished(job.ID, externalID, now); err != nil {
		log.Error("mark published", "err", err)
		return
	}
	log.Info("video published", "external_id", externalID)
}
