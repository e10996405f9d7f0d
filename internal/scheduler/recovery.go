package scheduler

import (
	"log/slog"

	"github.com/evarantes/codexia-app/internal/jobs"
	"github.com/evarantes/codexia-app/internal/storage"
)

// RecoverySweep repairs state left behind by a crash: jobs stuck in
// processing, and completed jobs whose video file no longer exists.
type RecoverySweep struct {
	Log    *slog.Logger
	Store  jobs.Store
	Layout *storage.Layout
}

func NewRecoverySweep(log *slog.Logger, store jobs.Store, layout *storage.Layout) *RecoverySweep {
	return &RecoverySweep{Log: log, Store: store, Layout: layout}
}

// Run executes one sweep. It is called synchronously at startup, before
// any ticker fires, so a restarted process never uploads or renders on
// top of stale state.
func (r *RecoverySweep) Run() error {
	repaired, err := r.Store.ResetOrphanedProcessing()
	if err != nil {
		return err
	}
	if repaired > 0 {
		r.Log.Info("requeued jobs orphaned in processing", "count", repaired)
	}

	completed, err := r.Store.ListCompletedUnuploaded()
	if err != nil {
		return err
	}
	for _, job := range completed {
		if job.VideoURL != nil && r.Layout.Exists(*job.VideoURL) {
			continue
		}
		r.Log.Warn("completed job lost its video file, requeueing", "job_id", job.ID)
		if err := r.Store.Requeue(job.ID); err != nil {
			r.Log.Error("requeue during recovery", "job_id", job.ID, "err", err)
		}
	}
	return nil
}
