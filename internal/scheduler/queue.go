package scheduler

import (
	"context"
	"log/slog"

	"github.com/evarantes/codexia-app/internal/assembly"
	"github.com/evarantes/codexia-app/internal/jobs"
	"github.com/evarantes/codexia-app/internal/providers"
)

// QueueProcessor drains the persisted queue, one render at a time.
type QueueProcessor struct {
	Log     *slog.Logger
	Store   jobs.Store
	Scripts providers.ScriptSource
	Engine  assembly.Renderer
}

func NewQueueProcessor(log *slog.Logger, store jobs.Store, scripts providers.ScriptSource, engine assembly.Renderer) *QueueProcessor {
	return &QueueProcessor{Log: log, Store: store, Scripts: scripts, Engine: engine}
}

// Tick claims at most one queued job and renders it to completion.
// Rendering is memory heavy, so a tick refuses to start while another
// job is in flight, even one claimed by a different process.
func (p *QueueProcessor) Tick(ctx context.Context) error {
	inFlight, err := p.Store.CountProcessing()
	if err != nil {
		return err
	}
	if inFlight > 0 {
		p.Log.Debug("render already in flight, skipping tick", "in_flight", inFlight)
		return nil
	}

	job, err := p.Store.ClaimNextQueued()
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	log := p.Log.With("job_id", job.ID, "title", job.Title)
	log.Info("claimed job for rendering")

	// Jobs are usually planned without a script; write one first.
	if job.Script == nil || len(job.Script.Scenes) == 0 {
		if err := p.Store.SetProgress(job.ID, 5); err != nil {
			log.Warn("persist progress", "err", err)
		}
		script, err := p.Scripts.GenerateScript(ctx, scriptTopic(job), targetMinutes(job.VideoType))
		if err != nil {
			log.Error("script generation failed", "err", err)
			return p.Store.MarkFailed(job.ID, "script generation: "+err.Error())
		}
		if script.Title == "" {
			script.Title = job.Title
		}
		if err := p.Store.SetScript(job.ID, script); err != nil {
			return err
		}
		job.Script = script
	}

	res, err := p.Engine.Render(ctx, assembly.RenderRequest{
		JobID:     job.ID,
		Script:    *job.Script,
		VideoType: job.VideoType,
		Voice:     providers.Voice{Style: job.VoiceStyle, Gender: job.VoiceGender},
		Progress:  p.persistProgress(log),
	})
	if err != nil {
		log.Error("render failed", "err", err)
		return p.Store.MarkFailed(job.ID, err.Error())
	}

	if err := p.Store.MarkCompleted(job.ID, res.WebURL); err != nil {
		return err
	}
	if res.Attribution != "" {
		if err := p.Store.AppendDescription(job.ID, res.Attribution); err != nil {
			log.Warn("append music attribution", "err", err)
		}
	}
	log.Info("render completed", "video_url", res.WebURL)
	return nil
}

func scriptTopic(job *jobs.VideoJob) string {
	if job.Theme != "" {
		return job.Theme + ": " + job.Title
	}
	return job.Title
}

func targetMinutes(vt jobs.VideoType) int {
	if vt == jobs.TypeShort {
		return 1
	}
	return 5
}

// persistProgress writes progress events to the store. A failed write
// only loses the progress number, never the render.
func (p *QueueProcessor) persistProgress(log *slog.Logger) assembly.ProgressFunc {
	return func(ev assembly.ProgressEvent) {
		log.Info("render progress", "percent", ev.Percent, "step", ev.Message)
		if err := p.Store.SetProgress(ev.JobID, ev.Percent); err != nil {
			log.Warn("persist progress", "err", err)
		}
	}
}
