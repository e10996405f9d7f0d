package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evarantes/codexia-app/internal/common"
	"github.com/evarantes/codexia-app/internal/config"
	"github.com/evarantes/codexia-app/internal/jobs"
	"github.com/evarantes/codexia-app/internal/planner"
	"github.com/evarantes/codexia-app/internal/publisher"
	"github.com/evarantes/codexia-app/internal/storage"
)

// Service wires the HTTP management API to the rest of the pipeline.
type Service struct {
	Log       *slog.Logger
	Cfg       *config.Config
	Store     jobs.Store
	Layout    *storage.Layout
	Planner   *planner.Planner
	Publisher publisher.Publisher // nil when not configured
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" "+common.PathHealthz, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc(http.MethodPost+" "+common.PathVideos, svc.withCommon(svc.handleCreateVideo))
	mux.HandleFunc(http.MethodGet+" "+common.PathVideos, svc.withCommon(svc.handleListVideos))
	mux.HandleFunc(http.MethodGet+" "+common.PathVideos+"/{id}", svc.withCommon(svc.handleGetVideo))
	mux.HandleFunc(http.MethodPatch+" "+common.PathVideos+"/{id}", svc.withCommon(svc.handleUpdateVideo))
	mux.HandleFunc(http.MethodDelete+" "+common.PathVideos+"/{id}", svc.withCommon(svc.handleDeleteVideo))
	mux.HandleFunc(http.MethodPost+" "+common.PathVideos+"/{id}/regenerate", svc.withCommon(svc.handleRegenerate))
	mux.HandleFunc(http.MethodPost+" "+common.PathPlan, svc.withCommon(svc.handleSavePlan))
	mux.HandleFunc(http.MethodGet+" "+common.PathChannel, svc.withCommon(svc.handleChannelStats))

	// Rendered files are served directly from the videos directory.
	mux.Handle(http.MethodGet+" "+common.PathStatic,
		http.StripPrefix(common.PathStatic, http.FileServer(http.Dir(svc.Layout.VideosDir()))))

	return &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      loggingMiddleware(recoveryMiddleware(mux), svc.Log),
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
}

func (svc *Service) withCommon(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if key := strings.TrimSpace(svc.Cfg.Server.APIKey); key != "" {
			if r.Header.Get(common.HeaderAPIKey) != key {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	}
}

type createVideoRequest struct {
	Title        string  `json:"title"`
	Theme        string  `json:"theme,omitempty"`
	Description  string  `json:"description,omitempty"`
	VideoType    string  `json:"video_type,omitempty"`
	ScheduledFor *string `json:"scheduled_for,omitempty"` // RFC 3339
	AutoPost     *bool   `json:"auto_post,omitempty"`
	VoiceStyle   string  `json:"voice_style,omitempty"`
	VoiceGender  string  `json:"voice_gender,omitempty"`
}

func (svc *Service) handleCreateVideo(w http.ResponseWriter, r *http.Request) {
	var req createVideoRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}

	vt := jobs.TypeVideo
	switch req.VideoType {
	case "", string(jobs.TypeVideo):
	case string(jobs.TypeShort):
		vt = jobs.TypeShort
	default:
		http.Error(w, "unknown video_type", http.StatusBadRequest)
		return
	}

	scheduled := time.Now().UTC()
	if req.ScheduledFor != nil {
		t, err := time.Parse(time.RFC3339, *req.ScheduledFor)
		if err != nil {
			http.Error(w, "invalid scheduled_for, want RFC 3339", http.StatusBadRequest)
			return
		}
		scheduled = t.UTC()
	}

	autoPost := true
	if req.AutoPost != nil {
		autoPost = *req.AutoPost
	}

	job := &jobs.VideoJob{
		ID:           uuid.NewString(),
		Theme:        req.Theme,
		Title:        req.Title,
		Description:  req.Description,
		Status:       jobs.StatusQueued,
		VideoType:    vt,
		VoiceStyle:   req.VoiceStyle,
		VoiceGender:  req.VoiceGender,
		ScheduledFor: scheduled,
		AutoPost:     autoPost,
	}
	if err := svc.Store.CreateJob(job); err != nil {
		svc.Log.Error("persist job", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	svc.Log.Info("job created", "job_id", job.ID, "title", job.Title)
	writeJSON(w, http.StatusCreated, jobToOut(job))
}

func (svc *Service) handleListVideos(w http.ResponseWriter, r *http.Request) {
	list, err := svc.Store.ListJobs()
	if err != nil {
		svc.Log.Error("list jobs", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(list))
	for _, job := range list {
		out = append(out, jobToOut(job))
	}
	writeJSON(w, http.StatusOK, out)
}

func (svc *Service) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	job, ok := svc.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, jobToOut(job))
}

type updateVideoRequest struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	ScheduledFor *string `json:"scheduled_for,omitempty"`
	AutoPost     *bool   `json:"auto_post,omitempty"`
	VoiceStyle   *string `json:"voice_style,omitempty"`
	VoiceGender  *string `json:"voice_gender,omitempty"`
}

func (svc *Service) handleUpdateVideo(w http.ResponseWriter, r *http.Request) {
	job, ok := svc.lookupJob(w, r)
	if !ok {
		return
	}
	var req updateVideoRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	upd := jobs.MutableFields{
		Title:       req.Title,
		Description: req.Description,
		AutoPost:    req.AutoPost,
		VoiceStyle:  req.VoiceStyle,
		VoiceGender: req.VoiceGender,
	}
	if req.ScheduledFor != nil {
		t, err := time.Parse(time.RFC3339, *req.ScheduledFor)
		if err != nil {
			http.Error(w, "invalid scheduled_for, want RFC 3339", http.StatusBadRequest)
			return
		}
		u := t.UTC()
		upd.ScheduledFor = &u
	}

	if err := svc.Store.UpdateMutable(job.ID, upd); err != nil {
		svc.Log.Error("update job", "job_id", job.ID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	job, err := svc.Store.GetJob(job.ID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobToOut(job))
}

func (svc *Service) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	job, ok := svc.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Status == jobs.StatusProcessing {
		http.Error(w, "job is processing", http.StatusConflict)
		return
	}
	if job.VideoURL != nil {
		if err := svc.Layout.Remove(*job.VideoURL); err != nil {
			svc.Log.Warn("remove video file", "job_id", job.ID, "err", err)
		}
	}
	if err := svc.Store.DeleteJob(job.ID); err != nil {
		svc.Log.Error("delete job", "job_id", job.ID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	svc.Log.Info("job deleted", "job_id", job.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (svc *Service) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	job, ok := svc.lookupJob(w, r)
	if !ok {
		return
	}
	// Regenerate is unconditional: any state, including published, goes
	// back to queued. Drop the stale file before the fresh render
	// replaces it.
	if job.VideoURL != nil {
		if err := svc.Layout.Remove(*job.VideoURL); err != nil {
			svc.Log.Warn("remove stale video file", "job_id", job.ID, "err", err)
		}
	}
	if err := svc.Store.Requeue(job.ID); err != nil {
		svc.Log.Error("requeue job", "job_id", job.ID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	svc.Log.Info("job requeued for regeneration", "job_id", job.ID)
	job, err := svc.Store.GetJob(job.ID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, jobToOut(job))
}

func (svc *Service) handleSavePlan(w http.ResponseWriter, r *http.Request) {
	var plan planner.Plan
	if err := decodeJSON(r, &plan); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	created, err := svc.Planner.Save(plan)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out := make([]map[string]any, 0, len(created))
	for _, job := range created {
		out = append(out, jobToOut(job))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"created": len(created), "jobs": out})
}

func (svc *Service) handleChannelStats(w http.ResponseWriter, r *http.Request) {
	if svc.Publisher == nil {
		http.Error(w, "no publisher configured", http.StatusServiceUnavailable)
		return
	}
	stats, err := svc.Publisher.Stats(r.Context())
	if err != nil {
		if errors.Is(err, publisher.ErrNotConfigured) {
			http.Error(w, "no publisher configured", http.StatusServiceUnavailable)
			return
		}
		svc.Log.Error("channel stats", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (svc *Service) lookupJob(w http.ResponseWriter, r *http.Request) (*jobs.VideoJob, bool) {
	id := r.PathValue("id")
	job, err := svc.Store.GetJob(id)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
		} else {
			svc.Log.Error("get job", "job_id", id, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return nil, false
	}
	return job, true
}

func jobToOut(job *jobs.VideoJob) map[string]any {
	out := map[string]any{
		"id":               job.ID,
		"theme":            job.Theme,
		"title":            job.Title,
		"description":      job.Description,
		"status":           string(job.Status),
		"progress":         job.Progress,
		"video_type":       string(job.VideoType),
		"scheduled_for":    job.ScheduledFor,
		"auto_post":        job.AutoPost,
		"publish_attempts": job.PublishAttempts,
		"created_at":       job.CreatedAt,
		"updated_at":       job.UpdatedAt,
	}
	if job.VideoURL != nil {
		out["video_url"] = *job.VideoURL
	}
	if job.YouTubeVideoID != nil {
		out["youtube_video_id"] = *job.YouTubeVideoID
	}
	if job.UploadedAt != nil {
		out["uploaded_at"] = *job.UploadedAt
	}
	if job.ParentVideoID != nil {
		out["parent_video_id"] = *job.ParentVideoID
	}
	if job.Script != nil {
		out["script"] = job.Script
	}
	return out
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", common.ContentTypeJSON)
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

func loggingMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &writeWrap{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(ww, r)
		log.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.code,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr)
	})
}

type writeWrap struct {
	http.ResponseWriter
	code int
}

func (w *writeWrap) WriteHeader(statusCode int) {
	w.code = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
