package planner

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evarantes/codexia-app/internal/jobs"
)

// PlannedVideo is one video inside a day of the content plan.
type PlannedVideo struct {
	Title     string `json:"title"`
	Concept   string `json:"concept,omitempty"`
	VideoType string `json:"video_type,omitempty"` // video | short, defaults to video
	Time      string `json:"time"`                 // HH:MM, local to the plan's date
	AutoPost  *bool  `json:"auto_post,omitempty"`  // defaults to true
}

// PlannedDay groups the videos scheduled for one calendar date.
type PlannedDay struct {
	Date   string         `json:"date"` // YYYY-MM-DD
	Theme  string         `json:"theme,omitempty"`
	Videos []PlannedVideo `json:"videos"`
}

// Plan is the bulk scheduling payload.
type Plan struct {
	Days []PlannedDay `json:"days"`
}

// Planner expands a content plan into queued jobs.
type Planner struct {
	log   *slog.Logger
	store jobs.Store
}

func New(log *slog.Logger, store jobs.Store) *Planner {
	return &Planner{log: log, store: store}
}

// Save validates the plan and creates one queued job per planned video.
// The whole plan is validated up front so a bad entry rejects the plan
// before anything is persisted.
func (p *Planner) Save(plan Plan) ([]*jobs.VideoJob, error) {
	if len(plan.Days) == 0 {
		return nil, fmt.Errorf("plan has no days")
	}

	var created []*jobs.VideoJob
	for di, day := range plan.Days {
		date, err := time.Parse("2006-01-02", day.Date)
		if err != nil {
			return nil, fmt.Errorf("day %d: invalid date %q: %w", di, day.Date, err)
		}
		if len(day.Videos) == 0 {
			return nil, fmt.Errorf("day %d (%s): no videos", di, day.Date)
		}
		for vi, video := range day.Videos {
			job, err := buildJob(day, date, video)
			if err != nil {
				return nil, fmt.Errorf("day %d video %d: %w", di, vi, err)
			}
			created = append(created, job)
		}
	}

	for _, job := range created {
		if err := p.store.CreateJob(job); err != nil {
			return nil, fmt.Errorf("create job %q: %w", job.Title, err)
		}
	}
	p.log.Info("content plan saved", "days", len(plan.Days), "jobs", len(created))
	return created, nil
}

func buildJob(day PlannedDay, date time.Time, video PlannedVideo) (*jobs.VideoJob, error) {
	if strings.TrimSpace(video.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}

	clock, err := time.Parse("15:04", video.Time)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: %w", video.Time, err)
	}
	scheduled := time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), 0, 0, time.UTC)

	vt := jobs.TypeVideo
	switch video.VideoType {
	case "", string(jobs.TypeVideo):
	case string(jobs.TypeShort):
		vt = jobs.TypeShort
	default:
		return nil, fmt.Errorf("unknown video type %q", video.VideoType)
	}

	autoPost := true
	if video.AutoPost != nil {
		autoPost = *video.AutoPost
	}

	return &jobs.VideoJob{
		ID:           uuid.NewString(),
		Theme:        day.Theme,
		Title:        video.Title,
		Description:  video.Concept,
		Status:       jobs.StatusQueued,
		VideoType:    vt,
		ScheduledFor: scheduled,
		AutoPost:     autoPost,
	}, nil
}
