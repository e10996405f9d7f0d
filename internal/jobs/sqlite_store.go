package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/evarantes/codexia-app/internal/common"
)

// ErrJobNotFound is returned when an id does not resolve to a stored job.
var ErrJobNotFound = errors.New("job not found")

// diagnosticMarker prefixes error text folded into a description so the
// same failure is not appended twice.
const diagnosticMarker = "[error]:"

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Busy timeout to avoid SQLITE_BUSY in concurrent access.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, common.SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		theme TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		video_type TEXT NOT NULL,
		voice_style TEXT NOT NULL DEFAULT '',
		voice_gender TEXT NOT NULL DEFAULT '',
		parent_video_id TEXT,
		script_json TEXT,
		video_url TEXT,
		scheduled_for TEXT NOT NULL,
		auto_post INTEGER NOT NULL DEFAULT 0,
		youtube_video_id TEXT,
		uploaded_at TEXT,
		publish_attempts INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateJob(job *VideoJob) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.ID == "" {
		return errors.New("job.ID is required")
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	if job.VideoType == "" {
		job.VideoType = TypeVideo
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.ScheduledFor.IsZero() {
		job.ScheduledFor = now
	}

	var script *string
	if job.Script != nil {
		b, err := json.Marshal(job.Script)
		if err != nil {
			return fmt.Errorf("marshal script: %w", err)
		}
		v := string(b)
		script = &v
	}

	_, err := s.db.Exec(
		`INSERT INTO jobs (id, theme, title, description, status, progress, video_type,
			voice_style, voice_gender, parent_video_id, script_json, video_url,
			scheduled_for, auto_post, youtube_video_id, uploaded_at, publish_attempts,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Theme, job.Title, job.Description, string(job.Status), job.Progress,
		string(job.VideoType), job.VoiceStyle, job.VoiceGender, job.ParentVideoID, script,
		job.VideoURL, fmtTime(job.ScheduledFor), boolInt(job.AutoPost), job.YouTubeVideoID,
		fmtTimePtr(job.UploadedAt), job.PublishAttempts, fmtTime(job.CreatedAt), fmtTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, theme, title, description, status, progress, video_type,
	voice_style, voice_gender, parent_video_id, script_json, video_url,
	scheduled_for, auto_post, youtube_video_id, uploaded_at, publish_attempts,
	created_at, updated_at`

func (s *SQLiteStore) GetJob(id string) (*VideoJob, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs() ([]*VideoJob, error) {
	rows, err := s.db.Query(`SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ClaimNextQueued performs an atomic compare-and-swap claim: the status
// predicate is re-checked inside the UPDATE, so two concurrent pollers can
// never claim the same row.
func (s *SQLiteStore) ClaimNextQueued() (*VideoJob, error) {
	row := s.db.QueryRow(
		`UPDATE jobs SET status = ?, progress = 0, updated_at = ?
		 WHERE id = (SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1)
		   AND status = ?
		 RETURNING id`,
		string(StatusProcessing), fmtTime(time.Now().UTC()), string(StatusQueued), string(StatusQueued),
	)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim queued job: %w", err)
	}
	return s.GetJob(id)
}

func (s *SQLiteStore) CountProcessing() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE status = ?`, string(StatusProcessing)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count processing: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) SetProgress(id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := s.db.Exec(`UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?`,
		progress, fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetScript(id string, script *Script) error {
	if script == nil {
		return errors.New("script is nil")
	}
	b, err := json.Marshal(script)
	if err != nil {
		return fmt.Errorf("marshal script: %w", err)
	}
	res, err := s.db.Exec(`UPDATE jobs SET script_json = ?, updated_at = ? WHERE id = ?`,
		string(b), fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("set script: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *SQLiteStore) MarkCompleted(id string, videoURL string) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET status = ?, progress = 100, video_url = ?, updated_at = ? WHERE id = ?`,
		string(StatusCompleted), videoURL, fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkFailed(id string, diagnostic string) error {
	job, err := s.GetJob(id)
	if err != nil {
		return err
	}
	desc := job.Description
	if !strings.Contains(desc, diagnosticMarker) {
		desc = boundRunes(desc+"\n\n"+diagnosticMarker+" "+diagnostic, common.MaxDiagnosticRunes)
	}
	_, err = s.db.Exec(
		`UPDATE jobs SET status = ?, progress = 0, video_url = NULL, description = ?, updated_at = ? WHERE id = ?`,
		string(StatusFailed), desc, fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkPublished(id string, externalID string, uploadedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET status = ?, youtube_video_id = ?, uploaded_at = ?, updated_at = ? WHERE id = ?`,
		string(StatusPublished), externalID, fmtTime(uploadedAt), fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IncrementPublishAttempts(id string) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET publish_attempts = publish_attempts + 1, updated_at = ? WHERE id = ?`,
		fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("increment publish attempts: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendDescription(id string, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	job, err := s.GetJob(id)
	if err != nil {
		return err
	}
	if strings.Contains(job.Description, text) {
		return nil
	}
	desc := boundRunes(strings.TrimSpace(job.Description+"\n\n"+text), common.MaxDiagnosticRunes)
	_, err = s.db.Exec(`UPDATE jobs SET description = ?, updated_at = ? WHERE id = ?`,
		desc, fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("append description: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Requeue(id string) error {
	res, err := s.db.Exec(
		`UPDATE jobs SET status = ?, progress = 0, video_url = NULL,
			youtube_video_id = NULL, uploaded_at = NULL, publish_attempts = 0,
			updated_at = ? WHERE id = ?`,
		string(StatusQueued), fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("requeue: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *SQLiteStore) ResetOrphanedProcessing() (int, error) {
	res, err := s.db.Exec(
		`UPDATE jobs SET status = ?, progress = 0, video_url = NULL, updated_at = ? WHERE status = ?`,
		string(StatusQueued), fmtTime(time.Now().UTC()), string(StatusProcessing))
	if err != nil {
		return 0, fmt.Errorf("reset orphaned processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) ListCompletedUnuploaded() ([]*VideoJob, error) {
	rows, err := s.db.Query(
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? AND uploaded_at IS NULL ORDER BY created_at ASC`,
		string(StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("list completed unuploaded: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *SQLiteStore) ListDueForPublish(now time.Time, attemptCap int) ([]*VideoJob, error) {
	rows, err := s.db.Query(
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = ? AND auto_post = 1 AND scheduled_for <= ?
		   AND uploaded_at IS NULL AND publish_attempts < ?
		 ORDER BY scheduled_for ASC`,
		string(StatusCompleted), fmtTime(now.UTC()), attemptCap)
	if err != nil {
		return nil, fmt.Errorf("list due for publish: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *SQLiteStore) UpdateMutable(id string, upd MutableFields) error {
	sets := []string{"updated_at = ?"}
	args := []any{fmtTime(time.Now().UTC())}
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.ScheduledFor != nil {
		sets = append(sets, "scheduled_for = ?")
		args = append(args, fmtTime(*upd.ScheduledFor))
	}
	if upd.AutoPost != nil {
		sets = append(sets, "auto_post = ?")
		args = append(args, boolInt(*upd.AutoPost))
	}
	if upd.VoiceStyle != nil {
		sets = append(sets, "voice_style = ?")
		args = append(args, *upd.VoiceStyle)
	}
	if upd.VoiceGender != nil {
		sets = append(sets, "voice_gender = ?")
		args = append(args, *upd.VoiceGender)
	}
	args = append(args, id)
	res, err := s.db.Exec(`UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update mutable fields: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteJob(id string) error {
	res, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*VideoJob, error) {
	var job VideoJob
	var status, videoType string
	var parent, script, videoURL, ytID, uploaded sql.NullString
	var scheduled, created, updated string
	var autoPost int

	if err := row.Scan(
		&job.ID, &job.Theme, &job.Title, &job.Description, &status, &job.Progress,
		&videoType, &job.VoiceStyle, &job.VoiceGender, &parent, &script, &videoURL,
		&scheduled, &autoPost, &ytID, &uploaded, &job.PublishAttempts, &created, &updated,
	); err != nil {
		return nil, err
	}

	job.Status = Status(status)
	job.VideoType = VideoType(videoType)
	job.AutoPost = autoPost != 0
	if parent.Valid {
		v := parent.String
		job.ParentVideoID = &v
	}
	if script.Valid && script.String != "" {
		var sc Script
		if err := json.Unmarshal([]byte(script.String), &sc); err == nil {
			job.Script = &sc
		}
		// Leave Script nil on a decode error; do not fail retrieval.
	}
	if videoURL.Valid {
		v := videoURL.String
		job.VideoURL = &v
	}
	if ytID.Valid {
		v := ytID.String
		job.YouTubeVideoID = &v
	}
	if uploaded.Valid {
		if t, err := time.Parse(time.RFC3339Nano, uploaded.String); err == nil {
			job.UploadedAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, scheduled); err == nil {
		job.ScheduledFor = t
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		job.UpdatedAt = t
	}
	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]*VideoJob, error) {
	var out []*VideoJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := fmtTime(*t)
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func boundRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
