package jobs

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testJob(id string) *VideoJob {
	return &VideoJob{
		ID:           id,
		Theme:        "Disciplina",
		Title:        "Title " + id,
		VideoType:    TypeVideo,
		Status:       StatusQueued,
		ScheduledFor: time.Now().UTC().Add(time.Hour),
		AutoPost:     true,
	}
}

func TestSQLiteStore_JobLifecycle(t *testing.T) {
	store := newTestStore(t)

	job := testJob("job-1")
	job.Script = &Script{
		Title:     "Vença a preguiça",
		Scenes:    []Scene{{Text: "Cena um", ImagePrompt: "sunrise"}},
		MusicMood: "epic",
	}
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := store.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != StatusQueued || got.Progress != 0 {
		t.Fatalf("fresh job should be queued at 0%%: %+v", got)
	}
	if got.Script == nil || len(got.Script.Scenes) != 1 || got.Script.Scenes[0].Text != "Cena um" {
		t.Fatalf("script did not round-trip: %+v", got.Script)
	}
	if !got.AutoPost {
		t.Fatalf("auto_post lost")
	}

	claimed, err := store.ClaimNextQueued()
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID || claimed.Status != StatusProcessing {
		t.Fatalf("claim mismatch: %+v", claimed)
	}

	if err := store.SetProgress(job.ID, 45); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	got, _ = store.GetJob(job.ID)
	if got.Progress != 45 {
		t.Fatalf("progress = %d, want 45", got.Progress)
	}

	if err := store.MarkCompleted(job.ID, "/static/videos/a.mp4"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	got, _ = store.GetJob(job.ID)
	if got.Status != StatusCompleted || got.Progress != 100 {
		t.Fatalf("not completed: %+v", got)
	}
	if got.VideoURL == nil || *got.VideoURL != "/static/videos/a.mp4" {
		t.Fatalf("video url mismatch: %+v", got.VideoURL)
	}

	uploaded := time.Now().UTC().Truncate(time.Second)
	if err := store.MarkPublished(job.ID, "yt-abc", uploaded); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	got, _ = store.GetJob(job.ID)
	if got.Status != StatusPublished {
		t.Fatalf("not published: %+v", got)
	}
	if got.YouTubeVideoID == nil || *got.YouTubeVideoID != "yt-abc" {
		t.Fatalf("external id mismatch: %+v", got.YouTubeVideoID)
	}
	if got.UploadedAt == nil || !got.UploadedAt.Equal(uploaded) {
		t.Fatalf("uploaded_at mismatch: %+v", got.UploadedAt)
	}
}

func TestSQLiteStore_ClaimOrderAndEmptyQueue(t *testing.T) {
	store := newTestStore(t)

	first := testJob("job-a")
	first.CreatedAt = time.Now().UTC().Add(-time.Minute)
	second := testJob("job-b")
	for _, j := range []*VideoJob{first, second} {
		if err := store.CreateJob(j); err != nil {
			t.Fatalf("CreateJob(%s): %v", j.ID, err)
		}
	}

	claimed, err := store.ClaimNextQueued()
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if claimed.ID != "job-a" {
		t.Fatalf("claimed %q, want oldest job-a", claimed.ID)
	}

	claimed, err = store.ClaimNextQueued()
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed.ID != "job-b" {
		t.Fatalf("claimed %q, want job-b", claimed.ID)
	}

	claimed, err = store.ClaimNextQueued()
	if err != nil {
		t.Fatalf("empty claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("empty queue should return nil, got %+v", claimed)
	}
}

func TestSQLiteStore_ClaimIsExclusive(t *testing.T) {
	store := newTestStore(t)
	if err := store.CreateJob(testJob("only")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	const claimers = 8
	var wg sync.WaitGroup
	results := make(chan *VideoJob, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := store.ClaimNextQueued()
			if err != nil {
				t.Errorf("ClaimNextQueued: %v", err)
				return
			}
			if job != nil {
				results <- job
			}
		}()
	}
	wg.Wait()
	close(results)

	var winners int
	for range results {
		winners++
	}
	if winners != 1 {
		t.Fatalf("job claimed %d times, want exactly once", winners)
	}
}

func TestSQLiteStore_MarkFailedBoundedDiagnostic(t *testing.T) {
	store := newTestStore(t)
	job := testJob("fail-1")
	job.Description = "Vídeo motivacional."
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if err := store.MarkFailed(job.ID, "render: boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, _ := store.GetJob(job.ID)
	if got.Status != StatusFailed || got.Progress != 0 {
		t.Fatalf("not failed: %+v", got)
	}
	if got.VideoURL != nil {
		t.Fatalf("video url should be cleared")
	}
	if !strings.Contains(got.Description, "render: boom") {
		t.Fatalf("diagnostic missing from description: %q", got.Description)
	}
	if !strings.HasPrefix(got.Description, "Vídeo motivacional.") {
		t.Fatalf("original description lost: %q", got.Description)
	}

	// A second failure must not append a second diagnostic.
	if err := store.MarkFailed(job.ID, "render: boom again"); err != nil {
		t.Fatalf("second MarkFailed: %v", err)
	}
	got, _ = store.GetJob(job.ID)
	if n := strings.Count(got.Description, diagnosticMarker); n != 1 {
		t.Fatalf("diagnostic marker appears %d times, want 1", n)
	}

	// A huge diagnostic stays within the description bound.
	big := testJob("fail-2")
	if err := store.CreateJob(big); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := store.MarkFailed(big.ID, strings.Repeat("x", 20000)); err != nil {
		t.Fatalf("MarkFailed big: %v", err)
	}
	got, _ = store.GetJob(big.ID)
	if n := len([]rune(got.Description)); n > 5000 {
		t.Fatalf("description length = %d, want <= 5000", n)
	}
}

func TestSQLiteStore_AppendDescriptionDeduplicates(t *testing.T) {
	store := newTestStore(t)
	job := testJob("desc-1")
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	credit := "Music: Carefree by Kevin MacLeod"
	for i := 0; i < 3; i++ {
		if err := store.AppendDescription(job.ID, credit); err != nil {
			t.Fatalf("AppendDescription: %v", err)
		}
	}
	got, _ := store.GetJob(job.ID)
	if n := strings.Count(got.Description, credit); n != 1 {
		t.Fatalf("credit appears %d times, want 1", n)
	}
}

func TestSQLiteStore_RequeueAndRecovery(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"r1", "r2", "r3"} {
		if err := store.CreateJob(testJob(id)); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	// Two claimed, one completed with a URL.
	if _, err := store.ClaimNextQueued(); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.ClaimNextQueued(); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkCompleted("r1", "/static/videos/r1.mp4"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	// One job left in processing simulates a crash mid-render.
	n, err := store.ResetOrphanedProcessing()
	if err != nil {
		t.Fatalf("ResetOrphanedProcessing: %v", err)
	}
	if n != 1 {
		t.Fatalf("repaired %d jobs, want 1", n)
	}
	if got, _ := store.GetJob("r2"); got.Status != StatusQueued || got.Progress != 0 {
		t.Fatalf("orphan not requeued: %+v", got)
	}

	// Requeue clears completed and published state, including the upload
	// markers, so a regenerated job can be published again.
	if err := store.MarkPublished("r1", "yt-r1", time.Now().UTC()); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	if err := store.IncrementPublishAttempts("r1"); err != nil {
		t.Fatalf("IncrementPublishAttempts: %v", err)
	}
	if err := store.Requeue("r1"); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	got, _ := store.GetJob("r1")
	if got.Status != StatusQueued || got.VideoURL != nil {
		t.Fatalf("requeue did not reset job: %+v", got)
	}
	if got.YouTubeVideoID != nil || got.UploadedAt != nil || got.PublishAttempts != 0 {
		t.Fatalf("requeue did not clear upload state: %+v", got)
	}

	if err := store.Requeue("missing"); err != ErrJobNotFound {
		t.Fatalf("Requeue(missing) = %v, want ErrJobNotFound", err)
	}
}

func TestSQLiteStore_ListDueForPublish(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	mk := func(id string, scheduled time.Time, autoPost bool) {
		t.Helper()
		job := testJob(id)
		job.ScheduledFor = scheduled
		job.AutoPost = autoPost
		if err := store.CreateJob(job); err != nil {
			t.Fatalf("CreateJob(%s): %v", id, err)
		}
	}
	complete := func(id string) {
		t.Helper()
		if err := store.MarkCompleted(id, "/static/videos/"+id+".mp4"); err != nil {
			t.Fatalf("MarkCompleted(%s): %v", id, err)
		}
	}

	mk("due", now.Add(-time.Minute), true)
	complete("due")

	mk("future", now.Add(time.Hour), true)
	complete("future")

	mk("manual", now.Add(-time.Minute), false)
	complete("manual")

	mk("still-queued", now.Add(-time.Minute), true)

	mk("uploaded", now.Add(-time.Minute), true)
	complete("uploaded")
	if err := store.MarkPublished("uploaded", "yt-x", now); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}

	mk("exhausted", now.Add(-time.Minute), true)
	complete("exhausted")
	for i := 0; i < 3; i++ {
		if err := store.IncrementPublishAttempts("exhausted"); err != nil {
			t.Fatalf("IncrementPublishAttempts: %v", err)
		}
	}

	due, err := store.ListDueForPublish(now, 3)
	if err != nil {
		t.Fatalf("ListDueForPublish: %v", err)
	}
	if len(due) != 1 || due[0].ID != "due" {
		ids := make([]string, 0, len(due))
		for _, j := range due {
			ids = append(ids, j.ID)
		}
		t.Fatalf("due = %v, want [due]", ids)
	}

	// A higher cap readmits the exhausted job.
	due, err = store.ListDueForPublish(now, 10)
	if err != nil {
		t.Fatalf("ListDueForPublish: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("len(due) = %d with cap 10, want 2", len(due))
	}
}

func TestSQLiteStore_SetScript(t *testing.T) {
	store := newTestStore(t)
	job := testJob("script-1")
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	script := &Script{
		Title:  "Gerado",
		Scenes: []Scene{{Text: "a"}, {Text: "b"}},
	}
	if err := store.SetScript(job.ID, script); err != nil {
		t.Fatalf("SetScript: %v", err)
	}
	got, _ := store.GetJob(job.ID)
	if got.Script == nil || len(got.Script.Scenes) != 2 {
		t.Fatalf("script not persisted: %+v", got.Script)
	}

	if err := store.SetScript("missing", script); err != ErrJobNotFound {
		t.Fatalf("SetScript(missing) = %v, want ErrJobNotFound", err)
	}
}

func TestSQLiteStore_UpdateMutableAndDelete(t *testing.T) {
	store := newTestStore(t)
	job := testJob("m1")
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	title := "Novo título"
	auto := false
	when := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	if err := store.UpdateMutable(job.ID, MutableFields{
		Title:        &title,
		AutoPost:     &auto,
		ScheduledFor: &when,
	}); err != nil {
		t.Fatalf("UpdateMutable: %v", err)
	}
	got, _ := store.GetJob(job.ID)
	if got.Title != title || got.AutoPost || !got.ScheduledFor.Equal(when) {
		t.Fatalf("update not applied: %+v", got)
	}
	// Untouched fields survive.
	if got.Theme != job.Theme {
		t.Fatalf("theme changed unexpectedly: %q", got.Theme)
	}

	if err := store.UpdateMutable("missing", MutableFields{Title: &title}); err != ErrJobNotFound {
		t.Fatalf("UpdateMutable(missing) = %v, want ErrJobNotFound", err)
	}

	if err := store.DeleteJob(job.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, err := store.GetJob(job.ID); err != ErrJobNotFound {
		t.Fatalf("GetJob after delete = %v, want ErrJobNotFound", err)
	}
	if err := store.DeleteJob(job.ID); err != ErrJobNotFound {
		t.Fatalf("double delete = %v, want ErrJobNotFound", err)
	}
}

func TestSQLiteStore_ListJobsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	old := testJob("old")
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	recent := testJob("recent")
	for _, j := range []*VideoJob{old, recent} {
		if err := store.CreateJob(j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	list, err := store.ListJobs()
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != 2 || list[0].ID != "recent" || list[1].ID != "old" {
		t.Fatalf("unexpected order: %+v", list)
	}

	n, err := store.CountProcessing()
	if err != nil {
		t.Fatalf("CountProcessing: %v", err)
	}
	if n != 0 {
		t.Fatalf("CountProcessing = %d, want 0", n)
	}
}
