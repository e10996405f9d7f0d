package common

import "testing"

func TestConstantsValues(t *testing.T) {
	if ContentTypeJSON != "application/json" {
		t.Fatalf("ContentTypeJSON = %q", ContentTypeJSON)
	}
	if HeaderAPIKey != "X-API-Key" {
		t.Fatalf("HeaderAPIKey = %q", HeaderAPIKey)
	}
	if PathHealthz != "/healthz" || PathVideos != "/v1/videos" {
		t.Fatalf("paths mismatch: %q, %q", PathHealthz, PathVideos)
	}
	if MaxDiagnosticRunes <= 0 || DefaultPublishAttemptCap <= 0 {
		t.Fatalf("limits should be positive")
	}
	if VideosDirName == "" || MusicDirName == "" {
		t.Fatalf("dir names should be non-empty")
	}
	if len(DefaultPublishTags) == 0 {
		t.Fatalf("default publish tags should be non-empty")
	}
}
