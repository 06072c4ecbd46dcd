package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"courtside/internal/playback"
	"courtside/internal/services"
	"courtside/internal/testsupport"
)

func TestUploadCommandSubmitsVideo(t *testing.T) {
	env := setupCLITestEnv(t)
	path := testsupport.WriteVideo(t, env.baseDir, "match.mp4", 4096)

	stdout, stderr, err := env.run(t, "upload", path, "--json")
	if err != nil {
		t.Fatalf("upload: %v\nstderr: %s", err, stderr)
	}
	var view jobView
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("decode json %q: %v", stdout, err)
	}
	if view.ID != "1" || view.SourceName != "match.mp4" || view.Status != "processing" {
		t.Fatalf("unexpected job %+v", view)
	}
	if !strings.Contains(stderr, "Uploading match.mp4: 100%") {
		t.Fatalf("expected final progress line on stderr, got %q", stderr)
	}

	uploads := env.server.Uploads()
	if len(uploads) != 1 || uploads[0].Size != 4096 || uploads[0].ContentType != "video/mp4" {
		t.Fatalf("unexpected uploads %+v", uploads)
	}
	if uploads[0].RequestID == "" {
		t.Fatal("expected a request id on the upload")
	}
}

func TestUploadCommandWatchesToCompletion(t *testing.T) {
	env := setupCLITestEnv(t)
	env.server.Script(1, "processing", "completed")
	path := testsupport.WriteVideo(t, env.baseDir, "rally.mov", 1024)

	stdout, stderr, err := env.run(t, "upload", path, "--watch")
	if err != nil {
		t.Fatalf("upload --watch: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "Submitted rally.mov as job 1") {
		t.Fatalf("expected submission line, got %q", stdout)
	}
	if !strings.Contains(stdout, "job 1: Analysis Complete") {
		t.Fatalf("expected completion line, got %q", stdout)
	}
}

func TestUploadCommandRejectsNonVideoWithoutNetwork(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.baseDir, "notes.txt")
	if err := os.WriteFile(path, []byte("plain text notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := env.run(t, "upload", path)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(env.server.Uploads()) != 0 {
		t.Fatal("invalid file must not reach the pipeline")
	}
}

func TestUploadCommandRejectsOversizedFile(t *testing.T) {
	env := setupCLITestEnv(t)
	path := testsupport.WriteVideo(t, env.baseDir, "long.mp4", env.cfg.Upload.MaxBytes+1)

	_, _, err := env.run(t, "upload", path)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if msg := services.UserMessage(err); !strings.Contains(msg, "larger than") {
		t.Fatalf("expected size detail, got %q", msg)
	}
}

func TestListCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.server.AddVideo("old_match.mp4", "completed", base)
	env.server.AddVideo("new_match.mp4", "processing", base.Add(time.Hour))

	stdout, _, err := env.run(t, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	newIdx := strings.Index(stdout, "new_match.mp4")
	oldIdx := strings.Index(stdout, "old_match.mp4")
	if newIdx < 0 || oldIdx < 0 || newIdx > oldIdx {
		t.Fatalf("expected newest first, got:\n%s", stdout)
	}
	if !strings.Contains(stdout, "Analysis Complete") || !strings.Contains(stdout, "Processing...") {
		t.Fatalf("expected status labels, got:\n%s", stdout)
	}

	stdout, _, err = env.run(t, "list", "--status", "completed", "--json")
	if err != nil {
		t.Fatalf("list --status: %v", err)
	}
	var views []jobView
	if err := json.Unmarshal([]byte(stdout), &views); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(views) != 1 || views[0].SourceName != "old_match.mp4" {
		t.Fatalf("unexpected filtered list %+v", views)
	}
	if views[0].ArtifactURL != env.server.URL+"/processed/processed_old_match.mp4" {
		t.Fatalf("unexpected artifact url %q", views[0].ArtifactURL)
	}

	if _, _, err := env.run(t, "list", "--status", "bogus"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestListCommandCachedSurvivesOutage(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithCache())
	env.server.AddVideo("cached.mp4", "completed", time.Now().UTC())

	if _, _, err := env.run(t, "list"); err != nil {
		t.Fatalf("list: %v", err)
	}
	env.server.FailNext("GET /videos", http.StatusServiceUnavailable, "maintenance")

	stdout, _, err := env.run(t, "list", "--cached")
	if err != nil {
		t.Fatalf("list --cached: %v", err)
	}
	if !strings.Contains(stdout, "cached.mp4") {
		t.Fatalf("expected cached job, got:\n%s", stdout)
	}
}

func TestListCommandUnauthorized(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithToken("wrong"))

	_, _, err := env.run(t, "list")
	if !errors.Is(err, services.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if msg := services.UserMessage(err); !strings.Contains(msg, "credentials") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestStatsCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	now := time.Now().UTC()
	env.server.AddVideo("a.mp4", "completed", now)
	env.server.AddVideo("b.mp4", "completed", now)
	env.server.AddVideo("c.mp4", "processing", now)
	env.server.AddVideo("d.mp4", "failed", now)

	stdout, _, err := env.run(t, "stats", "--json")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var counts map[string]int
	if err := json.Unmarshal([]byte(stdout), &counts); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if counts["total"] != 4 || counts["completed"] != 2 || counts["processing"] != 1 || counts["failed"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestShowCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	env.server.AddVideo("semi_final.mp4", "completed", time.Now().UTC())

	stdout, _, err := env.run(t, "show", "1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"Semi Final", "Analysis Complete", "42s", "/processed/processed_semi_final.mp4"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in output:\n%s", want, stdout)
		}
	}

	_, _, err = env.run(t, "show", "99")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if msg := services.UserMessage(err); !strings.Contains(msg, "Video not found") {
		t.Fatalf("expected server detail, got %q", msg)
	}
}

func TestWatchCommandHandlesManyJobs(t *testing.T) {
	env := setupCLITestEnv(t)
	now := time.Now().UTC()
	first := env.server.AddVideo("one.mp4", "processing", now)
	second := env.server.AddVideo("two.mp4", "queued", now)
	env.server.Script(first, "processing", "completed")
	env.server.Script(second, "processing", "processing", "failed")

	stdout, _, err := env.run(t, "watch", "1", "2", "--json")
	if err == nil || !strings.Contains(err.Error(), "job 2 failed") {
		t.Fatalf("expected failed job error, got %v", err)
	}
	var views []jobView
	if err := json.Unmarshal([]byte(stdout), &views); err != nil {
		t.Fatalf("decode json %q: %v", stdout, err)
	}
	if len(views) != 2 || views[0].Status != "completed" || views[1].Status != "failed" {
		t.Fatalf("unexpected final records %+v", views)
	}
}

func TestWatchCommandGivesUpOnMissingJob(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := env.run(t, "watch", "7")
	if !errors.Is(err, services.ErrFetch) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected exhausted fetch, got %v", err)
	}
	if !strings.Contains(stdout, "job 7: attempt 1 failed") {
		t.Fatalf("expected attempt line, got %q", stdout)
	}
}

func TestDownloadCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	id := env.server.AddVideo("final.mov", "completed", time.Now().UTC())
	env.server.SetArtifact(env.server.ArtifactRef(id), []byte("annotated video"))
	dir := filepath.Join(env.baseDir, "out")

	stdout, _, err := env.run(t, "download", "1", "--dir", dir)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	dest := filepath.Join(dir, "analyzed_final.mov")
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(data) != "annotated video" {
		t.Fatalf("unexpected content %q", data)
	}
	if !strings.Contains(stdout, dest) {
		t.Fatalf("expected destination in output, got %q", stdout)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, ".courtside-download-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestDownloadCommandRequiresCompletion(t *testing.T) {
	env := setupCLITestEnv(t)
	env.server.AddVideo("pending.mp4", "processing", time.Now().UTC())

	_, _, err := env.run(t, "download", "1")
	if !errors.Is(err, playback.ErrNotCompleted) {
		t.Fatalf("expected not completed, got %v", err)
	}
}

func TestPlayCommandDryRun(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Playback.FFprobeBinary = env.writeScript(t, "ffprobe", `echo '{"format":{"duration":"120.0"}}'`)
	env.cfg.Playback.Player = "mpv"
	env.writeConfig(t)
	env.server.AddVideo("final.mp4", "completed", time.Now().UTC())

	stdout, stderr, err := env.run(t, "play", "1", "--at", "0.5", "--dry-run")
	if err != nil {
		t.Fatalf("play: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "1:00 / 2:00") {
		t.Fatalf("expected position line, got %q", stdout)
	}
	want := "mpv --start=60.000 --force-window=yes " + env.server.URL + "/processed/processed_final.mp4"
	if !strings.Contains(stdout, want) {
		t.Fatalf("expected %q, got %q", want, stdout)
	}
}

func TestPlayCommandRunsPlayer(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Playback.FFprobeBinary = env.writeScript(t, "ffprobe", `echo '{"format":{"duration":"90.0"}}'`)
	env.cfg.Playback.Player = env.writeScript(t, "mpv", "exit 0")
	env.writeConfig(t)
	env.server.AddVideo("final.mp4", "completed", time.Now().UTC())

	stdout, _, err := env.run(t, "play", "1")
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if !strings.Contains(stdout, "Stopped at 0:00 / 1:30") {
		t.Fatalf("expected stop line, got %q", stdout)
	}
}

func TestPlayCommandRejectsIncompleteJob(t *testing.T) {
	env := setupCLITestEnv(t)
	env.server.AddVideo("pending.mp4", "queued", time.Now().UTC())

	_, _, err := env.run(t, "play", "1", "--dry-run")
	if !errors.Is(err, playback.ErrNotCompleted) {
		t.Fatalf("expected not completed, got %v", err)
	}
}

func TestCheckCommand(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())
	stdout, _, err := env.run(t, "check")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, stdout)
	}
	for _, want := range []string{"Pipeline API:", "[OK]", "FFprobe:", "Download directory:", "Notifications:"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestCheckCommandReportsBadToken(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries(), testsupport.WithToken("wrong"))
	stdout, _, err := env.run(t, "check")
	if err == nil {
		t.Fatal("expected failed preflight")
	}
	if !strings.Contains(stdout, "auth failed") {
		t.Fatalf("expected auth failure detail:\n%s", stdout)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	target := filepath.Join(dir, "courtside", "config.toml")

	stdout, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(stdout, target) {
		t.Fatalf("expected path in output, got %q", stdout)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite")
	}

	stdout, _, err = runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(stdout, "Configuration valid") {
		t.Fatalf("unexpected output %q", stdout)
	}
}

func TestNotifyTestWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	stdout, _, err := env.run(t, "notify", "test")
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	if !strings.Contains(stdout, "disabled") {
		t.Fatalf("unexpected output %q", stdout)
	}
}
