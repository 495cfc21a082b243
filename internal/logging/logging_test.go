package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()

	if filepath.Base(path) != "docindex.log" {
		t.Errorf("DefaultLogPath should end with docindex.log, got: %s", path)
	}
	if !strings.Contains(path, filepath.Join(".docindex", "logs")) {
		t.Errorf("DefaultLogPath should live under .docindex/logs, got: %s", path)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got: %s", cfg.Level)
	}
	if cfg.MaxSizeMB != 10 || cfg.MaxFiles != 5 {
		t.Errorf("expected 10MB x 5 files, got: %dMB x %d", cfg.MaxSizeMB, cfg.MaxFiles)
	}
	if !cfg.WriteToStderr {
		t.Error("expected WriteToStderr to be true")
	}
}

func TestStderrConfig_NoFile(t *testing.T) {
	cfg := StderrConfig("warn")

	if cfg.FilePath != "" {
		t.Errorf("expected no file, got: %s", cfg.FilePath)
	}
	if cfg.Level != "warn" {
		t.Errorf("expected level 'warn', got: %s", cfg.Level)
	}
}

func TestSetup_FileReceivesJSON(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")

	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 3})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Debug("drain_complete", "applied", 3)
	cleanup()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &line); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, data)
	}
	if line["msg"] != "drain_complete" || line["applied"] != float64(3) {
		t.Errorf("unexpected log line: %v", line)
	}
}

func TestSetup_FanOutToStderr(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	var stderr bytes.Buffer

	logger, cleanup, err := Setup(Config{Level: "info", FilePath: logPath, WriteToStderr: true, Stderr: &stderr})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.With("component", "worker").Info("worker_started")
	logger.Debug("hidden")
	cleanup()

	// A buffer is not a terminal, so stderr also gets JSON.
	if !strings.Contains(stderr.String(), `"msg":"worker_started"`) {
		t.Errorf("stderr missing entry: %s", stderr.String())
	}
	if !strings.Contains(stderr.String(), `"component":"worker"`) {
		t.Errorf("stderr missing attrs: %s", stderr.String())
	}
	data, _ := os.ReadFile(logPath)
	if !strings.Contains(string(data), "worker_started") {
		t.Errorf("file missing entry: %s", data)
	}
	if strings.Contains(string(data)+stderr.String(), "hidden") {
		t.Error("debug entry should be filtered at info level")
	}
}

func TestSetup_NothingConfigured(t *testing.T) {
	logger, cleanup, err := Setup(Config{})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()

	logger.Info("dropped")
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"DEBUG", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		if got := LevelFromString(tt.input).String(); got != tt.expected {
			t.Errorf("LevelFromString(%q) = %s, want %s", tt.input, got, tt.expected)
		}
	}
}

func TestFindLogFile(t *testing.T) {
	explicit := filepath.Join(t.TempDir(), "x.log")

	if _, err := FindLogFile(explicit); err == nil {
		t.Error("expected error for missing explicit file")
	}

	if err := os.WriteFile(explicit, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := FindLogFile(explicit)
	if err != nil || got != explicit {
		t.Errorf("FindLogFile(%s) = %s, %v", explicit, got, err)
	}
}

// ============================================================================
// Viewer Tests
// ============================================================================

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docindex.log")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestViewer_Tail(t *testing.T) {
	path := writeLog(t,
		`{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"one"}`,
		`{"time":"2026-01-02T10:00:01Z","level":"DEBUG","msg":"two"}`,
		`not json`,
		`{"time":"2026-01-02T10:00:02Z","level":"ERROR","msg":"three"}`,
	)
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	entries, err := v.Tail(path, 2)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].IsValid || entries[0].Raw != "not json" {
		t.Errorf("expected raw line first, got %+v", entries[0])
	}
	if entries[1].Msg != "three" {
		t.Errorf("expected 'three', got %s", entries[1].Msg)
	}
}

func TestViewer_Tail_Filters(t *testing.T) {
	path := writeLog(t,
		`{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"drain_complete","applied":2}`,
		`{"time":"2026-01-02T10:00:01Z","level":"DEBUG","msg":"command_applied"}`,
		`{"time":"2026-01-02T10:00:02Z","level":"WARN","msg":"drain_aborted"}`,
	)

	byLevel := NewViewer(ViewerConfig{Level: "info"}, &bytes.Buffer{})
	entries, err := byLevel.Tail(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("level filter: expected 2 entries, got %d", len(entries))
	}

	byPattern := NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`drain_`)}, &bytes.Buffer{})
	entries, err = byPattern.Tail(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("pattern filter: expected 2 entries, got %d", len(entries))
	}
}

func TestViewer_Tail_NonexistentFile(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	if _, err := v.Tail(filepath.Join(t.TempDir(), "missing.log"), 10); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestViewer_FormatEntry(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	e := parseLine(`{"time":"2026-01-02T10:00:00.5Z","level":"INFO","msg":"drain_complete","malformed":0,"applied":2}`)

	got := v.FormatEntry(e)

	want := "10:00:00.500 INFO  drain_complete applied=2 malformed=0"
	if got != want {
		t.Errorf("FormatEntry:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestViewer_FormatEntry_Colors(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	e := parseLine(`{"level":"ERROR","msg":"boom"}`)

	if got := v.FormatEntry(e); !strings.Contains(got, "\033[31m") {
		t.Errorf("expected red level, got %q", got)
	}
}

func TestViewer_Print(t *testing.T) {
	var out bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &out)

	v.Print([]LogEntry{{Raw: "a"}, {Raw: "b"}})

	if out.String() != "a\nb\n" {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestViewer_Follow(t *testing.T) {
	path := writeLog(t, `{"level":"INFO","msg":"before"}`)
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	v.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()

	// Give Follow time to seek to the end before appending.
	time.Sleep(50 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"level":"INFO","msg":"after"}` + "\n")
	_ = f.Close()

	select {
	case e := <-entries:
		if e.Msg != "after" {
			t.Errorf("expected 'after', got %q", e.Msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no entry followed")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Follow returned error: %v", err)
	}
}

// ============================================================================
// Writer Rotation Tests
// ============================================================================

func TestRotatingWriter_Rotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rotate.log")

	// 0 MB rotates before every write to a non-empty file.
	w, err := NewRotatingWriter(logPath, 0, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	for _, s := range []string{"first\n", "second\n"} {
		if _, err := w.Write([]byte(s)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	current, _ := os.ReadFile(logPath)
	rotated, _ := os.ReadFile(logPath + ".1")
	if string(current) != "second\n" || string(rotated) != "first\n" {
		t.Errorf("unexpected contents: current=%q rotated=%q", current, rotated)
	}
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "maxfiles.log")

	w, err := NewRotatingWriter(logPath, 0, 2)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		_, _ = w.Write([]byte(fmt.Sprintf("line %d\n", i)))
	}

	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Error("rotated file .3 should not exist (beyond maxFiles)")
	}
	oldest, _ := os.ReadFile(logPath + ".2")
	if string(oldest) != "line 2\n" {
		t.Errorf("expected .2 to hold line 2, got %q", oldest)
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "closed.log"), 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}

	if _, err := w.Write([]byte("late\n")); err == nil {
		t.Error("expected error writing to closed writer")
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	w, err := NewRotatingWriter(logPath, 10, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()
	w.SetSyncEach(false)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = w.Write([]byte(fmt.Sprintf(`{"id":%d,"iter":%d}`+"\n", id, j)))
			}
		}(i)
	}
	wg.Wait()
	if err := w.Sync(); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(logPath)
	if n := strings.Count(string(data), "\n"); n != 1000 {
		t.Errorf("expected 1000 lines, got %d", n)
	}
}
