package preflight

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
		{CheckStatus(9), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestCheckResult_JSON(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "disk_space", Status: StatusWarn, Message: "low"})

	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"warn"`)
}

func TestCheckResult_IsCritical(t *testing.T) {
	tests := []struct {
		name     string
		result   CheckResult
		expected bool
	}{
		{"required pass is not critical", CheckResult{Status: StatusPass, Required: true}, false},
		{"required fail is critical", CheckResult{Status: StatusFail, Required: true}, true},
		{"optional fail is not critical", CheckResult{Status: StatusFail, Required: false}, false},
		{"required warn is not critical", CheckResult{Status: StatusWarn, Required: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsCritical())
		})
	}
}

func TestChecker_RunAll_BuiltinsThenExtras(t *testing.T) {
	// Given: a data directory that does not exist yet and one extra check
	dataDir := filepath.Join(t.TempDir(), "project", ".docindex")
	extra := func(context.Context) CheckResult {
		return CheckResult{Name: "queue", Status: StatusPass, Message: "reachable", Required: true}
	}

	// When: running every check
	results := New(WithOutput(&bytes.Buffer{})).RunAll(context.Background(), dataDir, extra)

	// Then: built-ins run first, the directory was created, and the extra is last
	require.Len(t, results, 4)
	assert.Equal(t, "write_permissions", results[0].Name)
	assert.Equal(t, StatusPass, results[0].Status)
	assert.Equal(t, "disk_space", results[1].Name)
	assert.Equal(t, "file_descriptors", results[2].Name)
	assert.Equal(t, "queue", results[3].Name)
	assert.DirExists(t, dataDir)
}

func TestChecker_RunAll_StopsExtrasWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false

	results := New().RunAll(ctx, t.TempDir(), func(context.Context) CheckResult {
		called = true
		return CheckResult{}
	})

	assert.Len(t, results, 3)
	assert.False(t, called)
}

func TestChecker_CheckWritePermissions_ReadOnly(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	result := New().CheckWritePermissions(dir)

	assert.Equal(t, StatusFail, result.Status)
	assert.True(t, result.IsCritical())
}

func TestChecker_CheckDiskSpace_MissingPathUsesParent(t *testing.T) {
	result := New().CheckDiskSpace(filepath.Join(t.TempDir(), "not", "yet"))

	assert.NotEqual(t, StatusFail, result.Status, result.Message)
	assert.Contains(t, result.Message, "free")
}

func TestChecker_SummaryStatus(t *testing.T) {
	c := New()
	pass := CheckResult{Status: StatusPass, Required: true}
	warn := CheckResult{Status: StatusWarn}
	optionalFail := CheckResult{Status: StatusFail}
	fail := CheckResult{Status: StatusFail, Required: true}

	assert.Equal(t, "ready", c.SummaryStatus([]CheckResult{pass}))
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus([]CheckResult{pass, warn}))
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus([]CheckResult{pass, optionalFail}))
	assert.Equal(t, "failed", c.SummaryStatus([]CheckResult{pass, warn, fail}))
	assert.True(t, c.HasCriticalFailures([]CheckResult{pass, fail}))
	assert.False(t, c.HasCriticalFailures([]CheckResult{pass, warn}))
}

func TestChecker_PrintResults(t *testing.T) {
	// Given: a mix of results
	buf := &bytes.Buffer{}
	c := New(WithOutput(buf), WithVerbose(true))
	results := []CheckResult{
		{Name: "disk_space", Status: StatusPass, Message: "10.0 GB free", Required: true},
		{Name: "file_descriptors", Status: StatusFail, Message: "256 (minimum: 1024)", Details: "Run 'ulimit -n 10240'", Required: true},
		{Name: "index", Status: StatusWarn, Message: "held by pid 42"},
	}

	// When: printing
	c.PrintResults(results)

	// Then: each line, the details, the summary and both lists appear
	out := buf.String()
	assert.Contains(t, out, "docindex system check")
	assert.Contains(t, out, "[PASS] disk_space: 10.0 GB free")
	assert.Contains(t, out, "ulimit -n 10240")
	assert.Contains(t, out, "Status: FAILED")
	assert.Contains(t, out, "1 error(s):")
	assert.Contains(t, out, "1 warning(s):")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 bytes", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "100.0 MB", formatBytes(MinDiskSpaceBytes))
	assert.Equal(t, "2.0 GB", formatBytes(2*1024*1024*1024))
}
