package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupUserConfig_NoConfig(t *testing.T) {
	isolate(t)

	path, err := BackupUserConfig()

	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestBackupUserConfig_CopiesContent(t *testing.T) {
	// Given: a user config
	isolate(t)
	content := "server:\n  port: 9100\n"
	writeFile(t, GetUserConfigPath(), content)

	// When: backing it up
	path, err := BackupUserConfig()

	// Then: the backup sits next to it with identical content
	require.NoError(t, err)
	assert.Equal(t, GetUserConfigDir(), filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "config.yaml.bak."))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestBackupUserConfig_KeepsNewestBackups(t *testing.T) {
	// Given: more backups than MaxBackups
	isolate(t)
	writeFile(t, GetUserConfigPath(), "version: 1\n")
	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupUserConfig()
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	// When: listing backups
	backups, err := ListUserConfigBackups()

	// Then: only MaxBackups remain
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
}

func TestListUserConfigBackups_NewestFirst(t *testing.T) {
	isolate(t)
	dir := GetUserConfigDir()
	older := filepath.Join(dir, "config.yaml.bak.20260101-000000.000")
	newer := filepath.Join(dir, "config.yaml.bak.20260102-000000.000")
	writeFile(t, older, "a")
	writeFile(t, newer, "b")
	writeFile(t, filepath.Join(dir, "unrelated.txt"), "c")
	now := time.Now()
	require.NoError(t, os.Chtimes(older, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(newer, now, now))

	backups, err := ListUserConfigBackups()

	require.NoError(t, err)
	assert.Equal(t, []string{newer, older}, backups)
}

func TestListUserConfigBackups_NoDirectory(t *testing.T) {
	isolate(t)

	backups, err := ListUserConfigBackups()

	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestRestoreUserConfig(t *testing.T) {
	// Given: a current config and an older backup
	isolate(t)
	writeFile(t, GetUserConfigPath(), "server:\n  port: 1111\n")
	backup := filepath.Join(t.TempDir(), "saved.yaml")
	writeFile(t, backup, "server:\n  port: 2222\n")

	// When: restoring the backup
	require.NoError(t, RestoreUserConfig(backup))

	// Then: the backup content is live and the previous config was saved
	got, err := os.ReadFile(GetUserConfigPath())
	require.NoError(t, err)
	assert.Contains(t, string(got), "2222")

	backups, err := ListUserConfigBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	prev, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Contains(t, string(prev), "1111")
}

func TestRestoreUserConfig_MissingBackup(t *testing.T) {
	isolate(t)

	err := RestoreUserConfig(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.Error(t, err)
}
