package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func listBackups(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), backupFileExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func TestBackupDatabase(t *testing.T) {
	logger := zap.NewNop().Sugar()

	t.Run("missing database is not an error", func(t *testing.T) {
		dir := t.TempDir()
		err := backupDatabase(filepath.Join(dir, "devops_db.db"), 5, time.Now(), logger)
		require.NoError(t, err)
		assert.Empty(t, listBackups(t, dir))
	})

	t.Run("copies the file", func(t *testing.T) {
		dir := t.TempDir()
		dbPath := filepath.Join(dir, "devops_db.db")
		require.NoError(t, os.WriteFile(dbPath, []byte("sqlite bytes"), 0o600))

		now := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
		require.NoError(t, backupDatabase(dbPath, 5, now, logger))

		assert.Equal(t, []string{"devops_db.db.20240309-140506.bak"}, listBackups(t, dir))
		data, err := os.ReadFile(filepath.Join(dir, "devops_db.db.20240309-140506.bak"))
		require.NoError(t, err)
		assert.Equal(t, "sqlite bytes", string(data))
	})

	t.Run("keeps the newest backups", func(t *testing.T) {
		dir := t.TempDir()
		dbPath := filepath.Join(dir, "devops_db.db")
		require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0o600))

		start := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 4; i++ {
			require.NoError(t, backupDatabase(dbPath, 2, start.Add(time.Duration(i)*time.Hour), logger))
		}

		assert.Equal(t, []string{
			"devops_db.db.20240309-020000.bak",
			"devops_db.db.20240309-030000.bak",
		}, listBackups(t, dir))
	})

	t.Run("zero keeps everything", func(t *testing.T) {
		dir := t.TempDir()
		dbPath := filepath.Join(dir, "devops_db.db")
		require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0o600))

		start := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			require.NoError(t, backupDatabase(dbPath, 0, start.Add(time.Duration(i)*time.Minute), logger))
		}
		assert.Len(t, listBackups(t, dir), 3)
	})
}

func TestCopyFileRejectsDirectories(t *testing.T) {
	dir := t.TempDir()
	err := copyFile(dir, filepath.Join(dir, "out"), zap.NewNop().Sugar())
	assert.ErrorContains(t, err, "is not a regular file")
}
