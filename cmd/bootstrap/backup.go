package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const backupFileExt = ".bak"

// backupDatabase copies an existing SQLite file aside before a run and
// prunes the oldest copies beyond maxBackups. A missing file is not an error.
func backupDatabase(dbPath string, maxBackups int, now time.Time, logger *zap.SugaredLogger) error {
	info, err := os.Stat(dbPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	logger.Infow("existing database found", "path", dbPath, "bytes", info.Size())

	backupPath := fmt.Sprintf("%s.%s%s", dbPath, now.Format("20060102-150405"), backupFileExt)
	if err := copyFile(dbPath, backupPath, logger); err != nil {
		return err
	}
	logger.Infow("existing database backed up", "backup", backupPath)
	pruneOldBackups(dbPath, maxBackups, logger)
	return nil
}

func copyFile(src, dst string, logger *zap.SugaredLogger) error {
	sourceFileStat, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !sourceFileStat.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func(source *os.File) {
		if err := source.Close(); err != nil {
			logger.Warnw("failed to close file", "path", src, "error", err)
		}
	}(source)

	destination, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func(destination *os.File) {
		if err := destination.Close(); err != nil {
			logger.Warnw("failed to close file", "path", dst, "error", err)
		}
	}(destination)

	_, err = destination.ReadFrom(source)
	return err
}

// pruneOldBackups keeps the newest maxBackups backups of dbPath. Backup names sort
// chronologically by their timestamp. maxBackups <= 0 keeps everything.
func pruneOldBackups(dbPath string, maxBackups int, logger *zap.SugaredLogger) {
	if maxBackups <= 0 {
		return
	}
	dir := filepath.Dir(dbPath)
	prefix := filepath.Base(dbPath) + "."
	files, err := os.ReadDir(dir)
	if err != nil {
		logger.Warnw("failed to read backup directory", "dir", dir, "error", err)
		return
	}

	var backups []string
	for _, f := range files {
		if strings.HasPrefix(f.Name(), prefix) && strings.HasSuffix(f.Name(), backupFileExt) {
			backups = append(backups, filepath.Join(dir, f.Name()))
		}
	}

	if len(backups) <= maxBackups {
		return
	}

	sort.Strings(backups)
	for _, file := range backups[:len(backups)-maxBackups] {
		if err := os.Remove(file); err != nil {
			logger.Warnw("failed to remove old backup", "path", file, "error", err)
		} else {
			logger.Infow("removed old backup", "path", file)
		}
	}
}
