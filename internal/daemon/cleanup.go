package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"vibebridge/internal/logging"
)

// LogFileInfo holds information about a log file.
type LogFileInfo struct {
	Name    string
	Path    string
	Date    time.Time
	Size    int64
	ModTime time.Time
}

// logDate parses the date out of vibebridge-2006-01-02.log. The symlink and
// foreign files report false.
func logDate(name string) (time.Time, bool) {
	prefix := logging.FilePrefix + "-"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".log") {
		return time.Time{}, false
	}
	date, err := time.Parse("2006-01-02", strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".log"))
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// CleanupLogs removes daily log files older than retentionDays. Zero or
// less keeps everything.
func CleanupLogs(logDir string, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	logs, err := GetLogFiles(logDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	var errs []string
	for _, lf := range logs {
		if !lf.Date.Before(cutoff) {
			continue
		}
		if err := os.Remove(lf.Path); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", lf.Name, err))
			continue
		}
		deleted++
	}
	if len(errs) > 0 {
		return deleted, fmt.Errorf("failed to remove old logs: %s", strings.Join(errs, "; "))
	}
	return deleted, nil
}

// CleanupOnStart runs cleanup when the daemon starts.
func CleanupOnStart(dir string, retentionDays int, log *logging.Logger) {
	deleted, err := CleanupLogs(filepath.Join(dir, "logs"), retentionDays)
	if err != nil {
		log.Warn("Log cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Info("Cleaned up %d old log file(s)", deleted)
	}
}

// GetLogFiles returns the daily log files, newest first.
func GetLogFiles(logDir string) ([]LogFileInfo, error) {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var logs []LogFileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		date, ok := logDate(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		logs = append(logs, LogFileInfo{
			Name:    entry.Name(),
			Path:    filepath.Join(logDir, entry.Name()),
			Date:    date,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(logs, func(i, j int) bool {
		return logs[i].Date.After(logs[j].Date)
	})
	return logs, nil
}

// TotalLogSize returns the total size of all log files.
func TotalLogSize(logDir string) (int64, error) {
	logs, err := GetLogFiles(logDir)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, lf := range logs {
		total += lf.Size
	}
	return total, nil
}
