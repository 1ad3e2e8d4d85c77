package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultLogDir is where the gateway writes its daily logs.
	DefaultLogDir = "/tmp/openclaw"

	// DefaultLogPrefix prefixes each daily log file name.
	DefaultLogPrefix = "openclaw"
)

// DailyPath returns the log file for the local calendar day of t:
// <dir>/<prefix>-YYYY-MM-DD.log.
func DailyPath(dir, prefix string, t time.Time) string {
	if prefix == "" {
		prefix = DefaultLogPrefix
	}
	return filepath.Join(dir, prefix+"-"+t.Local().Format("2006-01-02")+".log")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
