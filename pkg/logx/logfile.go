package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const logFilePrefix = "agentcore-"

var logFile *os.File

// InitializeLogFile redirects all logging to a fresh timestamped file under
// dir, keeping at most keep older log files. With tee set, lines go to both
// stderr and the file. Call once at process start, before any logging.
func InitializeLogFile(dir string, keep int, tee bool) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	if err := pruneOldLogs(dir, keep); err != nil {
		return err
	}

	name := logFilePrefix + time.Now().UTC().Format("20060102-150405") + ".log"
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", name, err)
	}

	outputMutex.Lock()
	logFile = f
	if tee {
		output = io.MultiWriter(os.Stderr, f)
	} else {
		output = f
	}
	outputMutex.Unlock()
	return nil
}

// CloseLogFile restores stderr logging and closes the current log file.
func CloseLogFile() error {
	outputMutex.Lock()
	f := logFile
	logFile = nil
	output = os.Stderr
	outputMutex.Unlock()

	if f == nil {
		return nil
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// pruneOldLogs deletes the oldest rotation files so that at most keep-1
// remain before the new file is created.
func pruneOldLogs(dir string, keep int) error {
	if keep < 1 {
		keep = 1
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read log directory %s: %w", dir, err)
	}

	var logs []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, logFilePrefix) && strings.HasSuffix(name, ".log") {
			logs = append(logs, name)
		}
	}
	if len(logs) < keep {
		return nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(logs)
	for _, name := range logs[:len(logs)-keep+1] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			Warnf("failed to prune old log file %s: %v", name, err)
		}
	}
	return nil
}
