package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	easy "github.com/t-tomalak/logrus-easy-formatter"
)

const (
	FileTimestampFormat = "20060102-150405"
	lineTimestampFormat = "2006-01-02 15:04:05"
)

// FileHook appends every entry to a log file as "[time] [LEVEL] message",
// independent of the console level and colors.
type FileHook struct {
	lock      sync.Mutex
	file      *os.File
	formatter log.Formatter
	Path      string
}

// LogFileName returns the name of the log file for a run started at t.
func LogFileName(t time.Time) string {
	return fmt.Sprintf("migration-%v.log", t.UTC().Format(FileTimestampFormat))
}

// OpenFileHook opens (or appends to) the log file for t in dir.
func OpenFileHook(dir string, t time.Time) (*FileHook, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create log directory %v: %w", dir, err)
	}
	path := filepath.Join(dir, LogFileName(t))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open log file %v: %w", path, err)
	}
	return &FileHook{
		file: f,
		formatter: &easy.Formatter{
			TimestampFormat: lineTimestampFormat,
			LogFormat:       "[%time%] [%lvl%] %msg%\n",
		},
		Path: path,
	}, nil
}

func (h *FileHook) Levels() []log.Level {
	return log.AllLevels
}

func (h *FileHook) Fire(entry *log.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.file == nil {
		return nil
	}
	_, err = h.file.Write(line)
	return err
}

func (h *FileHook) Close() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	return err
}
