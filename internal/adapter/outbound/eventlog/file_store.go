// Package eventlog persists admission events as JSON Lines with daily
// rotation, size caps, retention cleanup and an in-memory cache.
package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Sentinel-Gate/rpcguard/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/admission"
)

const dateLayout = "2006-01-02"

// Config holds configuration for the file event store.
type Config struct {
	// Dir is the directory where event files are stored.
	Dir string
	// RetentionDays is the number of days to keep event files (default 7).
	RetentionDays int
	// MaxFileSizeMB is the maximum file size in megabytes before rotation (default 100).
	MaxFileSizeMB int
	// CacheSize is the number of recent events kept in memory (default 1000).
	CacheSize int
}

// FileStore implements admission.EventStore on rotating files named
// events-YYYY-MM-DD.log, events-YYYY-MM-DD-1.log, and so on.
type FileStore struct {
	dir           string
	maxFileSize   int64
	retentionDays int
	cache         *memory.EventStore
	cacheSize     int
	logger        *slog.Logger
	cancel        context.CancelFunc
	done          chan struct{}

	mu            sync.Mutex
	currentFile   *os.File
	currentDate   string
	currentSize   int64
	currentSuffix int
	closed        bool
}

var eventFilePattern = regexp.MustCompile(`^events-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.log$`)

type eventFile struct {
	name   string
	date   string
	suffix int
}

func parseEventFilename(name string) (eventFile, bool) {
	m := eventFilePattern.FindStringSubmatch(name)
	if m == nil {
		return eventFile{}, false
	}
	f := eventFile{name: name, date: m[1]}
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return eventFile{}, false
		}
		f.suffix = n
	}
	return f, true
}

func buildFilename(date string, suffix int) string {
	if suffix == 0 {
		return fmt.Sprintf("events-%s.log", date)
	}
	return fmt.Sprintf("events-%s-%d.log", date, suffix)
}

// NewFileStore creates the directory if needed, opens today's file, removes
// expired files, loads the cache from the newest file and starts the hourly
// cleanup loop.
func NewFileStore(cfg Config, logger *slog.Logger) (*FileStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("event log directory is required")
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 100
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create event log directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &FileStore{
		dir:           cfg.Dir,
		maxFileSize:   int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		retentionDays: cfg.RetentionDays,
		cache:         memory.NewEventStore(cfg.CacheSize),
		cacheSize:     cfg.CacheSize,
		logger:        logger,
		cancel:        cancel,
		done:          make(chan struct{}),
	}

	today := time.Now().UTC().Format(dateLayout)
	if err := s.openCurrentFile(today); err != nil {
		cancel()
		return nil, fmt.Errorf("open event file: %w", err)
	}

	s.runCleanup()
	s.populateCache()

	go s.cleanupLoop(ctx)
	return s, nil
}

// Record writes events as JSON lines, rotating by date and size as needed.
func (s *FileStore) Record(ctx context.Context, events []admission.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("event log closed")
	}

	for _, ev := range events {
		date := ev.At.UTC().Format(dateLayout)
		if date != s.currentDate {
			if err := s.rotateLocked(date, s.highestSuffix(date)); err != nil {
				return fmt.Errorf("date rotation: %w", err)
			}
		}
		if s.currentSize >= s.maxFileSize {
			if err := s.rotateLocked(s.currentDate, s.currentSuffix+1); err != nil {
				return fmt.Errorf("size rotation: %w", err)
			}
		}

		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		n, err := s.currentFile.Write(append(data, '\n'))
		if err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		s.currentSize += int64(n)
	}

	return s.cache.Record(ctx, events)
}

// Flush syncs the current file to disk.
func (s *FileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentFile != nil {
		return s.currentFile.Sync()
	}
	return nil
}

// Close stops the cleanup loop and closes the current file. Safe to call twice.
func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()

	var err error
	if s.currentFile != nil {
		_ = s.currentFile.Sync()
		err = s.currentFile.Close()
		s.currentFile = nil
	}
	s.mu.Unlock()

	<-s.done
	return err
}

// GetRecent returns up to n of the most recent events, newest first.
func (s *FileStore) GetRecent(n int) []admission.Event {
	return s.cache.GetRecent(n)
}

func (s *FileStore) openCurrentFile(date string) error {
	return s.rotateLocked(date, s.highestSuffix(date))
}

func (s *FileStore) highestSuffix(date string) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	highest := 0
	for _, e := range entries {
		f, ok := parseEventFilename(e.Name())
		if ok && f.date == date && f.suffix > highest {
			highest = f.suffix
		}
	}
	return highest
}

// rotateLocked closes the current file and opens date/suffix for appending.
// Must be called with s.mu held.
func (s *FileStore) rotateLocked(date string, suffix int) error {
	if s.currentFile != nil {
		_ = s.currentFile.Sync()
		_ = s.currentFile.Close()
		s.currentFile = nil
	}

	name := buildFilename(date, suffix)
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open file %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat file %s: %w", name, err)
	}

	s.currentFile = f
	s.currentDate = date
	s.currentSuffix = suffix
	s.currentSize = info.Size()
	return nil
}

// runCleanup deletes event files older than the retention period.
func (s *FileStore) runCleanup() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("event log cleanup: failed to read directory", "dir", s.dir, "error", err)
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for _, e := range entries {
		f, ok := parseEventFilename(e.Name())
		if !ok {
			continue
		}
		day, err := time.Parse(dateLayout, f.date)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			s.logger.Error("event log cleanup: failed to delete file", "file", e.Name(), "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info("event log cleanup completed", "deleted", deleted)
	}
}

func (s *FileStore) cleanupLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// populateCache loads the tail of the newest non-empty file into the cache.
func (s *FileStore) populateCache() {
	name := s.newestFile()
	if name == "" {
		return
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		s.logger.Error("event log: failed to open file for cache", "file", name, "error", err)
		return
	}
	defer func() { _ = f.Close() }()

	var events []admission.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev admission.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			s.logger.Warn("event log: skipping malformed line", "file", name, "error", err)
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Error("event log: error reading file", "file", name, "error", err)
	}

	if len(events) > s.cacheSize {
		events = events[len(events)-s.cacheSize:]
	}
	_ = s.cache.Record(context.Background(), events)
}

func (s *FileStore) newestFile() string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return ""
	}

	var files []eventFile
	for _, e := range entries {
		f, ok := parseEventFilename(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return ""
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].date != files[j].date {
			return files[i].date < files[j].date
		}
		return files[i].suffix < files[j].suffix
	})
	return files[len(files)-1].name
}

var (
	_ admission.EventStore = (*FileStore)(nil)
	_ admission.Flusher    = (*FileStore)(nil)
)
