package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hako/durafmt"
)

var logger = newSimpleLogger()

const (
	logLevelDebug logLevel = iota
	logLevelInfo
	logLevelWarn
	logLevelError
)

const logRetentionDays = 3

var levelNames = []string{
	"DEBUG",
	"INFO",
	"WARN",
	"ERROR",
}

type logLevel int

func (l logLevel) String() string {
	if int(l) >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

func parseLogLevel(name string) (logLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return logLevelDebug, nil
	case "", "info":
		return logLevelInfo, nil
	case "warn", "warning":
		return logLevelWarn, nil
	case "error":
		return logLevelError, nil
	default:
		return logLevelInfo, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", name)
	}
}

type logEvent struct {
	at    time.Time
	level logLevel
	msg   string
	attrs []any
}

// logSink receives every entry at or above minLevel.
type logSink struct {
	minLevel logLevel
	w        io.Writer
}

// simpleLogger formats entries on a background goroutine so hot paths
// (stratum reads, the template poller) never block on disk I/O.
type simpleLogger struct {
	level    atomic.Int32
	queue    chan logEvent
	done     chan struct{}
	sinksMu  sync.RWMutex
	sinks    []logSink
	wg       sync.WaitGroup
	stopOnce sync.Once
	closing  atomic.Bool
}

func newSimpleLogger() *simpleLogger {
	l := &simpleLogger{
		queue: make(chan logEvent, 4096),
		done:  make(chan struct{}),
		sinks: []logSink{{minLevel: logLevelDebug, w: os.Stdout}},
	}
	l.level.Store(int32(logLevelInfo))
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *simpleLogger) run() {
	defer l.wg.Done()
	for {
		select {
		case evt := <-l.queue:
			l.writeEntry(evt)
		case <-l.done:
			for {
				select {
				case evt := <-l.queue:
					l.writeEntry(evt)
				default:
					return
				}
			}
		}
	}
}

func (l *simpleLogger) log(level logLevel, msg string, attrs ...any) {
	if level < logLevel(l.level.Load()) {
		return
	}
	if l.closing.Load() {
		return
	}
	evt := logEvent{at: time.Now(), level: level, msg: msg, attrs: append([]any(nil), attrs...)}
	select {
	case l.queue <- evt:
	case <-l.done:
	}
}

func (l *simpleLogger) Info(msg string, attrs ...any)  { l.log(logLevelInfo, msg, attrs...) }
func (l *simpleLogger) Warn(msg string, attrs ...any)  { l.log(logLevelWarn, msg, attrs...) }
func (l *simpleLogger) Error(msg string, attrs ...any) { l.log(logLevelError, msg, attrs...) }
func (l *simpleLogger) Debug(msg string, attrs ...any) { l.log(logLevelDebug, msg, attrs...) }

func (l *simpleLogger) Enabled(level logLevel) bool {
	return level >= logLevel(l.level.Load())
}

func (l *simpleLogger) setLevel(level logLevel) {
	l.level.Store(int32(level))
}

func (l *simpleLogger) setSinks(sinks ...logSink) {
	l.sinksMu.Lock()
	old := l.sinks
	l.sinks = sinks
	l.sinksMu.Unlock()
	for _, s := range old {
		if s.w != os.Stdout {
			closeWriter(s.w)
		}
	}
}

func (l *simpleLogger) Stop() {
	l.stopOnce.Do(func() {
		l.closing.Store(true)
		close(l.done)
		l.wg.Wait()
		l.sinksMu.Lock()
		for _, s := range l.sinks {
			if s.w != os.Stdout {
				closeWriter(s.w)
			}
		}
		l.sinks = nil
		l.sinksMu.Unlock()
	})
}

func closeWriter(w io.Writer) {
	if closer, ok := w.(io.Closer); ok {
		_ = closer.Close()
	}
}

func (l *simpleLogger) writeEntry(evt logEvent) {
	var entry strings.Builder
	entry.WriteString(evt.at.UTC().Format(time.RFC3339Nano))
	entry.WriteString(" [")
	entry.WriteString(evt.level.String())
	entry.WriteString("] ")
	entry.WriteString(evt.msg)
	if attrs := formatAttrs(evt.attrs); attrs != "" {
		entry.WriteByte(' ')
		entry.WriteString(attrs)
	}
	entry.WriteByte('\n')
	line := []byte(entry.String())

	l.sinksMu.RLock()
	defer l.sinksMu.RUnlock()
	for _, s := range l.sinks {
		if evt.level >= s.minLevel && s.w != nil {
			_, _ = s.w.Write(line)
		}
	}
}

func formatAttrs(attrs []any) string {
	if len(attrs) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(attrs); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		key := fmt.Sprint(attrs[i])
		if i+1 < len(attrs) {
			b.WriteString(key)
			b.WriteByte('=')
			b.WriteString(formatAttrValue(attrs[i+1]))
			i++
		} else {
			b.WriteString(key)
		}
	}
	return b.String()
}

func formatAttrValue(v any) string {
	switch val := v.(type) {
	case time.Duration:
		return formatDuration(val)
	case string:
		if strings.ContainsAny(val, " \t\"") {
			return fmt.Sprintf("%q", val)
		}
		return val
	default:
		return fmt.Sprint(v)
	}
}

// formatDuration renders long durations as "2 hours 5 minutes" and keeps
// sub-second ones in Go notation.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.String()
	}
	return durafmt.Parse(d.Round(time.Second)).LimitFirstN(2).String()
}

func newDailyRollingFileWriter(path string) io.Writer {
	if path == "" {
		return io.Discard
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return &dailyRollingFileWriter{
		dir:  filepath.Dir(path),
		name: strings.TrimSuffix(base, ext),
		ext:  ext,
	}
}

type dailyRollingFileWriter struct {
	dir         string
	name        string
	ext         string
	mu          sync.Mutex
	f           *os.File
	currentDate string
}

func (w *dailyRollingFileWriter) ensureFile(now time.Time) error {
	date := now.UTC().Format(time.DateOnly)
	if w.f != nil && w.currentDate == date {
		return nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	target := filepath.Join(w.dir, fmt.Sprintf("%s-%s%s", w.name, date, w.ext))
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.currentDate = date
	w.cleanupOldLogs(now)
	return nil
}

func (w *dailyRollingFileWriter) cleanupOldLogs(now time.Time) {
	cutoff := now.UTC().AddDate(0, 0, -(logRetentionDays - 1))
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	prefix := w.name + "-"
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, w.ext) {
			continue
		}
		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), w.ext)
		ts, err := time.Parse(time.DateOnly, dateStr)
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			_ = os.Remove(filepath.Join(w.dir, name))
		}
	}
}

func (w *dailyRollingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureFile(time.Now()); err != nil {
		return 0, err
	}
	return w.f.Write(p)
}

func (w *dailyRollingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Sync()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.f = nil
	return err
}

// configureFileLogging routes everything to proxy.log, errors additionally
// to error.log, and optionally mirrors to stdout.
func configureFileLogging(dataDir string, stdout bool) (string, error) {
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", err
	}
	sinks := []logSink{
		{minLevel: logLevelDebug, w: newDailyRollingFileWriter(filepath.Join(logDir, "proxy.log"))},
		{minLevel: logLevelError, w: newDailyRollingFileWriter(filepath.Join(logDir, "error.log"))},
	}
	if stdout {
		sinks = append(sinks, logSink{minLevel: logLevelDebug, w: os.Stdout})
	}
	logger.setSinks(sinks...)
	return logDir, nil
}

func setLogLevel(level logLevel) {
	logger.setLevel(level)
}

func fatal(msg string, err error, attrs ...any) {
	attrPairs := append(attrs, "error", err)
	logger.Error(msg, attrPairs...)
	logger.Stop()
	os.Exit(1)
}
