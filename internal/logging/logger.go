// Package logging builds the operational logger and the intervention trace.
//
// Operational output is a leveled slog text logger, normally on stderr.
// Intervention decisions go to <results>/decisions.jsonl, one JSON object
// per line, and only when the level is debug or trace.
package logging

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// DecisionsFile is the JSONL trace file name inside the results directory.
const DecisionsFile = "decisions.jsonl"

// LevelTrace is a custom slog level below Debug. At this level the
// simulation also reports per-day details such as extinction.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps "info", "debug" or "trace" (any case) to a slog.Level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// NewLogger returns a text logger writing to w at the given level.
// Records at LevelTrace are labelled TRACE.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: labelTrace,
	}))
}

func labelTrace(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if l, ok := a.Value.Any().(slog.Level); ok && l == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// Discard returns a logger that drops everything. Packages use it when the
// caller passes a nil logger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// DecisionLogger appends intervention decisions to a JSONL file. Lines are
// buffered and reach the file on Close. Every line carries a sequence
// number, a timestamp and the tags set with Tag.
//
// A nil *DecisionLogger is valid and discards everything, so callers never
// need to check whether tracing is enabled.
type DecisionLogger struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	tags map[string]any
	seq  int
	now  func() time.Time
}

// NewDecisionLogger opens dir/decisions.jsonl for append when level is
// debug or trace. It returns nil at info level, or when the file cannot be
// opened; tracing is best effort and never fails a run.
func NewDecisionLogger(dir string, level string) *DecisionLogger {
	if ParseLevel(level) > slog.LevelDebug {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, DecisionsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &DecisionLogger{f: f, w: bufio.NewWriter(f), now: time.Now}
}

// Tag sets a field written on every later line, typically the run id.
// A field of the same name in the event itself takes precedence.
func (dl *DecisionLogger) Tag(key string, value any) {
	if dl == nil {
		return
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.tags == nil {
		dl.tags = make(map[string]any)
	}
	dl.tags[key] = value
}

// Log buffers one event. The caller's map is not modified.
func (dl *DecisionLogger) Log(event map[string]any) {
	if dl == nil {
		return
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.w == nil {
		return
	}

	dl.seq++
	line := make(map[string]any, len(dl.tags)+len(event)+2)
	for k, v := range dl.tags {
		line[k] = v
	}
	for k, v := range event {
		line[k] = v
	}
	line["seq"] = dl.seq
	line["time"] = dl.now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(line)
	if err != nil {
		dl.seq--
		return
	}
	dl.w.Write(data)
	dl.w.WriteByte('\n')
}

// Count returns the number of events logged so far.
func (dl *DecisionLogger) Count() int {
	if dl == nil {
		return 0
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	return dl.seq
}

// Close flushes buffered lines and closes the file. Later calls, and calls
// on a nil logger, return nil.
func (dl *DecisionLogger) Close() error {
	if dl == nil {
		return nil
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.w == nil {
		return nil
	}

	err := dl.w.Flush()
	if cerr := dl.f.Close(); err == nil {
		err = cerr
	}
	dl.w, dl.f = nil, nil
	return err
}
