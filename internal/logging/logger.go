package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"mkvshrink/internal/config"
)

// logFileName is the file kept under paths.log_dir.
const logFileName = "mkvshrink.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Console receives every record; nil means os.Stderr.
	Console io.Writer
	// Files are opened for append and receive the same records.
	Files []string
}

// New constructs a logger writing Format records to the console and files.
// Debug level adds the caller to each record.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	out, err := openOutputs(opts.Console, opts.Files)
	if err != nil {
		return nil, err
	}
	withSource := level <= slog.LevelDebug

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		return slog.New(newConsoleHandler(out, level, withSource)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(out, jsonOptions(level, withSource))), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewFromConfig builds the logger for one CLI invocation. Records go to
// console and are appended to mkvshrink.log under paths.log_dir plus the
// optional logging.file.
func NewFromConfig(cfg *config.Config, console io.Writer) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Console: console})
	}
	var files []string
	if dir := cfg.Paths.LogDir; dir != "" {
		files = append(files, filepath.Join(dir, logFileName))
	}
	if extra := strings.TrimSpace(cfg.Logging.File); extra != "" {
		files = append(files, extra)
	}
	return New(Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: console,
		Files:   files,
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openOutputs returns one serialized writer over the console and each
// distinct file.
func openOutputs(console io.Writer, files []string) (*lockedWriter, error) {
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{console}
	seen := make(map[string]bool, len(files))
	for _, path := range files {
		path = filepath.Clean(strings.TrimSpace(path))
		if path == "." || seen[path] {
			continue
		}
		seen[path] = true
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		writers = append(writers, f)
	}
	if len(writers) == 1 {
		return &lockedWriter{w: console}, nil
	}
	return &lockedWriter{w: io.MultiWriter(writers...)}, nil
}

// lockedWriter keeps lines from concurrent workers whole. Handler clones
// share it.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func jsonOptions(level slog.Level, withSource bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:     level,
		AddSource: withSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.String("ts", a.Value.Time().UTC().Format(time.RFC3339Nano))
			case slog.LevelKey:
				return slog.String(slog.LevelKey, strings.ToLower(a.Value.String()))
			case slog.SourceKey:
				if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
					return slog.String(slog.SourceKey, filepath.Base(src.File)+":"+strconv.Itoa(src.Line))
				}
			}
			return a
		},
	}
}

// consoleHandler writes one line per record:
//
//	2026-03-01T12:00:00Z INFO encoder [movie.mp4] compression finished job_id=1f3a9c2e output_bytes=1048576
//
// The component and the input's base name move ahead of the message, and
// batch and job ids are cut to their first eight characters.
type consoleHandler struct {
	out        *lockedWriter
	level      slog.Level
	withSource bool

	component string
	input     string
	prefix    string // open groups, dot-terminated
	attrs     []byte // pre-rendered " key=value" pairs
}

func newConsoleHandler(out *lockedWriter, level slog.Level, withSource bool) *consoleHandler {
	return &consoleHandler{out: out, level: level, withSource: withSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	head := lifted{component: h.component, input: h.input}
	tail := append([]byte(nil), h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		tail = appendAttr(tail, h.prefix, a, &head)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf := make([]byte, 0, 96+len(tail))
	buf = ts.UTC().AppendFormat(buf, time.RFC3339)
	buf = append(buf, ' ')
	buf = append(buf, levelLabel(r.Level)...)
	if head.component != "" {
		buf = append(buf, ' ')
		buf = append(buf, head.component...)
	}
	if head.input != "" {
		buf = append(buf, " ["...)
		buf = append(buf, head.input...)
		buf = append(buf, ']')
	}
	buf = append(buf, ' ')
	if msg := strings.TrimSpace(r.Message); msg != "" {
		buf = append(buf, msg...)
	} else {
		buf = append(buf, "(no message)"...)
	}
	if h.withSource && r.PC != 0 {
		if src := r.Source(); src != nil {
			buf = append(buf, " ("...)
			buf = append(buf, filepath.Base(src.File)...)
			buf = append(buf, ':')
			buf = strconv.AppendInt(buf, int64(src.Line), 10)
			buf = append(buf, ')')
		}
	}
	buf = append(buf, tail...)
	buf = append(buf, '\n')
	_, err := h.out.Write(buf)
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	head := lifted{component: h.component, input: h.input}
	clone.attrs = append([]byte(nil), h.attrs...)
	for _, a := range attrs {
		clone.attrs = appendAttr(clone.attrs, h.prefix, a, &head)
	}
	clone.component, clone.input = head.component, head.input
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

// lifted collects the attributes rendered ahead of the message.
type lifted struct {
	component string
	input     string
}

func appendAttr(buf []byte, prefix string, a slog.Attr, head *lifted) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			buf = appendAttr(buf, inner, ga, head)
		}
		return buf
	}

	value := renderValue(a.Value)
	if prefix == "" {
		switch a.Key {
		case FieldComponent:
			head.component = value
			return buf
		case FieldInput:
			head.input = filepath.Base(value)
			return buf
		case FieldBatchID, FieldJobID:
			value = shortID(value)
		}
	}
	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	if needsQuoting(value) {
		return strconv.AppendQuote(buf, value)
	}
	return append(buf, value...)
}

func renderValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return r <= ' ' || r == '=' || r == '"' || !unicode.IsPrint(r)
	}) >= 0
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
