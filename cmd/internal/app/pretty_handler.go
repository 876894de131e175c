package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler writes one line per record for terminals:
//
//	15:04:05.000 INFO  session.login.ok subject=u1 scope=durable
//
// Credential-bearing keys are always redacted.
type prettyHandler struct {
	out    *syncWriter
	level  slog.Leveler
	source bool
	color  bool
	prefix string // fields rendered by WithAttrs
	group  string // dotted group path, with trailing dot
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(p)
	return err
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{out: &syncWriter{w: w}, level: slog.LevelInfo, color: color}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.source = opts.AddSource
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	buf := make([]byte, 0, 256)
	buf = append(buf, paint(ts.Format("15:04:05.000"), ansiDim, h.color)...)
	buf = append(buf, ' ')
	buf = append(buf, levelLabel(r.Level, h.color)...)
	buf = append(buf, ' ')
	buf = append(buf, paint(r.Message, eventTone(r.Message), h.color)...)

	if h.source && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			src := fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
			buf = append(buf, ' ')
			buf = append(buf, paint(src, ansiDim, h.color)...)
		}
	}

	buf = append(buf, h.prefix...)
	r.Attrs(func(a slog.Attr) bool {
		buf = h.appendField(buf, h.group, a)
		return true
	})
	buf = append(buf, '\n')

	return h.out.write(buf)
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	cp := *h
	buf := []byte(h.prefix)
	for _, a := range attrs {
		buf = cp.appendField(buf, h.group, a)
	}
	cp.prefix = string(buf)
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	cp := *h
	cp.group = h.group + name + "."
	return &cp
}

func (h *prettyHandler) appendField(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			buf = h.appendField(buf, prefix, ga)
		}
		return buf
	}

	key := strings.TrimSpace(a.Key)
	if key == "" {
		return buf
	}

	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, shortKey(key)...)
	buf = append(buf, '=')
	return append(buf, h.formatValue(key, a.Value)...)
}

func (h *prettyHandler) formatValue(key string, v slog.Value) string {
	if isSecretKey(key) {
		return paint("[redacted]", ansiDim, h.color)
	}

	s := strings.TrimSpace(valueString(v))
	switch key {
	case "method":
		s = strings.ToUpper(s)
		return paint(s, methodTones[s], h.color)
	case "path":
		return paint(s, ansiCyan, h.color)
	case "status":
		if n, ok := intValue(v); ok && v.Kind() != slog.KindString {
			return paint(s, statusTone(n), h.color)
		}
		return paint(s, lifecycleTones[strings.ToLower(s)], h.color)
	case "state", "from", "to":
		return paint(s, lifecycleTones[strings.ToLower(s)], h.color)
	case "status_class":
		return paint(s, classTone(s), h.color)
	case "duration_ms":
		if n, ok := intValue(v); ok {
			return paint(s+"ms", durationTone(n), h.color)
		}
	case "result":
		return paint(s, resultTones[strings.ToLower(s)], h.color)
	case "err", "error":
		return paint(quoteField(s), ansiRed, h.color)
	}
	return quoteField(s)
}

func shortKey(k string) string {
	switch k {
	case "status_class":
		return "class"
	case "duration_ms":
		return "duration"
	}
	return k
}

func isSecretKey(k string) bool {
	k = strings.ToLower(k)
	switch k {
	case "password", "token", "authorization", "cookie", "secret":
		return true
	}
	return strings.HasSuffix(k, "_token") || strings.HasSuffix(k, "_password")
}

func valueString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func intValue(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func quoteField(s string) string {
	if s == "" {
		return `""`
	}
	if strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '"' || r == '=' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}
