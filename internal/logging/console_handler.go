package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const consoleTimeLayout = "2006-01-02 15:04:05"

// consoleState is shared by every handler derived through WithAttrs or
// WithGroup so that writes and repeat suppression stay serialized.
type consoleState struct {
	mu     sync.Mutex
	w      io.Writer
	recent map[string]map[string]string
}

// consoleHandler renders one header line per record followed by indented
// fields. Info and above show a curated field list; debug shows every attr.
type consoleHandler struct {
	state     *consoleState
	level     *slog.LevelVar
	addSource bool
	attrs     []kv
	prefix    []string
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{
		state:     &consoleState{w: w, recent: make(map[string]map[string]string)},
		level:     lvl,
		addSource: addSource,
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}

	attrs := make([]kv, 0, len(h.attrs)+record.NumAttrs())
	attrs = append(attrs, h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		attrs = appendFlattened(attrs, h.prefix, attr)
		return true
	})
	attrs = lastValueWins(attrs)

	header := consoleHeader{
		ts:        record.Time,
		level:     record.Level,
		component: attrValue(attrs, FieldComponent),
		subject:   sessionSubject(attrValue(attrs, FieldSessionID), attrValue(attrs, FieldStage)),
		message:   strings.TrimSpace(record.Message),
	}
	if h.addSource {
		header.source = record.Source()
	}

	var b strings.Builder
	header.write(&b)

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	if record.Level < slog.LevelInfo {
		for _, attr := range attrs {
			if attr.key == FieldComponent {
				continue
			}
			b.WriteString("    ")
			b.WriteString(attr.key)
			b.WriteString(": ")
			b.WriteString(formatValue(attr.value))
			b.WriteByte('\n')
		}
	} else {
		fields, hidden := selectInfoFields(attrs, infoAttrLimit, false)
		fields = h.state.dropRepeats(infoSummaryKey(header.component, attrValue(attrs, FieldSessionID), attrs), fields, record.Level)
		for _, f := range fields {
			b.WriteString("    - ")
			b.WriteString(f.label)
			b.WriteString(": ")
			b.WriteString(f.value)
			b.WriteByte('\n')
		}
		if hidden > 0 {
			b.WriteString("    + ")
			b.WriteString(strconv.Itoa(hidden))
			if hidden == 1 {
				b.WriteString(" more field hidden\n")
			} else {
				b.WriteString(" more fields hidden\n")
			}
		}
	}

	_, err := io.WriteString(h.state.w, b.String())
	return err
}

// dropRepeats removes info fields whose value matches the last one printed
// for the same scope. Warnings and errors always print in full and refresh
// the remembered values.
func (s *consoleState) dropRepeats(scope string, fields []infoField, level slog.Level) []infoField {
	if scope == "" || len(fields) == 0 {
		return fields
	}
	seen, ok := s.recent[scope]
	if !ok {
		seen = make(map[string]string)
		s.recent[scope] = seen
	}
	kept := fields[:0:0]
	for _, f := range fields {
		prev, had := seen[f.label]
		seen[f.label] = f.value
		if level <= slog.LevelInfo && had && prev == f.value {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]kv, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, attr := range attrs {
		next.attrs = appendFlattened(next.attrs, h.prefix, attr)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = append(append([]string{}, h.prefix...), name)
	return &next
}

type consoleHeader struct {
	ts        time.Time
	level     slog.Level
	component string
	subject   string
	message   string
	source    *slog.Source
}

// write renders "2026-01-02 15:04:05 INFO [matcher] Session 1a2b3c4d (match) – message".
func (c consoleHeader) write(b *strings.Builder) {
	ts := c.ts
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.In(time.Local).Format(consoleTimeLayout))
	b.WriteByte(' ')
	b.WriteString(levelLabel(c.level))
	if c.component != "" {
		b.WriteString(" [" + c.component + "]")
	}
	if c.subject != "" {
		b.WriteString(" " + c.subject)
	}
	msg := c.message
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(" – " + msg)
	if c.source != nil && c.source.File != "" {
		b.WriteString(" [" + filepath.Base(c.source.File) + ":" + strconv.Itoa(c.source.Line) + "]")
	}
	b.WriteByte('\n')
}

// sessionSubject shortens a session UUID to its first block:
// "Session 1a2b3c4d (confirm)".
func sessionSubject(sessionID, stage string) string {
	id, _, _ := strings.Cut(strings.TrimSpace(sessionID), "-")
	stage = strings.TrimSpace(stage)
	switch {
	case id != "" && stage != "":
		return "Session " + id + " (" + stage + ")"
	case id != "":
		return "Session " + id
	default:
		return stage
	}
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

type kv struct {
	key   string
	value slog.Value
}

// appendFlattened expands groups into dotted keys.
func appendFlattened(dst []kv, prefix []string, attr slog.Attr) []kv {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		inner := prefix
		if attr.Key != "" {
			inner = append(append([]string{}, prefix...), attr.Key)
		}
		for _, child := range value.Group() {
			dst = appendFlattened(dst, inner, child)
		}
		return dst
	}
	key := attr.Key
	if len(prefix) > 0 {
		key = strings.Join(append(append([]string{}, prefix...), attr.Key), ".")
	}
	if key == "" {
		return dst
	}
	return append(dst, kv{key: key, value: value})
}

// lastValueWins keeps the first position of each key with its final value.
func lastValueWins(attrs []kv) []kv {
	index := make(map[string]int, len(attrs))
	out := attrs[:0:0]
	for _, attr := range attrs {
		if i, ok := index[attr.key]; ok {
			out[i].value = attr.value
			continue
		}
		index[attr.key] = len(out)
		out = append(out, attr)
	}
	return out
}
