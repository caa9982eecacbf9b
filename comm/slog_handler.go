package comm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// slogHandler forwards structured records to comm, so that
// packages logging through log/slog end up in the same stream.
type slogHandler struct {
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

var _ slog.Handler = (*slogHandler)(nil)

// NewSlogHandler returns a slog.Handler that emits logs through comm.
func NewSlogHandler(level slog.Leveler) slog.Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &slogHandler{level: level}
}

// NewLogger is a shorthand for slog.New(NewSlogHandler(level))
func NewLogger(level slog.Leveler) *slog.Logger {
	return slog.New(NewSlogHandler(level))
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *slogHandler) Handle(_ context.Context, r slog.Record) error {
	obj := JsonMessage{
		"type":    "log",
		"time":    time.Now().UTC().Unix(),
		"level":   commLevel(r.Level),
		"message": r.Message,
	}

	for _, attr := range h.attrs {
		addAttr(obj, h.groups, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		addAttr(obj, h.groups, attr)
		return true
	})

	if JsonEnabled() {
		// the handler level already decided, comm's own debug filtering doesn't apply
		sendJSON(obj)
		return nil
	}

	level, _ := obj["level"].(string)
	if level == "" {
		level = "info"
	}
	Logl(level, fmt.Sprintf("%v", obj["message"]))
	return nil
}

func (h *slogHandler) clone() *slogHandler {
	return &slogHandler{
		level:  h.level,
		groups: append([]string{}, h.groups...),
		attrs:  append([]slog.Attr{}, h.attrs...),
	}
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.attrs = append(nh.attrs, attrs...)
	return nh
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	return nh
}

func addAttr(obj JsonMessage, groups []string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		nextGroups := append([]string{}, groups...)
		if attr.Key != "" {
			nextGroups = append(nextGroups, attr.Key)
		}
		for _, groupAttr := range attr.Value.Group() {
			addAttr(obj, nextGroups, groupAttr)
		}
		return
	}

	if attr.Key == "" {
		return
	}

	key := strings.Join(append(append([]string{}, groups...), attr.Key), ".")
	obj[key] = attr.Value.Any()
}

func commLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warning"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
