package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// LogWriter persists one log record of a job.
type LogWriter interface {
	InsertLog(ctx context.Context, jobID uuid.UUID, ts time.Time, level, message string, metadata []byte) error
}

// DBLogHandler is a slog.Handler that writes records to the database and
// optionally mirrors them to another handler.
type DBLogHandler struct {
	store  LogWriter
	jobID  uuid.UUID
	level  slog.Leveler
	mirror slog.Handler

	attrs  []slog.Attr
	groups []string
}

// NewDBLogHandler creates a handler for jobID. mirror may be nil.
func NewDBLogHandler(store LogWriter, jobID uuid.UUID, mirror slog.Handler) *DBLogHandler {
	return &DBLogHandler{
		store:  store,
		jobID:  jobID,
		level:  slog.LevelInfo,
		mirror: mirror,
	}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= h.level.Level() {
		return true
	}
	return h.mirror != nil && h.mirror.Enabled(ctx, level)
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.mirror != nil && h.mirror.Enabled(ctx, r.Level) {
		_ = h.mirror.Handle(ctx, r.Clone())
	}
	if r.Level < h.level.Level() {
		return nil
	}

	attrs := make(map[string]any)
	for _, a := range h.attrs {
		addAttr(attrs, a)
	}
	target := attrs
	for _, g := range h.groups {
		sub, ok := target[g].(map[string]any)
		if !ok {
			sub = make(map[string]any)
			target[g] = sub
		}
		target = sub
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(target, a)
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		metaJSON = []byte("{}")
	}

	// Logs must persist even when the run context was cancelled.
	return h.store.InsertLog(context.Background(), h.jobID, r.Time, r.Level.String(), r.Message, metaJSON)
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := h.clone()
	if len(c.groups) == 0 {
		c.attrs = append(c.attrs, attrs...)
	} else {
		// Attributes added inside a group belong to that group.
		c.attrs = append(c.attrs, nestAttrs(c.groups, attrs))
	}
	if c.mirror != nil {
		c.mirror = c.mirror.WithAttrs(attrs)
	}
	return c
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.groups = append(c.groups, name)
	if c.mirror != nil {
		c.mirror = c.mirror.WithGroup(name)
	}
	return c
}

func (h *DBLogHandler) clone() *DBLogHandler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	c.groups = append([]string(nil), h.groups...)
	return &c
}

func nestAttrs(groups []string, attrs []slog.Attr) slog.Attr {
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	a := slog.Group(groups[len(groups)-1], args...)
	for i := len(groups) - 2; i >= 0; i-- {
		a = slog.Group(groups[i], a)
	}
	return a
}

func addAttr(dst map[string]any, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	switch a.Value.Kind() {
	case slog.KindGroup:
		group := a.Value.Group()
		if len(group) == 0 {
			return
		}
		target := dst
		if a.Key != "" {
			sub, ok := dst[a.Key].(map[string]any)
			if !ok {
				sub = make(map[string]any)
				dst[a.Key] = sub
			}
			target = sub
		}
		for _, ga := range group {
			addAttr(target, ga)
		}
	default:
		v := a.Value.Any()
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		dst[a.Key] = v
	}
}
