// Package redact masks secrets in log output before it leaves the process.
//
// Two mechanisms apply: attribute keys that name a secret (token, password,
// ...) have their string values replaced, and any occurrence of an explicitly
// registered value is replaced wherever it appears in a message or attribute.
package redact

import (
	"context"
	"log/slog"
	"strings"
)

// Placeholder replaces every masked value.
const Placeholder = "[REDACTED]"

// minLen is the shortest value String will mask.
const minLen = 4

// String replaces every occurrence of each value in s with Placeholder.
// Values shorter than four characters are ignored.
func String(s string, values ...string) string {
	for _, v := range values {
		if len(v) < minLen {
			continue
		}
		s = strings.ReplaceAll(s, v, Placeholder)
	}
	return s
}

// IsSensitiveKey reports whether an attribute or config key names a secret.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"password", "passwd", "token", "secret", "credential", "apikey", "api_key"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// Handler is a slog.Handler that masks secrets before passing records on.
type Handler struct {
	next   slog.Handler
	values []string
}

// NewHandler wraps next. values are masked wherever they appear.
func NewHandler(next slog.Handler, values ...string) *Handler {
	var keep []string
	for _, v := range values {
		if len(v) >= minLen {
			keep = append(keep, v)
		}
	}
	return &Handler{next: next, values: keep}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, String(r.Message, h.values...), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.attr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.attr(a)
	}
	return &Handler{next: h.next.WithAttrs(masked), values: h.values}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name), values: h.values}
}

func (h *Handler) attr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	switch a.Value.Kind() {
	case slog.KindGroup:
		group := a.Value.Group()
		masked := make([]any, len(group))
		for i, g := range group {
			masked[i] = h.attr(g)
		}
		return slog.Group(a.Key, masked...)
	case slog.KindString:
		s := a.Value.String()
		if s != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, Placeholder)
		}
		return slog.String(a.Key, String(s, h.values...))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok && len(h.values) > 0 {
			return slog.String(a.Key, String(err.Error(), h.values...))
		}
	}
	return a
}
