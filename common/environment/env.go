// Package environment reads configuration overrides from environment variables.
//
// A Reader scopes every lookup to a fixed prefix (e.g. "KIN_") so callers name
// settings by their short key ("WAKE_PHRASE") and the process environment stays
// the single source of overrides. Lookups never fail: a value that is unset,
// empty, or unparseable reports ok=false and the caller keeps its current value.
package environment

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Reader resolves prefixed environment variables.
type Reader struct {
	Prefix string

	// lookup defaults to os.LookupEnv; tests replace it with a map.
	lookup func(string) (string, bool)
}

// New returns a Reader for the given prefix backed by the process environment.
func New(prefix string) *Reader {
	return &Reader{Prefix: prefix, lookup: os.LookupEnv}
}

// FromMap returns a Reader backed by a fixed map instead of the process
// environment. Keys in m are full variable names (prefix included).
func FromMap(prefix string, m map[string]string) *Reader {
	return &Reader{Prefix: prefix, lookup: func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}}
}

// Name returns the full variable name for key.
func (r *Reader) Name(key string) string {
	return r.Prefix + key
}

func (r *Reader) raw(key string) (string, bool) {
	lookup := r.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(r.Name(key))
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// String returns the trimmed value of key when it is set and non-empty.
func (r *Reader) String(key string) (string, bool) {
	v, ok := r.raw(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// StringOr returns the value of key, or def when it is unset or empty.
func (r *Reader) StringOr(key, def string) string {
	if v, ok := r.String(key); ok {
		return v
	}
	return def
}

// Bool parses key with strconv.ParseBool.
func (r *Reader) Bool(key string) (bool, bool) {
	v, ok := r.raw(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return b, true
}

// Int parses key as a decimal integer.
func (r *Reader) Int(key string) (int, bool) {
	v, ok := r.raw(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Duration parses key with time.ParseDuration ("300ms", "2s").
func (r *Reader) Duration(key string) (time.Duration, bool) {
	v, ok := r.raw(key)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return d, true
}

// SetString overwrites *dst when key is set.
func (r *Reader) SetString(dst *string, key string) {
	if v, ok := r.String(key); ok {
		*dst = v
	}
}

// SetBool overwrites *dst when key parses as a boolean.
func (r *Reader) SetBool(dst *bool, key string) {
	if v, ok := r.Bool(key); ok {
		*dst = v
	}
}

// SetInt overwrites *dst when key parses as an integer.
func (r *Reader) SetInt(dst *int, key string) {
	if v, ok := r.Int(key); ok {
		*dst = v
	}
}

// SetDuration overwrites *dst when key parses as a duration.
func (r *Reader) SetDuration(dst *time.Duration, key string) {
	if v, ok := r.Duration(key); ok {
		*dst = v
	}
}
