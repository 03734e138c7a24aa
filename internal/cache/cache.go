// Package cache tracks which article identifiers have already been delivered.
//
// Each feed owns one cache file: a newline-delimited list of opaque identifier
// strings in first-seen order. The file is soft-bounded; once it grows past
// the maximum it is truncated down to the most recent minimum before the next
// identifier is recorded.
package cache

import (
	"log/slog"
	"os"
	"strings"
)

// Default bounds for the per-feed cache file.
const (
	DefaultMaxEntries = 200
	DefaultMinEntries = 75
)

// Cache answers duplicate checks against per-feed cache files. The zero value
// uses the default bounds. Callers must not share one cache file between
// concurrent invocations.
type Cache struct {
	Max    int // entries allowed before eviction, 0 means DefaultMaxEntries
	Min    int // entries kept after eviction, 0 means DefaultMinEntries
	DryRun bool
	Logger *slog.Logger
}

func (c Cache) max() int {
	if c.Max > 0 {
		return c.Max
	}
	return DefaultMaxEntries
}

func (c Cache) min() int {
	if c.Min > 0 {
		return c.Min
	}
	return DefaultMinEntries
}

// IsDuplicate reports whether id has been seen before for the cache file at
// path, recording it as seen when it has not. The eviction decision depends
// only on the number of entries present, never on their age.
func (c Cache) IsDuplicate(path, id string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		// First check for this feed, start a new cache file.
		c.save(path, id+"\n", false)
		return false
	}

	ids := strings.Fields(string(data))
	for _, seen := range ids {
		if seen == id {
			return true
		}
	}

	if len(ids) > c.max() {
		keep := append(ids[len(ids)-c.min():], id)
		c.save(path, strings.Join(keep, "\n")+"\n", true)
	} else {
		c.save(path, id+"\n", false)
	}
	return false
}

// save appends to (or, when truncate is set, rewrites) the cache file.
// Failures are logged and swallowed: losing a cache entry means at worst a
// resent article, which beats aborting delivery.
func (c Cache) save(path, data string, truncate bool) {
	if c.DryRun {
		return
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if truncate {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		c.logf("open article cache", path, err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(data); err != nil {
		c.logf("write article cache", path, err)
	}
}

func (c Cache) logf(msg, path string, err error) {
	if c.Logger != nil {
		c.Logger.Warn(msg, "path", path, "error", err)
	}
}
