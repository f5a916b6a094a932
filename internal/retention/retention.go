// Package retention enforces the on-disk log lifetime caps for logs:
// per-policy keep-count and max-age, deduplicated by {dir, policy-key} with
// a minimum re-run interval, recomputed whenever the entry count changes.
// No library in the retrieved corpus performs log-file rotation/retention
// (see DESIGN.md); this is a small, self-contained implementation.
package retention

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Policy bounds how many entries (files or directories) survive under a
// directory, and for how long.
type Policy struct {
	MaxFiles int // 0 means unbounded by count
	MaxAge time.Duration // 0 means unbounded by age
}

// runState tracks the last time a {dir, policy-key} pair was swept and how
// many entries existed then, so Enforce can skip redundant work.
type runState struct {
	lastRun time.Time
	entryCount int
}

// Enforcer applies Policy to directories, deduplicating repeated calls for
// the same {dir, key} within MinInterval.
type Enforcer struct {
	MinInterval time.Duration

	mu sync.Mutex
	state map[string]*runState
}

// NewEnforcer creates an Enforcer with the given minimum re-run interval.
func NewEnforcer(minInterval time.Duration) *Enforcer {
	if minInterval <= 0 {
		minInterval = 10 * time.Second
	}
	return &Enforcer{MinInterval: minInterval, state: make(map[string]*runState)}
}

// Enforce sweeps dir under the given policy, identified by key for
// dedup/rate-limiting purposes. It lists immediate children of dir
// (files or directories, both supported since the log layout includes
// both timestamped-file and batch-dir forms), sorts newest-first by mtime
// with lexicographic tie-break on equal mtime, and removes everything
// beyond MaxFiles or older than MaxAge.
//
// Failures removing an entry are swallowed ("rmSync errors are
// swallowed"). ENOENT-equivalent races while listing are ignored. Other
// stat errors propagate.
func (e *Enforcer) Enforce(dir, key string, policy Policy) error {
	if policy.MaxFiles <= 0 && policy.MaxAge <= 0 {
		return nil
	}

	dedupKey := dir + "\x00" + key
	now := time.Now()

	e.mu.Lock()
	st, seen := e.state[dedupKey]
	if seen && now.Sub(st.lastRun) < e.MinInterval {
		entries, err := readEntries(dir)
		if err != nil {
			e.mu.Unlock()
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if len(entries) == st.entryCount {
			e.mu.Unlock()
			return nil
		}
	}
	e.mu.Unlock()

	entries, err := readEntries(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].mtime.Equal(entries[j].mtime) {
			return entries[i].name > entries[j].name // lexicographic tie-break, newest-first overall
		}
		return entries[i].mtime.After(entries[j].mtime)
	})

	var toRemove []entry
	for i, en := range entries {
		keepByCount := policy.MaxFiles <= 0 || i < policy.MaxFiles
		keepByAge := policy.MaxAge <= 0 || now.Sub(en.mtime) <= policy.MaxAge
		if !keepByCount || !keepByAge {
			toRemove = append(toRemove, en)
		}
	}

	for _, en := range toRemove {
		// rmSync-style: swallow removal errors, including ENOENT races.
		_ = os.RemoveAll(filepath.Join(dir, en.name))
	}

	e.mu.Lock()
	e.state[dedupKey] = &runState{lastRun: now, entryCount: len(entries) - len(toRemove)}
	e.mu.Unlock()

	return nil
}

type entry struct {
	name string
	mtime time.Time
}

func readEntries(dir string) ([]entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // race: entry disappeared between ReadDir and Info
			}
			return nil, err
		}
		out = append(out, entry{name: de.Name(), mtime: info.ModTime()})
	}
	return out, nil
}
