package csvconfig

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DirSources reads every *.csv file in dir, in lexical order of file
// name. The files are read fully so no handles outlive the call.
func DirSources(dir string) ([]Source, error) {
	names, err := csvFiles(dir)
	if err != nil {
		return nil, err
	}

	sources := make([]Source, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read config source: %w", err)
		}
		sources = append(sources, Source{Name: name, R: bytes.NewReader(data)})
	}
	return sources, nil
}

// csvFiles returns the sorted names of the regular *.csv files in dir.
func csvFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list config dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if filepath.Ext(e.Name()) != ".csv" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Watcher detects changes to the *.csv files of a directory by polling
// names and modification times.
//
// Thread-safety: Watcher is not safe for concurrent use. Poll it from a
// single goroutine.
type Watcher struct {
	dir  string
	seen map[string]time.Time
}

// NewWatcher creates a watcher for dir. The first call to Changed
// reports true if the directory holds any *.csv file.
func NewWatcher(dir string) *Watcher {
	return &Watcher{dir: dir, seen: map[string]time.Time{}}
}

// Changed reports whether a file was added, removed or modified since
// the previous call.
func (w *Watcher) Changed() (bool, error) {
	names, err := csvFiles(w.dir)
	if err != nil {
		return false, err
	}

	current := make(map[string]time.Time, len(names))
	for _, name := range names {
		info, err := os.Stat(filepath.Join(w.dir, name))
		if err != nil {
			// Removed between listing and stat; the next poll sees it gone.
			continue
		}
		current[name] = info.ModTime()
	}

	changed := len(current) != len(w.seen)
	if !changed {
		for name, mod := range current {
			prev, ok := w.seen[name]
			if !ok || !prev.Equal(mod) {
				changed = true
				break
			}
		}
	}

	w.seen = current
	return changed, nil
}
