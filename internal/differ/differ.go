// Package differ extracts newly appended text from successive full-text
// snapshots of a source.
package differ

import (
	"strings"
	"sync"
)

// Differ retains only the latest snapshot per source.
type Differ struct {
	mu   sync.Mutex
	last map[string]string
}

// New creates an empty Differ.
func New() *Differ {
	return &Differ{last: make(map[string]string)}
}

// Diff records text as the latest snapshot for source and returns the
// fragment that is new relative to the previous snapshot.
//
// The first snapshot of a source and an unchanged snapshot yield no
// fragment. When the previous snapshot is a prefix of text, the suffix is
// returned. When the source was cleared or rewritten, the whole of text is
// returned so nothing is silently dropped. An empty snapshot is stored but
// never reported as a fragment.
func (d *Differ) Diff(source, text string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, seen := d.last[source]
	d.last[source] = text

	switch {
	case !seen:
		return "", false
	case text == prev, text == "":
		return "", false
	case len(text) > len(prev) && strings.HasPrefix(text, prev):
		return text[len(prev):], true
	default:
		return text, true
	}
}

// Forget drops the stored snapshot for source. The next Diff for it is
// treated as a first observation.
func (d *Differ) Forget(source string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.last, source)
}

// Sources returns the number of sources with a stored snapshot.
func (d *Differ) Sources() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.last)
}
