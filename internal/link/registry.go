package link

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/basket/udo/internal/memory"
)

// IndexVersion is written into every index file.
const IndexVersion = "1.0"

// IndexEntry is one linked project in the global index.
type IndexEntry struct {
	StorageID      string    `json:"storageId"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
}

// Index is the on-disk shape of index.json, keyed by working path.
type Index struct {
	Version  string                `json:"version"`
	Projects map[string]IndexEntry `json:"projects"`
}

func emptyIndex() Index {
	return Index{Version: IndexVersion, Projects: map[string]IndexEntry{}}
}

// HasStorageID reports whether any entry already uses id.
func (idx Index) HasStorageID(id string) bool {
	for _, e := range idx.Projects {
		if e.StorageID == id {
			return true
		}
	}
	return false
}

// Registry owns the global index file. Every mutation runs under an advisory
// lock on a sidecar file and rewrites the index atomically.
type Registry struct {
	path     string
	lockPath string
	logger   *slog.Logger
}

// NewRegistry returns a registry backed by indexPath.
func NewRegistry(indexPath string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		path:     indexPath,
		lockPath: strings.TrimSuffix(indexPath, ".json") + ".lock",
		logger:   logger,
	}
}

// Path returns the index file location.
func (r *Registry) Path() string { return r.path }

// Load reads the index. A missing or corrupt file yields an empty index.
func (r *Registry) Load() Index {
	idx, err := r.read()
	if err != nil {
		r.logger.Warn("registry: corrupt index, starting empty", "path", r.path, "error", err)
		return emptyIndex()
	}
	return idx
}

func (r *Registry) read() (Index, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return emptyIndex(), nil
		}
		return emptyIndex(), err
	}
	idx := emptyIndex()
	if err := json.Unmarshal(data, &idx); err != nil {
		return emptyIndex(), err
	}
	if idx.Projects == nil {
		idx.Projects = map[string]IndexEntry{}
	}
	if idx.Version == "" {
		idx.Version = IndexVersion
	}
	return idx, nil
}

// Update loads the index under the lock, applies fn and writes the result.
// Nothing is written when fn returns an error.
func (r *Registry) Update(fn func(*Index) error) error {
	lock, err := memory.Lock(r.lockPath)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	defer lock.Unlock()

	idx := r.Load()
	if err := fn(&idx); err != nil {
		return err
	}
	if err := memory.WriteJSONAtomic(r.path, idx); err != nil {
		return fmt.Errorf("registry: write index: %w", err)
	}
	return nil
}

// WithLock runs fn against the current index while holding the lock,
// without writing anything back.
func (r *Registry) WithLock(fn func(Index) error) error {
	lock, err := memory.Lock(r.lockPath)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	defer lock.Unlock()
	return fn(r.Load())
}

// Lookup returns the entry for workingPath without touching it.
func (r *Registry) Lookup(workingPath string) (IndexEntry, bool) {
	e, ok := r.Load().Projects[workingPath]
	return e, ok
}

// Entry pairs a working path with its index entry.
type Entry struct {
	WorkingPath string
	IndexEntry
}

// Entries lists all linked projects, most recently accessed first. It never
// updates access times.
func (r *Registry) Entries() []Entry {
	idx := r.Load()
	out := make([]Entry, 0, len(idx.Projects))
	for path, e := range idx.Projects {
		out = append(out, Entry{WorkingPath: path, IndexEntry: e})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastAccessedAt.Equal(out[j].LastAccessedAt) {
			return out[i].LastAccessedAt.After(out[j].LastAccessedAt)
		}
		return out[i].WorkingPath < out[j].WorkingPath
	})
	return out
}

// Register adds or replaces the entry for workingPath.
func (r *Registry) Register(workingPath string, entry IndexEntry) error {
	return r.Update(func(idx *Index) error {
		idx.Projects[workingPath] = entry
		return nil
	})
}

// Touch sets the last-access time of an existing entry and returns it.
// Unknown paths are not registered.
func (r *Registry) Touch(workingPath string, now time.Time) (IndexEntry, bool, error) {
	var entry IndexEntry
	err := r.Update(func(idx *Index) error {
		e, ok := idx.Projects[workingPath]
		if !ok {
			return errNoEntry
		}
		e.LastAccessedAt = now
		idx.Projects[workingPath] = e
		entry = e
		return nil
	})
	if errors.Is(err, errNoEntry) {
		return IndexEntry{}, false, nil
	}
	if err != nil {
		return IndexEntry{}, false, err
	}
	return entry, true, nil
}

var errNoEntry = errors.New("registry: no entry")
