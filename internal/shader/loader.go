package shader

import (
	"fmt"
	"os"
	"time"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/cache"
)

// DefaultLoaderCapacity is the number of modules a Loader keeps.
const DefaultLoaderCapacity = 64

// fileKey identifies one version of a shader file on disk. A rewritten
// file gets a new key, so stale modules are never returned.
type fileKey struct {
	path    string
	modTime time.Time
	size    int64
}

// Loader loads shader files and keeps recently used modules in memory.
// Pipelines that share a shader only read and decode it once.
//
// Loader is safe for concurrent use. Modules it returns are shared and must
// not be modified.
type Loader struct {
	modules *cache.Cache[fileKey, *Module]
}

// NewLoader creates a loader that keeps up to capacity modules.
func NewLoader(capacity int) *Loader {
	return &Loader{modules: cache.New[fileKey, *Module](capacity)}
}

// Load returns the module at name, decoding it only when the file changed
// since the last call.
func (l *Loader) Load(name string) (*Module, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rhi.ErrIO, err)
	}
	key := fileKey{path: name, modTime: fi.ModTime(), size: fi.Size()}
	if m, ok := l.modules.Get(key); ok {
		return m, nil
	}

	m, err := Load(name)
	if err != nil {
		return nil, err
	}
	l.modules.Set(key, m)
	return m, nil
}

// Stats reports cache usage.
func (l *Loader) Stats() cache.Stats { return l.modules.Stats() }

// Purge drops every cached module.
func (l *Loader) Purge() { l.modules.Clear() }
