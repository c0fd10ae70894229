package compiler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ECCC-CCCS/geomet-climate/internal/mapfile"
)

// StyleLoader resolves a style resource name into mapfile classes.
type StyleLoader interface {
	Classes(name string) ([]mapfile.Class, error)
}

// NoStyles rejects every style reference.
type NoStyles struct{}

func (NoStyles) Classes(name string) ([]mapfile.Class, error) {
	return nil, fmt.Errorf("no style resources configured for %s", name)
}

// DirStyles reads JSON class lists from a resource directory. Parsed files
// are kept for the lifetime of the loader.
type DirStyles struct {
	dir   string
	mu    sync.Mutex
	cache map[string][]mapfile.Class
}

func NewDirStyles(dir string) *DirStyles {
	return &DirStyles{dir: dir, cache: map[string][]mapfile.Class{}}
}

func (d *DirStyles) Classes(name string) ([]mapfile.Class, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.cache[name]; ok {
		return cloneClasses(c), nil
	}
	b, err := os.ReadFile(filepath.Join(d.dir, filepath.Base(name)))
	if err != nil {
		return nil, err
	}
	var classes []mapfile.Class
	if err := json.Unmarshal(b, &classes); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	d.cache[name] = classes
	return cloneClasses(classes), nil
}

func cloneClasses(in []mapfile.Class) []mapfile.Class {
	l := mapfile.Layer{Classes: in}.Clone()
	return l.Classes
}
