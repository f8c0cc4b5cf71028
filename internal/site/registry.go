package site

import (
	"io/fs"
	"net/http"
	"path"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Site is a registered directory exposed for static access.
type Site struct {
	ID   string
	Root string

	handler http.Handler
}

// ServeHTTP serves r.URL.Path relative to the site root. Directory requests
// fall back to their index.html; directories without one are not found.
func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// indexOnlyFS hides directories that have no index.html so the file server
// never renders a listing.
type indexOnlyFS struct {
	root http.FileSystem
}

func (f indexOnlyFS) Open(name string) (http.File, error) {
	file, err := f.root.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if !info.IsDir() {
		return file, nil
	}

	index, err := f.root.Open(path.Join(name, "index.html"))
	if err != nil {
		_ = file.Close()
		return nil, fs.ErrNotExist
	}
	_ = index.Close()
	return file, nil
}

// Registry holds the registered sites. Lookups run concurrently; Add and
// Remove take the lock exclusively.
type Registry struct {
	logger *zap.Logger

	mu    sync.RWMutex
	sites map[string]*Site
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger.Named("sites"),
		sites:  make(map[string]*Site),
	}
}

// Add registers the directory at path and returns its identifier. Adding a
// directory that is already registered returns the existing identifier and
// leaves the registry untouched.
func (r *Registry) Add(path string) (string, error) {
	id, canonical, err := Resolve(path)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sites[id]; ok {
		return id, nil
	}

	r.sites[id] = &Site{
		ID:      id,
		Root:    canonical,
		handler: http.FileServer(indexOnlyFS{root: http.Dir(canonical)}),
	}
	r.logger.Info("Site registered", zap.String("id", id), zap.String("root", canonical))
	return id, nil
}

// Remove unregisters the directory at path. Removing a directory that was
// never registered is not an error; a path that no longer resolves is.
func (r *Registry) Remove(path string) error {
	id, _, err := Resolve(path)
	if err != nil {
		return err
	}
	r.RemoveID(id)
	return nil
}

// RemoveID unregisters a site by identifier.
func (r *Registry) RemoveID(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sites[id]
	if !ok {
		return false
	}
	delete(r.sites, id)
	r.logger.Info("Site removed", zap.String("id", id), zap.String("root", s.Root))
	return true
}

// Lookup returns the site registered under id.
func (r *Registry) Lookup(id string) (*Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sites[id]
	if !ok {
		return nil, ErrSiteNotFound
	}
	return s, nil
}

// List returns a snapshot of the registered sites ordered by root.
func (r *Registry) List() []*Site {
	r.mu.RLock()
	out := make([]*Site, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Root < out[j].Root })
	return out
}

// Len returns the number of registered sites.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sites)
}
