package site

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry() *Registry {
	return NewRegistry(zap.NewNop())
}

func TestRegistry_AddIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	dir := t.TempDir()

	id1, err := r.Add(dir)
	require.NoError(t, err)
	s1, err := r.Lookup(id1)
	require.NoError(t, err)

	id2, err := r.Add(dir)
	require.NoError(t, err)
	s2, err := r.Lookup(id2)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Same(t, s1, s2, "re-adding must not rebuild the site")
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_AddDistinct(t *testing.T) {
	r := newTestRegistry()
	a := filepath.Join(t.TempDir(), "a")
	b := filepath.Join(t.TempDir(), "b")
	require.NoError(t, os.Mkdir(a, 0o755))
	require.NoError(t, os.Mkdir(b, 0o755))

	idA, err := r.Add(a)
	require.NoError(t, err)
	idB, err := r.Add(b)
	require.NoError(t, err)

	assert.NotEqual(t, idA, idB)
	assert.Equal(t, 2, r.Len())
	assert.Len(t, r.List(), 2)
}

func TestRegistry_AddErrors(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Add(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrNotFound)

	file := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = r.Add(file)
	assert.ErrorIs(t, err, ErrNotADirectory)

	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Remove(t *testing.T) {
	r := newTestRegistry()
	dir := t.TempDir()

	id, err := r.Add(dir)
	require.NoError(t, err)

	require.NoError(t, r.Remove(dir))
	_, err = r.Lookup(id)
	assert.ErrorIs(t, err, ErrSiteNotFound)

	// never registered / already removed
	require.NoError(t, r.Remove(dir))
	require.NoError(t, r.Remove(t.TempDir()))
}

func TestRegistry_RemoveUnresolvablePath(t *testing.T) {
	r := newTestRegistry()
	err := r.Remove(filepath.Join(t.TempDir(), "gone"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_LookupUnknown(t *testing.T) {
	_, err := newTestRegistry().Lookup("deadbeef")
	assert.ErrorIs(t, err, ErrSiteNotFound)
}

func TestRegistry_ListSortedByRoot(t *testing.T) {
	r := newTestRegistry()
	base := t.TempDir()
	for _, name := range []string{"c", "a", "b"} {
		dir := filepath.Join(base, name)
		require.NoError(t, os.Mkdir(dir, 0o755))
		_, err := r.Add(dir)
		require.NoError(t, err)
	}

	sites := r.List()
	require.Len(t, sites, 3)
	assert.Equal(t, "a", filepath.Base(sites[0].Root))
	assert.Equal(t, "b", filepath.Base(sites[1].Root))
	assert.Equal(t, "c", filepath.Base(sites[2].Root))
}

func TestSite_ServesIndexForDirectory(t *testing.T) {
	r := newTestRegistry()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("root index"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "game", "scene"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "game", "scene", "start.txt"), []byte("changeBg:bg.png;"), 0o644))

	id, err := r.Add(dir)
	require.NoError(t, err)
	s, err := r.Lookup(id)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "root index", string(body))

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/game/scene/start.txt", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "changeBg:bg.png;", rec.Body.String())
}

func TestSite_DirectoryWithoutIndexNotListed(t *testing.T) {
	r := newTestRegistry()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "secret-notes.txt"), []byte("notes"), 0o644))

	id, err := r.Add(dir)
	require.NoError(t, err)
	s, err := r.Lookup(id)
	require.NoError(t, err)

	for _, target := range []string{"/", "/assets/", "/assets"} {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.NotContains(t, rec.Body.String(), "secret-notes.txt", target)
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/secret-notes.txt", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "notes", rec.Body.String())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := newTestRegistry()
	dir := t.TempDir()

	var wg sync.WaitGroup
	ids := make([]string, 32)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.Add(dir)
			assert.NoError(t, err)
			ids[i] = id
			_, _ = r.Lookup(id)
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, r.Len())
}
