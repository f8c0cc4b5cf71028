package site

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Directory(t *testing.T) {
	dir := t.TempDir()

	id, canonical, err := Resolve(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.True(t, filepath.IsAbs(canonical))

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, want, canonical)
	assert.Equal(t, ID(canonical), id)
}

func TestResolve_NotFound(t *testing.T) {
	_, _, err := Resolve(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var pathErr *PathError
	require.ErrorAs(t, err, &pathErr)
	assert.Contains(t, pathErr.Path, "missing")
}

func TestResolve_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(file, []byte("<html></html>"), 0o644))

	_, _, err := Resolve(file)
	assert.ErrorIs(t, err, ErrNotADirectory)
}

func TestResolve_RelativeSegmentsCanonicalize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "game"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "other"), 0o755))

	id1, c1, err := Resolve(filepath.Join(dir, "game"))
	require.NoError(t, err)
	id2, c2, err := Resolve(filepath.Join(dir, "other", "..", "game"))
	require.NoError(t, err)

	assert.Equal(t, c1, c2)
	assert.Equal(t, id1, id2)
}

func TestResolve_SymlinkCanonicalizes(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "game")
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Mkdir(target, 0o755))
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	id1, _, err := Resolve(target)
	require.NoError(t, err)
	id2, _, err := Resolve(link)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestResolve_DistinctDirectories(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.Mkdir(a, 0o755))
	require.NoError(t, os.Mkdir(b, 0o755))

	idA, _, err := Resolve(a)
	require.NoError(t, err)
	idB, _, err := Resolve(b)
	require.NoError(t, err)

	// Distinct in practice; the hash gives no cryptographic guarantee.
	assert.NotEqual(t, idA, idB)
}

func TestID_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500

	properties := gopter.NewProperties(parameters)

	properties.Property("id is deterministic", prop.ForAll(
		func(p string) bool {
			return ID(p) == ID(p)
		},
		gen.AnyString(),
	))

	properties.Property("distinct paths get distinct ids", prop.ForAll(
		func(a, b string) bool {
			if a == b {
				return true
			}
			return ID("/"+a) != ID("/"+b)
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
