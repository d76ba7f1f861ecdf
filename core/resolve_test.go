package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/text/unicode/norm"
)

func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	work := t.TempDir()
	data := filepath.Join(work, "data")
	require.NoError(t, os.MkdirAll(filepath.Join(data, "document", "thumbnail"), 0o755))
	return NewResolver(work, data), data
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestResolveRelativeUnderDataRoot(t *testing.T) {
	r, data := newTestResolver(t)
	target := filepath.Join(data, "document", "thumbnail", "report.jpg")
	writeFile(t, target)

	got, ok := r.Resolve("data/document/thumbnail/report.jpg")
	require.True(t, ok)
	assert.Equal(t, target, got)
}

func TestResolveBareRelativeUnderDataDir(t *testing.T) {
	// Without the data-root marker, relative paths resolve under DataDir.
	r, data := newTestResolver(t)
	target := filepath.Join(data, "document", "notes.md")
	writeFile(t, target)

	got, ok := r.Resolve("document/notes.md")
	require.True(t, ok)
	assert.Equal(t, target, got)
}

func TestResolveAbsolutePath(t *testing.T) {
	r, data := newTestResolver(t)
	target := filepath.Join(data, "document", "a.pdf")
	writeFile(t, target)

	got, ok := r.Resolve(target)
	require.True(t, ok)
	assert.Equal(t, target, got)
}

func TestResolvePercentEncoded(t *testing.T) {
	r, data := newTestResolver(t)
	target := filepath.Join(data, "document", "Annual Report.pdf")
	writeFile(t, target)

	got, ok := r.Resolve("data/document/Annual%20Report.pdf")
	require.True(t, ok)
	assert.Equal(t, target, got)
}

func TestResolveUnicodeNormalizationVariant(t *testing.T) {
	r, data := newTestResolver(t)
	// File on disk uses the decomposed form; the reference is composed.
	name := norm.NFD.String("Résumé.pdf")
	target := filepath.Join(data, "document", name)
	writeFile(t, target)

	got, ok := r.Resolve("data/document/" + norm.NFC.String("Résumé.pdf"))
	require.True(t, ok)
	assert.Equal(t, target, got)
}

func TestResolveMarkerRejoin(t *testing.T) {
	// The agent sometimes prefixes the reference with a stale absolute root;
	// rejoining everything after "data/" under the real root still finds it.
	r, data := newTestResolver(t)
	target := filepath.Join(data, "document", "b.pdf")
	writeFile(t, target)

	got, ok := r.Resolve("/some/old/root/data/document/b.pdf")
	require.True(t, ok)
	assert.Equal(t, target, got)
}

func TestResolveStemMatchPrefersImageExtension(t *testing.T) {
	r, data := newTestResolver(t)
	dir := filepath.Join(data, "document", "thumbnail")
	writeFile(t, filepath.Join(dir, "report-page1.txt"))
	writeFile(t, filepath.Join(dir, "report-page1.png"))

	// The referenced .jpg does not exist; the sibling with the same stem and
	// an image extension wins over the .txt.
	got, ok := r.Resolve("data/document/thumbnail/report.jpg")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "report-page1.png"), got)
}

func TestResolveMiss(t *testing.T) {
	r, _ := newTestResolver(t)

	got, ok := r.Resolve("data/document/missing.pdf")
	assert.False(t, ok)
	assert.Empty(t, got)

	got, ok = r.Resolve("   ")
	assert.False(t, ok)
	assert.Empty(t, got)
}
