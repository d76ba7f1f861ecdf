package core

import (
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Resolver maps a path string emitted by the agent to a real file on disk.
// The agent is not guaranteed to reproduce the exact path it previously wrote
// (percent encoding, Unicode composition, generated suffixes), so resolution
// runs a chain of fallbacks instead of failing the turn.
type Resolver struct {
	WorkDir string // process working directory
	DataDir string // absolute save-directory root, e.g. <WorkDir>/data
}

func NewResolver(workDir, dataDir string) *Resolver {
	return &Resolver{WorkDir: workDir, DataDir: dataDir}
}

// marker is the relative data-root prefix ("data/") as the agent writes it.
func (r *Resolver) marker() string {
	return filepath.Base(r.DataDir) + "/"
}

// normalize percent-decodes, applies NFC, absolutizes and cleans a path.
// Paths beginning with the data-root marker resolve under the working
// directory; everything else resolves under the save-directory root.
func (r *Resolver) normalize(p string) string {
	decoded := p
	if d, err := url.PathUnescape(p); err == nil {
		decoded = d
	}
	return r.absolutize(norm.NFC.String(decoded))
}

func (r *Resolver) absolutize(n string) string {
	if !filepath.IsAbs(n) {
		if strings.HasPrefix(n, r.marker()) {
			n = filepath.Join(r.WorkDir, n)
		} else {
			n = filepath.Join(r.DataDir, n)
		}
	}
	return filepath.Clean(n)
}

// Resolve returns an existing absolute path for raw, or ("", false) if no
// candidate exists. It never returns an error; a failed resolution is logged
// and the reference is dropped downstream.
func (r *Resolver) Resolve(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}

	primary := r.normalize(raw)
	if fileExists(primary) {
		return primary, true
	}

	decoded := raw
	if d, err := url.PathUnescape(raw); err == nil {
		decoded = d
	}

	var candidates []string

	// A path that still contains '%' after the primary attempt may have been
	// double-encoded; decode a second time, then normalize again.
	if strings.Contains(decoded, "%") {
		if d, err := url.PathUnescape(decoded); err == nil {
			candidates = append(candidates, r.normalize(d))
		}
	}

	// Alternate Unicode normalization forms, applied without the NFC pass the
	// primary attempt already tried.
	for _, f := range []norm.Form{norm.NFD, norm.NFKC, norm.NFKD} {
		candidates = append(candidates, r.absolutize(f.String(decoded)))
	}

	// Rejoin the suffix after the data-root marker under both roots.
	if idx := strings.Index(raw, r.marker()); idx >= 0 {
		suffix := raw[idx+len(r.marker()):]
		candidates = append(candidates,
			filepath.Clean(filepath.Join(r.DataDir, suffix)),
			filepath.Clean(filepath.Join(r.WorkDir, suffix)),
		)
	}

	for _, c := range candidates {
		if fileExists(c) {
			slog.Info("resolved file via fallback path", "original", raw, "path", c)
			return c, true
		}
	}

	if m, ok := r.stemMatch(primary); ok {
		slog.Info("resolved file via stem match", "original", raw, "path", m)
		return m, true
	}

	slog.Warn("file not found after all resolution attempts", "path", raw)
	return "", false
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// stemMatch lists the candidate's parent directory and returns the first
// sibling (in sorted order) whose name starts with the candidate's stem and
// carries a known image extension. A directory listing with a prefix test is
// used instead of filepath.Glob because stems may contain glob metacharacters.
func (r *Resolver) stemMatch(path string) (string, bool) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return "", false
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), stem) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, n := range names {
		if imageExtensions[strings.ToLower(filepath.Ext(n))] {
			return filepath.Join(dir, n), true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
