package core

import (
	"log/slog"
	"regexp"
	"strings"
)

// Agent replies carry two in-band directive forms: markdown image references
// (![alt](path)) and ATTACH_FILE:<path> lines. The helpers in this file parse
// both out of the raw reply text; each operates on the original string, never
// on the other's output.

var (
	reImageSimple   = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]*)\)`)
	reAttachPath    = regexp.MustCompile("ATTACH_FILE:([^`\n]+)")
	reAttachStrip   = regexp.MustCompile("`?ATTACH_FILE:[^`\n]+`?")
	reBlankLineRuns = regexp.MustCompile(`\n(?:[ \t]*\n){2,}`)
)

// imageMatch is one scanned image reference with its byte span in the source.
type imageMatch struct {
	ref        ImageRef
	start, end int
}

// ExtractImageRefs returns every markdown image reference in order of
// appearance. The depth-aware scanner is authoritative; if it panics the
// simple regex is used instead, accepting that the regex truncates URLs at
// the first ')' inside a filename.
func ExtractImageRefs(text string) (refs []ImageRef) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("image scan failed, falling back to regex", "panic", r)
			refs = extractImagesRegex(text)
		}
	}()
	matches := extractImagesScan(text)
	refs = make([]ImageRef, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, m.ref)
	}
	if len(refs) == 0 {
		refs = nil
	}
	return refs
}

// StripImageRefs removes every markdown image reference from the text, since
// resolved images are delivered separately as media and the platform renders
// the raw syntax as noise. Runs of three or more newlines left behind collapse
// to exactly two.
func StripImageRefs(text string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("image scan failed, falling back to regex", "panic", r)
			out = collapseBlankRuns(reImageSimple.ReplaceAllString(text, ""))
		}
	}()

	matches := extractImagesScan(text)
	if len(matches) == 0 {
		return strings.TrimSpace(text)
	}

	var b strings.Builder
	prev := 0
	for _, m := range matches {
		b.WriteString(text[prev:m.start])
		prev = m.end
	}
	b.WriteString(text[prev:])
	return collapseBlankRuns(b.String())
}

func collapseBlankRuns(s string) string {
	return strings.TrimSpace(reBlankLineRuns.ReplaceAllString(s, "\n\n"))
}

// extractImagesScan walks the text tracking bracket and parenthesis depth so
// that alt text and paths may themselves contain balanced []/() pairs.
// Generated filenames like "My (Book).pdf" defeat a plain regex.
func extractImagesScan(text string) []imageMatch {
	var refs []imageMatch
	i := 0
	for i < len(text) {
		start := strings.Index(text[i:], "![")
		if start < 0 {
			break
		}
		start += i

		// Alt text: ends at the ']' that returns bracket depth to zero.
		altStart := start + 2
		depth := 0
		altEnd := altStart
		for altEnd < len(text) {
			switch text[altEnd] {
			case '[':
				depth++
			case ']':
				if depth == 0 {
					goto altDone
				}
				depth--
			}
			altEnd++
		}
	altDone:
		if altEnd >= len(text) {
			// Unterminated alt text; skip past the marker and keep scanning.
			i = start + 2
			continue
		}
		if altEnd+1 >= len(text) || text[altEnd+1] != '(' {
			// "![...]" without "(" is not an image reference.
			i = altEnd + 1
			continue
		}

		alt := text[altStart:altEnd]

		// Path: paren depth starts at 1 for the '(' just consumed.
		urlStart := altEnd + 2
		parens := 1
		urlEnd := urlStart
		for urlEnd < len(text) && parens > 0 {
			switch text[urlEnd] {
			case '(':
				parens++
			case ')':
				parens--
			}
			urlEnd++
		}
		if parens != 0 {
			// Unterminated path; abandon this candidate.
			i = start + 2
			continue
		}

		refs = append(refs, imageMatch{
			ref:   ImageRef{Alt: alt, Path: text[urlStart : urlEnd-1]},
			start: start,
			end:   urlEnd,
		})
		i = urlEnd
	}
	return refs
}

// extractImagesRegex is the degraded fallback parser.
func extractImagesRegex(text string) []ImageRef {
	matches := reImageSimple.FindAllStringSubmatch(text, -1)
	refs := make([]ImageRef, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, ImageRef{Alt: m[1], Path: m[2]})
	}
	return refs
}

// AttachmentPaths returns every ATTACH_FILE directive path in source order,
// trimmed of surrounding whitespace. A path runs until the next backtick or
// newline.
func AttachmentPaths(text string) []string {
	matches := reAttachPath.FindAllStringSubmatch(text, -1)
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, strings.TrimSpace(m[1]))
	}
	return paths
}

// StripDirectives removes every ATTACH_FILE directive (including enclosing
// backticks), collapses any run of three or more newlines left behind into
// exactly two, and trims the result.
func StripDirectives(text string) string {
	return collapseBlankRuns(reAttachStrip.ReplaceAllString(text, ""))
}
