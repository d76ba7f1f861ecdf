package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

// ErrEmptyInput reports an inbound event with no recognized content.
var ErrEmptyInput = errors.New("no content to process")

// Assembler converts one inbound event into the multimodal request parts sent
// to the agent. Documents are staged to disk and described to the agent as
// text; photos are downscaled and inlined as base64 JPEG.
type Assembler struct {
	Files       FileFetcher
	StagingDir  string // where document attachments land
	PicturesDir string // where photo originals land
	MaxDim      int    // neither image dimension may exceed this after downscaling
	Quality     int    // JPEG quality for downscaled photos
	Timeout     time.Duration
}

// Assemble builds the request parts for one event. progress receives
// user-visible stage descriptions for slow steps.
func (a *Assembler) Assemble(ctx context.Context, ev Inbound, progress func(string)) ([]Part, error) {
	var parts []Part

	if ev.Text != "" {
		parts = append(parts, TextPart{Text: ev.Text})
	}

	if ev.Document != nil {
		progress("Downloading attachment...")
		staged, err := a.stageDocument(ctx, ev.Document)
		if err != nil {
			return nil, fmt.Errorf("stage document: %w", err)
		}
		parts = append(parts, TextPart{Text: fmt.Sprintf("(attachment downloaded to %s)", staged)})
	}

	if ev.Photo != nil {
		progress("Downloading image...")
		img, err := a.fetchPhoto(ctx, ev.Photo)
		if err != nil {
			return nil, fmt.Errorf("fetch photo: %w", err)
		}
		progress("Processing image...")
		encoded, err := DownscaleImage(img, a.MaxDim, a.Quality)
		if err != nil {
			return nil, fmt.Errorf("downscale photo: %w", err)
		}
		if ev.Photo.Caption != "" {
			parts = append(parts, TextPart{Text: ev.Photo.Caption})
		}
		parts = append(parts, ImagePart{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(encoded),
		})
	}

	if len(parts) == 0 {
		return nil, ErrEmptyInput
	}
	return parts, nil
}

// stageDocument downloads the attachment into the staging directory under a
// timestamp-prefixed name so repeated uploads of the same filename cannot
// collide, and returns the staged path. The agent decides what happens to the
// file afterwards.
func (a *Assembler) stageDocument(ctx context.Context, doc *DocumentRef) (string, error) {
	data, _, err := a.fetch(ctx, doc.FileID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(a.StagingDir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	name := filepath.Base(doc.FileName)
	if name == "" || name == "." {
		name = "attachment"
	}
	target := filepath.Join(a.StagingDir, fmt.Sprintf("%d--%s", time.Now().UnixMilli(), name))
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write staged file: %w", err)
	}
	return target, nil
}

// fetchPhoto downloads the photo and keeps the original on disk next to the
// staged attachments before it gets downscaled for the agent.
func (a *Assembler) fetchPhoto(ctx context.Context, photo *PhotoRef) ([]byte, error) {
	data, remotePath, err := a.fetch(ctx, photo.FileID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(a.PicturesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pictures dir: %w", err)
	}

	ext := strings.TrimPrefix(filepath.Ext(remotePath), ".")
	if ext == "" {
		ext = "jpg"
	}
	target := filepath.Join(a.PicturesDir, fmt.Sprintf("%d.%s", time.Now().UnixMilli(), ext))
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return nil, fmt.Errorf("write photo: %w", err)
	}
	return data, nil
}

// fetch downloads with a bounded timeout and one retry. A hung platform
// download must not hang the chat's turn indefinitely.
func (a *Assembler) fetch(ctx context.Context, fileID string) ([]byte, string, error) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	attempt := func() ([]byte, string, error) {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return a.Files.DownloadFile(cctx, fileID)
	}

	data, remotePath, err := attempt()
	if err == nil {
		return data, remotePath, nil
	}
	if ctx.Err() != nil {
		return nil, "", err
	}

	slog.Warn("file download failed, retrying once", "file_id", fileID, "error", err)
	return attempt()
}

// DownscaleImage decodes data, converts it to RGB, resizes it so neither
// dimension exceeds maxDim (never upscaling), and re-encodes it as JPEG. The
// downscale bounds the token cost of image input; fidelity is not a goal.
func DownscaleImage(data []byte, maxDim, quality int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("empty image %dx%d", w, h)
	}

	tw, th := w, h
	if w > maxDim || h > maxDim {
		if w >= h {
			tw = maxDim
			th = h * maxDim / w
		} else {
			th = maxDim
			tw = w * maxDim / h
		}
		if tw < 1 {
			tw = 1
		}
		if th < 1 {
			th = 1
		}
	}

	// Drawing onto RGBA normalizes paletted/gray/alpha sources for the JPEG
	// encoder.
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
