// Package artifacts turns downloaded files and page image URLs into
// plain text. Extraction is best-effort across the whole batch: a file
// that cannot be read produces an Artifact with the error recorded in
// its metadata, never an aborted run.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"polistep/internal/config"
	"polistep/internal/logging"
	"polistep/internal/types"
)

// Extraction caps.
const (
	MaxPDFPages  = 50
	MaxPDFChars  = 300_000
	MaxOCRChars  = 120_000
	MaxTextChars = 300_000

	// A PDF yielding fewer characters than this is likely a scan.
	scannedPDFThreshold = 50
)

// Extractor extracts text from a run's downloaded files.
type Extractor struct {
	cfg config.ArtifactsConfig
	ocr OCREngine
}

// OCREngine recognizes text in an image file. Implemented by the
// tesseract-backed engine; swapped for a fake in tests.
type OCREngine interface {
	Recognize(path string) (string, error)
}

// New returns an extractor with the default tesseract OCR engine.
func New(cfg config.ArtifactsConfig) *Extractor {
	return &Extractor{cfg: cfg, ocr: &TesseractEngine{}}
}

// NewWithOCR returns an extractor with a custom OCR engine.
func NewWithOCR(cfg config.ArtifactsConfig, ocr OCREngine) *Extractor {
	return &Extractor{cfg: cfg, ocr: ocr}
}

// Extract processes each downloaded file under root. Zip archives are
// expanded into <root>/_extracted and their inner files dispatched
// recursively. The returned slice has one entry per input file plus one
// per extracted archive member.
func (e *Extractor) Extract(ctx context.Context, files []string, root string) []types.Artifact {
	out := make([]types.Artifact, 0, len(files))
	limit := e.cfg.MaxFiles
	if limit <= 0 {
		limit = 30
	}

	for i, name := range files {
		if i >= limit {
			logging.ArtifactsWarn("file limit %d reached, skipping %d remaining", limit, len(files)-i)
			break
		}
		if err := ctx.Err(); err != nil {
			break
		}

		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, name)
		}
		out = append(out, e.extractOne(ctx, path, root)...)
	}

	logging.Artifacts("extracted %d artifacts from %d files", len(out), len(files))
	return out
}

// extractOne dispatches a single file by extension. Zip expansion can
// yield multiple artifacts.
func (e *Extractor) extractOne(ctx context.Context, path, root string) []types.Artifact {
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))

	a := types.Artifact{
		Name: name,
		Path: path,
		Meta: types.ArtifactMeta{Ext: ext},
	}

	switch ext {
	case ".txt", ".md", ".csv", ".log":
		a.SourceType = "text"
		e.fillPlainText(&a, path)
	case ".pdf":
		a.SourceType = "pdf"
		e.fillPDF(&a, path)
	case ".png", ".jpg", ".jpeg":
		a.SourceType = "image"
		e.fillOCR(&a, path)
	case ".zip":
		return e.expandZip(ctx, path, root)
	case ".hwp", ".hwpx":
		a.SourceType = "hwp"
		a.Meta.Note = "hwp format, no local text extractor"
	default:
		a.SourceType = "file"
		a.Meta.Note = fmt.Sprintf("unsupported format %s", ext)
	}

	a.Meta.TextLen = len(a.Text)
	return []types.Artifact{a}
}

// fillPlainText reads a text file byte-safe; cp949 content survives as
// raw bytes rather than failing the read.
func (e *Extractor) fillPlainText(a *types.Artifact, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		a.Meta.Error = err.Error()
		return
	}
	text := CleanText(string(data))
	if len(text) > MaxTextChars {
		text = text[:MaxTextChars]
		a.Meta.Truncated = true
	}
	a.Text = text
	a.Meta.Engine = "direct"
}

// fillOCR runs the OCR engine over an image file.
func (e *Extractor) fillOCR(a *types.Artifact, path string) {
	if !e.cfg.EnableImageOCR {
		a.Meta.Note = "image OCR disabled"
		return
	}
	text, err := e.ocr.Recognize(path)
	if err != nil {
		a.Meta.Error = err.Error()
		logging.ArtifactsWarn("ocr failed for %s: %v", a.Name, err)
		return
	}
	text = CleanText(text)
	if len(text) > MaxOCRChars {
		text = text[:MaxOCRChars]
		a.Meta.Truncated = true
	}
	a.Text = text
	a.Meta.Engine = "tesseract"
}

// CleanText normalizes extracted text: nbsp and zero-width characters
// are stripped, runs of blank lines collapse to one.
func CleanText(s string) string {
	replacer := strings.NewReplacer(
		"\u00a0", " ",
		"\u200b", "",
		"\u200c", "",
		"\u200d", "",
		"\ufeff", "",
		"\r\n", "\n",
		"\r", "\n",
	)
	s = replacer.Replace(s)

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
