package artifacts

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"polistep/internal/logging"
	"polistep/internal/types"
)

const (
	fetchUserAgent   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxImageBodySize = 10 << 20
)

// FetchImages downloads page image URLs into <root>/_image_urls and OCRs
// each saved file. Per-URL failures are recorded on the artifact, not
// returned. No-op unless image OCR is enabled.
func (e *Extractor) FetchImages(ctx context.Context, urls []string, root string) []types.Artifact {
	if !e.cfg.EnableImageOCR || len(urls) == 0 {
		return nil
	}

	limit := e.cfg.MaxImageURLs
	if limit <= 0 {
		limit = 15
	}
	if len(urls) > limit {
		logging.ArtifactsWarn("image URL limit %d reached, skipping %d", limit, len(urls)-limit)
		urls = urls[:limit]
	}

	destDir := filepath.Join(root, "_image_urls")
	if err := os.MkdirAll(destDir, 0755); err != nil {
		logging.ArtifactsWarn("image dir: %v", err)
		return nil
	}

	client := &http.Client{Timeout: e.cfg.FetchTimeout()}
	out := make([]types.Artifact, 0, len(urls))
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			break
		}
		out = append(out, e.fetchOne(ctx, client, u, destDir))
	}
	return out
}

func (e *Extractor) fetchOne(ctx context.Context, client *http.Client, rawURL, destDir string) types.Artifact {
	a := types.Artifact{
		SourceType: "url",
		Name:       filepath.Base(strings.SplitN(rawURL, "?", 2)[0]),
		URL:        rawURL,
	}

	path, err := downloadImage(ctx, client, rawURL, destDir)
	if err != nil {
		a.Meta.Error = err.Error()
		logging.ArtifactsWarn("image fetch %s: %v", rawURL, err)
		return a
	}
	a.Path = path

	text, err := e.ocr.Recognize(path)
	if err != nil {
		a.Meta.Error = fmt.Sprintf("ocr: %v", err)
		return a
	}
	text = CleanText(text)
	if len(text) > MaxOCRChars {
		text = text[:MaxOCRChars]
		a.Meta.Truncated = true
	}
	a.Text = text
	a.Meta.Engine = "tesseract"
	a.Meta.TextLen = len(text)
	return a
}

func downloadImage(ctx context.Context, client *http.Client, rawURL, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch: status %d", resp.StatusCode)
	}

	ext := filepath.Ext(strings.SplitN(rawURL, "?", 2)[0])
	if ext == "" || len(ext) > 5 {
		ext = ".img"
	}
	sum := sha1.Sum([]byte(rawURL))
	name := fmt.Sprintf("%x%s", sum[:8], ext)
	path := filepath.Join(destDir, name)

	w, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("save: %w", err)
	}
	defer w.Close()

	if _, err := io.Copy(w, io.LimitReader(resp.Body, maxImageBodySize)); err != nil {
		return "", fmt.Errorf("save: %w", err)
	}
	return path, nil
}
