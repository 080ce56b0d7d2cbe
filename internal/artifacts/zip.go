package artifacts

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"polistep/internal/logging"
	"polistep/internal/types"
)

// expandZip extracts archive members into <root>/_extracted/<archive>
// and dispatches each one through the normal extension switch. Nested
// zips are recorded but not expanded further.
func (e *Extractor) expandZip(ctx context.Context, path, root string) []types.Artifact {
	name := filepath.Base(path)
	archive := types.Artifact{
		SourceType: "zip",
		Name:       name,
		Path:       path,
		Meta:       types.ArtifactMeta{Ext: ".zip"},
	}

	r, err := zip.OpenReader(path)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		archive.Meta.Error = fmt.Sprintf("open zip: %v", err)
		return []types.Artifact{archive}
	}
	// ErrInsecurePath still yields a usable reader; escaping members are
	// rejected individually below.
	defer r.Close()

	destDir := filepath.Join(root, "_extracted", strings.TrimSuffix(name, ".zip"))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		archive.Meta.Error = fmt.Sprintf("create extraction dir: %v", err)
		return []types.Artifact{archive}
	}

	out := []types.Artifact{archive}
	extracted := 0
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			break
		}
		if f.FileInfo().IsDir() {
			continue
		}

		dest, err := safeJoin(destDir, f.Name)
		if err != nil {
			logging.ArtifactsWarn("zip member %s skipped: %v", f.Name, err)
			continue
		}
		if err := copyZipMember(f, dest); err != nil {
			logging.ArtifactsWarn("zip member %s failed: %v", f.Name, err)
			continue
		}
		extracted++

		if strings.EqualFold(filepath.Ext(dest), ".zip") {
			out = append(out, types.Artifact{
				SourceType: "zip",
				Name:       filepath.Base(dest),
				Path:       dest,
				Meta:       types.ArtifactMeta{Ext: ".zip", Note: "nested archive, not expanded"},
			})
			continue
		}
		out = append(out, e.extractOne(ctx, dest, root)...)
	}

	archive.Meta.Note = fmt.Sprintf("extracted %d members", extracted)
	out[0] = archive
	return out
}

// safeJoin rejects member names that would escape the extraction root.
func safeJoin(root, member string) (string, error) {
	dest := filepath.Join(root, filepath.FromSlash(member))
	if !strings.HasPrefix(dest, filepath.Clean(root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes extraction root: %s", member)
	}
	return dest, nil
}

func copyZipMember(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	w, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer w.Close()

	_, err = io.Copy(w, rc)
	return err
}
