package artifacts

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"polistep/internal/config"
	"polistep/internal/types"
)

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) Recognize(path string) (string, error) { return f.text, f.err }

func newTestExtractor(t *testing.T, ocr OCREngine) *Extractor {
	t.Helper()
	cfg := config.DefaultConfig().Artifacts
	cfg.EnableImageOCR = true
	return NewWithOCR(cfg, ocr)
}

func TestExtract_PlainText(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "notice.txt")
	if err := os.WriteFile(path, []byte("지원 대상 안내\n\n\n\n신청 기간"), 0644); err != nil {
		t.Fatal(err)
	}

	e := newTestExtractor(t, &fakeOCR{})
	out := e.Extract(context.Background(), []string{"notice.txt"}, root)

	if len(out) != 1 {
		t.Fatalf("got %d artifacts", len(out))
	}
	a := out[0]
	if a.SourceType != "text" || a.Meta.Engine != "direct" {
		t.Errorf("artifact = %+v", a.Meta)
	}
	// Blank-line runs collapse.
	if strings.Contains(a.Text, "\n\n\n") {
		t.Errorf("blank lines not collapsed: %q", a.Text)
	}
	if a.Meta.TextLen != len(a.Text) {
		t.Errorf("text_len %d != %d", a.Meta.TextLen, len(a.Text))
	}
}

func TestExtract_MissingFileRecordsError(t *testing.T) {
	root := t.TempDir()
	e := newTestExtractor(t, &fakeOCR{})

	out := e.Extract(context.Background(), []string{"ghost.txt"}, root)

	if len(out) != 1 {
		t.Fatalf("got %d artifacts", len(out))
	}
	if out[0].Meta.Error == "" {
		t.Error("missing file should record an error")
	}
	if out[0].Text != "" {
		t.Error("failed extraction must yield empty text")
	}
}

func TestExtract_ImageOCR(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "banner.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("ocr text captured", func(t *testing.T) {
		e := newTestExtractor(t, &fakeOCR{text: "신청 자격: 만 19세 이상"})
		out := e.Extract(context.Background(), []string{"banner.png"}, root)
		if out[0].Text != "신청 자격: 만 19세 이상" {
			t.Errorf("text = %q", out[0].Text)
		}
		if out[0].Meta.Engine != "tesseract" {
			t.Errorf("engine = %q", out[0].Meta.Engine)
		}
	})

	t.Run("ocr failure recorded not fatal", func(t *testing.T) {
		e := newTestExtractor(t, &fakeOCR{err: errors.New("tesseract not installed")})
		out := e.Extract(context.Background(), []string{"banner.png"}, root)
		if out[0].Meta.Error == "" {
			t.Error("ocr failure should land in metadata")
		}
	})

	t.Run("ocr disabled leaves note", func(t *testing.T) {
		cfg := config.DefaultConfig().Artifacts
		e := NewWithOCR(cfg, &fakeOCR{text: "ignored"})
		out := e.Extract(context.Background(), []string{"banner.png"}, root)
		if out[0].Text != "" || out[0].Meta.Note == "" {
			t.Errorf("disabled OCR should skip with note, got %+v", out[0])
		}
	})
}

func TestExtract_UnsupportedFormats(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"form.hwp", "data.bin"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	e := newTestExtractor(t, &fakeOCR{})
	out := e.Extract(context.Background(), []string{"form.hwp", "data.bin"}, root)

	if len(out) != 2 {
		t.Fatalf("got %d artifacts", len(out))
	}
	if out[0].SourceType != "hwp" || out[0].Meta.Note == "" {
		t.Errorf("hwp artifact = %+v", out[0])
	}
	if out[1].SourceType != "file" || out[1].Meta.Note == "" {
		t.Errorf("unknown artifact = %+v", out[1])
	}
}

func TestExtract_ZipExpansion(t *testing.T) {
	root := t.TempDir()
	zipPath := filepath.Join(root, "bundle.zip")

	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, _ := zw.Create("inner/guide.txt")
	_, _ = w.Write([]byte("동봉 안내문"))
	w2, _ := zw.Create("../escape.txt")
	_, _ = w2.Write([]byte("nope"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	e := newTestExtractor(t, &fakeOCR{})
	out := e.Extract(context.Background(), []string{"bundle.zip"}, root)

	// Archive artifact plus the one safe member.
	if len(out) != 2 {
		t.Fatalf("got %d artifacts: %+v", len(out), out)
	}
	if out[0].SourceType != "zip" {
		t.Errorf("first artifact = %+v", out[0])
	}
	if out[1].Text != "동봉 안내문" {
		t.Errorf("member text = %q", out[1].Text)
	}

	if _, err := os.Stat(filepath.Join(root, "escape.txt")); !os.IsNotExist(err) {
		t.Error("zip member escaped extraction root")
	}
	if !strings.Contains(out[1].Path, filepath.Join("_extracted", "bundle")) {
		t.Errorf("member extracted outside _extracted: %s", out[1].Path)
	}
}

func TestExtract_FileLimit(t *testing.T) {
	root := t.TempDir()
	names := make([]string, 5)
	for i := range names {
		names[i] = filepath.Join(root, "f"+string(rune('a'+i))+".txt")
		if err := os.WriteFile(names[i], []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.DefaultConfig().Artifacts
	cfg.MaxFiles = 3
	e := NewWithOCR(cfg, &fakeOCR{})
	out := e.Extract(context.Background(), names, root)
	if len(out) != 3 {
		t.Fatalf("limit not applied, got %d", len(out))
	}
}

func TestCleanText(t *testing.T) {
	in := "제목\u00a0안내\r\n\r\n\r\n본문\u200b내용  \n"
	got := CleanText(in)
	want := "제목 안내\n\n본문내용"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// BOM and zero-width characters go wherever they appear, not only
	// at the head of the file.
	in = "\ufeff제목\u200b 안내\u200c\u200d\ufeff끝"
	if got := CleanText(in); got != "제목 안내끝" {
		t.Errorf("got %q", got)
	}
}

func TestFetchImages_Disabled(t *testing.T) {
	cfg := config.DefaultConfig().Artifacts // OCR off by default
	e := NewWithOCR(cfg, &fakeOCR{})
	if out := e.FetchImages(context.Background(), []string{"https://example.go.kr/a.png"}, t.TempDir()); out != nil {
		t.Errorf("disabled fetch returned %+v", out)
	}
}

func TestFetchImages_FailureRecordedPerURL(t *testing.T) {
	cfg := config.DefaultConfig().Artifacts
	cfg.EnableImageOCR = true
	cfg.FetchTimeoutSec = 1
	e := NewWithOCR(cfg, &fakeOCR{})

	out := e.FetchImages(context.Background(), []string{"http://127.0.0.1:1/none.png"}, t.TempDir())
	if len(out) != 1 {
		t.Fatalf("got %d artifacts", len(out))
	}
	if out[0].Meta.Error == "" {
		t.Error("unreachable URL should record an error")
	}
	var _ types.Artifact = out[0]
}
