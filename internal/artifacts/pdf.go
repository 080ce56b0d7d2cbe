package artifacts

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"polistep/internal/logging"
	"polistep/internal/types"
)

// fillPDF extracts plain text page by page, bounded by page and
// character caps. A PDF that yields almost no text is flagged as likely
// scanned so downstream consumers know the content was not read.
func (e *Extractor) fillPDF(a *types.Artifact, path string) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		a.Meta.Error = fmt.Sprintf("open pdf: %v", err)
		return
	}
	defer f.Close()

	total := reader.NumPage()
	pages := total
	if pages > MaxPDFPages {
		pages = MaxPDFPages
		a.Meta.Truncated = true
	}

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logging.ArtifactsWarn("pdf page %d of %s unreadable: %v", i, a.Name, err)
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
		if b.Len() >= MaxPDFChars {
			a.Meta.Truncated = true
			break
		}
	}

	text := CleanText(b.String())
	if len(text) > MaxPDFChars {
		text = text[:MaxPDFChars]
		a.Meta.Truncated = true
	}

	a.Text = text
	a.Meta.Engine = "pdf"
	a.Meta.Pages = total
	if len(text) < scannedPDFThreshold {
		a.Meta.Warning = "likely scanned, low text yield"
	}
}
