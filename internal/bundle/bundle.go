// Package bundle merges every piece of evidence gathered for one
// program (structured agent facts, evidence text, artifact texts, image
// URLs) into a single bounded text corpus for the guidance generator.
// Section order is fixed; only the tail of the bundle is ever dropped.
package bundle

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"polistep/internal/logging"
	"polistep/internal/types"
)

// Per-section and whole-bundle character caps.
const (
	MaxProgramRaw  = 20_000
	MaxEvidence    = 45_000
	MaxArtifact    = 25_000
	MaxImageOCR    = 18_000
	MaxBundleTotal = 220_000
)

// TruncationMarker terminates any capped section or bundle.
const TruncationMarker = "[...TRUNCATED...]"

// ProgramMeta identifies the program being bundled.
type ProgramMeta struct {
	Title   string
	URL     string
	RawText string // upstream metadata blob, included verbatim
}

// Build assembles the bundle. Sections appear in a fixed order so the
// generator prompt can rely on layout: metadata, agent facts, evidence,
// artifacts, image URL inventory.
func Build(meta ProgramMeta, result *types.AgentRunResult, artifacts []types.Artifact) types.Bundle {
	var b strings.Builder

	b.WriteString("# 정책 기본 정보\n")
	fmt.Fprintf(&b, "정책명: %s\n", meta.Title)
	fmt.Fprintf(&b, "URL: %s\n", meta.URL)
	if raw := strings.TrimSpace(meta.RawText); raw != "" {
		b.WriteString("\n## 원본 메타데이터\n")
		b.WriteString(capText(raw, MaxProgramRaw))
		b.WriteString("\n")
	}

	if result != nil {
		b.WriteString("\n# 검증 결과 (구조화)\n")
		writeCriteria(&b, result.Criteria)
		if len(result.RequiredDocuments) > 0 {
			b.WriteString("제출 서류:\n")
			for _, doc := range result.RequiredDocuments {
				fmt.Fprintf(&b, "- %s\n", doc)
			}
		}
		if len(result.ApplySteps) > 0 {
			b.WriteString("신청 절차:\n")
			for _, s := range result.ApplySteps {
				fmt.Fprintf(&b, "%d. %s: %s\n", s.Step, s.Title, s.Detail)
			}
		}
		if result.ApplyChannel != "" {
			fmt.Fprintf(&b, "신청 방법: %s\n", result.ApplyChannel)
		}
		if result.ApplyPeriod != "" {
			fmt.Fprintf(&b, "신청 기간: %s\n", result.ApplyPeriod)
		}
		writeContact(&b, result.Contact)

		if ev := strings.TrimSpace(result.EvidenceText); ev != "" {
			b.WriteString("\n# 페이지 근거 텍스트\n")
			b.WriteString(capText(ev, MaxEvidence))
			b.WriteString("\n")
		}
	}

	artifactCount := 0
	imageCount := 0
	for _, a := range artifacts {
		limit := MaxArtifact
		if a.SourceType == "image" || a.SourceType == "url" {
			limit = MaxImageOCR
		}
		if a.SourceType == "url" {
			imageCount++
		} else {
			artifactCount++
		}

		fmt.Fprintf(&b, "\n# 첨부자료: %s (%s)\n", a.Name, a.SourceType)
		if a.Meta.Error != "" {
			fmt.Fprintf(&b, "[추출 실패: %s]\n", a.Meta.Error)
			continue
		}
		if a.Meta.Note != "" {
			fmt.Fprintf(&b, "[%s]\n", a.Meta.Note)
		}
		text := strings.TrimSpace(a.Text)
		if text == "" {
			b.WriteString("[NO_TEXT]\n")
			continue
		}
		b.WriteString(capText(text, limit))
		b.WriteString("\n")
	}

	if result != nil && len(result.ImageURLs) > 0 {
		b.WriteString("\n# 페이지 이미지 URL\n")
		for _, u := range result.ImageURLs {
			fmt.Fprintf(&b, "- %s\n", u)
		}
	}

	text := capText(b.String(), MaxBundleTotal)
	bundle := types.Bundle{
		Text: text,
		Stats: types.BundleStats{
			Length:        len(text),
			ArtifactCount: artifactCount,
			ImageCount:    imageCount,
		},
	}
	logging.Guidance("bundle built: len=%d artifacts=%d images=%d",
		bundle.Stats.Length, bundle.Stats.ArtifactCount, bundle.Stats.ImageCount)
	return bundle
}

func writeCriteria(b *strings.Builder, c types.Criteria) {
	fmt.Fprintf(b, "연령: %s\n", orDash(c.Age))
	fmt.Fprintf(b, "거주지역: %s\n", orDash(c.Region))
	fmt.Fprintf(b, "소득: %s\n", orDash(c.Income))
	fmt.Fprintf(b, "취업상태: %s\n", orDash(c.Employment))
	fmt.Fprintf(b, "기타: %s\n", orDash(c.Other))
}

func writeContact(b *strings.Builder, c types.Contact) {
	if c.Org == "" && c.Phone == "" && c.Site == "" {
		return
	}
	b.WriteString("문의처:")
	if c.Org != "" {
		fmt.Fprintf(b, " %s", c.Org)
	}
	if c.Phone != "" {
		fmt.Fprintf(b, " %s", c.Phone)
	}
	if c.Site != "" {
		fmt.Fprintf(b, " %s", c.Site)
	}
	b.WriteString("\n")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// capText truncates on a rune boundary and appends the marker. Text at
// or under the cap passes through untouched.
func capText(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	budget := max - len(TruncationMarker)
	if budget < 0 {
		budget = 0
	}
	cut := text[:budget]
	// Drop a trailing rune fragment so multibyte text is never split.
	// At most UTFMax-1 bytes go; invalid bytes deeper in the text pass
	// through, only the tail is ever trimmed.
	for i := 0; i < utf8.UTFMax-1 && len(cut) > 0; i++ {
		if r, size := utf8.DecodeLastRuneInString(cut); r != utf8.RuneError || size > 1 {
			break
		}
		cut = cut[:len(cut)-1]
	}
	return cut + TruncationMarker
}
