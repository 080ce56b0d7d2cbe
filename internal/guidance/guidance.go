// Package guidance produces the final user-facing application guide
// from the bundled evidence corpus. One provider call per run; a failed
// or unparseable generation degrades to a placeholder guide flagged for
// manual review instead of failing the verification.
package guidance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"polistep/internal/config"
	"polistep/internal/llm"
	"polistep/internal/logging"
	"polistep/internal/types"
)

// Generator turns a bundle into a FinalGuidance.
type Generator struct {
	llm llm.Client
	cfg config.LLMConfig
}

// New wires a generator to its LLM client.
func New(client llm.Client, cfg config.LLMConfig) *Generator {
	return &Generator{llm: client, cfg: cfg}
}

const guidanceSchema = `{
  "policy_title": "정책명",
  "source_url": "출처 URL",
  "summary": "신청자 입장에서 3~4문장 요약",
  "eligibility": {"age": "...", "region": "...", "income": "...", "employment": "...", "other": "..."},
  "apply_overview": {"apply_channel": "online|in-person|mail|mixed", "apply_period": "...", "where_to_apply": "..."},
  "final_required_documents": [{"name": "서류명", "required": true, "note": "비고"}],
  "final_apply_steps": [{"step": 1, "title": "...", "detail": "...", "url": "..."}],
  "contact": {"org": "...", "tel": "...", "site": "..."},
  "warnings": ["주의사항"],
  "faq": [{"q": "...", "a": "..."}],
  "confidence": 0.0,
  "needs_review": false,
  "why_review": ""
}`

// Generate produces the guide for one verified program. Never returns
// nil: generation or parse failure yields a placeholder guide with
// NeedsReview set.
func (g *Generator) Generate(ctx context.Context, title, sourceURL, bundleText string) *types.FinalGuidance {
	prompt := buildPrompt(title, sourceURL, bundleText)

	model := g.cfg.GuidanceModel
	if model == "" {
		model = g.cfg.Model
	}

	out, err := g.llm.Complete(ctx, model, prompt)
	if err != nil {
		logging.GuidanceWarn("generation failed for %q: %v", title, err)
		return placeholder(title, sourceURL, fmt.Sprintf("generation failed: %v", err))
	}

	guide, err := decodeGuidance(out)
	if err != nil {
		logging.GuidanceWarn("unparseable guidance for %q: %v", title, err)
		return placeholder(title, sourceURL, fmt.Sprintf("unparseable guidance: %v", err))
	}

	if guide.ProgramTitle == "" {
		guide.ProgramTitle = title
	}
	if guide.SourceURL == "" {
		guide.SourceURL = sourceURL
	}
	logging.Guidance("guidance generated for %q: %d documents, %d steps, confidence=%.2f",
		title, len(guide.RequiredDocuments), len(guide.ApplySteps), guide.Confidence)
	return guide
}

func buildPrompt(title, sourceURL, bundleText string) string {
	var b strings.Builder
	b.WriteString("당신은 정부 지원사업 신청을 돕는 안내 작성자입니다. ")
	b.WriteString("아래 수집 자료만 근거로, 신청자가 바로 따라할 수 있는 신청 가이드를 작성하세요. ")
	b.WriteString("자료에 없는 내용은 추측하지 말고 비워 두거나 warnings에 적으세요.\n\n")
	fmt.Fprintf(&b, "정책명: %s\nURL: %s\n\n", title, sourceURL)
	b.WriteString("## 수집 자료\n")
	b.WriteString(bundleText)
	b.WriteString("\n\n## 출력 형식\n다음 JSON 스키마로만 답하세요:\n")
	b.WriteString(guidanceSchema)
	return b.String()
}

// decodeGuidance tolerates fences and prose around the JSON object.
func decodeGuidance(raw string) (*types.FinalGuidance, error) {
	trimmed := strings.TrimSpace(raw)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in output")
	}

	var guide types.FinalGuidance
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &guide); err != nil {
		return nil, fmt.Errorf("decode guidance: %w", err)
	}
	if guide.Summary == "" && len(guide.ApplySteps) == 0 && len(guide.RequiredDocuments) == 0 {
		return nil, fmt.Errorf("guidance carries no content")
	}
	return &guide, nil
}

func placeholder(title, sourceURL, why string) *types.FinalGuidance {
	return &types.FinalGuidance{
		ProgramTitle: title,
		SourceURL:    sourceURL,
		Summary:      "안내 생성에 실패했습니다. 담당자 확인이 필요합니다.",
		Warnings:     []string{"generation failed - manual check required"},
		NeedsReview:  true,
		WhyReview:    why,
	}
}
