package guidance

import (
	"context"
	"errors"
	"testing"

	"polistep/internal/config"
)

type fakeLLM struct {
	out string
	err error
}

func (f *fakeLLM) Complete(ctx context.Context, model, prompt string) (string, error) {
	return f.out, f.err
}

func TestGenerate_WellFormed(t *testing.T) {
	g := New(&fakeLLM{out: "```json\n" + `{
		"policy_title": "청년 월세 지원",
		"summary": "월세를 지원하는 사업입니다.",
		"eligibility": {"age": "만 19세 이상 34세 이하"},
		"final_required_documents": [{"name": "신청서", "required": true}],
		"final_apply_steps": [{"step": 1, "title": "온라인 신청", "detail": "복지로에서 신청"}],
		"confidence": 0.8,
		"needs_review": false
	}` + "\n```"}, config.DefaultConfig().LLM)

	guide := g.Generate(context.Background(), "청년 월세 지원", "https://example.go.kr", "bundle")

	if guide.NeedsReview {
		t.Error("well-formed guidance should not need review")
	}
	if guide.Summary == "" || len(guide.RequiredDocuments) != 1 || len(guide.ApplySteps) != 1 {
		t.Errorf("guide = %+v", guide)
	}
	if guide.SourceURL != "https://example.go.kr" {
		t.Errorf("source url not backfilled: %q", guide.SourceURL)
	}
}

func TestGenerate_ProviderFailure(t *testing.T) {
	g := New(&fakeLLM{err: errors.New("503 overloaded")}, config.DefaultConfig().LLM)

	guide := g.Generate(context.Background(), "정책", "https://example.go.kr", "bundle")

	if guide == nil {
		t.Fatal("placeholder expected, got nil")
	}
	if !guide.NeedsReview {
		t.Error("placeholder must need review")
	}
	if len(guide.Warnings) == 0 {
		t.Error("placeholder must carry a warning")
	}
	if guide.ProgramTitle != "정책" {
		t.Errorf("title = %q", guide.ProgramTitle)
	}
}

func TestGenerate_UnparseableOutput(t *testing.T) {
	g := New(&fakeLLM{out: "죄송합니다, JSON을 만들 수 없습니다."}, config.DefaultConfig().LLM)

	guide := g.Generate(context.Background(), "정책", "u", "bundle")

	if !guide.NeedsReview || guide.WhyReview == "" {
		t.Errorf("guide = %+v", guide)
	}
}

func TestDecodeGuidance_EmptyContentRejected(t *testing.T) {
	if _, err := decodeGuidance(`{"confidence": 0.5}`); err == nil {
		t.Fatal("content-free guidance should be rejected")
	}
}
