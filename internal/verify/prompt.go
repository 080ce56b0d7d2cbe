package verify

import (
	"fmt"
	"strings"
)

// resultSchema is the JSON shape the agent must emit when it finishes.
const resultSchema = `{
  "matched": true,
  "criteria": {"age": "...", "region": "...", "income": "...", "employment": "...", "other": "..."},
  "required_documents": ["..."],
  "apply_steps": [{"step": 1, "title": "...", "detail": "...", "url": "..."}],
  "apply_channel": "...",
  "apply_period": "...",
  "contact": {"org": "...", "tel": "...", "site": "..."},
  "evidence_text": "페이지에서 그대로 옮긴 근거 문단",
  "navigation_path": [{"action": "open|click|input|scroll|extract", "label": "...", "target_url": "..."}],
  "final_url": "...",
  "confidence": 0.0
}`

// buildAgentPrompt writes the base task prompt for one program.
func buildAgentPrompt(programTitle, entryURL string) string {
	var b strings.Builder
	b.WriteString("당신은 정부 지원사업 공고 페이지를 검증하는 웹 탐색 에이전트입니다.\n")
	fmt.Fprintf(&b, "대상 정책: %s\n시작 URL: %s\n\n", programTitle, entryURL)
	b.WriteString("임무:\n")
	b.WriteString("1. 시작 URL에서 출발해 위 정책의 공식 안내 페이지를 찾으세요.\n")
	b.WriteString("2. 페이지가 해당 정책이 맞는지 확인하세요. 제목이 다르면 matched를 false로 하세요.\n")
	b.WriteString("3. 맞다면 자격 요건(연령, 거주지역, 소득, 취업상태, 기타), 제출 서류, 신청 절차, ")
	b.WriteString("신청 방법과 기간, 문의처를 페이지 원문 그대로 추출하세요.\n")
	b.WriteString("4. 제한이 없는 항목은 \"제한 없음\"으로 적으세요. 추측으로 채우지 마세요.\n")
	b.WriteString("5. 공고문 PDF나 첨부파일 링크가 보이면 클릭해 내려받으세요.\n")
	b.WriteString("6. 사이트에 해당 정책 자료가 없으면 그렇게 말하고 종료하세요.\n\n")
	b.WriteString("finish 행동의 result에는 다음 스키마의 JSON을 채우세요:\n")
	b.WriteString(resultSchema)
	return b.String()
}
