// Package parse turns the agent's free-text output into an AgentRunResult
// and repairs the known systematic extraction errors. Parsing is
// best-effort: a garbled payload degrades to a raw-text fallback, and a
// recognized "no such program" phrasing becomes a confident negative
// result rather than a parse failure.
package parse

import (
	"encoding/json"
	"regexp"
	"strings"

	"polistep/internal/types"
)

// ReasonNotFound marks the recognized "program not found on this site"
// negative outcome.
const ReasonNotFound = "POLICY_NOT_FOUND"

var fencedBlockRe = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*\\})\\s*```")

// notFoundPhrasings are agent outputs that explicitly state the program
// does not exist on the site. They are matched against the raw text only
// after every structured decode has failed.
var notFoundPhrasings = []string{
	"자료가 없습니다",
	"검색 결과가 없습니다",
	"해당 정책을 찾을 수 없",
	"정책을 찾지 못했",
	"존재하지 않는 정책",
	"no matching data",
	"policy not found",
}

// rawResult mirrors the JSON shape the agent is prompted to emit. All
// fields are optional; aliases cover the agent's known drift.
type rawResult struct {
	Matched           *bool                  `json:"matched"`
	Criteria          *types.Criteria        `json:"criteria"`
	ExtractedCriteria *types.Criteria        `json:"extracted_criteria"`
	RequiredDocuments []string               `json:"required_documents"`
	ApplySteps        []types.ApplyStep      `json:"apply_steps"`
	ApplyChannel      string                 `json:"apply_channel"`
	ApplyPeriod       string                 `json:"apply_period"`
	Contact           types.Contact          `json:"contact"`
	EvidenceText      string                 `json:"evidence_text"`
	Evidence          string                 `json:"evidence"`
	NavigationPath    []types.NavigationStep `json:"navigation_path"`
	FinalURL          string                 `json:"final_url"`
	Confidence        float64                `json:"confidence"`
}

// Parse decodes raw agent output. The ladder is: direct decode, fenced
// ```json block, outermost brace span, known not-found phrasing,
// raw-text fallback.
func Parse(raw string) *types.AgentRunResult {
	trimmed := strings.TrimSpace(raw)

	if r, ok := decode(trimmed); ok {
		return r
	}
	if m := fencedBlockRe.FindStringSubmatch(trimmed); m != nil {
		if r, ok := decode(m[1]); ok {
			return r
		}
	}
	if span := braceSpan(trimmed); span != "" {
		if r, ok := decode(span); ok {
			return r
		}
	}

	for _, phrase := range notFoundPhrasings {
		if strings.Contains(trimmed, phrase) {
			return &types.AgentRunResult{
				Matched:    types.MatchedFalse,
				RawText:    trimmed,
				Reason:     ReasonNotFound,
				Confidence: 0.9,
			}
		}
	}

	return &types.AgentRunResult{
		Matched:     types.MatchedUnknown,
		RawText:     trimmed,
		ParseFailed: true,
		NeedsReview: true,
	}
}

// decode attempts a strict JSON decode into the agent's result shape.
func decode(text string) (*types.AgentRunResult, bool) {
	var rr rawResult
	if err := json.Unmarshal([]byte(text), &rr); err != nil {
		return nil, false
	}

	criteria := rr.Criteria
	if criteria == nil {
		criteria = rr.ExtractedCriteria
	}
	evidence := rr.EvidenceText
	if evidence == "" {
		evidence = rr.Evidence
	}

	// A decodable payload that carries neither criteria nor evidence is
	// not a usable result.
	if criteria == nil && evidence == "" {
		return nil, false
	}

	res := &types.AgentRunResult{
		Matched:           types.MatchedUnknown,
		RequiredDocuments: rr.RequiredDocuments,
		ApplySteps:        rr.ApplySteps,
		ApplyChannel:      rr.ApplyChannel,
		ApplyPeriod:       rr.ApplyPeriod,
		Contact:           rr.Contact,
		EvidenceText:      evidence,
		NavigationPath:    rr.NavigationPath,
		FinalURL:          rr.FinalURL,
		Confidence:        rr.Confidence,
	}
	if criteria != nil {
		res.Criteria = *criteria
	}
	if rr.Matched != nil {
		if *rr.Matched {
			res.Matched = types.MatchedTrue
		} else {
			res.Matched = types.MatchedFalse
		}
	} else if criteria != nil {
		// The agent only emits criteria after confirming the page.
		res.Matched = types.MatchedTrue
	}
	return res, true
}

// braceSpan extracts the outermost brace-delimited span.
func braceSpan(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}
