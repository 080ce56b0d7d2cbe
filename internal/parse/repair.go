package parse

import (
	"regexp"
	"strings"

	"polistep/internal/types"
)

// RepairRule is one pure correction over the agent result. Rules must be
// idempotent: applying a rule twice yields the same record as once.
type RepairRule func(types.AgentRunResult) types.AgentRunResult

// Rules is the ordered repair pipeline. Order matters: residency moves
// before evidence scans, synonyms normalize after content fills.
var Rules = []RepairRule{
	CleanRequiredDocuments,
	MoveResidencyFromAge,
	FillAgeFromEvidence,
	MergeRegionFromEvidence,
	NormalizeNoneSynonyms,
	NormalizeChannel,
	FillContactPhone,
}

// Repair applies the full rule pipeline. Safe to re-run.
func Repair(r types.AgentRunResult) types.AgentRunResult {
	for _, rule := range Rules {
		r = rule(r)
	}
	return r
}

var (
	phoneRe    = regexp.MustCompile(`0\d{1,2}[-.\s]?\d{3,4}[-.\s]?\d{4}`)
	bigPhoneRe = regexp.MustCompile(`1\d{3}[-.\s]?\d{4}`) // 1345-style service numbers
	addressRe  = regexp.MustCompile(`(특별시|광역시|[가-힣]{1,8}(시|군|구)\s)|([가-힣]{1,12}(로|길)\s?\d)`)
	ageRangeRe = regexp.MustCompile(`만\s?\d{1,3}세(\s?(이상|이하|미만|초과))?(\s?[~∼-]\s?(만\s?)?\d{1,3}세(\s?(이상|이하|미만))?)?`)
	fileExtRe  = regexp.MustCompile(`(?i)\.(pdf|hwp|hwpx|doc|docx|xls|xlsx|zip|jpg|jpeg|png|txt)$`)
)

// documentKeywords mark entries that are genuinely document-like even
// when they also contain digits or an address fragment.
var documentKeywords = []string{
	"신청서", "서류", "증명서", "등본", "초본", "확인서", "동의서",
	"계획서", "통장", "사본", "서식", "양식", "제출",
}

// residencyKeywords indicate an age field that actually describes a
// region/residency rule.
var residencyKeywords = []string{
	"거주", "주소", "주민등록", "관내", "거소", "전입",
}

// isNoneSynonym reports whether a criterion value is one of the empty
// markers agents emit instead of a real rule. Matching is done on the
// trimmed full value, not substrings, so a rule that merely mentions
// one of these is untouched.
func isNoneSynonym(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "-", "–", "없음", "해당없음", "해당 없음", "무관", "제한없음",
		"not applicable", "n/a", "null", "none":
		return true
	}
	return false
}

// CleanRequiredDocuments strips entries that look like a bare phone
// number or street address. Entries that also look like a filename or
// contain a document keyword are kept.
func CleanRequiredDocuments(r types.AgentRunResult) types.AgentRunResult {
	if len(r.RequiredDocuments) == 0 {
		return r
	}

	kept := make([]string, 0, len(r.RequiredDocuments))
	for _, doc := range r.RequiredDocuments {
		trimmed := strings.TrimSpace(doc)
		if trimmed == "" {
			continue
		}
		if looksLikeDocument(trimmed) {
			kept = append(kept, trimmed)
			continue
		}
		if phoneRe.MatchString(trimmed) || bigPhoneRe.MatchString(trimmed) || addressRe.MatchString(trimmed) {
			continue
		}
		kept = append(kept, trimmed)
	}
	r.RequiredDocuments = dedupe(kept)
	return r
}

func looksLikeDocument(s string) bool {
	if fileExtRe.MatchString(s) {
		return true
	}
	for _, kw := range documentKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// MoveResidencyFromAge relocates a residency rule that the agent
// misfiled under the age criterion, resetting age to the canonical
// no-restriction token.
func MoveResidencyFromAge(r types.AgentRunResult) types.AgentRunResult {
	age := strings.TrimSpace(r.Criteria.Age)
	if age == "" || age == types.NoRestriction {
		return r
	}
	if !containsAny(age, residencyKeywords) {
		return r
	}
	// An entry that states both an age bound and residency is a real
	// age rule; leave it alone.
	if ageRangeRe.MatchString(age) {
		return r
	}

	region := strings.TrimSpace(r.Criteria.Region)
	switch {
	case isNoneSynonym(region) || region == types.NoRestriction:
		r.Criteria.Region = age
	case strings.Contains(region, age):
		// Already merged on a prior pass.
	default:
		r.Criteria.Region = region + " / " + age
	}
	r.Criteria.Age = types.NoRestriction
	return r
}

// FillAgeFromEvidence backfills an unset age criterion from an explicit
// age-range pattern in the evidence text. The canonical no-restriction
// token is an explicit statement and is not overwritten.
func FillAgeFromEvidence(r types.AgentRunResult) types.AgentRunResult {
	age := strings.TrimSpace(r.Criteria.Age)
	// The canonical token is an explicit statement, not an empty marker.
	if age == types.NoRestriction || !isNoneSynonym(age) {
		return r
	}
	if m := ageRangeRe.FindString(r.EvidenceText); m != "" {
		r.Criteria.Age = strings.TrimSpace(m)
	}
	return r
}

// regionQualifiers mark an evidence region line as more specific than a
// bare structured value: an explicit no-restriction statement or
// multiple alternatives.
var regionQualifiers = []string{types.NoRestriction, "또는", "및", ",", "·"}

// MergeRegionFromEvidence replaces the region criterion with the
// evidence's region line when the evidence carries qualifiers the
// structured field lacks.
func MergeRegionFromEvidence(r types.AgentRunResult) types.AgentRunResult {
	line := findRegionLine(r.EvidenceText)
	if line == "" {
		return r
	}

	region := strings.TrimSpace(r.Criteria.Region)
	if isNoneSynonym(region) {
		r.Criteria.Region = line
		return r
	}
	if region == line || strings.Contains(region, line) {
		return r
	}
	for _, q := range regionQualifiers {
		if strings.Contains(line, q) && !strings.Contains(region, q) {
			r.Criteria.Region = line
			return r
		}
	}
	return r
}

func findRegionLine(evidence string) string {
	for _, line := range strings.Split(evidence, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-•* "))
		if line == "" || len([]rune(line)) > 120 {
			continue
		}
		if strings.Contains(line, "거주") || strings.Contains(line, "주소지") {
			return line
		}
	}
	return ""
}

// NormalizeNoneSynonyms maps every criterion's empty synonyms to the
// canonical no-restriction token; the other-criterion normalizes to
// "없음" instead. Idempotent by construction.
func NormalizeNoneSynonyms(r types.AgentRunResult) types.AgentRunResult {
	norm := func(v string) string {
		if isNoneSynonym(v) {
			return types.NoRestriction
		}
		return strings.TrimSpace(v)
	}
	r.Criteria.Age = norm(r.Criteria.Age)
	r.Criteria.Region = norm(r.Criteria.Region)
	r.Criteria.Income = norm(r.Criteria.Income)
	r.Criteria.Employment = norm(r.Criteria.Employment)

	other := strings.TrimSpace(r.Criteria.Other)
	if other == types.NoRestriction || isNoneSynonym(other) {
		r.Criteria.Other = types.None
	} else {
		r.Criteria.Other = other
	}
	return r
}

// channelKeywords group the channel vocabulary by normalized value.
var channelKeywords = map[types.ApplyChannel][]string{
	types.ChannelOnline:   {"온라인", "인터넷", "홈페이지", "누리집", "신청사이트", "online"},
	types.ChannelInPerson: {"방문", "내방", "창구", "주민센터", "행정복지센터", "in-person"},
	types.ChannelMail:     {"우편", "등기", "mail"},
}

// NormalizeChannel maps the free-text application channel onto
// {online, in-person, mail, mixed}. Two or more distinct channel groups
// in the text mean mixed.
func NormalizeChannel(r types.AgentRunResult) types.AgentRunResult {
	text := strings.ToLower(strings.TrimSpace(r.ApplyChannel))
	if text == "" {
		return r
	}
	if strings.Contains(text, "혼합") || text == string(types.ChannelMixed) {
		r.ApplyChannel = string(types.ChannelMixed)
		return r
	}

	var found []types.ApplyChannel
	for _, ch := range []types.ApplyChannel{types.ChannelOnline, types.ChannelInPerson, types.ChannelMail} {
		for _, kw := range channelKeywords[ch] {
			if strings.Contains(text, kw) || text == string(ch) {
				found = append(found, ch)
				break
			}
		}
	}

	switch len(found) {
	case 0:
		r.ApplyChannel = string(types.ChannelUnknown)
	case 1:
		r.ApplyChannel = string(found[0])
	default:
		r.ApplyChannel = string(types.ChannelMixed)
	}
	return r
}

// FillContactPhone backfills an empty contact phone from the first
// phone-number pattern in the evidence text.
func FillContactPhone(r types.AgentRunResult) types.AgentRunResult {
	if strings.TrimSpace(r.Contact.Phone) != "" {
		return r
	}
	if m := phoneRe.FindString(r.EvidenceText); m != "" {
		r.Contact.Phone = strings.TrimSpace(m)
	} else if m := bigPhoneRe.FindString(r.EvidenceText); m != "" {
		r.Contact.Phone = strings.TrimSpace(m)
	}
	return r
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
