// Package types holds the shared domain records for the verification
// pipeline: the task handed in by a caller, the raw agent output, the
// repaired and persisted verification record, extracted artifacts, the
// bundled corpus and the final user-facing guidance.
package types

import "time"

// VerificationStatus is the terminal state of a verification run.
// There is no third state: anything not provably correct resolves to FAILED.
type VerificationStatus string

const (
	StatusPending VerificationStatus = "PENDING"
	StatusSuccess VerificationStatus = "SUCCESS"
	StatusFailed  VerificationStatus = "FAILED"
)

// Matched is the agent's tri-state answer to "is this the right program page".
type Matched string

const (
	MatchedTrue    Matched = "true"
	MatchedFalse   Matched = "false"
	MatchedUnknown Matched = "unknown"
)

// Canonical criterion sentinels, kept in the source language of the
// verified pages. NoRestriction is the normal form for empty criteria;
// the "other" field normalizes to None instead.
const (
	NoRestriction = "제한 없음"
	None          = "없음"
)

// ApplyChannel is the normalized application channel.
type ApplyChannel string

const (
	ChannelOnline   ApplyChannel = "online"
	ChannelInPerson ApplyChannel = "in-person"
	ChannelMail     ApplyChannel = "mail"
	ChannelMixed    ApplyChannel = "mixed"
	ChannelUnknown  ApplyChannel = ""
)

// VerificationTask identifies one program to verify. Immutable once a run
// has started.
type VerificationTask struct {
	ProgramTitle string           `json:"program_title"`
	TargetURL    string           `json:"target_url"`
	PriorPath    []NavigationStep `json:"prior_path,omitempty"`
	RawText      string           `json:"raw_text,omitempty"` // upstream metadata blob, bundled as-is
	Force        bool             `json:"force,omitempty"`
}

// Criteria are the five eligibility dimensions. Each holds either a short
// normalized rule or the NoRestriction sentinel (None for Other).
type Criteria struct {
	Age        string `json:"age"`
	Region     string `json:"region"`
	Income     string `json:"income"`
	Employment string `json:"employment"`
	Other      string `json:"other"`
}

// ApplyStep is one ordered step of the application procedure.
type ApplyStep struct {
	Step   int    `json:"step"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	URL    string `json:"url,omitempty"`
}

// Contact is the responsible organization's contact info.
type Contact struct {
	Org   string `json:"org,omitempty"`
	Phone string `json:"tel,omitempty"`
	Site  string `json:"site,omitempty"`
}

// NavigationStep is one page interaction taken during a run. Steps with
// AutoInjected set are bookkeeping (the initial "open entry URL") and do
// not count as real exploration when judging hint usability.
type NavigationStep struct {
	Action       string `json:"action"` // open, click, input, scroll, extract
	Label        string `json:"label,omitempty"`
	TargetURL    string `json:"target_url,omitempty"`
	Note         string `json:"note,omitempty"`
	AutoInjected bool   `json:"auto_injected,omitempty"`
}

// AgentRunResult is the raw shape produced by the Agent Run Supervisor,
// before the repair layer touches it. All fields are optional; the parser
// fills what it can and flags the rest.
type AgentRunResult struct {
	Matched           Matched          `json:"matched"`
	Criteria          Criteria         `json:"criteria"`
	RequiredDocuments []string         `json:"required_documents"`
	ApplySteps        []ApplyStep      `json:"apply_steps"`
	ApplyChannel      string           `json:"apply_channel"`
	ApplyPeriod       string           `json:"apply_period"`
	Contact           Contact          `json:"contact"`
	EvidenceText      string           `json:"evidence_text"`
	NavigationPath    []NavigationStep `json:"navigation_path"`
	FinalURL          string           `json:"final_url,omitempty"`

	DownloadedFiles []string `json:"downloaded_files,omitempty"`
	ImageURLs       []string `json:"image_urls,omitempty"`

	// RawText is the agent's free-text output when structured parsing
	// failed entirely.
	RawText     string `json:"raw_text,omitempty"`
	ParseFailed bool   `json:"parse_failed,omitempty"`

	NeedsReview bool    `json:"needs_review"`
	Confidence  float64 `json:"confidence"`
	Error       string  `json:"error,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

// VerificationRecord is the persisted outcome of one verification.
type VerificationRecord struct {
	ID           string             `json:"id"`
	ProgramTitle string             `json:"program_title"`
	TargetURL    string             `json:"target_url"`
	Status       VerificationStatus `json:"status"`

	Criteria          Criteria         `json:"criteria"`
	RequiredDocuments []string         `json:"required_documents"`
	ApplySteps        []ApplyStep      `json:"apply_steps"`
	ApplyChannel      ApplyChannel     `json:"apply_channel"`
	ApplyPeriod       string           `json:"apply_period"`
	Contact           Contact          `json:"contact"`
	EvidenceText      string           `json:"evidence_text"`
	NavigationPath    []NavigationStep `json:"navigation_path"`
	FinalURL          string           `json:"final_url,omitempty"`

	Confidence  float64 `json:"confidence"`
	NeedsReview bool    `json:"needs_review"`
	Reason      string  `json:"reason,omitempty"`
	Error       string  `json:"error_message,omitempty"`

	Guidance *FinalGuidance `json:"guidance,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastVerifiedAt time.Time `json:"last_verified_at"`
}

// Artifact is one unit of extracted text: a downloaded file or a fetched
// image URL. Never mutated after creation.
type Artifact struct {
	SourceType string       `json:"source_type"` // text, pdf, image, zip, hwp, file, url
	Name       string       `json:"name"`
	Path       string       `json:"path,omitempty"`
	URL        string       `json:"url,omitempty"`
	Text       string       `json:"text"`
	Meta       ArtifactMeta `json:"meta"`
}

// ArtifactMeta carries extraction metadata; failures land here, never as
// a pipeline error.
type ArtifactMeta struct {
	Ext       string `json:"ext,omitempty"`
	Engine    string `json:"engine,omitempty"`
	Pages     int    `json:"pages,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	TextLen   int    `json:"text_len"`
	Warning   string `json:"warning,omitempty"`
	Note      string `json:"note,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Bundle is the single merged text corpus fed to the guidance generator.
// Ephemeral; rebuilt every run.
type Bundle struct {
	Text  string      `json:"text"`
	Stats BundleStats `json:"stats"`
}

// BundleStats summarizes what went into a bundle.
type BundleStats struct {
	Length        int `json:"bundle_len"`
	ArtifactCount int `json:"artifacts_count"`
	ImageCount    int `json:"image_urls_count"`
}

// GuidanceDocument is one required document entry of the final guide.
type GuidanceDocument struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Note     string `json:"note,omitempty"`
}

// GuidanceFAQ is one question/answer pair of the final guide.
type GuidanceFAQ struct {
	Q string `json:"q"`
	A string `json:"a"`
}

// ApplyOverview summarizes how and when to apply.
type ApplyOverview struct {
	Channel      string `json:"apply_channel"`
	Period       string `json:"apply_period"`
	WhereToApply string `json:"where_to_apply,omitempty"`
}

// FinalGuidance is the user-facing application guide derived 1:1 from a
// Bundle and attached to the record it was generated for.
type FinalGuidance struct {
	ProgramTitle      string             `json:"policy_title"`
	SourceURL         string             `json:"source_url"`
	Summary           string             `json:"summary"`
	Eligibility       Criteria           `json:"eligibility"`
	ApplyOverview     ApplyOverview      `json:"apply_overview"`
	RequiredDocuments []GuidanceDocument `json:"final_required_documents"`
	ApplySteps        []ApplyStep        `json:"final_apply_steps"`
	Contact           Contact            `json:"contact"`
	Warnings          []string           `json:"warnings,omitempty"`
	FAQ               []GuidanceFAQ      `json:"faq,omitempty"`
	Confidence        float64            `json:"confidence"`
	NeedsReview       bool               `json:"needs_review"`
	WhyReview         string             `json:"why_review,omitempty"`
}
