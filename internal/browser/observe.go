package browser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-rod/rod"

	"polistep/internal/logging"
)

const (
	maxVisibleText = 12_000
	maxCandidates  = 40
)

// observation is one snapshot of the live page handed to the LLM.
type observation struct {
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	VisibleText string      `json:"visible_text"`
	Links       []candidate `json:"links,omitempty"`
	Buttons     []candidate `json:"buttons,omitempty"`
	Downloads   []candidate `json:"downloadable_links,omitempty"`
}

type candidate struct {
	Label string `json:"label"`
	Href  string `json:"href,omitempty"`
}

// collectJS gathers the interactive surface of the page in one eval.
// Download candidates are links whose target looks like a document.
const collectJS = `() => {
	const trim = s => (s || "").replace(/\s+/g, " ").trim().slice(0, 120);
	const links = [], buttons = [], downloads = [];
	const docRe = /\.(pdf|hwp|hwpx|zip|doc|docx|xls|xlsx)(\?|$)/i;
	for (const a of document.querySelectorAll("a[href]")) {
		const label = trim(a.innerText);
		if (!label) continue;
		const href = a.href || "";
		if (docRe.test(href)) downloads.push({label, href});
		else links.push({label, href});
	}
	for (const b of document.querySelectorAll("button, input[type=submit], [role=button]")) {
		const label = trim(b.innerText || b.value || b.getAttribute("aria-label"));
		if (label) buttons.push({label});
	}
	return {
		text: (document.body ? document.body.innerText : "").slice(0, 30000),
		links, buttons, downloads,
	};
}`

// observe snapshots the page. Any CDP failure surfaces as an error so
// the caller's circuit breaker can count it.
func observe(page *rod.Page) (*observation, error) {
	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("page info: %w", err)
	}

	res, err := page.Eval(collectJS)
	if err != nil {
		return nil, fmt.Errorf("collect page surface: %w", err)
	}

	encoded, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode page surface: %w", err)
	}
	var raw struct {
		Text      string      `json:"text"`
		Links     []candidate `json:"links"`
		Buttons   []candidate `json:"buttons"`
		Downloads []candidate `json:"downloads"`
	}
	if err := json.Unmarshal(encoded, &raw); err != nil {
		return nil, fmt.Errorf("decode page surface: %w", err)
	}

	ob := &observation{
		URL:         info.URL,
		Title:       info.Title,
		VisibleText: capRunes(normalizeSpace(raw.Text), maxVisibleText),
		Links:       capSlice(raw.Links, maxCandidates),
		Buttons:     capSlice(raw.Buttons, maxCandidates),
		Downloads:   capSlice(raw.Downloads, maxCandidates),
	}
	logging.BrowserDebug("observed %s: %d links, %d buttons, %d downloads",
		ob.URL, len(ob.Links), len(ob.Buttons), len(ob.Downloads))
	return ob, nil
}

// screenshotter adapts a page to the progress frame source.
type screenshotter struct {
	page *rod.Page
}

func (s screenshotter) Screenshot() ([]byte, error) {
	return s.page.Screenshot(false, nil)
}

func capSlice(in []candidate, max int) []candidate {
	if len(in) <= max {
		return in
	}
	return in[:max]
}

func capRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func normalizeSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
