package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"polistep/internal/logging"
	"polistep/internal/progress"
	"polistep/internal/types"
)

// snapshotBreakerMsg is the terminal error text when the snapshot
// circuit breaker trips.
const snapshotBreakerMsg = "repeated snapshot failure, manual review needed"

// decision is the action JSON the LLM emits each step.
type decision struct {
	Action string          `json:"action"` // open, click, input, scroll, extract, finish
	Target string          `json:"target,omitempty"`
	Text   string          `json:"text,omitempty"`
	Note   string          `json:"note,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// runAgent drives the decide/act loop until the agent finishes, the
// action ceiling is hit, or the circuit breaker trips. The returned
// string is the agent's final free-text payload; the navigation path is
// accumulated in steps.
func (s *Supervisor) runAgent(
	ctx context.Context,
	page *rod.Page,
	prompt string,
	sink progress.Sink,
	steps *[]types.NavigationStep,
) (string, error) {
	snapshotFailures := 0
	var extracted strings.Builder

	for action := 1; action <= s.cfg.Run.MaxActions; action++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		ob, err := s.observe(page)
		if err != nil {
			snapshotFailures++
			logging.BrowserWarn("snapshot failure %d/%d: %v", snapshotFailures, s.cfg.Run.SnapshotThreshold, err)
			if snapshotFailures >= s.cfg.Run.SnapshotThreshold {
				return "", fmt.Errorf("%s", snapshotBreakerMsg)
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}
		snapshotFailures = 0

		d, err := s.decide(ctx, prompt, ob, *steps, extracted.String())
		if err != nil {
			return "", fmt.Errorf("agent decision: %w", err)
		}
		sink.Log(fmt.Sprintf("[%d/%d] %s %s", action, s.cfg.Run.MaxActions, d.Action, d.Target))

		if d.Action == "finish" {
			*steps = append(*steps, types.NavigationStep{Action: "finish", Note: d.Note})
			if len(d.Result) > 0 {
				return string(d.Result), nil
			}
			return extracted.String(), nil
		}

		s.execute(page, d, steps, &extracted)
	}

	return "", fmt.Errorf("action ceiling %d reached without a final answer", s.cfg.Run.MaxActions)
}

// execute applies one decision to the page. Failures are recorded on
// the navigation step and shown to the agent next turn; they never end
// the run.
func (s *Supervisor) execute(page *rod.Page, d *decision, steps *[]types.NavigationStep, extracted *strings.Builder) {
	step := types.NavigationStep{Action: d.Action, Label: d.Target, Note: d.Note}

	switch d.Action {
	case "open":
		if !domainAllowed(s.cfg.Browser.AllowedDomains, d.Target) {
			step.Note = fmt.Sprintf("refused: %s outside allowed domains", d.Target)
			logging.BrowserWarn("navigation refused: %s", d.Target)
			break
		}
		step.TargetURL = d.Target
		if err := page.Timeout(s.cfg.Browser.NavigationTimeout()).Navigate(d.Target); err != nil {
			step.Note = fmt.Sprintf("navigate failed: %v", err)
			break
		}
		if err := page.Timeout(s.cfg.Browser.NavigationTimeout()).WaitLoad(); err != nil {
			step.Note = fmt.Sprintf("load incomplete: %v", err)
		}

	case "click":
		if err := clickByText(page, d.Target, s.cfg.Browser.NavigationTimeout()); err != nil {
			step.Note = fmt.Sprintf("click failed: %v", err)
		}

	case "input":
		if err := inputByText(page, d.Target, d.Text, s.cfg.Browser.NavigationTimeout()); err != nil {
			step.Note = fmt.Sprintf("input failed: %v", err)
		}

	case "scroll":
		if _, err := page.Eval(`() => window.scrollBy(0, window.innerHeight * 0.8)`); err != nil {
			step.Note = fmt.Sprintf("scroll failed: %v", err)
		}

	case "extract":
		if ob, err := s.observe(page); err == nil {
			fmt.Fprintf(extracted, "\n--- %s (%s) ---\n%s\n", ob.Title, ob.URL, ob.VisibleText)
			step.Note = "page text captured"
		} else {
			step.Note = fmt.Sprintf("extract failed: %v", err)
		}

	default:
		step.Note = fmt.Sprintf("unknown action %q ignored", d.Action)
	}

	*steps = append(*steps, step)
}

// decide asks the LLM for the next action given the current page and
// the history so far.
func (s *Supervisor) decide(
	ctx context.Context,
	prompt string,
	ob *observation,
	steps []types.NavigationStep,
	extracted string,
) (*decision, error) {
	obJSON, err := json.Marshal(ob)
	if err != nil {
		return nil, err
	}
	historyJSON, _ := json.Marshal(steps)

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n## 현재 페이지\n")
	b.Write(obJSON)
	b.WriteString("\n\n## 지금까지의 행동\n")
	b.Write(historyJSON)
	if extracted != "" {
		b.WriteString("\n\n## 지금까지 수집한 텍스트\n")
		b.WriteString(capRunes(extracted, 8000))
	}
	b.WriteString("\n\n다음 행동 하나를 JSON으로만 답하세요: ")
	b.WriteString(`{"action":"open|click|input|scroll|extract|finish","target":"...","text":"...","note":"...","result":{...}}`)
	b.WriteString("\nfinish일 때는 result에 최종 검증 결과 JSON을 채우세요.")

	out, err := s.llm.Complete(ctx, s.cfg.LLM.Model, b.String())
	if err != nil {
		return nil, err
	}
	return parseDecision(out)
}

// parseDecision decodes the action JSON, tolerating fences and prose
// around the object.
func parseDecision(raw string) (*decision, error) {
	trimmed := strings.TrimSpace(raw)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no action object in %q", capRunes(trimmed, 200))
	}

	var d decision
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &d); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	if d.Action == "" {
		return nil, fmt.Errorf("action missing in %q", capRunes(trimmed, 200))
	}
	return &d, nil
}

// clickByText clicks the first link or button whose visible text
// contains the target label.
func clickByText(page *rod.Page, label string, timeout time.Duration) error {
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("empty click target")
	}
	el, err := page.Timeout(timeout).ElementR("a, button, input[type=submit], [role=button]", regexpQuote(label))
	if err != nil {
		return fmt.Errorf("element %q not found: %w", label, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %q: %w", label, err)
	}
	page.Timeout(timeout).WaitLoad()
	return nil
}

// inputByText types into the first input or textarea matching the
// label's placeholder, name, or nearby text.
func inputByText(page *rod.Page, label, text string, timeout time.Duration) error {
	el, err := page.Timeout(timeout).ElementR("input, textarea", regexpQuote(label))
	if err != nil {
		// Fall back to the first text input on the page.
		el, err = page.Timeout(timeout).Element(`input[type=text], input[type=search], textarea`)
		if err != nil {
			return fmt.Errorf("no input for %q: %w", label, err)
		}
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("type into %q: %w", label, err)
	}
	return nil
}

func regexpQuote(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`, `.`, `\.`, `+`, `\+`, `*`, `\*`, `?`, `\?`,
		`(`, `\(`, `)`, `\)`, `[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`,
		`^`, `\^`, `$`, `\$`, `|`, `\|`,
	)
	return replacer.Replace(s)
}
