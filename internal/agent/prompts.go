// File: internal/agent/prompts.go
package agent

import (
	"fmt"
	"strings"
	"time"
)

const planSchemaHint = `{
  "rationale": "one sentence",
  "steps": [
    {"kind": "navigate|click|input|scroll|wait|extract", "target": "url or css selector", "params": {}}
  ]
}`

const itemsSchemaHint = `{"items": [{"title": "...", "url": "...", "author": "...", "views": 0}]}`

// plannerSystemPrompt is assembled from its parts so the rules follow the
// configured limits.
func plannerSystemPrompt(maxSteps int, requireExtract bool) string {
	var sb strings.Builder
	sb.WriteString(`You plan browser automation for reading feed-style websites (video lists, timelines, search results).
Given an instruction and the current page, produce the complete ordered list of steps that reaches the requested content and reads it.

Step kinds:
- navigate: target is an absolute URL.
- click: target is a CSS selector of the element to click.
- input: target is a CSS selector of a text field; params.text is typed, params.submit=true presses Enter.
- scroll: params.amount pixels (negative scrolls up) or params.direction "down"/"up". Use it to load more feed items.
- wait: target is a CSS selector to wait for, or leave target empty and set params.ms.
- extract: target is a CSS selector matching every result item container; params.limit caps the number of items.
`)
	sb.WriteString("\nRules:\n")
	sb.WriteString("- Use plain CSS selectors only. Prefer stable attributes over generated class names.\n")
	sb.WriteString("- An extract step may only appear as the very last step.\n")
	if requireExtract {
		sb.WriteString("- Every plan must end with exactly one extract step.\n")
	}
	fmt.Fprintf(&sb, "- Use at most %d steps.\n", maxSteps)
	sb.WriteString("- If a previous attempt failed, do not repeat the failing selector; route around it.\n")
	sb.WriteString("- If the page is blank, start with navigate.\n")
	return sb.String()
}

func buildPlanPrompt(req PlanRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Instruction: %s\n", req.Instruction)
	fmt.Fprintf(&sb, "Target URL: %s\n", req.TargetURL)
	if req.SiteName != "" {
		fmt.Fprintf(&sb, "Site: %s\n", req.SiteName)
	}
	if len(req.SelectorHints) > 0 {
		fmt.Fprintf(&sb, "Known item selectors on this site: %s\n", strings.Join(req.SelectorHints, ", "))
	}

	sb.WriteString("\nCurrent page:\n")
	page := req.Page
	if page.URL == "" {
		sb.WriteString("  (blank, nothing loaded yet)\n")
	} else {
		fmt.Fprintf(&sb, "  URL: %s\n  Title: %s\n", page.URL, page.Title)
		if page.TextDigest != "" {
			fmt.Fprintf(&sb, "  Visible text:\n%s\n", indent(page.TextDigest, "    "))
		}
	}

	if fb := req.Feedback; fb != nil {
		sb.WriteString("\nPrevious attempt failed:\n")
		fmt.Fprintf(&sb, "  Error: %s\n", fb.Failure)
		if fb.FailedStep != nil {
			fmt.Fprintf(&sb, "  Failed step #%d: %s %q\n", fb.FailureIndex, fb.FailedStep.Kind, fb.FailedStep.Target)
		}
		if len(fb.RecentLog) > 0 {
			sb.WriteString("  Recent steps:\n")
			for _, entry := range fb.RecentLog {
				sb.WriteString("    - " + formatLogEntry(entry) + "\n")
			}
		}
		if fb.Raw != "" {
			fmt.Fprintf(&sb, "  Your previous response was rejected:\n%s\n", indent(truncate(fb.Raw, 1500), "    "))
		}
	}
	sb.WriteString("\nReturn the plan as JSON.")
	return sb.String()
}

func buildNormalizePrompt(candidates []candidate) string {
	var sb strings.Builder
	sb.WriteString("Normalize these scraped feed entries into records. ")
	sb.WriteString("Use short snake_case field names such as title, url, author, published, views, likes, summary. ")
	sb.WriteString("Numbers must be JSON numbers (convert 1.2万 to 12000, 3.4K to 3400). ")
	sb.WriteString("Skip entries that are navigation, ads or empty. Keep the input order.\n\nEntries:\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "[%d] text: %s\n", c.Index, c.Text)
		if c.Link != "" {
			fmt.Fprintf(&sb, "    link: %s\n", c.Link)
		}
		if c.Image != "" {
			fmt.Fprintf(&sb, "    image: %s\n", c.Image)
		}
	}
	return sb.String()
}

const normalizerSystemPrompt = `You clean raw web page fragments into structured records for a reading digest. Respond only with JSON.`

func formatLogEntry(e LogEntry) string {
	s := fmt.Sprintf("#%d %s %q attempt %d: %s", e.StepIndex, e.Action.Kind, e.Action.Target, e.Attempt, e.Status)
	if e.ErrorCode != "" {
		s += " (" + string(e.ErrorCode) + ")"
	}
	if e.Duration > 0 {
		s += " in " + e.Duration.Round(time.Millisecond).String()
	}
	return s
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
