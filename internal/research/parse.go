package research

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jonathan/ink-prompts/internal/llm"
	"github.com/jonathan/ink-prompts/internal/schemas"
	"github.com/jonathan/ink-prompts/internal/types"
)

var (
	bulletRe     = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
	headingMarks = regexp.MustCompile(`[#*_:]+`)
)

// parseReport tries JSON first and bullet lists second. It returns the
// name of the strategy that matched, and a schema warning for JSON input.
func parseReport(raw, topic string) (*types.ResearchReport, string, error) {
	if report, warn := parseJSONReport(raw, topic); report != nil {
		return report, "json", warn
	}
	if report, ok := parseBulletReport(raw, topic); ok {
		return report, "bullets", nil
	}
	return nil, "", nil
}

// parseJSONReport returns nil when raw holds no decodable object. The
// error is a schema warning only.
func parseJSONReport(raw, topic string) (*types.ResearchReport, error) {
	candidate := raw
	if body, ok := llm.FencedBlock(raw); ok {
		candidate = body
	}
	obj := llm.ExtractJSONObject(candidate)
	if obj == "" {
		return nil, nil
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(obj), &m); err != nil {
		return nil, nil
	}
	warn := schemas.Validate(schemas.ResearchReport, []byte(obj))

	report := &types.ResearchReport{
		Trends:                stringList(m["trends"]),
		InterestingAngles:     stringList(m["interestingAngles"]),
		Sources:               sourceList(m["sources"]),
		CurrentEvents:         stringList(m["currentEvents"]),
		DebatesAndDiscussions: stringList(m["debatesAndDiscussions"]),
	}
	if s, ok := m["summary"].(string); ok {
		report.Summary = strings.TrimSpace(s)
	}
	if report.Summary == "" {
		report.Summary = defaultSummary(topic)
	}
	return report, warn
}

// parseBulletReport pulls list items that sit under a heading mentioning
// trends or angles.
func parseBulletReport(raw, topic string) (*types.ResearchReport, bool) {
	var trends, angles []string
	var section *[]string

	for _, line := range strings.Split(raw, "\n") {
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			if section != nil {
				if item := cleanItem(m[1]); item != "" {
					*section = append(*section, item)
				}
			}
			continue
		}

		heading := strings.ToLower(strings.TrimSpace(headingMarks.ReplaceAllString(line, " ")))
		switch {
		case heading == "":
			continue
		case strings.Contains(heading, "trend"):
			section = &trends
		case strings.Contains(heading, "angle"):
			section = &angles
		default:
			section = nil
		}
	}

	if len(trends)+len(angles) == 0 {
		return nil, false
	}
	return &types.ResearchReport{
		Trends:            trends,
		InterestingAngles: angles,
		Summary:           defaultSummary(topic),
	}, true
}

func cleanItem(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*_\"")
	return strings.TrimSpace(s)
}

// stringList keeps only non-empty string entries.
func stringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// sourceList keeps entries that carry at least a title.
func sourceList(v any) []types.Source {
	arr, ok := v.([]any)
	if !ok {
		return []types.Source{}
	}
	out := make([]types.Source, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title, _ := m["title"].(string)
		if strings.TrimSpace(title) == "" {
			continue
		}
		url, _ := m["url"].(string)
		snippet, _ := m["snippet"].(string)
		out = append(out, types.Source{Title: strings.TrimSpace(title), URL: url, Snippet: snippet})
	}
	return out
}

func displayTopic(topic string) string {
	if topic == "" {
		return "this topic"
	}
	return topic
}

func defaultSummary(topic string) string {
	return fmt.Sprintf("Explore your thoughts and experiences with %s. What draws you to this topic?", strings.ToLower(displayTopic(topic)))
}

// fallbackReport is built from the topic and any citations already found.
func fallbackReport(topic string, citations []types.Source) types.ResearchReport {
	name := displayTopic(topic)
	lower := strings.ToLower(name)

	report := types.ResearchReport{
		Interest: topic,
		Trends:   []string{"Exploring " + name, "Understanding modern " + lower},
		InterestingAngles: []string{
			"What " + lower + " means to you personally",
			"The unexpected lessons from " + lower,
		},
		Sources: citations,
		Summary: defaultSummary(topic),
	}
	report.Normalize()
	return report
}
