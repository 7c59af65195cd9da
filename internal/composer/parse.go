package composer

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/jonathan/ink-prompts/internal/llm"
)

// parsed is what a strategy recovers from raw model output. Lists may be
// empty; normalisation fills them in later.
type parsed struct {
	Hook   string
	Blurb  string
	Tags   []string
	Angles []string
	// JSON is the decoded object text, empty for non-JSON strategies.
	JSON string
}

// parseStrategy inspects raw output and reports whether it recovered content.
type parseStrategy struct {
	name  string
	parse func(raw string) (*parsed, bool)
}

// strategies run in order; the first success wins.
var strategies = []parseStrategy{
	{"fenced_json", parseFencedJSON},
	{"balanced_json", parseBalancedJSON},
	{"field_regex", parseFields},
}

func runStrategies(raw string) (*parsed, string) {
	for _, s := range strategies {
		if p, ok := s.parse(raw); ok {
			return p, s.name
		}
	}
	return nil, ""
}

func parseFencedJSON(raw string) (*parsed, bool) {
	body, ok := llm.FencedBlock(raw)
	if !ok {
		return nil, false
	}
	return decodeObject(body)
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	jsonRepairs     = []func(string) string{
		func(s string) string { return s },
		func(s string) string { return trailingCommaRe.ReplaceAllString(s, "$1") },
		func(s string) string {
			return strings.ReplaceAll(trailingCommaRe.ReplaceAllString(s, "$1"), "'", `"`)
		},
	}
)

func parseBalancedJSON(raw string) (*parsed, bool) {
	obj := llm.ExtractJSONObject(raw)
	if obj == "" {
		return nil, false
	}
	for _, repair := range jsonRepairs {
		if p, ok := decodeObject(repair(obj)); ok {
			return p, true
		}
	}
	return nil, false
}

func decodeObject(text string) (*parsed, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, false
	}

	hook, _ := m["hook"].(string)
	blurb, _ := m["blurb"].(string)
	if strings.TrimSpace(hook) == "" && strings.TrimSpace(blurb) == "" {
		return nil, false
	}

	angles := stringEntries(m["suggestedAngles"])
	if len(angles) == 0 {
		angles = stringEntries(m["angles"])
	}
	return &parsed{
		Hook:   hook,
		Blurb:  blurb,
		Tags:   stringEntries(m["tags"]),
		Angles: angles,
		JSON:   text,
	}, true
}

var (
	hookFieldRe  = regexp.MustCompile(`["']?hook["']?\s*:\s*(?:"((?:[^"\\]|\\.)*)"|'([^']*)')`)
	blurbFieldRe = regexp.MustCompile(`(?s)["']?blurb["']?\s*:\s*(?:"((?:[^"\\]|\\.)*)"|'([^']*)')`)
	paragraphsRe = regexp.MustCompile(`(?is)<p>.*</p>`)
)

// parseFields recovers hook and blurb one at a time from text that is not
// valid JSON. The blurb may also come from bare <p> markup.
func parseFields(raw string) (*parsed, bool) {
	hook := fieldValue(hookFieldRe, raw)
	blurb := fieldValue(blurbFieldRe, raw)
	if blurb == "" {
		blurb = paragraphsRe.FindString(raw)
	}
	if hook == "" && blurb == "" {
		return nil, false
	}
	return &parsed{Hook: hook, Blurb: blurb}, true
}

func fieldValue(re *regexp.Regexp, raw string) string {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		var s string
		if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &s); err == nil {
			return s
		}
		return m[1]
	}
	return m[2]
}

// stringEntries drops non-string and blank entries.
func stringEntries(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
