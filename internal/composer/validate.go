package composer

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/ink-prompts/internal/types"
)

const (
	maxTags   = 5
	maxAngles = 3
)

var (
	sentenceEndRe = regexp.MustCompile(`[.!?]`)
	lineBreakRe   = regexp.MustCompile(`\r?\n+`)
	paragraphTag  = regexp.MustCompile(`(?i)<p[\s>]`)
	slugStripRe   = regexp.MustCompile(`[^a-z0-9]+`)
)

// hookTail pads hooks that come back shorter than the minimum. hookMore
// is cycled after it when a larger minimum is configured.
const (
	hookTail = "and what it means for you right now"
	hookMore = "in the small moments of an ordinary day and in the stories you tell about it"
)

// normalizeHook forces the hook into [minWords, maxWords] words.
func normalizeHook(hook, interest string, minWords, maxWords int) string {
	hook = strings.Trim(strings.TrimSpace(hook), `"'`)
	if hook == "" {
		hook = fallbackHook(interest)
	}

	words := strings.Fields(hook)
	if len(words) > maxWords {
		hook = shortenHook(hook, words, minWords, maxWords)
		words = strings.Fields(hook)
	}

	if len(words) < minWords {
		trimmed := strings.TrimRight(strings.Join(words, " "), ".!?,;:")
		words = strings.Fields(trimmed + ", " + hookTail)
		more := strings.Fields(hookMore)
		for i := 0; len(words) < minWords; i++ {
			words = append(words, more[i%len(more)])
		}
		if len(words) > maxWords {
			words = words[:maxWords]
		}
		hook = strings.Join(words, " ")
	}
	return hook
}

// shortenHook keeps the first sentence when it fits the bounds and
// otherwise cuts the hook at maxWords.
func shortenHook(hook string, words []string, minWords, maxWords int) string {
	if loc := sentenceEndRe.FindStringIndex(hook); loc != nil {
		first := strings.TrimSpace(hook[:loc[1]])
		n := len(strings.Fields(first))
		if n >= minWords && n <= maxWords {
			return first
		}
	}
	return strings.Join(words[:maxWords], " ")
}

// normalizeBlurb guarantees paragraph markup and at most maxParagraphs
// paragraphs.
func normalizeBlurb(blurb string, report types.ResearchReport, maxParagraphs int) string {
	blurb = strings.TrimSpace(blurb)
	if blurb == "" {
		return minimalBlurb(report)
	}

	if !paragraphTag.MatchString(blurb) {
		var sb strings.Builder
		for _, seg := range lineBreakRe.Split(blurb, -1) {
			if seg = strings.TrimSpace(seg); seg != "" {
				sb.WriteString("<p>" + seg + "</p>")
			}
		}
		blurb = sb.String()
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(blurb))
	if err != nil {
		return blurb
	}
	paragraphs := doc.Find("p")
	if paragraphs.Length() <= maxParagraphs {
		return blurb
	}

	var sb strings.Builder
	paragraphs.Slice(0, maxParagraphs).Each(func(_ int, s *goquery.Selection) {
		if h, err := goquery.OuterHtml(s); err == nil {
			sb.WriteString(h)
		}
	})
	return sb.String()
}

// countParagraphs reports the number of <p> elements in an HTML fragment.
func countParagraphs(fragment string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return 0
	}
	return doc.Find("p").Length()
}

func minimalBlurb(report types.ResearchReport) string {
	name := strings.ToLower(displayInterest(report.Interest))
	summary := strings.TrimSpace(report.Summary)
	if utf8.RuneCountInString(summary) > 100 {
		summary = string([]rune(summary)[:100]) + "..."
	}
	text := fmt.Sprintf("Something interesting is happening with %s.", name)
	if summary != "" {
		text += " " + summary
	}
	return "<p>" + html.EscapeString(text) + "</p>"
}

func fallbackHook(interest string) string {
	return fmt.Sprintf("What's happening with %s?", displayInterest(interest))
}

func displayInterest(interest string) string {
	if strings.TrimSpace(interest) == "" {
		return "this topic"
	}
	return strings.TrimSpace(interest)
}

func slug(interest string) string {
	s := strings.Trim(slugStripRe.ReplaceAllString(strings.ToLower(interest), "-"), "-")
	if s == "" {
		return "writing"
	}
	return s
}

func capList(list []string, n int) []string {
	out := make([]string, 0, min(len(list), n))
	for _, item := range list {
		if len(out) == n {
			break
		}
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
