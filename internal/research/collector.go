// Package research gathers current trends and angles for an interest.
// The collector never fails: every error path degrades to a report built
// from the topic itself.
package research

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonathan/ink-prompts/internal/fetch"
	"github.com/jonathan/ink-prompts/internal/llm"
	"github.com/jonathan/ink-prompts/internal/logging"
	"github.com/jonathan/ink-prompts/internal/prompts"
	"github.com/jonathan/ink-prompts/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds the whole research step.
const DefaultTimeout = 30 * time.Second

// PageFetcher loads a citation's page metadata.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// snippetRunes caps snippets taken from page text.
const snippetRunes = 200

// Options configures a Collector. LLM, Search and Pages are optional;
// without an LLM every call returns the fallback report.
type Options struct {
	LLM         llm.Client
	Search      Searcher
	Pages       PageFetcher
	Timeout     time.Duration
	Temperature float32
	Logger      *zerolog.Logger
}

// Collector produces research reports.
type Collector struct {
	llm         llm.Client
	search      Searcher
	pages       PageFetcher
	timeout     time.Duration
	temperature float32
	logger      zerolog.Logger
}

// NewCollector creates a Collector.
func NewCollector(opts Options) *Collector {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Collector{
		llm:         opts.LLM,
		search:      opts.Search,
		pages:       opts.Pages,
		timeout:     opts.Timeout,
		temperature: opts.Temperature,
		logger:      logging.OrNop(opts.Logger).With().Str("component", "research").Logger(),
	}
}

// Research returns a report for topic. It never panics or errors.
func (c *Collector) Research(ctx context.Context, topic string) (report types.ResearchReport) {
	topic = strings.TrimSpace(topic)
	var citations []types.Source

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("topic", topic).Interface("panic", r).Msg("research panicked, using fallback")
			report = fallbackReport(topic, citations)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	citations = c.citations(ctx, topic)

	if c.llm == nil {
		c.logger.Warn().Str("topic", topic).Msg("no LLM configured, using fallback report")
		return fallbackReport(topic, citations)
	}

	prompt, err := prompts.Render("research.json", "report", map[string]string{
		"Interest":      topic,
		"SearchResults": formatCitations(citations),
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to render research prompt")
		return fallbackReport(topic, citations)
	}
	system, _ := prompts.Get("research.json", "system")

	raw, err := c.llm.GenerateContent(ctx, prompt, llm.GenerateOptions{
		Tier:              llm.TierStandard,
		Temperature:       c.temperature,
		SystemInstruction: system,
		JSON:              true,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("topic", topic).Msg("research generation failed, using fallback")
		return fallbackReport(topic, citations)
	}

	parsed, strategy, warn := parseReport(raw, topic)
	if warn != nil {
		c.logger.Warn().Err(warn).Str("topic", topic).Msg("research output does not match schema")
	}
	if parsed == nil {
		c.logger.Warn().Str("topic", topic).Msg("could not parse research output, using fallback")
		return fallbackReport(topic, citations)
	}

	if len(parsed.Sources) == 0 {
		parsed.Sources = citations
	}
	parsed.Interest = topic
	parsed.GeneratedAt = time.Now().UTC()
	parsed.Normalize()

	c.logger.Debug().
		Str("topic", topic).
		Str("strategy", strategy).
		Int("trends", len(parsed.Trends)).
		Int("angles", len(parsed.InterestingAngles)).
		Int("sources", len(parsed.Sources)).
		Msg("research complete")
	return *parsed
}

func (c *Collector) citations(ctx context.Context, topic string) []types.Source {
	if c.search == nil || topic == "" {
		return nil
	}
	sources, err := c.search.Search(ctx, fmt.Sprintf("%s latest news trends", topic))
	if err != nil {
		c.logger.Warn().Err(err).Str("topic", topic).Msg("citation search failed")
		return nil
	}
	c.enrich(ctx, sources)
	return sources
}

// enrich fills missing titles and snippets from the cited pages. Fetch
// failures leave the source as it was.
func (c *Collector) enrich(ctx context.Context, sources []types.Source) {
	if c.pages == nil {
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i := range sources {
		src := &sources[i]
		if src.URL == "" || (src.Title != "" && src.Snippet != "") {
			continue
		}
		g.Go(func() error {
			page, err := c.pages.Fetch(ctx, src.URL)
			if err != nil {
				c.logger.Debug().Err(err).Str("url", src.URL).Msg("citation page fetch failed")
				return nil
			}
			if src.Title == "" {
				src.Title = page.Title
			}
			if src.Snippet == "" {
				src.Snippet = snippet(page)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func snippet(page *fetch.Page) string {
	text := page.Description
	if text == "" {
		text = page.Text
	}
	if utf8.RuneCountInString(text) <= snippetRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:snippetRunes])) + "..."
}

func formatCitations(sources []types.Source) string {
	if len(sources) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&sb, "%d. %s (%s): %s\n", i+1, s.Title, s.URL, s.Snippet)
	}
	return strings.TrimRight(sb.String(), "\n")
}
