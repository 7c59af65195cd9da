// Package composer turns a research report into a hook and blurb.
package composer

import (
	"context"
	"strconv"
	"strings"

	"github.com/jonathan/ink-prompts/internal/llm"
	"github.com/jonathan/ink-prompts/internal/logging"
	"github.com/jonathan/ink-prompts/internal/prompts"
	"github.com/jonathan/ink-prompts/internal/schemas"
	"github.com/jonathan/ink-prompts/internal/types"
	"github.com/rs/zerolog"
)

// Options configures a Composer. Zero values fall back to defaults.
type Options struct {
	LLM                llm.Client
	HookMinWords       int
	HookMaxWords       int
	BlurbMaxParagraphs int
	Temperature        float32
	MaxOutputTokens    int32
	Logger             *zerolog.Logger
}

// Composer writes prompt content.
type Composer struct {
	llm           llm.Client
	minWords      int
	maxWords      int
	maxParagraphs int
	temperature   float32
	maxTokens     int32
	logger        zerolog.Logger
}

// New creates a Composer.
func New(opts Options) *Composer {
	if opts.HookMinWords <= 0 {
		opts.HookMinWords = 8
	}
	if opts.HookMaxWords < opts.HookMinWords {
		opts.HookMaxWords = max(18, opts.HookMinWords)
	}
	if opts.BlurbMaxParagraphs <= 0 {
		opts.BlurbMaxParagraphs = 3
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = 2048
	}
	return &Composer{
		llm:           opts.LLM,
		minWords:      opts.HookMinWords,
		maxWords:      opts.HookMaxWords,
		maxParagraphs: opts.BlurbMaxParagraphs,
		temperature:   opts.Temperature,
		maxTokens:     opts.MaxOutputTokens,
		logger:        logging.OrNop(opts.Logger).With().Str("component", "composer").Logger(),
	}
}

// Compose returns validated content for report. It never panics or errors.
func (c *Composer) Compose(ctx context.Context, report types.ResearchReport) (content types.PromptContent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("interest", report.Interest).Interface("panic", r).Msg("compose panicked, using fallback")
			content = c.Fallback(report)
		}
	}()

	if c.llm == nil {
		c.logger.Warn().Str("interest", report.Interest).Msg("no LLM configured, using fallback content")
		return c.Fallback(report)
	}

	prompt, err := prompts.Render("composer.json", "compose", c.templateData(report))
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to render composer prompt")
		return c.Fallback(report)
	}
	system, _ := prompts.Get("composer.json", "system")

	raw, err := c.llm.GenerateContent(ctx, prompt, llm.GenerateOptions{
		Tier:              llm.TierAdvanced,
		Temperature:       c.temperature,
		MaxOutputTokens:   c.maxTokens,
		SystemInstruction: system,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("interest", report.Interest).Msg("composition failed, using fallback")
		return c.Fallback(report)
	}

	p, strategy := runStrategies(raw)
	if p == nil {
		c.logger.Warn().Str("interest", report.Interest).Msg("could not parse composition, using fallback")
		return c.Fallback(report)
	}
	if p.JSON != "" {
		if err := schemas.Validate(schemas.PromptContent, []byte(p.JSON)); err != nil {
			c.logger.Warn().Err(err).Str("interest", report.Interest).Msg("composition does not match schema")
		}
	}

	content = c.finalize(p, report)
	c.logger.Debug().
		Str("interest", report.Interest).
		Str("strategy", strategy).
		Int("hook_words", len(strings.Fields(content.Hook))).
		Int("paragraphs", countParagraphs(content.Blurb)).
		Msg("composition complete")
	return content
}

// Fallback builds deterministic content from the report alone.
func (c *Composer) Fallback(report types.ResearchReport) types.PromptContent {
	return c.finalize(&parsed{}, report)
}

func (c *Composer) finalize(p *parsed, report types.ResearchReport) types.PromptContent {
	tags := capList(p.Tags, maxTags)
	if len(tags) == 0 {
		tags = []string{slug(report.Interest)}
	}
	angles := capList(p.Angles, maxAngles)
	if len(angles) == 0 {
		angles = capList(report.InterestingAngles, maxAngles)
	}

	return types.PromptContent{
		Hook:            normalizeHook(p.Hook, report.Interest, c.minWords, c.maxWords),
		Blurb:           normalizeBlurb(p.Blurb, report, c.maxParagraphs),
		Tags:            tags,
		SuggestedAngles: angles,
	}
}

func (c *Composer) templateData(report types.ResearchReport) map[string]string {
	var sources strings.Builder
	for _, s := range report.Sources {
		sources.WriteString("- " + s.Title)
		if s.URL != "" {
			sources.WriteString(" (" + s.URL + ")")
		}
		sources.WriteString("\n")
	}
	return map[string]string{
		"Interest":      report.Interest,
		"Trends":        joinOrNone(report.Trends),
		"Angles":        joinOrNone(report.InterestingAngles),
		"Events":        joinOrNone(report.CurrentEvents),
		"Debates":       joinOrNone(report.DebatesAndDiscussions),
		"Summary":       report.Summary,
		"Sources":       strings.TrimSpace(sources.String()),
		"HookMin":       strconv.Itoa(c.minWords),
		"HookMax":       strconv.Itoa(c.maxWords),
		"MaxParagraphs": strconv.Itoa(c.maxParagraphs),
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, "; ")
}
