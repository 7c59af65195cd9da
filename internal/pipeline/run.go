// Package pipeline turns one interest into one writing prompt draft:
// research first, then composition and illustration in parallel.
package pipeline

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonathan/ink-prompts/internal/logging"
	"github.com/jonathan/ink-prompts/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Researcher produces a report for a topic. Implementations never fail.
type Researcher interface {
	Research(ctx context.Context, topic string) types.ResearchReport
}

// ContentComposer writes the hook and blurb. Implementations never fail.
type ContentComposer interface {
	Compose(ctx context.Context, report types.ResearchReport) types.PromptContent
}

// VisualComposer creates the header image. An empty ImageURL means no image.
type VisualComposer interface {
	Generate(ctx context.Context, topic, theme string, style types.ArtStyle) types.GeneratedVisual
}

// Result is the outcome of one pipeline run.
type Result struct {
	Interest string
	Research types.ResearchReport
	Content  types.PromptContent
	// Visual is nil when no image was produced.
	Visual   *types.GeneratedVisual
	Success  bool
	Error    string
	Duration time.Duration
}

// Runner executes pipelines. It is safe for concurrent use.
type Runner struct {
	research Researcher
	composer ContentComposer
	visual   VisualComposer
	logger   zerolog.Logger
}

// NewRunner wires the three stages together.
func NewRunner(research Researcher, composer ContentComposer, visual VisualComposer, logger *zerolog.Logger) *Runner {
	return &Runner{
		research: research,
		composer: composer,
		visual:   visual,
		logger:   logging.OrNop(logger).With().Str("component", "pipeline").Logger(),
	}
}

// Run executes the pipeline for topic. It always returns a usable Result;
// Success is false only when a stage panicked.
func (r *Runner) Run(ctx context.Context, topic string, jobID uuid.UUID) (result Result) {
	start := time.Now()
	log := r.logger.With().Str("job_id", jobID.String()).Str("interest", topic).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("pipeline failed")
			result = FailedResult(topic, fmt.Sprintf("pipeline failed for %q: %v", topic, rec))
		}
		result.Duration = time.Since(start)
	}()

	report := r.research.Research(ctx, topic)
	report.Normalize()

	var (
		content types.PromptContent
		visual  *types.GeneratedVisual
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("composer failed for %q: %v", topic, rec)
			}
		}()
		content = r.composer.Compose(gctx, report)
		return nil
	})
	g.Go(func() error {
		defer func() {
			if rec := recover(); rec != nil {
				log.Warn().Interface("panic", rec).Msg("visual stage failed, continuing without image")
				visual = nil
			}
		}()
		v := r.visual.Generate(gctx, topic, report.Summary, "")
		if v.ImageURL != "" {
			visual = &v
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("pipeline failed")
		return FailedResult(topic, err.Error())
	}

	log.Debug().Bool("has_image", visual != nil).Msg("pipeline complete")
	return Result{
		Interest: topic,
		Research: report,
		Content:  content,
		Visual:   visual,
		Success:  true,
	}
}

// FailedResult carries an empty report and generic reflective content so
// callers can treat failures uniformly.
func FailedResult(topic, errMsg string) Result {
	return Result{
		Interest: topic,
		Research: types.EmptyReport(topic),
		Content:  FallbackContent(topic),
		Success:  false,
		Error:    errMsg,
	}
}

// FallbackContent is the content used when a pipeline could not run.
func FallbackContent(topic string) types.PromptContent {
	name := strings.TrimSpace(topic)
	if name == "" {
		name = "this topic"
	}
	lower := strings.ToLower(name)
	first, size := utf8.DecodeRuneInString(name)
	title := html.EscapeString(string(unicode.ToUpper(first)) + name[size:])

	return types.PromptContent{
		Hook: fmt.Sprintf("What %s means to you", lower),
		Blurb: fmt.Sprintf("<p>Sometimes the best writing comes from simply reflecting on what matters to us. "+
			"%s touches our lives in ways both obvious and subtle.</p>"+
			"<p>What would you write if you let yourself explore this topic freely?</p>", title),
		Tags: []string{lower},
		SuggestedAngles: []string{
			"Your personal experience with " + lower,
			"How " + lower + " has changed over time",
		},
	}
}
