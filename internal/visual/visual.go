// Package visual produces header images for writing prompts.
package visual

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonathan/ink-prompts/internal/logging"
	"github.com/jonathan/ink-prompts/internal/prompts"
	"github.com/jonathan/ink-prompts/internal/types"
	"github.com/rs/zerolog"
)

const maxThemeRunes = 240

// Composer picks an art style, writes the image prompt and calls the
// image API. A nil client yields visuals with an empty URL.
type Composer struct {
	client *Client
	pick   func(n int) int
	logger zerolog.Logger
}

// NewComposer creates a Composer around a shared client.
func NewComposer(client *Client, logger *zerolog.Logger) *Composer {
	return &Composer{
		client: client,
		pick:   rand.IntN,
		logger: logging.OrNop(logger).With().Str("component", "visual").Logger(),
	}
}

// Generate returns a visual for topic. On any failure the ImageURL is
// empty; it never panics or errors.
func (v *Composer) Generate(ctx context.Context, topic, theme string, style types.ArtStyle) (visual types.GeneratedVisual) {
	if !IsValidStyle(style) {
		style = ArtStyles[v.pick(len(ArtStyles))]
	}
	prompt := buildPrompt(topic, theme, style)
	visual = types.GeneratedVisual{
		ArtStyle:    style,
		Prompt:      prompt,
		GeneratedAt: time.Now().UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			v.logger.Error().Str("topic", topic).Interface("panic", r).Msg("image generation panicked")
			visual.ImageURL = ""
		}
	}()

	if v.client == nil {
		v.logger.Warn().Str("topic", topic).Msg("no image client configured")
		return visual
	}

	model := v.client.ResolveModel(ctx)
	url, err := v.client.GenerateImage(ctx, prompt, model)
	if err != nil {
		v.logger.Warn().Err(err).Str("topic", topic).Str("model", model).Msg("image generation failed")

		fallback := v.client.FallbackModel()
		if fallback == "" || fallback == model || ctx.Err() != nil {
			return visual
		}
		url, err = v.client.GenerateImage(ctx, prompt, fallback)
		if err != nil {
			v.logger.Warn().Err(err).Str("topic", topic).Str("model", fallback).Msg("fallback image generation failed")
			return visual
		}
	}

	visual.ImageURL = url
	return visual
}

func buildPrompt(topic, theme string, style types.ArtStyle) string {
	spec := styleSpecs[style]

	themeLine := ""
	if theme = strings.TrimSpace(theme); theme != "" {
		if utf8.RuneCountInString(theme) > maxThemeRunes {
			theme = string([]rune(theme)[:maxThemeRunes])
		}
		themeLine = "Theme: " + theme + " "
	}

	name := strings.TrimSpace(topic)
	if name == "" {
		name = "an open question"
	}

	return prompts.Format(prompts.MustGet("visual.json", "image"), map[string]string{
		"Topic":            name,
		"Context":          themeLine,
		"StyleDescription": spec.Description,
		"StyleModifiers":   spec.Modifiers,
		"Mood":             moodFor(topic),
	})
}
