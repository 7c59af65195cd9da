package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ink-prompts/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResearcher struct {
	panicWith any
	summary   string
}

func (s stubResearcher) Research(_ context.Context, topic string) types.ResearchReport {
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	return types.ResearchReport{
		Interest:          topic,
		Summary:           s.summary,
		InterestingAngles: []string{"angle"},
	}
}

type stubComposer struct {
	panicWith any
	calls     atomic.Int32
}

func (s *stubComposer) Compose(_ context.Context, r types.ResearchReport) types.PromptContent {
	s.calls.Add(1)
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	return types.PromptContent{
		Hook:  "Hook about " + r.Interest,
		Blurb: "<p>" + r.Summary + "</p>",
		Tags:  []string{r.Interest},
	}
}

type stubVisual struct {
	url       string
	panicWith any
	gotTheme  string
}

func (s *stubVisual) Generate(_ context.Context, topic, theme string, style types.ArtStyle) types.GeneratedVisual {
	s.gotTheme = theme
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	return types.GeneratedVisual{ImageURL: s.url, ArtStyle: "watercolor", Prompt: topic, GeneratedAt: time.Now()}
}

func TestRun_Success(t *testing.T) {
	vis := &stubVisual{url: "https://img.example/1.png"}
	r := NewRunner(stubResearcher{summary: "gardens are growing"}, &stubComposer{}, vis, nil)

	res := r.Run(context.Background(), "gardening", uuid.New())

	require.True(t, res.Success)
	assert.Empty(t, res.Error)
	assert.Equal(t, "gardening", res.Interest)
	assert.Equal(t, "Hook about gardening", res.Content.Hook)
	require.NotNil(t, res.Visual)
	assert.Equal(t, "https://img.example/1.png", res.Visual.ImageURL)
	assert.Equal(t, "gardens are growing", vis.gotTheme)
	assert.NotNil(t, res.Research.Trends)
}

func TestRun_EmptyImageURLMeansNoVisual(t *testing.T) {
	r := NewRunner(stubResearcher{}, &stubComposer{}, &stubVisual{}, nil)

	res := r.Run(context.Background(), "chess", uuid.New())

	assert.True(t, res.Success)
	assert.Nil(t, res.Visual)
}

func TestRun_VisualPanicIsContained(t *testing.T) {
	r := NewRunner(stubResearcher{}, &stubComposer{}, &stubVisual{panicWith: "boom"}, nil)

	res := r.Run(context.Background(), "chess", uuid.New())

	assert.True(t, res.Success)
	assert.Nil(t, res.Visual)
	assert.Equal(t, "Hook about chess", res.Content.Hook)
}

func TestRun_ComposerPanicFailsPipeline(t *testing.T) {
	r := NewRunner(stubResearcher{}, &stubComposer{panicWith: "kaboom"}, &stubVisual{url: "u"}, nil)

	res := r.Run(context.Background(), "jazz", uuid.New())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "kaboom")
	assert.Nil(t, res.Visual)
	assert.Equal(t, "What jazz means to you", res.Content.Hook)
	assert.Empty(t, res.Research.Trends)
}

func TestRun_ResearchPanicFailsPipeline(t *testing.T) {
	comp := &stubComposer{}
	r := NewRunner(stubResearcher{panicWith: "research down"}, comp, &stubVisual{url: "u"}, nil)

	res := r.Run(context.Background(), "Space Travel", uuid.New())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "research down")
	assert.Equal(t, int32(0), comp.calls.Load())
	assert.Equal(t, "What space travel means to you", res.Content.Hook)
	assert.Contains(t, res.Content.Blurb, "Space Travel touches our lives")
	assert.Equal(t, []string{
		"Your personal experience with space travel",
		"How space travel has changed over time",
	}, res.Content.SuggestedAngles)
}

func TestFallbackContent(t *testing.T) {
	t.Run("capitalises and escapes", func(t *testing.T) {
		c := FallbackContent("<b>bees")
		assert.Contains(t, c.Blurb, "&lt;b&gt;bees touches")
		assert.Equal(t, "What <b>bees means to you", c.Hook)
	})

	t.Run("empty topic", func(t *testing.T) {
		c := FallbackContent("  ")
		assert.Equal(t, "What this topic means to you", c.Hook)
		assert.Contains(t, c.Blurb, "This topic touches")
	})
}
