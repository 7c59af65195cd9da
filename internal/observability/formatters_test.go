package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ink-prompts/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestPrintJob(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	completed := started.Add(42 * time.Second)
	msg := "all prompt pipelines failed"
	job := &types.Job{
		ID:                   uuid.New(),
		Status:               types.JobFailed,
		SelectedInterests:    []string{"AI", "Travel"},
		ResearchCompleted:    1,
		CompositionCompleted: 1,
		StartedAt:            &started,
		CompletedAt:          &completed,
		Error:                &msg,
	}

	p.PrintJob(job)
	output := buf.String()

	assert.Contains(t, output, "GENERATION JOB")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "AI, Travel")
	assert.Contains(t, output, "1/2 (done)")
	assert.Contains(t, output, "42s")
	assert.Contains(t, output, msg)
}

func TestPrintJob_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintJob(nil)
	assert.Empty(t, buf.String())
}

func TestPrintPrompts(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	url := "https://img.example/1.png"
	prompts := []types.WritingPrompt{
		{Interest: "Cooking", Hook: "What does your grandmother's kitchen smell like", Blurb: "<p>Recipes carry <em>memory</em>.</p><p>Second.</p>", Tags: []string{"food", "family"}, ImageURL: &url},
		{Interest: "Travel", Hook: "The last place that surprised you", Blurb: "<p>Maps lie.</p>"},
	}

	p.PrintPrompts(prompts)
	output := buf.String()

	assert.Contains(t, output, "WRITING PROMPTS")
	assert.Contains(t, output, "#1  Cooking")
	assert.Contains(t, output, "Recipes carry memory. Second.")
	assert.NotContains(t, output, "<p>")
	assert.Contains(t, output, "Tags: food, family")
	assert.Contains(t, output, "Image: yes")
	assert.Contains(t, output, "#2  Travel")
}

func TestPrintPrompts_ManyPrompts(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	prompts := make([]types.WritingPrompt, 8)
	for i := range prompts {
		prompts[i] = types.WritingPrompt{Interest: "topic", Hook: "hook"}
	}

	p.PrintPrompts(prompts)
	assert.Contains(t, buf.String(), "... and 3 more prompts")
}

func TestPrintBox_TruncatesByRune(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.printBox("TITLE", strings.Repeat("é", 100))

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), boxWidth)
	}
	assert.Contains(t, buf.String(), "...")
}

func TestPrintDailyRun(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintDailyRun(types.DailyRunResult{Processed: 4, Succeeded: 3, Failed: 1})

	output := buf.String()
	assert.Contains(t, output, "DAILY GENERATION")
	assert.Contains(t, output, "Processed: 4")
	assert.Contains(t, output, "Failed:    1")
}

func TestBlurbText(t *testing.T) {
	tests := []struct {
		name  string
		blurb string
		want  string
	}{
		{"separates paragraphs", "<p>Recipes carry <em>memory</em>.</p><p>Second.</p>", "Recipes carry memory. Second."},
		{"collapses whitespace", "<p>  Maps\n lie. </p>\n<p>Often.</p>", "Maps lie. Often."},
		{"no paragraphs", "Just <strong>text</strong> here", "Just text here"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, blurbText(tt.blurb))
		})
	}
}
