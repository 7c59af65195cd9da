// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/ink-prompts/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
	// blurbPreview caps how much of a blurb is shown
	blurbPreview = 160
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	inner := boxWidth - 4
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, inner))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(truncate(line, inner), inner))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-3]) + "..."
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// PrintJob outputs the job status and its progress counters.
func (p *Printer) PrintJob(job *types.Job) {
	if job == nil {
		return
	}
	progress := job.Progress()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Job:       %s\n", job.ID))
	sb.WriteString(fmt.Sprintf("Status:    %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("Interests: %s\n", strings.Join(job.SelectedInterests, ", ")))
	sb.WriteString(fmt.Sprintf("Progress:  %d/%d (%s)\n", progress.Completed, progress.Total, progress.Stage))
	sb.WriteString(fmt.Sprintf("Visuals:   %d", job.VisualsCompleted))
	if job.StartedAt != nil && job.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("\nDuration:  %s", job.CompletedAt.Sub(*job.StartedAt).Round(time.Millisecond)))
	}
	if job.Error != nil {
		sb.WriteString(fmt.Sprintf("\nError:     %s", *job.Error))
	}

	p.printBox("GENERATION JOB", sb.String())
}

// PrintPrompts outputs each prompt's hook, a plain text blurb preview and
// its tags.
func (p *Printer) PrintPrompts(prompts []types.WritingPrompt) {
	if len(prompts) == 0 {
		return
	}

	var sb strings.Builder
	count := min(len(prompts), maxItemsToShow)
	for i := 0; i < count; i++ {
		prompt := prompts[i]
		sb.WriteString(fmt.Sprintf("#%d  %s\n", i+1, prompt.Interest))
		sb.WriteString(fmt.Sprintf("    %s\n", prompt.Hook))
		if text := blurbText(prompt.Blurb); text != "" {
			sb.WriteString(fmt.Sprintf("    %s\n", truncate(text, blurbPreview)))
		}
		if len(prompt.Tags) > 0 {
			sb.WriteString(fmt.Sprintf("    Tags: %s\n", strings.Join(prompt.Tags, ", ")))
		}
		if prompt.ImageURL != nil {
			sb.WriteString("    Image: yes\n")
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}
	if len(prompts) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more prompts", len(prompts)-maxItemsToShow))
	}

	p.printBox("WRITING PROMPTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintDailyRun outputs the counts of a daily sweep.
func (p *Printer) PrintDailyRun(result types.DailyRunResult) {
	p.printBox("DAILY GENERATION", fmt.Sprintf(
		"Processed: %d\nSucceeded: %d\nFailed:    %d",
		result.Processed, result.Succeeded, result.Failed,
	))
}

// blurbText flattens the blurb's HTML into one line of text.
func blurbText(blurb string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(blurb))
	if err != nil {
		return ""
	}
	text := doc.Text()
	if paras := doc.Find("p"); paras.Length() > 0 {
		parts := make([]string, 0, paras.Length())
		paras.Each(func(_ int, p *goquery.Selection) {
			parts = append(parts, p.Text())
		})
		text = strings.Join(parts, " ")
	}
	return strings.Join(strings.Fields(text), " ")
}
