package db

import (
	_ "embed"
	"strings"

	"github.com/jonathan/ink-prompts/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// Statements splits a DDL script into individual statements, dropping
// comment-only lines.
func Statements(script string) []string {
	var (
		out []string
		buf strings.Builder
	)
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, strings.TrimSpace(buf.String()))
			buf.Reset()
		}
	}
	if rest := strings.TrimSpace(buf.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

// TransitionSources lists the job statuses from which a move to status is
// allowed. Terminal statuses are never a source.
func TransitionSources(status types.JobStatus) []string {
	switch status {
	case types.JobProcessing:
		return []string{string(types.JobPending)}
	case types.JobCompleted, types.JobFailed, types.JobCancelled:
		return []string{string(types.JobPending), string(types.JobProcessing)}
	default:
		return nil
	}
}

// PromptTimestampColumn names the column stamped when a prompt moves to
// status, or "" if the transition is not allowed.
func PromptTimestampColumn(status types.PromptStatus) string {
	switch status {
	case types.PromptUsed:
		return "used_at"
	case types.PromptDismissed:
		return "dismissed_at"
	default:
		return ""
	}
}

// Prompt list paging bounds.
const (
	DefaultListLimit = 10
	MaxListLimit     = 50
)

// NormalizeFilter applies paging defaults and the ready-only default
// status filter.
func NormalizeFilter(f types.PromptFilter) types.PromptFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if len(f.Statuses) == 0 {
		f.Statuses = []types.PromptStatus{types.PromptReady}
	}
	return f
}

func statusStrings(statuses []types.PromptStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
