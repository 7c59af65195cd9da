package types

import "time"

// Source is a citation gathered while researching a topic.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// ResearchReport is the structured result of researching one interest.
// It is always fully populated; list fields are never nil.
type ResearchReport struct {
	Interest              string    `json:"interest"`
	Trends                []string  `json:"trends"`
	InterestingAngles     []string  `json:"interestingAngles"`
	Sources               []Source  `json:"sources"`
	Summary               string    `json:"summary"`
	CurrentEvents         []string  `json:"currentEvents"`
	DebatesAndDiscussions []string  `json:"debatesAndDiscussions"`
	GeneratedAt           time.Time `json:"generatedAt"`
}

// Normalize replaces nil slices with empty ones so the report marshals
// to arrays and callers can range without checks.
func (r *ResearchReport) Normalize() {
	if r.Trends == nil {
		r.Trends = []string{}
	}
	if r.InterestingAngles == nil {
		r.InterestingAngles = []string{}
	}
	if r.Sources == nil {
		r.Sources = []Source{}
	}
	if r.CurrentEvents == nil {
		r.CurrentEvents = []string{}
	}
	if r.DebatesAndDiscussions == nil {
		r.DebatesAndDiscussions = []string{}
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}
}

// EmptyReport returns a report carrying only the interest.
func EmptyReport(interest string) ResearchReport {
	r := ResearchReport{Interest: interest}
	r.Normalize()
	return r
}

// PromptContent is the composed text portion of a writing prompt.
type PromptContent struct {
	Hook            string   `json:"hook"`
	Blurb           string   `json:"blurb"`
	Tags            []string `json:"tags"`
	SuggestedAngles []string `json:"suggestedAngles"`
}

// ArtStyle names one of the fixed header image styles.
type ArtStyle string

// GeneratedVisual is the header image produced for a prompt.
// ImageURL is empty when generation failed.
type GeneratedVisual struct {
	ImageURL    string    `json:"imageUrl"`
	ArtStyle    ArtStyle  `json:"artStyle"`
	Prompt      string    `json:"prompt"`
	GeneratedAt time.Time `json:"generatedAt"`
}
