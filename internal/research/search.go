package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/ink-prompts/internal/types"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// Searcher returns web citations for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]types.Source, error)
}

// CustomSearch looks up citations with Google Programmable Search.
type CustomSearch struct {
	svc *customsearch.Service
	cx  string
	num int64
}

// NewCustomSearch creates a CustomSearch for the given engine id.
func NewCustomSearch(ctx context.Context, apiKey, cx string, maxResults int64) (*CustomSearch, error) {
	if apiKey == "" || cx == "" {
		return nil, fmt.Errorf("search API key and engine id are required")
	}
	return newCustomSearch(ctx, cx, maxResults, option.WithAPIKey(apiKey))
}

func newCustomSearch(ctx context.Context, cx string, maxResults int64, opts ...option.ClientOption) (*CustomSearch, error) {
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	if maxResults <= 0 || maxResults > 10 {
		maxResults = 5
	}
	return &CustomSearch{svc: svc, cx: cx, num: maxResults}, nil
}

// Search runs one query and returns de-duplicated results.
func (s *CustomSearch) Search(ctx context.Context, query string) ([]types.Source, error) {
	resp, err := s.svc.Cse.List().Cx(s.cx).Q(query).Num(s.num).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	seen := make(map[string]bool, len(resp.Items))
	sources := make([]types.Source, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Link == "" || seen[item.Link] {
			continue
		}
		seen[item.Link] = true
		sources = append(sources, types.Source{
			Title:   strings.TrimSpace(item.Title),
			URL:     item.Link,
			Snippet: strings.TrimSpace(item.Snippet),
		})
	}
	return sources, nil
}
