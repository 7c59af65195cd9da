package types

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPromptsQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   ListPromptsQuery
		wantErr bool
	}{
		{name: "empty query", query: ListPromptsQuery{}},
		{name: "all listable statuses", query: ListPromptsQuery{Statuses: []string{"ready", "used", "dismissed"}, Limit: 50}},
		{name: "unknown status", query: ListPromptsQuery{Statuses: []string{"failed"}}, wantErr: true},
		{name: "limit too large", query: ListPromptsQuery{Limit: 51}, wantErr: true},
		{name: "negative limit", query: ListPromptsQuery{Limit: -1}, wantErr: true},
		{name: "negative offset", query: ListPromptsQuery{Offset: -5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestListPromptsQuery_Filter(t *testing.T) {
	userID := uuid.New()
	q := ListPromptsQuery{Statuses: []string{"used", "dismissed"}, Limit: 5, Offset: 10}
	require.NoError(t, q.Validate())

	f := q.Filter(userID)
	assert.Equal(t, userID, f.UserID)
	assert.Equal(t, []PromptStatus{PromptUsed, PromptDismissed}, f.Statuses)
	assert.Equal(t, 5, f.Limit)
	assert.Equal(t, 10, f.Offset)
}
