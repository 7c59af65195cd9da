package types

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ListPromptsQuery is the raw query accepted by the prompt list endpoint.
type ListPromptsQuery struct {
	Statuses []string `validate:"dive,oneof=ready used dismissed"`
	Limit    int      `validate:"omitempty,min=1,max=50"`
	Offset   int      `validate:"min=0"`
}

// Validate validates the ListPromptsQuery using the validator.
func (q *ListPromptsQuery) Validate() error {
	validate := validator.New()
	return validate.Struct(q)
}

// Filter converts the query into a store filter for userID.
func (q *ListPromptsQuery) Filter(userID uuid.UUID) PromptFilter {
	f := PromptFilter{UserID: userID, Limit: q.Limit, Offset: q.Offset}
	for _, s := range q.Statuses {
		f.Statuses = append(f.Statuses, PromptStatus(s))
	}
	return f
}
