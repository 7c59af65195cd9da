package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/jonathan/ink-prompts/internal/types"
)

// StringArray handles JSON string arrays stored in JSONB or TEXT columns.
type StringArray []string

// Scan implements the Scanner interface for StringArray
func (a *StringArray) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if b == nil {
		*a = StringArray{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("failed to decode string array: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*a = out
	return nil
}

// Value implements the Valuer interface for StringArray
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// SourceList handles JSON arrays of citations.
type SourceList []types.Source

// Scan implements the Scanner interface for SourceList
func (l *SourceList) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if b == nil {
		*l = SourceList{}
		return nil
	}
	var out []types.Source
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("failed to decode sources: %w", err)
	}
	if out == nil {
		out = []types.Source{}
	}
	*l = out
	return nil
}

// Value implements the Valuer interface for SourceList
func (l SourceList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]types.Source(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", src)
	}
}
