package sqlite

import (
	"fmt"

	"github.com/roach88/tracked/internal/canon"
)

// marshalRecord converts a record to canonical JSON TEXT for storage.
func marshalRecord(record map[string]any) (string, error) {
	if record == nil {
		record = map[string]any{}
	}
	data, err := canon.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}

// unmarshalRecord parses stored JSON TEXT.
func unmarshalRecord(data string) (map[string]any, error) {
	rec, err := canon.UnmarshalObject([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	return rec, nil
}
