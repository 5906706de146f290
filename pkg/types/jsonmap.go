package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap stores a JSON object column (jsonb in Postgres, text in the
// sqlite test databases).
type JSONMap map[string]any

// Value marshals the map for storage. Nil maps store as an empty object so
// reads never have to branch on NULL.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("jsonmap: marshal: %w", err)
	}
	return string(raw), nil
}

// Scan decodes a stored JSON object.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	raw, ok := toString(value)
	if !ok {
		return fmt.Errorf("jsonmap: unsupported scan type %T", value)
	}
	if raw == "" {
		*m = JSONMap{}
		return nil
	}
	decoded := JSONMap{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return fmt.Errorf("jsonmap: unmarshal: %w", err)
	}
	*m = decoded
	return nil
}

// Merge returns a copy with incoming keys applied over the receiver.
// Existing keys absent from incoming are preserved, never dropped.
func (m JSONMap) Merge(incoming map[string]any) JSONMap {
	merged := make(JSONMap, len(m)+len(incoming))
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}

func toString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return "", false
	}
}

// StringMap stores a JSON object of string values, used for per-supplier
// external order id bookkeeping.
type StringMap map[string]string

// Value marshals the map for storage.
func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("stringmap: marshal: %w", err)
	}
	return string(raw), nil
}

// Scan decodes a stored JSON object of strings.
func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = StringMap{}
		return nil
	}
	raw, ok := toString(value)
	if !ok {
		return fmt.Errorf("stringmap: unsupported scan type %T", value)
	}
	if raw == "" {
		*m = StringMap{}
		return nil
	}
	decoded := StringMap{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return fmt.Errorf("stringmap: unmarshal: %w", err)
	}
	*m = decoded
	return nil
}
