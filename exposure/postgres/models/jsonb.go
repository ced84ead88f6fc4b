// File: jsonb.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB stores an open map in a jsonb column.
type JSONB map[string]interface{}

// Value implements driver.Valuer.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSONB: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = JSONB{}
		return nil
	}
	data, err := jsonbBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*j = JSONB{}
		return nil
	}
	return json.Unmarshal(data, j)
}

// JSONBArray stores an arbitrary JSON array in a jsonb column.
type JSONBArray []interface{}

// Value implements driver.Valuer.
func (a JSONBArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSONB array: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (a *JSONBArray) Scan(value interface{}) error {
	if value == nil {
		*a = JSONBArray{}
		return nil
	}
	data, err := jsonbBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*a = JSONBArray{}
		return nil
	}
	return json.Unmarshal(data, a)
}

// StringSlice stores a JSON string array in a jsonb column.
type StringSlice []string

// Value implements driver.Valuer.
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string slice: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = StringSlice{}
		return nil
	}
	data, err := jsonbBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*s = StringSlice{}
		return nil
	}
	return json.Unmarshal(data, s)
}

func jsonbBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported jsonb source type %T", value)
	}
}
