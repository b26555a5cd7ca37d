package state

import (
	"database/sql"
	"encoding/json"
)

// marshalJSON encodes a value for TEXT column storage.
// A nil map or slice stores as NULL rather than "null".
func marshalJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// unmarshalJSON decodes a nullable TEXT column into dst.
// A NULL column leaves dst untouched.
func unmarshalJSON(col sql.NullString, dst any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dst)
}
