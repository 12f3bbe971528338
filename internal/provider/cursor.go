package provider

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidCursor is returned for a pagination cursor that cannot be decoded.
var ErrInvalidCursor = errors.New("invalid pagination cursor")

// EncodeCursor renders a store position as an opaque, URL-safe cursor.
// An empty position yields an empty cursor.
func EncodeCursor(pos map[string]string) string {
	if len(pos) == 0 {
		return ""
	}
	data, err := json.Marshal(pos)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses a cursor produced by EncodeCursor. An empty cursor
// decodes to a nil position.
func DecodeCursor(cursor string) (map[string]string, error) {
	if cursor == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var pos map[string]string
	if err := json.Unmarshal(data, &pos); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if len(pos) == 0 {
		return nil, fmt.Errorf("%w: empty position", ErrInvalidCursor)
	}
	return pos, nil
}
