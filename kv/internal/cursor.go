// Package internal holds pagination helpers shared by the kv backends.
package internal

import (
	"encoding/base64"
	"fmt"
)

// EncodeCursor wraps the last key of a page into an opaque pagination
// cursor.
func EncodeCursor(lastKey string) string {
	if lastKey == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(lastKey))
}

// DecodeCursor recovers the last key from a cursor produced by
// EncodeCursor. An empty cursor means start from the beginning.
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("decode cursor: invalid encoding: %w", err)
	}
	if len(decoded) == 0 {
		return "", fmt.Errorf("decode cursor: empty key")
	}
	return string(decoded), nil
}
