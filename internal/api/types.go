package api

import (
	"encoding/json"
	"fmt"
)

// Profile is a user's enrollment profile: the encrypted reference images
// and the wrapped item keys protecting them, in matching order.
type Profile struct {
	UserID      string
	UpdatedAt   string
	ImagePaths  []string
	WrappedKeys []string
}

// profileRow mirrors the user_profiles table. The wrapped key column is
// kept raw because its encoding varies between writer versions.
type profileRow struct {
	UserID        string          `json:"user_id"`
	UpdatedAt     string          `json:"updated_at"`
	Images        []string        `json:"images"`
	EncryptedKeys json.RawMessage `json:"images_encrypted_keys"`
}

func (r *profileRow) toProfile() (*Profile, error) {
	keys, err := decodeKeyList(r.EncryptedKeys)
	if err != nil {
		return nil, fmt.Errorf("decode images_encrypted_keys: %w", err)
	}
	return &Profile{
		UserID:      r.UserID,
		UpdatedAt:   r.UpdatedAt,
		ImagePaths:  r.Images,
		WrappedKeys: keys,
	}, nil
}

// decodeKeyList accepts both storage forms of the wrapped key column: a
// plain JSON array of strings, or that array double-encoded as a single
// JSON string, which is how older app versions wrote it.
func decodeKeyList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var keys []string
	if err := json.Unmarshal(raw, &keys); err == nil {
		return keys, nil
	}

	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, fmt.Errorf("column is neither an array nor a string")
	}
	if err := json.Unmarshal([]byte(inner), &keys); err != nil {
		return nil, fmt.Errorf("inner payload: %w", err)
	}
	return keys, nil
}
