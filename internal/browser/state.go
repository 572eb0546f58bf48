package browser

import (
	"encoding/json"
	"fmt"
)

// StorageState is the serialized authenticated-context snapshot written
// by the session store. The shape mirrors the cookies/origins layout the
// original session files used, so existing snapshots keep working.
type StorageState struct {
	Cookies []StateCookie `json:"cookies"`
	Origins []OriginState `json:"origins"`
}

// StateCookie is one serialized cookie.
type StateCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// OriginState carries per-origin localStorage entries.
type OriginState struct {
	Origin       string      `json:"origin"`
	LocalStorage []StateItem `json:"localStorage"`
}

// StateItem is one localStorage key/value pair.
type StateItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DecodeStorageState parses a storage-state blob.
func DecodeStorageState(data []byte) (*StorageState, error) {
	var state StorageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode storage state: %w", err)
	}
	return &state, nil
}

// Encode serializes the storage state for persistence.
func (s *StorageState) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode storage state: %w", err)
	}
	return data, nil
}
