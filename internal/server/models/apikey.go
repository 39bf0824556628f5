package models

import "time"

// APIKey is a static credential owned by a user. The raw key is shown once at
// creation; afterwards only KeyHash and DisplayPrefix exist.
type APIKey struct {
	ID            string     `json:"id"`
	UserID        string     `json:"-"`
	Name          string     `json:"name"`
	KeyHash       string     `json:"-"`
	DisplayPrefix string     `json:"prefix"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastUsedAt    *time.Time `json:"lastUsedAt,omitempty"`
}
