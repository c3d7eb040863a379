package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceAccount is a connected inbox on the external messaging source.
// Tokens are held in plaintext here; the store seals them at rest.
type SourceAccount struct {
	ID             uuid.UUID  `db:"id"               json:"id"`
	Name           string     `db:"name"             json:"name"`
	AccessToken    string     `db:"access_token"     json:"-"`
	RefreshToken   string     `db:"refresh_token"    json:"-"`
	TokenExpiresAt time.Time  `db:"token_expires_at" json:"token_expires_at"`
	SyncCursor     *time.Time `db:"sync_cursor"      json:"sync_cursor,omitempty"`
	LastSyncedAt   *time.Time `db:"last_synced_at"   json:"last_synced_at,omitempty"`
	LastError      *string    `db:"last_error"       json:"last_error,omitempty"`
	CreatedAt      time.Time  `db:"created_at"       json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"       json:"updated_at"`
}
