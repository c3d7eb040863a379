package models

import "time"

// EntityProfile is the aggregate view of every analyzed message from one
// sender within a tenant. It is recomputed from scratch on each update.
type EntityProfile struct {
	Tenant        string         `db:"tenant"          json:"tenant"`
	EntityID      string         `db:"entity_id"       json:"entity_id"`
	MessageCount  int            `db:"message_count"   json:"message_count"`
	AvgSentiment  float64        `db:"avg_sentiment"   json:"avg_sentiment"`
	AvgConfidence float64        `db:"avg_confidence"  json:"avg_confidence"`
	TopCategory   string         `db:"top_category"    json:"top_category"`
	MaxSeverity   string         `db:"max_severity"    json:"max_severity"`
	Categories    map[string]int `db:"categories"      json:"categories"`
	LastMessageAt time.Time      `db:"last_message_at" json:"last_message_at"`
	UpdatedAt     time.Time      `db:"updated_at"      json:"updated_at"`
}

// EntityKey identifies one profile.
type EntityKey struct {
	Tenant   string
	EntityID string
}
