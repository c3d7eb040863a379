package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
)

// --- Entity Profiles ---

// ListEntitiesAnalyzedSince returns the distinct (tenant, entity) pairs that
// gained or changed an analysis result at or after since.
func (s *PostgresStore) ListEntitiesAnalyzedSince(ctx context.Context, since time.Time) ([]models.EntityKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT i.tenant, i.entity_id
		 FROM analysis_results r JOIN items i ON i.id = r.item_id
		 WHERE r.updated_at >= $1 AND i.entity_id <> ''
		 ORDER BY i.tenant, i.entity_id`, since)
	if err != nil {
		return nil, fmt.Errorf("list analyzed entities: %w", err)
	}
	defer rows.Close()

	var keys []models.EntityKey
	for rows.Next() {
		var k models.EntityKey
		if err := rows.Scan(&k.Tenant, &k.EntityID); err != nil {
			return nil, fmt.Errorf("scan entity key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListEntityResults returns every analysis result for the entity, oldest first.
func (s *PostgresStore) ListEntityResults(ctx context.Context, key models.EntityKey) ([]models.EntityResult, error) {
	rows, err := s.db.Query(ctx,
		`SELECT i.tenant, i.entity_id, i.received_at, `+resultColumns+`
		 FROM analysis_results r JOIN items i ON i.id = r.item_id
		 WHERE i.tenant = $1 AND i.entity_id = $2
		 ORDER BY i.received_at, r.id`, key.Tenant, key.EntityID)
	if err != nil {
		return nil, fmt.Errorf("list entity results: %w", err)
	}
	defer rows.Close()

	var results []models.EntityResult
	for rows.Next() {
		var er models.EntityResult
		dest := append([]any{&er.Tenant, &er.EntityID, &er.ReceivedAt}, resultDest(&er.Result)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan entity result: %w", err)
		}
		results = append(results, er)
	}
	return results, rows.Err()
}

func (s *PostgresStore) UpsertEntityProfile(ctx context.Context, p *models.EntityProfile) error {
	categories := p.Categories
	if categories == nil {
		categories = map[string]int{}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO entity_profiles (tenant, entity_id, message_count, avg_sentiment, avg_confidence,
		   top_category, max_severity, categories, last_message_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (tenant, entity_id) DO UPDATE SET
		   message_count = EXCLUDED.message_count,
		   avg_sentiment = EXCLUDED.avg_sentiment,
		   avg_confidence = EXCLUDED.avg_confidence,
		   top_category = EXCLUDED.top_category,
		   max_severity = EXCLUDED.max_severity,
		   categories = EXCLUDED.categories,
		   last_message_at = EXCLUDED.last_message_at,
		   updated_at = EXCLUDED.updated_at`,
		p.Tenant, p.EntityID, p.MessageCount, p.AvgSentiment, p.AvgConfidence,
		p.TopCategory, p.MaxSeverity, categories, p.LastMessageAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert entity profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEntityProfile(ctx context.Context, key models.EntityKey) (*models.EntityProfile, error) {
	var p models.EntityProfile
	err := s.db.QueryRow(ctx,
		`SELECT tenant, entity_id, message_count, avg_sentiment, avg_confidence, top_category, max_severity,
		   categories, last_message_at, updated_at
		 FROM entity_profiles WHERE tenant = $1 AND entity_id = $2`, key.Tenant, key.EntityID,
	).Scan(&p.Tenant, &p.EntityID, &p.MessageCount, &p.AvgSentiment, &p.AvgConfidence, &p.TopCategory,
		&p.MaxSeverity, &p.Categories, &p.LastMessageAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entity profile: %w", err)
	}
	return &p, nil
}
