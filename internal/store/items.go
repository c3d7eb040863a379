package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
)

var itemColumns = []string{
	"id", "external_id", "account_id", "tenant", "entity_id", "subject", "content", "received_at",
	"analysis_status", "analysis_error", "last_analyzed_at", "created_at", "updated_at",
}

// --- Items ---

// InsertItems stores new items and silently skips any whose external id is
// already known. It returns the number of rows actually inserted.
func (s *PostgresStore) InsertItems(ctx context.Context, items []*models.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	inserted := 0
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		for _, it := range items {
			status := it.AnalysisStatus
			if status == "" {
				status = models.ItemStatusPending
			}
			tag, err := tx.Exec(ctx,
				`INSERT INTO items (id, external_id, account_id, tenant, entity_id, subject, content, received_at,
				   analysis_status, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				 ON CONFLICT (external_id) DO NOTHING`,
				it.ID, it.ExternalID, it.AccountID, it.Tenant, it.EntityID, it.Subject, it.Content, it.ReceivedAt,
				status, it.CreatedAt, it.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert item %s: %w", it.ExternalID, err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("insert items: %w", err)
	}
	return inserted, nil
}

// SelectItems returns up to filter.Limit items matching filter, newest first.
func (s *PostgresStore) SelectItems(ctx context.Context, filter ItemFilter) ([]*models.Item, error) {
	q := applyItemFilter(psql.Select(itemColumns...).From("items"), filter).
		OrderBy("received_at DESC", "id")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build item query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// HasEligibleItems reports whether at least one item matches filter. Limit is ignored.
func (s *PostgresStore) HasEligibleItems(ctx context.Context, filter ItemFilter) (bool, error) {
	query, args, err := applyItemFilter(psql.Select("1").From("items"), filter).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build eligibility query: %w", err)
	}

	var one int
	err = s.db.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe eligible items: %w", err)
	}
	return true, nil
}

func applyItemFilter(q sq.SelectBuilder, filter ItemFilter) sq.SelectBuilder {
	if len(filter.Statuses) > 0 {
		q = q.Where(sq.Eq{"analysis_status": filter.Statuses})
	}
	if !filter.AttemptedBefore.IsZero() {
		q = q.Where(sq.Or{
			sq.Eq{"last_analyzed_at": nil},
			sq.Lt{"last_analyzed_at": filter.AttemptedBefore},
		})
	}
	if filter.Tenant != "" {
		q = q.Where(sq.Eq{"tenant": filter.Tenant})
	}
	if filter.AccountID != nil {
		q = q.Where(sq.Eq{"account_id": *filter.AccountID})
	}
	return q
}

// MarkItemsProcessing moves every listed item to processing and stamps
// last_analyzed_at in a single statement.
func (s *PostgresStore) MarkItemsProcessing(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`UPDATE items SET analysis_status = 'processing', last_analyzed_at = $2, updated_at = NOW()
		 WHERE id = ANY($1)`, ids, at)
	if err != nil {
		return fmt.Errorf("mark items processing: %w", err)
	}
	return nil
}

// SaveAnalysis upserts the result for its item and marks the item completed
// in one transaction.
func (s *PostgresStore) SaveAnalysis(ctx context.Context, r *models.AnalysisResult) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO analysis_results (id, item_id, batch_id, job_id, provider, model, category, sentiment,
			   sentiment_score, confidence, severity, entities, key_phrases, summary, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			 ON CONFLICT (item_id) DO UPDATE SET
			   batch_id = EXCLUDED.batch_id,
			   job_id = EXCLUDED.job_id,
			   provider = EXCLUDED.provider,
			   model = EXCLUDED.model,
			   category = EXCLUDED.category,
			   sentiment = EXCLUDED.sentiment,
			   sentiment_score = EXCLUDED.sentiment_score,
			   confidence = EXCLUDED.confidence,
			   severity = EXCLUDED.severity,
			   entities = EXCLUDED.entities,
			   key_phrases = EXCLUDED.key_phrases,
			   summary = EXCLUDED.summary,
			   updated_at = EXCLUDED.updated_at`,
			r.ID, r.ItemID, r.BatchID, r.JobID, r.Provider, r.Model, r.Category, r.Sentiment,
			r.SentimentScore, r.Confidence, r.Severity, nonNil(r.Entities), nonNil(r.KeyPhrases), r.Summary,
			r.CreatedAt, r.UpdatedAt); err != nil {
			return fmt.Errorf("upsert analysis result: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE items SET analysis_status = 'completed', analysis_error = NULL, updated_at = NOW()
			 WHERE id = $1`, r.ItemID)
		if err != nil {
			return fmt.Errorf("mark item completed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save analysis for item %s: %w", r.ItemID, err)
	}
	return nil
}

func (s *PostgresStore) MarkItemFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE items SET analysis_status = 'failed', analysis_error = $2, updated_at = NOW()
		 WHERE id = $1`, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark item failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RequeueItems returns the listed items to pending regardless of their
// current status. It is the only way back to pending.
func (s *PostgresStore) RequeueItems(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE items SET analysis_status = 'pending', analysis_error = NULL, last_analyzed_at = NULL,
		   updated_at = NOW()
		 WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("requeue items: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	query, args, err := psql.Select(itemColumns...).From("items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build item query: %w", err)
	}
	it, err := scanItem(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

func scanItem(row pgx.Row) (*models.Item, error) {
	var it models.Item
	if err := row.Scan(&it.ID, &it.ExternalID, &it.AccountID, &it.Tenant, &it.EntityID, &it.Subject,
		&it.Content, &it.ReceivedAt, &it.AnalysisStatus, &it.AnalysisError, &it.LastAnalyzedAt,
		&it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	return &it, nil
}

// --- Analysis Results ---

const resultColumns = `r.id, r.item_id, r.batch_id, r.job_id, r.provider, r.model, r.category, r.sentiment,
	r.sentiment_score, r.confidence, r.severity, r.entities, r.key_phrases, r.summary, r.created_at, r.updated_at`

func (s *PostgresStore) GetAnalysisResultByItemID(ctx context.Context, itemID uuid.UUID) (*models.AnalysisResult, error) {
	var r models.AnalysisResult
	err := s.db.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM analysis_results r WHERE r.item_id = $1`, itemID,
	).Scan(resultDest(&r)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis result by item: %w", err)
	}
	return &r, nil
}

func resultDest(r *models.AnalysisResult) []any {
	return []any{&r.ID, &r.ItemID, &r.BatchID, &r.JobID, &r.Provider, &r.Model, &r.Category, &r.Sentiment,
		&r.SentimentScore, &r.Confidence, &r.Severity, &r.Entities, &r.KeyPhrases, &r.Summary,
		&r.CreatedAt, &r.UpdatedAt}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
