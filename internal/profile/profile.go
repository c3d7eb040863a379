// Package profile aggregates analysis results into per-sender profiles.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/inboxlens/internal/analysis"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
)

// Store is the persistence the updater needs.
type Store interface {
	ListEntitiesAnalyzedSince(ctx context.Context, since time.Time) ([]models.EntityKey, error)
	ListEntityResults(ctx context.Context, key models.EntityKey) ([]models.EntityResult, error)
	UpsertEntityProfile(ctx context.Context, p *models.EntityProfile) error
}

// Compute builds the profile for key from every one of its results.
// Ties for the top category go to the alphabetically first name.
func Compute(key models.EntityKey, results []models.EntityResult, now time.Time) models.EntityProfile {
	p := models.EntityProfile{
		Tenant:      key.Tenant,
		EntityID:    key.EntityID,
		MaxSeverity: "low",
		Categories:  map[string]int{},
		UpdatedAt:   now,
	}
	if len(results) == 0 {
		return p
	}

	var sentiment, confidence float64
	for _, er := range results {
		r := er.Result
		sentiment += r.SentimentScore
		confidence += r.Confidence
		p.Categories[r.Category]++
		if analysis.SeverityRank(r.Severity) > analysis.SeverityRank(p.MaxSeverity) {
			p.MaxSeverity = r.Severity
		}
		if er.ReceivedAt.After(p.LastMessageAt) {
			p.LastMessageAt = er.ReceivedAt
		}
	}

	n := float64(len(results))
	p.MessageCount = len(results)
	p.AvgSentiment = sentiment / n
	p.AvgConfidence = confidence / n

	best := -1
	for cat, count := range p.Categories {
		if count > best || (count == best && cat < p.TopCategory) {
			best = count
			p.TopCategory = cat
		}
	}
	return p
}

// Updater recomputes and stores profiles.
type Updater struct {
	store Store
	now   func() time.Time
}

func NewUpdater(st Store) *Updater {
	return &Updater{store: st, now: time.Now}
}

// Update recomputes one entity's profile from scratch. Entities without any
// results are left untouched.
func (u *Updater) Update(ctx context.Context, key models.EntityKey) error {
	results, err := u.store.ListEntityResults(ctx, key)
	if err != nil {
		return fmt.Errorf("loading results for %s/%s: %w", key.Tenant, key.EntityID, err)
	}
	if len(results) == 0 {
		return nil
	}

	p := Compute(key, results, u.now().UTC())
	if err := u.store.UpsertEntityProfile(ctx, &p); err != nil {
		return fmt.Errorf("storing profile for %s/%s: %w", key.Tenant, key.EntityID, err)
	}
	return nil
}

// UpdateSince refreshes every entity with results changed at or after since.
// A failing entity is logged and skipped; only failing to list entities is
// returned as an error.
func (u *Updater) UpdateSince(ctx context.Context, since time.Time) (updated, failed int, err error) {
	keys, err := u.store.ListEntitiesAnalyzedSince(ctx, since)
	if err != nil {
		return 0, 0, fmt.Errorf("listing entities: %w", err)
	}

	for _, key := range keys {
		if err := u.Update(ctx, key); err != nil {
			slog.Warn("profile update failed", "tenant", key.Tenant, "entity_id", key.EntityID, "error", err)
			failed++
			continue
		}
		updated++
	}
	return updated, failed, nil
}
