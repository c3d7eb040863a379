package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inboxlens/internal/batch"
	"github.com/kiranshivaraju/inboxlens/internal/source"
	"github.com/kiranshivaraju/inboxlens/internal/store"
	"github.com/kiranshivaraju/inboxlens/internal/tenant"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
	"github.com/kiranshivaraju/inboxlens/pkg/msgquery"
)

// --- refresh ---

func (p *Pipeline) refreshStage(ctx context.Context) StageResult {
	return p.trackStage(ctx, models.JobTypeTokenRefresh, func(ctx context.Context) (batch.Counts, error) {
		accounts, err := p.store.ListExpiringAccounts(ctx, p.now().UTC().Add(p.cfg.RefreshWindow))
		if err != nil {
			return batch.Counts{}, fmt.Errorf("listing expiring accounts: %w", err)
		}

		var c batch.Counts
		for _, a := range accounts {
			c.Processed++
			if err := p.refreshAccount(ctx, a); err != nil {
				slog.Warn("token refresh failed", "account_id", a.ID, "error", err)
				p.setAccountError(ctx, a.ID, err)
				c.Errors++
				continue
			}
			c.Success++
		}
		return c, nil
	})
}

func (p *Pipeline) refreshAccount(ctx context.Context, a *models.SourceAccount) error {
	tok, err := p.source.RefreshToken(ctx, a.RefreshToken)
	if err != nil {
		return err
	}
	return p.store.UpdateAccountTokens(ctx, a.ID, store.AccountTokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
	})
}

// --- sync ---

func (p *Pipeline) syncStage(ctx context.Context) StageResult {
	return p.trackStage(ctx, models.JobTypeSourceSync, func(ctx context.Context) (batch.Counts, error) {
		accounts, err := p.store.ListSourceAccounts(ctx)
		if err != nil {
			return batch.Counts{}, fmt.Errorf("listing accounts: %w", err)
		}

		var c batch.Counts
		for _, a := range accounts {
			c.Processed++
			inserted, err := p.syncAccount(ctx, a)
			if err != nil {
				slog.Warn("account sync failed", "account_id", a.ID, "error", err)
				p.setAccountError(ctx, a.ID, err)
				c.Errors++
				continue
			}
			slog.Info("account synced", "account_id", a.ID, "inserted", inserted)
			c.Success++
		}
		return c, nil
	})
}

// syncAccount pulls every message newer than the account's cursor and stores
// the unseen ones. The cursor only advances once the items are stored.
func (p *Pipeline) syncAccount(ctx context.Context, a *models.SourceAccount) (int, error) {
	var since time.Time
	if a.SyncCursor != nil {
		since = *a.SyncCursor
	}
	query := msgquery.QueryBuilder{}.BuildSyncQuery(msgquery.SyncParams{Since: since})

	msgs, err := source.ListAll(ctx, p.source, a.AccessToken,
		source.ListRequest{Query: query, Limit: p.cfg.PageSize}, p.cfg.MaxPages)
	if err != nil {
		return 0, fmt.Errorf("listing messages: %w", err)
	}

	now := p.now().UTC()
	items := make([]*models.Item, 0, len(msgs))
	cursor := since
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		items = append(items, p.toItem(m, a.ID, now))
		if m.ReceivedAt.After(cursor) {
			cursor = m.ReceivedAt
		}
	}

	inserted, err := p.store.InsertItems(ctx, items)
	if err != nil {
		return 0, err
	}

	update := store.AccountSync{SyncedAt: now}
	if cursor.After(since) {
		c := cursor.UTC()
		update.Cursor = &c
	}
	if err := p.store.UpdateAccountSync(ctx, a.ID, update); err != nil {
		return inserted, err
	}
	return inserted, nil
}

func (p *Pipeline) toItem(m source.Message, accountID uuid.UUID, now time.Time) *models.Item {
	acct := accountID
	received := m.ReceivedAt.UTC()
	if received.IsZero() {
		received = now
	}
	return &models.Item{
		ID:         uuid.New(),
		ExternalID: m.ID,
		AccountID:  &acct,
		Tenant: p.classify(tenant.Metadata{
			From:    m.From,
			To:      m.To,
			Labels:  m.Labels,
			Subject: m.Subject,
		}),
		EntityID:       senderAddress(m.From),
		Subject:        m.Subject,
		Content:        m.Body,
		ReceivedAt:     received,
		AnalysisStatus: models.ItemStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// senderAddress extracts the bare, lowercased address from a From header.
func senderAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(strings.TrimSpace(from))
}

func (p *Pipeline) setAccountError(ctx context.Context, id uuid.UUID, cause error) {
	if err := p.store.SetAccountError(context.WithoutCancel(ctx), id, cause.Error()); err != nil {
		slog.Error("failed to record account error", "account_id", id, "error", err)
	}
}

// --- analysis ---

func (p *Pipeline) analysisStage(ctx context.Context) StageResult {
	out, err := p.batches.StartBatch(ctx, batch.BatchRequest{})
	var res StageResult
	if out != nil && out.Job != nil {
		res.JobID = &out.Job.ID
	}
	if err != nil {
		res.Status = StageStatusFailed
		res.Error = err.Error()
		return res
	}

	res.Status = out.Job.Status
	res.Processed = out.Result.Processed
	res.Succeeded = out.Result.SuccessCount
	res.Failed = out.Result.ErrorCount
	return res
}

// --- profiles ---

func (p *Pipeline) profileStage(ctx context.Context) StageResult {
	return p.trackStage(ctx, models.JobTypeProfileUpdate, func(ctx context.Context) (batch.Counts, error) {
		updated, failed, err := p.profiles.UpdateSince(ctx, p.now().UTC().Add(-p.cfg.ProfileWindow))
		return batch.Counts{Processed: updated + failed, Success: updated, Errors: failed}, err
	})
}
