// internal/repository/content_item_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	appErrors "github.com/unclebandit/content-pipeline/internal/errors"
	"github.com/unclebandit/content-pipeline/internal/model"
)

// ContentItemRepositoryInterface is the Content Item Store contract. Every
// status change is a compare-and-set on the current status; ClaimPublishing is
// the only mutual-exclusion primitive the pipeline relies on.
type ContentItemRepositoryInterface interface {
	Create(ctx context.Context, item *model.ContentItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ContentItem, error)
	List(ctx context.Context, filter model.ListFilter, offset, limit int) ([]*model.ContentItem, int, error)
	ListDue(ctx context.Context, now time.Time) ([]*model.ContentItem, error)
	CountCreatedSince(ctx context.Context, platform model.Platform, since time.Time) (int, error)

	SubmitForReview(ctx context.Context, id uuid.UUID, now time.Time) (*model.ContentItem, error)
	Approve(ctx context.Context, id uuid.UUID, scheduledFor *time.Time, now time.Time) (*model.ContentItem, error)
	Reject(ctx context.Context, id uuid.UUID, reason string, now time.Time) (*model.ContentItem, error)
	UpdatePayload(ctx context.Context, id uuid.UUID, payload model.Payload, now time.Time) (*model.ContentItem, error)

	// ClaimPublishing moves the item from expected to publishing. It reports
	// false without error when the item is missing, no longer in expected, or
	// (for approved/scheduled) not yet due.
	ClaimPublishing(ctx context.Context, id uuid.UUID, expected model.Status, now time.Time) (bool, error)
	MarkPublished(ctx context.Context, id uuid.UUID, externalRef string, now time.Time) (*model.ContentItem, error)
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, now time.Time) (*model.ContentItem, error)
}

const contentItemsTable = "content_items"

var contentItemColumns = []string{
	"id", "platform", "status", "payload", "scheduled_for", "published_at",
	"external_ref", "last_error", "review_note", "source_id", "created_at", "updated_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type ContentItemRepository struct {
	DB *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContentItem(row rowScanner) (*model.ContentItem, error) {
	var (
		c            model.ContentItem
		payload      []byte
		scheduledFor sql.NullTime
		publishedAt  sql.NullTime
		sourceID     uuid.NullUUID
	)
	err := row.Scan(&c.ID, &c.Platform, &c.Status, &payload, &scheduledFor, &publishedAt,
		&c.ExternalRef, &c.LastError, &c.ReviewNote, &sourceID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &c.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", c.ID, err)
		}
	}
	if scheduledFor.Valid {
		t := scheduledFor.Time
		c.ScheduledFor = &t
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		c.PublishedAt = &t
	}
	if sourceID.Valid {
		id := sourceID.UUID
		c.SourceID = &id
	}
	return &c, nil
}

func (r *ContentItemRepository) Create(ctx context.Context, c *model.ContentItem) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt

	payload, err := json.Marshal(c.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	query, args, err := psql.Insert(contentItemsTable).
		Columns(contentItemColumns...).
		Values(c.ID, c.Platform, c.Status, payload, c.ScheduledFor, c.PublishedAt,
			c.ExternalRef, c.LastError, c.ReviewNote, c.SourceID, c.CreatedAt, c.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query, args...)
	return err
}

func (r *ContentItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ContentItem, error) {
	query, args, err := psql.Select(contentItemColumns...).
		From(contentItemsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	c, err := scanContentItem(r.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewContentItemNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func applyFilter(b sq.SelectBuilder, filter model.ListFilter) sq.SelectBuilder {
	if filter.Platform != "" {
		b = b.Where(sq.Eq{"platform": filter.Platform})
	}
	if filter.Status != "" {
		b = b.Where(sq.Eq{"status": filter.Status})
	}
	return b
}

func (r *ContentItemRepository) List(ctx context.Context, filter model.ListFilter, offset, limit int) ([]*model.ContentItem, int, error) {
	query, args, err := applyFilter(psql.Select(contentItemColumns...).From(contentItemsTable), filter).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}

	items, err := r.queryItems(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	countQuery, countArgs, err := applyFilter(psql.Select("COUNT(*)").From(contentItemsTable), filter).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *ContentItemRepository) ListDue(ctx context.Context, now time.Time) ([]*model.ContentItem, error) {
	query, args, err := psql.Select(contentItemColumns...).
		From(contentItemsTable).
		Where(sq.Eq{"status": []string{string(model.StatusApproved), string(model.StatusScheduled)}}).
		Where(sq.LtOrEq{"scheduled_for": now}).
		OrderBy("scheduled_for ASC", "created_at ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryItems(ctx, query, args...)
}

func (r *ContentItemRepository) CountCreatedSince(ctx context.Context, platform model.Platform, since time.Time) (int, error) {
	query, args, err := psql.Select("COUNT(*)").
		From(contentItemsTable).
		Where(sq.Eq{"platform": platform}).
		Where(sq.GtOrEq{"created_at": since}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	err = r.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (r *ContentItemRepository) queryItems(ctx context.Context, query string, args ...any) ([]*model.ContentItem, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*model.ContentItem{}
	for rows.Next() {
		c, err := scanContentItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// transition runs a guarded UPDATE ... RETURNING. When no row matches it
// re-reads the item to tell a missing item from a status mismatch.
func (r *ContentItemRepository) transition(ctx context.Context, id uuid.UUID, to model.Status, set map[string]any) (*model.ContentItem, error) {
	from := model.Sources(to)
	fromValues := make([]string, len(from))
	for i, s := range from {
		fromValues[i] = string(s)
	}

	b := psql.Update(contentItemsTable).Set("status", to)
	for _, col := range []string{"payload", "scheduled_for", "published_at", "external_ref", "last_error", "review_note", "updated_at"} {
		if v, ok := set[col]; ok {
			b = b.Set(col, v)
		}
	}
	query, args, err := b.
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": fromValues}).
		Suffix("RETURNING " + strings.Join(contentItemColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, err
	}

	c, err := scanContentItem(r.DB.QueryRowContext(ctx, query, args...))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, appErrors.NewInvalidTransition(id, string(current.Status), string(to))
}

func (r *ContentItemRepository) SubmitForReview(ctx context.Context, id uuid.UUID, now time.Time) (*model.ContentItem, error) {
	return r.transition(ctx, id, model.StatusPendingReview,
		map[string]any{"updated_at": now})
}

// Approve without scheduledFor makes the item due immediately; with it the
// item becomes scheduled.
func (r *ContentItemRepository) Approve(ctx context.Context, id uuid.UUID, scheduledFor *time.Time, now time.Time) (*model.ContentItem, error) {
	to := model.StatusApproved
	at := now
	if scheduledFor != nil {
		to = model.StatusScheduled
		at = *scheduledFor
	}
	return r.transition(ctx, id, to,
		map[string]any{"scheduled_for": at, "updated_at": now})
}

func (r *ContentItemRepository) Reject(ctx context.Context, id uuid.UUID, reason string, now time.Time) (*model.ContentItem, error) {
	return r.transition(ctx, id, model.StatusRejected,
		map[string]any{"review_note": reason, "updated_at": now})
}

func (r *ContentItemRepository) UpdatePayload(ctx context.Context, id uuid.UUID, payload model.Payload, now time.Time) (*model.ContentItem, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	query, args, err := psql.Update(contentItemsTable).
		Set("payload", data).
		Set("updated_at", now).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": mutableStatuses()}).
		Suffix("RETURNING " + strings.Join(contentItemColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, err
	}

	c, err := scanContentItem(r.DB.QueryRowContext(ctx, query, args...))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, appErrors.NewPayloadLocked(id, string(current.Status))
}

func mutableStatuses() []string {
	return []string{
		string(model.StatusDraft), string(model.StatusPendingReview),
		string(model.StatusApproved), string(model.StatusScheduled),
	}
}

func (r *ContentItemRepository) ClaimPublishing(ctx context.Context, id uuid.UUID, expected model.Status, now time.Time) (bool, error) {
	if !expected.IsClaimable() {
		return false, appErrors.Validation("status %q cannot be claimed for publishing", expected)
	}

	b := psql.Update(contentItemsTable).
		Set("status", model.StatusPublishing).
		Set("updated_at", now).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": expected})
	if expected != model.StatusFailed {
		b = b.Where(sq.LtOrEq{"scheduled_for": now})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return false, err
	}

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *ContentItemRepository) MarkPublished(ctx context.Context, id uuid.UUID, externalRef string, now time.Time) (*model.ContentItem, error) {
	return r.transition(ctx, id, model.StatusPublished,
		map[string]any{"published_at": now, "external_ref": externalRef, "last_error": "", "updated_at": now})
}

func (r *ContentItemRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, now time.Time) (*model.ContentItem, error) {
	return r.transition(ctx, id, model.StatusFailed,
		map[string]any{"last_error": errMsg, "updated_at": now})
}
