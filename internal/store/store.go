package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	dbtypes "github.com/nitesh/exchange_reviews/internal/db"
	"github.com/nitesh/exchange_reviews/pkg/models"
)

const reviewsTable = "exchange_reviews"

var reviewColumns = []string{
	"id", "entity_name", "region", "source_kind", "free_text", "detected_language",
	"academics_score", "cost_score", "social_score", "accommodation_score",
	"sentiment_label", "summary_text", "reviewer_type", "moderation_status", "created_at",
}

// PgStore persists enriched reviews. Despite the name it runs on SQLite too;
// queries are written with '?' and rebound for the driver in use.
type PgStore struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

func NewPgStore(db *sqlx.DB) *PgStore {
	return &PgStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(dbtypes.Placeholder(db.DriverName())),
	}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS exchange_reviews (
  id TEXT PRIMARY KEY,
  entity_name TEXT NOT NULL,
  region TEXT NOT NULL DEFAULT '',
  source_kind TEXT NOT NULL,
  free_text TEXT NOT NULL,
  detected_language TEXT NOT NULL,
  academics_score INTEGER NOT NULL CHECK (academics_score BETWEEN 1 AND 5),
  cost_score INTEGER NOT NULL CHECK (cost_score BETWEEN 1 AND 5),
  social_score INTEGER NOT NULL CHECK (social_score BETWEEN 1 AND 5),
  accommodation_score INTEGER NOT NULL CHECK (accommodation_score BETWEEN 1 AND 5),
  sentiment_label TEXT,
  summary_text TEXT,
  reviewer_type TEXT NOT NULL,
  moderation_status TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_entity_type ON exchange_reviews(entity_name, reviewer_type)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_entity_status ON exchange_reviews(entity_name, moderation_status)`,
}

// RunMigrations makes sure the reviews table and its indexes exist.
func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// UpsertResult reports what one batch did. Entities lists every entity
// touched, in first-seen order, so callers can invalidate derived data.
type UpsertResult struct {
	Inserted int
	Updated  int
	Entities []string
}

const insertReviewSQL = `
INSERT INTO exchange_reviews (id, entity_name, region, source_kind, free_text, detected_language,
  academics_score, cost_score, social_score, accommodation_score,
  sentiment_label, summary_text, reviewer_type, moderation_status, created_at)
VALUES (:id, :entity_name, :region, :source_kind, :free_text, :detected_language,
  :academics_score, :cost_score, :social_score, :accommodation_score,
  :sentiment_label, :summary_text, :reviewer_type, :moderation_status, :created_at)`

// identity and created_at are left untouched on update
const updateReviewSQL = `
UPDATE exchange_reviews SET
  region = :region,
  source_kind = :source_kind,
  detected_language = :detected_language,
  academics_score = :academics_score,
  cost_score = :cost_score,
  social_score = :social_score,
  accommodation_score = :accommodation_score,
  sentiment_label = :sentiment_label,
  summary_text = :summary_text,
  moderation_status = :moderation_status
WHERE id = :id`

// UpsertBatch writes all records in one transaction, choosing insert or
// update by the natural key (entity_name, free_text, reviewer_type).
// Any failure rolls back the whole batch.
func (p *PgStore) UpsertBatch(ctx context.Context, records []models.EnrichedReview, now time.Time) (UpsertResult, error) {
	if len(records) == 0 {
		return UpsertResult{}, nil
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var res UpsertResult
	seen := map[string]struct{}{}
	createdAt := now.UTC().Truncate(time.Microsecond)

	for i := range records {
		rec := records[i]
		if err := rec.AspectScores.Validate(); err != nil {
			return UpsertResult{}, fmt.Errorf("record %d (%s): %w", i, rec.EntityName, err)
		}

		existing, found, err := p.findByNaturalKey(ctx, tx, rec.EntityName, rec.FreeText, rec.ReviewerType)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("lookup record %d (%s): %w", i, rec.EntityName, err)
		}

		if found {
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
			if _, err := tx.NamedExecContext(ctx, updateReviewSQL, rec); err != nil {
				return UpsertResult{}, fmt.Errorf("update review id=%s: %w", rec.ID, err)
			}
			res.Updated++
		} else {
			rec.ID = uuid.New().String()
			rec.CreatedAt = createdAt
			if _, err := tx.NamedExecContext(ctx, insertReviewSQL, rec); err != nil {
				return UpsertResult{}, fmt.Errorf("insert review (%s): %w", rec.EntityName, err)
			}
			res.Inserted++
		}
		records[i].ID = rec.ID
		records[i].CreatedAt = rec.CreatedAt

		if _, ok := seen[rec.EntityName]; !ok {
			seen[rec.EntityName] = struct{}{}
			res.Entities = append(res.Entities, rec.EntityName)
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

type keyRow struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
}

func (p *PgStore) findByNaturalKey(ctx context.Context, q sqlx.QueryerContext, entity, text string, reviewer models.ReviewerType) (keyRow, bool, error) {
	query, args, err := p.sb.Select("id", "created_at").
		From(reviewsTable).
		Where(sq.Eq{"entity_name": entity, "free_text": text, "reviewer_type": string(reviewer)}).
		OrderBy("created_at ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return keyRow{}, false, err
	}

	var row keyRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return keyRow{}, false, nil
		}
		return keyRow{}, false, err
	}
	return row, true, nil
}

// Exists reports whether any stored review of entity has exactly this text.
func (p *PgStore) Exists(ctx context.Context, entity, text string) (bool, error) {
	query, args, err := p.sb.Select("1").
		From(reviewsTable).
		Where(sq.Eq{"entity_name": entity, "free_text": text}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, err
	}
	var one int
	if err := p.db.GetContext(ctx, &one, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("exists lookup: %w", err)
	}
	return true, nil
}

// UpdateStatus changes the moderation status of one review and returns the
// entity it belongs to. Unknown ids yield models.ErrNotFound.
func (p *PgStore) UpdateStatus(ctx context.Context, id string, status models.ModerationStatus) (string, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var entity string
	if err := tx.GetContext(ctx, &entity, tx.Rebind(`SELECT entity_name FROM exchange_reviews WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", models.ErrNotFound
		}
		return "", fmt.Errorf("lookup review id=%s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE exchange_reviews SET moderation_status = ? WHERE id = ?`), string(status), id); err != nil {
		return "", fmt.Errorf("update status id=%s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return entity, nil
}

func (p *PgStore) Get(ctx context.Context, id string) (models.EnrichedReview, error) {
	query, args, err := p.sb.Select(reviewColumns...).From(reviewsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return models.EnrichedReview{}, err
	}
	var rec models.EnrichedReview
	if err := p.db.GetContext(ctx, &rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.EnrichedReview{}, models.ErrNotFound
		}
		return models.EnrichedReview{}, err
	}
	return rec, nil
}

// ListApproved returns approved reviews of entity, newest first.
func (p *PgStore) ListApproved(ctx context.Context, entity string, limit, offset int) ([]models.EnrichedReview, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query, args, err := p.sb.Select(reviewColumns...).
		From(reviewsTable).
		Where(sq.Eq{"entity_name": entity, "moderation_status": string(models.StatusApproved)}).
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows := []models.EnrichedReview{}
	err = p.db.SelectContext(ctx, &rows, query, args...)
	return rows, err
}

// ListPending returns reviews awaiting moderation, oldest first.
func (p *PgStore) ListPending(ctx context.Context, limit int) ([]models.EnrichedReview, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query, args, err := p.sb.Select(reviewColumns...).
		From(reviewsTable).
		Where(sq.Eq{"moderation_status": string(models.StatusPending)}).
		OrderBy("created_at ASC", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows := []models.EnrichedReview{}
	err = p.db.SelectContext(ctx, &rows, query, args...)
	return rows, err
}

// ApprovedTexts returns the free text of every approved review of entity.
func (p *PgStore) ApprovedTexts(ctx context.Context, entity string) ([]string, error) {
	query, args, err := p.sb.Select("free_text").
		From(reviewsTable).
		Where(sq.Eq{"entity_name": entity, "moderation_status": string(models.StatusApproved)}).
		OrderBy("created_at ASC", "id").
		ToSql()
	if err != nil {
		return nil, err
	}
	texts := []string{}
	err = p.db.SelectContext(ctx, &texts, query, args...)
	return texts, err
}

func (p *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	err := p.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM exchange_reviews`)
	return n, err
}

func (p *PgStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

type aggregateRow struct {
	EntityName    string  `db:"entity_name"`
	Region        string  `db:"region"`
	ReviewCount   int     `db:"review_count"`
	Academics     float64 `db:"academics_mean"`
	Cost          float64 `db:"cost_mean"`
	Social        float64 `db:"social_mean"`
	Accommodation float64 `db:"accommodation_mean"`
}

func (p *PgStore) aggregateQuery() sq.SelectBuilder {
	return p.sb.Select(
		"entity_name",
		"MAX(region) AS region",
		"COUNT(*) AS review_count",
		"AVG(academics_score) AS academics_mean",
		"AVG(cost_score) AS cost_mean",
		"AVG(social_score) AS social_mean",
		"AVG(accommodation_score) AS accommodation_mean",
	).
		From(reviewsTable).
		Where(sq.Eq{"moderation_status": string(models.StatusApproved)}).
		GroupBy("entity_name")
}

// Aggregate computes the AggregateView of one entity over approved rows only.
func (p *PgStore) Aggregate(ctx context.Context, entity string) (models.AggregateView, error) {
	query, args, err := p.aggregateQuery().Where(sq.Eq{"entity_name": entity}).ToSql()
	if err != nil {
		return models.AggregateView{}, err
	}
	var row aggregateRow
	if err := p.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AggregateView{}, models.ErrNotFound
		}
		return models.AggregateView{}, fmt.Errorf("aggregate %s: %w", entity, err)
	}
	summary, err := p.representativeSummary(ctx, entity)
	if err != nil {
		return models.AggregateView{}, err
	}
	return buildView(row, summary, time.Now().UTC()), nil
}

// Aggregates computes the AggregateView of every entity with approved rows.
func (p *PgStore) Aggregates(ctx context.Context) ([]models.AggregateView, error) {
	query, args, err := p.aggregateQuery().OrderBy("entity_name").ToSql()
	if err != nil {
		return nil, err
	}
	rows := []aggregateRow{}
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("aggregates: %w", err)
	}

	now := time.Now().UTC()
	out := make([]models.AggregateView, 0, len(rows))
	for _, row := range rows {
		summary, err := p.representativeSummary(ctx, row.EntityName)
		if err != nil {
			return nil, err
		}
		out = append(out, buildView(row, summary, now))
	}
	return out, nil
}

func (p *PgStore) representativeSummary(ctx context.Context, entity string) (string, error) {
	query, args, err := p.sb.Select("summary_text").
		From(reviewsTable).
		Where(sq.Eq{
			"entity_name":       entity,
			"reviewer_type":     string(models.ReviewerAI),
			"moderation_status": string(models.StatusApproved),
		}).
		Where(sq.NotEq{"summary_text": nil}).
		Where(sq.NotEq{"summary_text": ""}).
		OrderBy("created_at ASC", "id").
		Limit(1).
		ToSql()
	if err != nil {
		return "", err
	}
	var summary string
	if err := p.db.GetContext(ctx, &summary, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("representative summary %s: %w", entity, err)
	}
	return strings.TrimSpace(summary), nil
}

func buildView(row aggregateRow, summary string, now time.Time) models.AggregateView {
	overall := (row.Academics + row.Cost + row.Social + row.Accommodation) / 4
	return models.AggregateView{
		EntityName:            row.EntityName,
		Region:                row.Region,
		ReviewCount:           row.ReviewCount,
		AcademicsMean:         round2(row.Academics),
		CostMean:              round2(row.Cost),
		SocialMean:            round2(row.Social),
		AccommodationMean:     round2(row.Accommodation),
		OverallScore:          round2(overall),
		RepresentativeSummary: summary,
		UpdatedAt:             now,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
