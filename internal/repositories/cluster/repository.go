package cluster

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const tableName = "clusters"

var columns = []string{
	"id", "batch_id", "status", "confidence", "locked", "chosen_record_id",
	"record_set_fingerprint", "member_ids", "review_reasons", "edges", "created_at", "updated_at",
}

type row struct {
	ID                   string                             `db:"id"`
	BatchID              string                             `db:"batch_id"`
	Status               string                             `db:"status"`
	Confidence           float64                            `db:"confidence"`
	Locked               bool                               `db:"locked"`
	ChosenRecordID       string                             `db:"chosen_record_id"`
	RecordSetFingerprint string                             `db:"record_set_fingerprint"`
	MemberIDs            pq.StringArray                     `db:"member_ids"`
	ReviewReasons        database.JSONB[[]string]           `db:"review_reasons"`
	Edges                database.JSONB[[]models.MatchPair] `db:"edges"`
	CreatedAt            time.Time                          `db:"created_at"`
	UpdatedAt            time.Time                          `db:"updated_at"`
}

func (r row) toModel() models.Cluster {
	return models.Cluster{
		ID:                   r.ID,
		BatchID:              r.BatchID,
		MemberIDs:            []string(r.MemberIDs),
		Confidence:           r.Confidence,
		Status:               models.ClusterStatus(r.Status),
		ReviewReasons:        r.ReviewReasons.Data,
		Edges:                r.Edges.Data,
		Locked:               r.Locked,
		ChosenRecordID:       r.ChosenRecordID,
		RecordSetFingerprint: r.RecordSetFingerprint,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

// Repository persists clusters with their members and accepted edges
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new cluster repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Save upserts a cluster. created_at keeps its first value.
func (r *Repository) Save(ctx context.Context, c *models.Cluster) error {
	ctx, span := tracing.StartSpan(ctx, "ClusterRepository.Save")
	defer span.End()

	reasons := c.ReviewReasons
	if reasons == nil {
		reasons = []string{}
	}
	edges := c.Edges
	if edges == nil {
		edges = []models.MatchPair{}
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(c.ID, c.BatchID, string(c.Status), c.Confidence, c.Locked, c.ChosenRecordID,
		c.RecordSetFingerprint, pq.Array(c.MemberIDs), database.NewJSONB(reasons), database.NewJSONB(edges), c.CreatedAt, c.UpdatedAt)
	database.Upsert(ib, "id",
		"batch_id", "status", "confidence", "locked", "chosen_record_id",
		"record_set_fingerprint", "member_ids", "review_reasons", "edges", "updated_at")

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("cluster_id", c.ID).Error("failed to save cluster")
		return fmt.Errorf("failed to save cluster: %w", err)
	}
	return nil
}

// Get returns a cluster by id
func (r *Repository) Get(ctx context.Context, id string) (*models.Cluster, error) {
	ctx, span := tracing.StartSpan(ctx, "ClusterRepository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	c, err := r.getOne(ctx, sb)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.NewClusterNotFound(id)
	}
	return c, nil
}

// FindActiveByRecord returns the non-split cluster containing recordID, or nil
func (r *Repository) FindActiveByRecord(ctx context.Context, recordID string) (*models.Cluster, error) {
	ctx, span := tracing.StartSpan(ctx, "ClusterRepository.FindActiveByRecord")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.NotEqual("status", string(models.ClusterStatusSplit)),
		fmt.Sprintf("member_ids @> %s", sb.Var(pq.Array([]string{recordID}))),
	)
	sb.Limit(1)

	return r.getOne(ctx, sb)
}

func (r *Repository) getOne(ctx context.Context, sb *sqlbuilder.SelectBuilder) (*models.Cluster, error) {
	query, args := sb.Build()

	var rec row
	if err := r.db.GetContext(ctx, &rec, query, args...); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get cluster")
		return nil, fmt.Errorf("failed to get cluster: %w", err)
	}
	c := rec.toModel()
	return &c, nil
}

// ListByBatch returns every cluster of a batch ordered by id
func (r *Repository) ListByBatch(ctx context.Context, batchID string) ([]models.Cluster, error) {
	ctx, span := tracing.StartSpan(ctx, "ClusterRepository.ListByBatch")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("batch_id", batchID))
	sb.OrderBy("id ASC")

	return r.selectMany(ctx, sb)
}

// List returns a page of clusters filtered by batch and status
func (r *Repository) List(ctx context.Context, opts models.ListOptions) (models.Page[models.Cluster], error) {
	ctx, span := tracing.StartSpan(ctx, "ClusterRepository.List")
	defer span.End()

	opts = opts.Normalize()
	page := models.Page[models.Cluster]{Items: []models.Cluster{}, Page: opts.Page, PageSize: opts.PageSize}

	where := func(sb *sqlbuilder.SelectBuilder) {
		if opts.BatchID != "" {
			sb.Where(sb.Equal("batch_id", opts.BatchID))
		}
		if opts.Status != "" {
			sb.Where(sb.Equal("status", opts.Status))
		}
	}

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From(tableName)
	where(countSb)
	countQuery, countArgs := countSb.Build()

	if err := r.db.GetContext(ctx, &page.TotalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to count clusters")
		return page, fmt.Errorf("failed to count clusters: %w", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	where(sb)
	sb.OrderBy("id ASC")
	database.Paginate(sb, opts.Page, opts.PageSize)

	items, err := r.selectMany(ctx, sb)
	if err != nil {
		return page, err
	}
	page.Items = items
	return page, nil
}

func (r *Repository) selectMany(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.Cluster, error) {
	query, args := sb.Build()

	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list clusters")
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}

	clusters := make([]models.Cluster, 0, len(rows))
	for _, rec := range rows {
		clusters = append(clusters, rec.toModel())
	}
	return clusters, nil
}

// Delete removes a cluster; its golden record goes with it
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "ClusterRepository.Delete")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom(tableName)
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("cluster_id", id).Error("failed to delete cluster")
		return fmt.Errorf("failed to delete cluster: %w", err)
	}
	return nil
}
