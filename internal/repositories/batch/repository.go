package batch

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const tableName = "batches"

var columns = []string{"id", "status", "config", "record_count", "cluster_count", "created_at", "resolved_at"}

type row struct {
	ID           string                                  `db:"id"`
	Status       string                                  `db:"status"`
	Config       database.JSONB[models.ResolutionConfig] `db:"config"`
	RecordCount  int                                     `db:"record_count"`
	ClusterCount int                                     `db:"cluster_count"`
	CreatedAt    time.Time                               `db:"created_at"`
	ResolvedAt   *time.Time                              `db:"resolved_at"`
}

func (r row) toModel() models.Batch {
	return models.Batch{
		ID:           r.ID,
		Status:       models.BatchStatus(r.Status),
		Config:       r.Config.Data,
		RecordCount:  r.RecordCount,
		ClusterCount: r.ClusterCount,
		CreatedAt:    r.CreatedAt,
		ResolvedAt:   r.ResolvedAt,
	}
}

// Repository persists batches
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new batch repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a batch
func (r *Repository) Create(ctx context.Context, b *models.Batch) error {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.Create")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(b.ID, string(b.Status), database.NewJSONB(b.Config), b.RecordCount, b.ClusterCount, b.CreatedAt, b.ResolvedAt)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", b.ID).Error("failed to create batch")
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

// Get returns a batch by id
func (r *Repository) Get(ctx context.Context, id string) (*models.Batch, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var rec row
	if err := r.db.GetContext(ctx, &rec, query, args...); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewBatchNotFound(id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get batch")
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	b := rec.toModel()
	return &b, nil
}

// Update writes the mutable batch columns
func (r *Repository) Update(ctx context.Context, b *models.Batch) error {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.Update")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("status", string(b.Status)),
		ub.Assign("config", database.NewJSONB(b.Config)),
		ub.Assign("record_count", b.RecordCount),
		ub.Assign("cluster_count", b.ClusterCount),
		ub.Assign("resolved_at", b.ResolvedAt),
	)
	ub.Where(ub.Equal("id", b.ID))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", b.ID).Error("failed to update batch")
		return fmt.Errorf("failed to update batch: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return errors.NewBatchNotFound(b.ID)
	}
	return nil
}

// List returns a page of batches, newest first
func (r *Repository) List(ctx context.Context, opts models.ListOptions) (models.Page[models.Batch], error) {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.List")
	defer span.End()

	opts = opts.Normalize()
	page := models.Page[models.Batch]{Items: []models.Batch{}, Page: opts.Page, PageSize: opts.PageSize}

	where := func(sb *sqlbuilder.SelectBuilder) {
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
		r.logger.WithContext(ctx).WithError(err).Error("failed to count batches")
		return page, fmt.Errorf("failed to count batches: %w", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	where(sb)
	sb.OrderBy("created_at DESC", "id ASC")
	database.Paginate(sb, opts.Page, opts.PageSize)

	query, args := sb.Build()

	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list batches")
		return page, fmt.Errorf("failed to list batches: %w", err)
	}
	for _, rec := range rows {
		page.Items = append(page.Items, rec.toModel())
	}
	return page, nil
}
