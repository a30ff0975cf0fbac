package goldenrecord

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const tableName = "golden_records"

var columns = []string{"id", "cluster_id", "batch_id", "fields", "field_sources", "provenance", "conflicts", "fingerprint", "synthesized_at"}

// searchable golden record fields for List
var searchFields = []models.FieldType{models.FieldName, models.FieldEmail, models.FieldOrganization}

type row struct {
	ID            string                                      `db:"id"`
	ClusterID     string                                      `db:"cluster_id"`
	BatchID       string                                      `db:"batch_id"`
	Fields        database.JSONB[map[models.FieldType]string] `db:"fields"`
	FieldSources  database.JSONB[map[models.FieldType]string] `db:"field_sources"`
	Provenance    pq.StringArray                              `db:"provenance"`
	Conflicts     database.JSONB[[]models.FieldConflict]      `db:"conflicts"`
	Fingerprint   string                                      `db:"fingerprint"`
	SynthesizedAt time.Time                                   `db:"synthesized_at"`
}

func (r row) toModel() models.GoldenRecord {
	return models.GoldenRecord{
		ID:            r.ID,
		ClusterID:     r.ClusterID,
		BatchID:       r.BatchID,
		Fields:        r.Fields.Data,
		FieldSources:  r.FieldSources.Data,
		Provenance:    []string(r.Provenance),
		Conflicts:     r.Conflicts.Data,
		Fingerprint:   r.Fingerprint,
		SynthesizedAt: r.SynthesizedAt,
	}
}

// Repository persists golden records, one per merged cluster
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new golden record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Save upserts the golden record of its cluster
func (r *Repository) Save(ctx context.Context, g *models.GoldenRecord) error {
	ctx, span := tracing.StartSpan(ctx, "GoldenRecordRepository.Save")
	defer span.End()

	conflicts := g.Conflicts
	if conflicts == nil {
		conflicts = []models.FieldConflict{}
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(g.ID, g.ClusterID, g.BatchID, database.NewJSONB(g.Fields), database.NewJSONB(g.FieldSources),
		pq.Array(g.Provenance), database.NewJSONB(conflicts), g.Fingerprint, g.SynthesizedAt)
	database.Upsert(ib, "cluster_id", "id", "batch_id", "fields", "field_sources", "provenance", "conflicts", "fingerprint", "synthesized_at")

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("cluster_id", g.ClusterID).Error("failed to save golden record")
		return fmt.Errorf("failed to save golden record: %w", err)
	}
	return nil
}

// GetByCluster returns the golden record of a cluster, or nil
func (r *Repository) GetByCluster(ctx context.Context, clusterID string) (*models.GoldenRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "GoldenRecordRepository.GetByCluster")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("cluster_id", clusterID))

	query, args := sb.Build()

	var rec row
	if err := r.db.GetContext(ctx, &rec, query, args...); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get golden record")
		return nil, fmt.Errorf("failed to get golden record: %w", err)
	}
	g := rec.toModel()
	return &g, nil
}

// DeleteByCluster removes the golden record of a cluster if it has one
func (r *Repository) DeleteByCluster(ctx context.Context, clusterID string) error {
	ctx, span := tracing.StartSpan(ctx, "GoldenRecordRepository.DeleteByCluster")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom(tableName)
	db.Where(db.Equal("cluster_id", clusterID))

	query, args := db.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("cluster_id", clusterID).Error("failed to delete golden record")
		return fmt.Errorf("failed to delete golden record: %w", err)
	}
	return nil
}

// List returns a page of golden records. opts.Search matches name, email or
// organization case-insensitively.
func (r *Repository) List(ctx context.Context, opts models.ListOptions) (models.Page[models.GoldenRecord], error) {
	ctx, span := tracing.StartSpan(ctx, "GoldenRecordRepository.List")
	defer span.End()

	opts = opts.Normalize()
	page := models.Page[models.GoldenRecord]{Items: []models.GoldenRecord{}, Page: opts.Page, PageSize: opts.PageSize}

	search := strings.TrimSpace(opts.Search)
	where := func(sb *sqlbuilder.SelectBuilder) {
		if opts.BatchID != "" {
			sb.Where(sb.Equal("batch_id", opts.BatchID))
		}
		if search != "" {
			pattern := "%" + escapeLike(search) + "%"
			conds := make([]string, len(searchFields))
			for i, f := range searchFields {
				conds[i] = sb.ILike(fmt.Sprintf("fields->>'%s'", f), pattern)
			}
			sb.Where(sb.Or(conds...))
		}
	}

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From(tableName)
	where(countSb)
	countQuery, countArgs := countSb.Build()

	if err := r.db.GetContext(ctx, &page.TotalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to count golden records")
		return page, fmt.Errorf("failed to count golden records: %w", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	where(sb)
	sb.OrderBy("id ASC")
	database.Paginate(sb, opts.Page, opts.PageSize)

	query, args := sb.Build()

	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list golden records")
		return page, fmt.Errorf("failed to list golden records: %w", err)
	}
	for _, rec := range rows {
		page.Items = append(page.Items, rec.toModel())
	}
	return page, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
