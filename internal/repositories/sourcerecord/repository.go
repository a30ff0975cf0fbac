package sourcerecord

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const tableName = "source_records"

// insertChunk keeps each INSERT under the PostgreSQL bind parameter limit
const insertChunk = 1000

var columns = []string{"id", "batch_id", "name", "email", "phone", "address", "organization_name", "organization_id", "ingested_at"}

// Repository persists source records
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new source record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertMany inserts records in chunks, leaving any existing row untouched. Batches larger than one chunk are
// written in a single transaction so a failed chunk leaves nothing behind.
func (r *Repository) InsertMany(ctx context.Context, records []models.SourceRecord) error {
	ctx, span := tracing.StartSpan(ctx, "SourceRecordRepository.InsertMany")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	var err error
	if len(records) <= insertChunk {
		err = r.insertRows(ctx, r.db, records)
	} else {
		err = database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
			for start := 0; start < len(records); start += insertChunk {
				end := min(start+insertChunk, len(records))
				if err := r.insertRows(ctx, tx, records[start:end]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithField("count", len(records)).Debug("inserted source records")
	return nil
}

func (r *Repository) insertRows(ctx context.Context, exec database.Execer, records []models.SourceRecord) error {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	for _, rec := range records {
		ib.Values(rec.ID, rec.BatchID, rec.Name, rec.Email, rec.Phone, rec.Address, rec.OrganizationName, rec.OrganizationID, rec.IngestedAt)
	}
	// records are immutable once stored
	ib.SQL("ON CONFLICT (id) DO NOTHING")

	query, args := ib.Build()
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("count", len(records)).Error("failed to insert source records")
		return fmt.Errorf("failed to insert source records: %w", err)
	}
	return nil
}

// Get returns a record by id
func (r *Repository) Get(ctx context.Context, id string) (*models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "SourceRecordRepository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var rec models.SourceRecord
	if err := r.db.GetContext(ctx, &rec, query, args...); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewRecordNotFound(id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get source record")
		return nil, fmt.Errorf("failed to get source record: %w", err)
	}
	return &rec, nil
}

// ListByBatch returns every record of a batch ordered by id
func (r *Repository) ListByBatch(ctx context.Context, batchID string) ([]models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "SourceRecordRepository.ListByBatch")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("batch_id", batchID))
	sb.OrderBy("id ASC")

	query, args := sb.Build()

	records := []models.SourceRecord{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list source records")
		return nil, fmt.Errorf("failed to list source records: %w", err)
	}
	return records, nil
}

// ListByIDs returns the stored records among ids, ordered by id
func (r *Repository) ListByIDs(ctx context.Context, ids []string) ([]models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "SourceRecordRepository.ListByIDs")
	defer span.End()

	records := []models.SourceRecord{}
	if len(ids) == 0 {
		return records, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(fmt.Sprintf("id = ANY(%s)", sb.Var(pq.Array(ids))))
	sb.OrderBy("id ASC")

	query, args := sb.Build()

	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("count", len(ids)).Error("failed to look up source records")
		return nil, fmt.Errorf("failed to look up source records: %w", err)
	}
	return records, nil
}
