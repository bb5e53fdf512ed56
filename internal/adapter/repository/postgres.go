package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hive-corporation/sochub/internal/core/domain"
)

// PostgresRepository persists vendor snapshot records. One row per
// (module, resource, record_id); re-ingesting a record refreshes its payload.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) SaveBatch(ctx context.Context, records []domain.CachedRecord) error {
	batch := &pgx.Batch{}

	query := `
		INSERT INTO vendor_records (module, resource, record_id, payload, fetched_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (module, resource, record_id)
		DO UPDATE SET payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at
	`

	for _, rec := range records {
		batch.Queue(query,
			rec.Module,
			rec.Resource,
			rec.RecordID,
			rec.Payload,
			rec.FetchedAt,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	_, err := br.Exec()
	if err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	return nil
}

func (r *PostgresRepository) FindRecent(ctx context.Context, module, resource string, limit int) ([]domain.CachedRecord, error) {
	query := `
		SELECT module, resource, record_id, payload, fetched_at
		FROM vendor_records
		WHERE module = $1 AND resource = $2
		ORDER BY fetched_at DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, module, resource, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendor records: %w", err)
	}
	defer rows.Close()

	var records []domain.CachedRecord

	for rows.Next() {
		var rec domain.CachedRecord
		err := rows.Scan(
			&rec.Module,
			&rec.Resource,
			&rec.RecordID,
			&rec.Payload,
			&rec.FetchedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vendor record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}
