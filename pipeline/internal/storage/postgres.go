package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/eventvault/common/database"
	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// =============================================================================
// INGESTION RECORDS
// =============================================================================

// PostgresIngestionStore stores ingestion records in ingestion_records.
type PostgresIngestionStore struct {
	pool *pgxpool.Pool
}

func NewPostgresIngestionStore(pool *pgxpool.Pool) *PostgresIngestionStore {
	return &PostgresIngestionStore{pool: pool}
}

const ingestionColumns = `ingestion_id, snapshot_hash, payload_hash, payload, created_at, node_count, edge_count`

func scanIngestion(row pgx.Row) (*models.IngestionRecord, error) {
	var rec models.IngestionRecord
	if err := row.Scan(
		&rec.IngestionID, &rec.SnapshotHash, &rec.PayloadHash, &rec.Payload,
		&rec.CreatedAt, &rec.NodeCount, &rec.EdgeCount,
	); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func (s *PostgresIngestionStore) FindBySnapshotHash(ctx context.Context, snapshotHash string) (*models.IngestionRecord, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `SELECT ` + ingestionColumns + ` FROM ingestion_records WHERE snapshot_hash = $1`

	rec, err := scanIngestion(s.pool.QueryRow(ctx, query, snapshotHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ingestion record: %w", err)
	}
	return rec, nil
}

func (s *PostgresIngestionStore) Insert(ctx context.Context, rec *models.IngestionRecord) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		INSERT INTO ingestion_records (` + ingestionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.IngestionID, rec.SnapshotHash, rec.PayloadHash, rec.Payload,
		rec.CreatedAt, rec.NodeCount, rec.EdgeCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert ingestion record: %w", err)
	}
	return nil
}

func (s *PostgresIngestionStore) Touch(ctx context.Context, snapshotHash string, at time.Time) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `UPDATE ingestion_records SET created_at = GREATEST(created_at, $2) WHERE snapshot_hash = $1`, snapshotHash, at)
	if err != nil {
		return fmt.Errorf("failed to touch ingestion record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresIngestionStore) FindByWindow(ctx context.Context, from, to time.Time) ([]*models.IngestionRecord, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT ` + ingestionColumns + `
		FROM ingestion_records
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`
	return s.queryIngestion(ctx, query, from, to)
}

func (s *PostgresIngestionStore) FindByKey(ctx context.Context, key string) ([]*models.IngestionRecord, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT ` + ingestionColumns + `
		FROM ingestion_records
		WHERE ingestion_id = $1 OR snapshot_hash = $1
		ORDER BY created_at ASC
	`
	return s.queryIngestion(ctx, query, key)
}

func (s *PostgresIngestionStore) queryIngestion(ctx context.Context, query string, args ...any) ([]*models.IngestionRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingestion records: %w", err)
	}
	defer rows.Close()

	var out []*models.IngestionRecord
	for rows.Next() {
		rec, err := scanIngestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ingestion record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ingestion records: %w", err)
	}
	return out, nil
}

func (s *PostgresIngestionStore) Ping(ctx context.Context) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *PostgresIngestionStore) Type() string { return TypePostgres }

// =============================================================================
// DLQ RECORDS (one table per kind)
// =============================================================================

var dlqTables = map[models.DLQKind]string{
	models.DLQKindDomain: "dlq_domain",
	models.DLQKindSystem: "dlq_system",
}

func dlqTable(kind models.DLQKind) (string, error) {
	table, ok := dlqTables[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return table, nil
}

// PostgresDLQStore stores failures in dlq_domain and dlq_system.
type PostgresDLQStore struct {
	pool *pgxpool.Pool
}

func NewPostgresDLQStore(pool *pgxpool.Pool) *PostgresDLQStore {
	return &PostgresDLQStore{pool: pool}
}

const dlqColumns = `dlq_id, kind, payload_sha256, payload, created_at`

func scanDLQ(row pgx.Row) (*models.DLQRecord, error) {
	var (
		rec   models.DLQRecord
		dlqID *string
		kind  string
	)
	if err := row.Scan(&dlqID, &kind, &rec.PayloadSHA256, &rec.Payload, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if dlqID != nil {
		rec.DLQID = *dlqID
	}
	rec.Kind = models.DLQKind(kind)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func (s *PostgresDLQStore) Insert(ctx context.Context, rec *models.DLQRecord) error {
	table, err := dlqTable(rec.Kind)
	if err != nil {
		return err
	}

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `INSERT INTO ` + table + ` (` + dlqColumns + `) VALUES ($1, $2, $3, $4, $5)`

	var dlqID *string
	if rec.DLQID != "" {
		dlqID = &rec.DLQID
	}
	if _, err := s.pool.Exec(ctx, query, dlqID, string(rec.Kind), rec.PayloadSHA256, rec.Payload, rec.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert dlq record: %w", err)
	}
	return nil
}

func (s *PostgresDLQStore) EnsureIndexes(ctx context.Context, kind models.DLQKind) error {
	table, err := dlqTable(kind)
	if err != nil {
		return err
	}

	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + table + `_dlq_id_uidx ON ` + table + ` (dlq_id) WHERE dlq_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS ` + table + `_created_at_idx ON ` + table + ` (created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS ` + table + `_payload_sha256_idx ON ` + table + ` (payload_sha256)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", table, err)
		}
	}
	return nil
}

func (s *PostgresDLQStore) FindByWindow(ctx context.Context, kind models.DLQKind, from, to time.Time) ([]*models.DLQRecord, error) {
	table, err := dlqTable(kind)
	if err != nil {
		return nil, err
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT ` + dlqColumns + `
		FROM ` + table + `
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query dlq records: %w", err)
	}
	defer rows.Close()

	var out []*models.DLQRecord
	for rows.Next() {
		rec, err := scanDLQ(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dlq record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dlq records: %w", err)
	}
	return out, nil
}

func (s *PostgresDLQStore) FindByID(ctx context.Context, kind models.DLQKind, dlqID string) (*models.DLQRecord, error) {
	table, err := dlqTable(kind)
	if err != nil {
		return nil, err
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `SELECT ` + dlqColumns + ` FROM ` + table + ` WHERE dlq_id = $1 LIMIT 1`

	rec, err := scanDLQ(s.pool.QueryRow(ctx, query, dlqID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dlq record: %w", err)
	}
	return rec, nil
}
