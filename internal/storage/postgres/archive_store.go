// Package postgres archives completed extractions into Postgres so results outlive
// the cache window.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "extractions"

// ArchiveStoreConfig controls the connection pool used for archive rows.
type ArchiveStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ArchiveStore upserts one row per job.
type ArchiveStore struct {
	pool  execCloser
	table string
	query string
}

// NewArchiveStore dials Postgres using cfg.
func NewArchiveStore(ctx context.Context, cfg ArchiveStoreConfig) (*ArchiveStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("archive.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewArchiveStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewArchiveStoreWithPool builds a store on an existing pool.
func NewArchiveStoreWithPool(pool execCloser, table string) (*ArchiveStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ArchiveStore{pool: pool, table: table, query: upsertQuery(table)}, nil
}

func upsertQuery(table string) string {
	return fmt.Sprintf(`
INSERT INTO %s (
	job_id,
	source_url,
	fingerprint,
	video_id,
	title,
	media_url,
	cache_hit,
	created_at,
	completed_at,
	result
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (job_id) DO UPDATE SET
	media_url = EXCLUDED.media_url,
	completed_at = EXCLUDED.completed_at,
	result = EXCLUDED.result`, table)
}

// Close releases the pool.
func (s *ArchiveStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreExtraction writes or refreshes the archive row for a completed job.
func (s *ArchiveStore) StoreExtraction(ctx context.Context, record ingest.ArchiveRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("archive store is not configured")
	}
	if record.JobID == "" {
		return fmt.Errorf("job id is required")
	}
	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	args := []any{
		record.JobID,
		record.SourceURL,
		record.Fingerprint,
		record.VideoID,
		record.Title,
		record.MediaURL,
		record.CacheHit,
		record.CreatedAt,
		record.CompletedAt,
		resultJSON,
	}
	if _, err := s.pool.Exec(ctx, s.query, args...); err != nil {
		return fmt.Errorf("insert extraction: %w", err)
	}
	return nil
}
