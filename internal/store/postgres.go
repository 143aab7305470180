package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ownerfi/dealflow/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses, satisfied by pgxmock in
// tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"filter_known":  sqlFilterKnown,
	"upsert_prop":   sqlUpsertProperty,
	"get_prop":      sqlGetProperty,
	"mark_inactive": sqlMarkInactive,
	"save_run":      sqlSaveRun,
}

const (
	sqlFilterKnown = `SELECT id FROM properties WHERE id = ANY($1)`

	sqlUpsertProperty = `
		INSERT INTO properties
			(id, city, state, active, regional, relay_sent, agent_confirmed,
			 no_result_streak, inactive_reason, data, first_seen_at, last_refreshed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			city              = EXCLUDED.city,
			state             = EXCLUDED.state,
			active            = EXCLUDED.active,
			regional          = EXCLUDED.regional,
			relay_sent        = properties.relay_sent OR EXCLUDED.relay_sent,
			agent_confirmed   = properties.agent_confirmed,
			no_result_streak  = 0,
			inactive_reason   = NULL,
			data              = EXCLUDED.data,
			first_seen_at     = properties.first_seen_at,
			last_refreshed_at = EXCLUDED.last_refreshed_at`

	sqlGetProperty = `
		SELECT data, active, regional, relay_sent, agent_confirmed,
		       no_result_streak, inactive_reason, first_seen_at, last_refreshed_at
		FROM properties WHERE id = $1`

	sqlListActive = `
		SELECT data, active, regional, relay_sent, agent_confirmed,
		       no_result_streak, inactive_reason, first_seen_at, last_refreshed_at
		FROM properties
		WHERE active
		ORDER BY last_refreshed_at ASC
		LIMIT $1`

	sqlMarkInactive = `
		UPDATE properties
		SET active = false, inactive_reason = $2, last_refreshed_at = $3
		WHERE id = $1`

	sqlUpdateRefresh = `
		UPDATE properties
		SET active = $2, no_result_streak = $3, inactive_reason = $4,
		    data = $5, last_refreshed_at = $6
		WHERE id = $1`

	sqlSaveRun = `
		INSERT INTO runs (id, status, summary, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, summary = EXCLUDED.summary,
			duration_ms = EXCLUDED.duration_ms`

	sqlListRuns = `
		SELECT summary FROM runs ORDER BY started_at DESC LIMIT $1`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS properties (
	id                TEXT PRIMARY KEY,
	city              TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	active            BOOLEAN NOT NULL DEFAULT true,
	regional          BOOLEAN NOT NULL DEFAULT false,
	relay_sent        BOOLEAN NOT NULL DEFAULT false,
	agent_confirmed   BOOLEAN NOT NULL DEFAULT false,
	no_result_streak  INT NOT NULL DEFAULT 0,
	inactive_reason   TEXT,
	data              JSONB NOT NULL,
	first_seen_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_refreshed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	summary     JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_properties_active_refreshed ON properties(active, last_refreshed_at);
CREATE INDEX IF NOT EXISTS idx_properties_state_city ON properties(state, city);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) FilterKnown(ctx context.Context, ids []string) (map[string]bool, int, error) {
	known := make(map[string]bool, len(ids))
	lookupErrors := 0
	chunks, failedChunks := 0, 0
	var lastErr error

	for start := 0; start < len(ids); start += LookupBatchSize {
		end := min(start+LookupBatchSize, len(ids))
		chunk := ids[start:end]
		chunks++

		rows, err := s.pool.Query(ctx, sqlFilterKnown, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return known, lookupErrors, eris.Wrap(ctx.Err(), "postgres: filter known")
			}
			lookupErrors++
			failedChunks++
			lastErr = err
			zap.L().Warn("duplicate lookup batch failed, treating batch as unknown",
				zap.Int("batch_start", start),
				zap.Error(err))
			continue
		}

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return known, lookupErrors, eris.Wrap(err, "postgres: scan known id")
			}
			known[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			lookupErrors++
			zap.L().Warn("duplicate lookup batch failed mid-read", zap.Error(err))
		}
	}

	// One failed chunk is a tolerable re-fetch cost; every chunk failing
	// means the store is unreachable and the run must not continue.
	if chunks > 0 && failedChunks == chunks {
		return known, lookupErrors, eris.Wrap(lastErr, "postgres: every duplicate lookup batch failed")
	}
	return known, lookupErrors, nil
}

// UpsertBatch writes properties in independently committed chunks. A failed
// chunk does not stop the remaining chunks; the first failure is reported
// after every chunk has been attempted.
func (s *PostgresStore) UpsertBatch(ctx context.Context, props []model.Property) (int, error) {
	written := 0
	var firstErr error
	failed := 0
	for start := 0; start < len(props); start += WriteBatchSize {
		if ctx.Err() != nil {
			return written, eris.Wrap(ctx.Err(), "postgres: upsert batch")
		}
		end := min(start+WriteBatchSize, len(props))
		n, err := s.upsertChunk(ctx, props[start:end])
		written += n
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			zap.L().Warn("postgres: upsert chunk failed, continuing",
				zap.Int("offset", start), zap.Error(err))
		}
	}
	if firstErr != nil {
		return written, eris.Wrapf(firstErr, "postgres: %d upsert chunk(s) failed", failed)
	}
	return written, nil
}

// upsertChunk commits one bounded batch in its own transaction.
func (s *PostgresStore) upsertChunk(ctx context.Context, props []model.Property) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for i := range props {
		p := &props[i]
		if p.FirstSeenAt.IsZero() {
			p.FirstSeenAt = now
		}
		if p.LastRefreshed.IsZero() {
			p.LastRefreshed = now
		}

		data, err := json.Marshal(p)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal property %s", p.ID)
		}
		if _, err := tx.Exec(ctx, sqlUpsertProperty,
			p.ID, p.Listing.City, p.Listing.State, p.Active, p.Regional,
			p.RelaySent, p.AgentConfirmed, p.NoResultStreak, nullable(p.InactiveReason),
			data, p.FirstSeenAt, p.LastRefreshed,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert property %s", p.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit upsert")
	}
	return len(props), nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Property, error) {
	p, err := scanProperty(s.pool.QueryRow(ctx, sqlGetProperty, id))
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get property %s", id)
	}
	return p, nil
}

func (s *PostgresStore) ListActive(ctx context.Context, limit int) ([]model.Property, error) {
	rows, err := s.pool.Query(ctx, sqlListActive, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active")
	}
	defer rows.Close()

	var props []model.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan active property")
		}
		props = append(props, *p)
	}
	return props, eris.Wrap(rows.Err(), "postgres: list active")
}

func (s *PostgresStore) MarkInactive(ctx context.Context, id, reason string) error {
	_, err := s.pool.Exec(ctx, sqlMarkInactive, id, reason, time.Now().UTC())
	return eris.Wrapf(err, "postgres: mark inactive %s", id)
}

func (s *PostgresStore) UpdateRefresh(ctx context.Context, p *model.Property) error {
	p.LastRefreshed = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal property %s", p.ID)
	}
	_, err = s.pool.Exec(ctx, sqlUpdateRefresh,
		p.ID, p.Active, p.NoResultStreak, nullable(p.InactiveReason), data, p.LastRefreshed)
	return eris.Wrapf(err, "postgres: update refresh %s", p.ID)
}

func (s *PostgresStore) SaveRunSummary(ctx context.Context, sum *model.RunSummary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run summary")
	}
	_, err = s.pool.Exec(ctx, sqlSaveRun,
		sum.RunID, string(sum.Status), data, sum.Started, sum.Duration.Milliseconds())
	return eris.Wrapf(err, "postgres: save run %s", sum.RunID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	rows, err := s.pool.Query(ctx, sqlListRuns, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var sums []model.RunSummary
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run summary")
		}
		var sum model.RunSummary
		if err := json.Unmarshal(data, &sum); err != nil {
			return nil, eris.Wrap(err, "postgres: decode run summary")
		}
		sums = append(sums, sum)
	}
	return sums, eris.Wrap(rows.Err(), "postgres: list runs")
}

// scanProperty rebuilds a Property from the data column, with the tracked
// columns overriding the snapshot so operator edits (agent confirmation,
// deactivation) survive stale JSON.
func scanProperty(row pgx.Row) (*model.Property, error) {
	var (
		data           []byte
		p              model.Property
		inactiveReason *string
	)
	if err := row.Scan(&data, &p.Active, &p.Regional, &p.RelaySent, &p.AgentConfirmed,
		&p.NoResultStreak, &inactiveReason, &p.FirstSeenAt, &p.LastRefreshed); err != nil {
		return nil, err
	}

	var snapshot model.Property
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	snapshot.Active = p.Active
	snapshot.Regional = p.Regional
	snapshot.RelaySent = p.RelaySent
	snapshot.AgentConfirmed = p.AgentConfirmed
	snapshot.NoResultStreak = p.NoResultStreak
	if inactiveReason != nil {
		snapshot.InactiveReason = *inactiveReason
	} else {
		snapshot.InactiveReason = ""
	}
	snapshot.FirstSeenAt = p.FirstSeenAt
	snapshot.LastRefreshed = p.LastRefreshed
	return &snapshot, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
