package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ownerfi/dealflow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS properties (
	id                TEXT PRIMARY KEY,
	city              TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	active            INTEGER NOT NULL DEFAULT 1,
	regional          INTEGER NOT NULL DEFAULT 0,
	relay_sent        INTEGER NOT NULL DEFAULT 0,
	agent_confirmed   INTEGER NOT NULL DEFAULT 0,
	no_result_streak  INTEGER NOT NULL DEFAULT 0,
	inactive_reason   TEXT,
	data              TEXT NOT NULL,
	first_seen_at     DATETIME NOT NULL,
	last_refreshed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	summary     TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_properties_active_refreshed ON properties(active, last_refreshed_at);
CREATE INDEX IF NOT EXISTS idx_properties_state_city ON properties(state, city);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FilterKnown(ctx context.Context, ids []string) (map[string]bool, int, error) {
	known := make(map[string]bool, len(ids))
	lookupErrors := 0
	chunks, failedChunks := 0, 0
	var lastErr error

	for start := 0; start < len(ids); start += LookupBatchSize {
		end := min(start+LookupBatchSize, len(ids))
		chunk := ids[start:end]
		chunks++

		placeholders := strings.TrimRight(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx,
			"SELECT id FROM properties WHERE id IN ("+placeholders+")", args...)
		if err != nil {
			if ctx.Err() != nil {
				return known, lookupErrors, eris.Wrap(ctx.Err(), "sqlite: filter known")
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
				return known, lookupErrors, eris.Wrap(err, "sqlite: scan known id")
			}
			known[id] = true
		}
		rows.Close()
	}

	// One failed chunk is a tolerable re-fetch cost; every chunk failing
	// means the store is unreachable and the run must not continue.
	if chunks > 0 && failedChunks == chunks {
		return known, lookupErrors, eris.Wrap(lastErr, "sqlite: every duplicate lookup batch failed")
	}
	return known, lookupErrors, nil
}

const sqliteUpsert = `
	INSERT INTO properties
		(id, city, state, active, regional, relay_sent, agent_confirmed,
		 no_result_streak, inactive_reason, data, first_seen_at, last_refreshed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		city              = excluded.city,
		state             = excluded.state,
		active            = excluded.active,
		regional          = excluded.regional,
		relay_sent        = properties.relay_sent OR excluded.relay_sent,
		agent_confirmed   = properties.agent_confirmed,
		no_result_streak  = 0,
		inactive_reason   = NULL,
		data              = excluded.data,
		first_seen_at     = properties.first_seen_at,
		last_refreshed_at = excluded.last_refreshed_at`

// UpsertBatch writes properties in independently committed chunks. A failed
// chunk does not stop the remaining chunks; the first failure is reported
// after every chunk has been attempted.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, props []model.Property) (int, error) {
	written := 0
	var firstErr error
	failed := 0
	for start := 0; start < len(props); start += WriteBatchSize {
		if ctx.Err() != nil {
			return written, eris.Wrap(ctx.Err(), "sqlite: upsert batch")
		}
		end := min(start+WriteBatchSize, len(props))
		n, err := s.upsertChunk(ctx, props[start:end])
		written += n
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			zap.L().Warn("sqlite: upsert chunk failed, continuing",
				zap.Int("offset", start), zap.Error(err))
		}
	}
	if firstErr != nil {
		return written, eris.Wrapf(firstErr, "sqlite: %d upsert chunk(s) failed", failed)
	}
	return written, nil
}

func (s *SQLiteStore) upsertChunk(ctx context.Context, props []model.Property) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback()

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
			return 0, eris.Wrapf(err, "sqlite: marshal property %s", p.ID)
		}
		if _, err := tx.ExecContext(ctx, sqliteUpsert,
			p.ID, p.Listing.City, p.Listing.State, p.Active, p.Regional,
			p.RelaySent, p.AgentConfirmed, p.NoResultStreak, nullable(p.InactiveReason),
			string(data), p.FirstSeenAt, p.LastRefreshed,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert property %s", p.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return len(props), nil
}

const sqliteSelect = `
	SELECT data, active, regional, relay_sent, agent_confirmed,
	       no_result_streak, inactive_reason, first_seen_at, last_refreshed_at
	FROM properties`

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Property, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+" WHERE id = ?", id)
	p, err := scanSQLiteProperty(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get property %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) ListActive(ctx context.Context, limit int) ([]model.Property, error) {
	rows, err := s.db.QueryContext(ctx,
		sqliteSelect+" WHERE active ORDER BY last_refreshed_at ASC LIMIT ?", limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active")
	}
	defer rows.Close()

	var props []model.Property
	for rows.Next() {
		p, err := scanSQLiteProperty(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan active property")
		}
		props = append(props, *p)
	}
	return props, eris.Wrap(rows.Err(), "sqlite: list active")
}

func (s *SQLiteStore) MarkInactive(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE properties SET active = 0, inactive_reason = ?, last_refreshed_at = ? WHERE id = ?",
		reason, time.Now().UTC(), id)
	return eris.Wrapf(err, "sqlite: mark inactive %s", id)
}

func (s *SQLiteStore) UpdateRefresh(ctx context.Context, p *model.Property) error {
	p.LastRefreshed = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal property %s", p.ID)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE properties
		 SET active = ?, no_result_streak = ?, inactive_reason = ?, data = ?, last_refreshed_at = ?
		 WHERE id = ?`,
		p.Active, p.NoResultStreak, nullable(p.InactiveReason), string(data), p.LastRefreshed, p.ID)
	return eris.Wrapf(err, "sqlite: update refresh %s", p.ID)
}

func (s *SQLiteStore) SaveRunSummary(ctx context.Context, sum *model.RunSummary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run summary")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, summary, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			status = excluded.status, summary = excluded.summary,
			duration_ms = excluded.duration_ms`,
		sum.RunID, string(sum.Status), string(data), sum.Started, sum.Duration.Milliseconds())
	return eris.Wrapf(err, "sqlite: save run %s", sum.RunID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT summary FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var sums []model.RunSummary
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run summary")
		}
		var sum model.RunSummary
		if err := json.Unmarshal([]byte(data), &sum); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode run summary")
		}
		sums = append(sums, sum)
	}
	return sums, eris.Wrap(rows.Err(), "sqlite: list runs")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteProperty(row rowScanner) (*model.Property, error) {
	var (
		data           string
		p              model.Property
		inactiveReason sql.NullString
	)
	if err := row.Scan(&data, &p.Active, &p.Regional, &p.RelaySent, &p.AgentConfirmed,
		&p.NoResultStreak, &inactiveReason, &p.FirstSeenAt, &p.LastRefreshed); err != nil {
		return nil, err
	}

	var snapshot model.Property
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, err
	}
	snapshot.Active = p.Active
	snapshot.Regional = p.Regional
	snapshot.RelaySent = p.RelaySent
	snapshot.AgentConfirmed = p.AgentConfirmed
	snapshot.NoResultStreak = p.NoResultStreak
	snapshot.InactiveReason = inactiveReason.String
	snapshot.FirstSeenAt = p.FirstSeenAt
	snapshot.LastRefreshed = p.LastRefreshed
	return &snapshot, nil
}
