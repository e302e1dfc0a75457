// Package store persists completed sessions and territories to PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/onnwee/turf/internal/session"
	"github.com/onnwee/turf/internal/territory"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Store provides database operations for sessions and territories. Samples,
// segments, and settlement history are stored as JSONB alongside the scalar
// columns used for filtering.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a new Store.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Ping verifies database connectivity, for use by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveSession upserts a terminal session. Saving the same session twice is
// idempotent.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	path, err := json.Marshal(sess.Samples)
	if err != nil {
		return fmt.Errorf("failed to encode samples: %w", err)
	}
	segments, err := json.Marshal(sess.Segments)
	if err != nil {
		return fmt.Errorf("failed to encode segments: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, state, start_time_ms, end_time_ms,
			total_distance_meters, total_duration_ms,
			avg_speed_mps, max_speed_mps,
			territory_eligible, uniqueness_key,
			samples, segments
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			end_time_ms = EXCLUDED.end_time_ms,
			total_distance_meters = EXCLUDED.total_distance_meters,
			total_duration_ms = EXCLUDED.total_duration_ms,
			avg_speed_mps = EXCLUDED.avg_speed_mps,
			max_speed_mps = EXCLUDED.max_speed_mps,
			territory_eligible = EXCLUDED.territory_eligible,
			uniqueness_key = EXCLUDED.uniqueness_key,
			samples = EXCLUDED.samples,
			segments = EXCLUDED.segments`,
		sess.ID, string(sess.State), sess.StartTimeMs, sess.EndTimeMs,
		sess.TotalDistanceMeters, sess.TotalDurationMs,
		sess.AvgSpeedMps, sess.MaxSpeedMps,
		sess.TerritoryEligible, sess.UniquenessKey,
		path, segments,
	)
	if err != nil {
		s.logger.Error("failed to save session",
			slog.String("error", err.Error()),
			slog.String("session_id", sess.ID))
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession loads a stored session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var (
		sess     session.Session
		state    string
		path     []byte
		segments []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, state, start_time_ms, end_time_ms,
			total_distance_meters, total_duration_ms,
			avg_speed_mps, max_speed_mps,
			territory_eligible, uniqueness_key,
			samples, segments
		FROM sessions WHERE id = $1`, id).Scan(
		&sess.ID, &state, &sess.StartTimeMs, &sess.EndTimeMs,
		&sess.TotalDistanceMeters, &sess.TotalDurationMs,
		&sess.AvgSpeedMps, &sess.MaxSpeedMps,
		&sess.TerritoryEligible, &sess.UniquenessKey,
		&path, &segments,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	sess.State = session.State(state)
	if err := json.Unmarshal(path, &sess.Samples); err != nil {
		return nil, fmt.Errorf("failed to decode samples: %w", err)
	}
	if err := json.Unmarshal(segments, &sess.Segments); err != nil {
		return nil, fmt.Errorf("failed to decode segments: %w", err)
	}
	return &sess, nil
}

// ListSessions loads stored sessions, newest first. When eligibleOnly is set
// only sessions that produced a claimable path are returned.
func (s *Store) ListSessions(ctx context.Context, eligibleOnly bool) ([]session.Session, error) {
	query := `
		SELECT id, state, start_time_ms, end_time_ms,
			total_distance_meters, total_duration_ms,
			avg_speed_mps, max_speed_mps,
			territory_eligible, uniqueness_key,
			samples, segments
		FROM sessions`
	if eligibleOnly {
		query += " WHERE territory_eligible"
	}
	query += " ORDER BY start_time_ms DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		var (
			sess     session.Session
			state    string
			path     []byte
			segments []byte
		)
		if err := rows.Scan(
			&sess.ID, &state, &sess.StartTimeMs, &sess.EndTimeMs,
			&sess.TotalDistanceMeters, &sess.TotalDurationMs,
			&sess.AvgSpeedMps, &sess.MaxSpeedMps,
			&sess.TerritoryEligible, &sess.UniquenessKey,
			&path, &segments,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess.State = session.State(state)
		if err := json.Unmarshal(path, &sess.Samples); err != nil {
			return nil, fmt.Errorf("failed to decode samples: %w", err)
		}
		if err := json.Unmarshal(segments, &sess.Segments); err != nil {
			return nil, fmt.Errorf("failed to decode segments: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// SaveTerritory upserts a territory and its settlement history.
func (s *Store) SaveTerritory(ctx context.Context, t *territory.Territory) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	summary, err := json.Marshal(t.SessionSummary)
	if err != nil {
		return fmt.Errorf("failed to encode session summary: %w", err)
	}
	bounds, err := json.Marshal(t.Bounds)
	if err != nil {
		return fmt.Errorf("failed to encode bounds: %w", err)
	}
	history, err := json.Marshal(t.SettlementHistory)
	if err != nil {
		return fmt.Errorf("failed to encode settlement history: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO territories (
			id, uniqueness_key, status, owner, claimed_at_ms,
			network_id, is_cross_network,
			bounds, metadata, session_summary, settlement_history
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			owner = EXCLUDED.owner,
			claimed_at_ms = EXCLUDED.claimed_at_ms,
			network_id = EXCLUDED.network_id,
			is_cross_network = EXCLUDED.is_cross_network,
			metadata = EXCLUDED.metadata,
			settlement_history = EXCLUDED.settlement_history`,
		t.ID, t.UniquenessKey, string(t.Status), t.Owner, t.ClaimedAtMs,
		t.NetworkID, t.IsCrossNetwork,
		bounds, metadata, summary, history,
	)
	if err != nil {
		s.logger.Error("failed to save territory",
			slog.String("error", err.Error()),
			slog.String("territory_id", t.ID))
		return fmt.Errorf("failed to save territory: %w", err)
	}
	return nil
}

// GetTerritory loads a stored territory by ID.
func (s *Store) GetTerritory(ctx context.Context, id string) (*territory.Territory, error) {
	rows, err := s.db.QueryContext(ctx, territorySelect+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load territory: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to load territory: %w", err)
		}
		return nil, ErrNotFound
	}
	return scanTerritory(rows)
}

// ListTerritories returns every stored territory, optionally filtered by
// status. An empty status returns all.
func (s *Store) ListTerritories(ctx context.Context, status territory.Status) ([]territory.Territory, error) {
	query := territorySelect
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list territories: %w", err)
	}
	defer rows.Close()

	var out []territory.Territory
	for rows.Next() {
		t, err := scanTerritory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

const territorySelect = `
	SELECT id, uniqueness_key, status, owner, claimed_at_ms,
		network_id, is_cross_network,
		bounds, metadata, session_summary, settlement_history
	FROM territories`

func scanTerritory(rows *sql.Rows) (*territory.Territory, error) {
	var (
		t       territory.Territory
		status  string
		bounds  []byte
		md      []byte
		summary []byte
		history []byte
	)
	err := rows.Scan(
		&t.ID, &t.UniquenessKey, &status, &t.Owner, &t.ClaimedAtMs,
		&t.NetworkID, &t.IsCrossNetwork,
		&bounds, &md, &summary, &history,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan territory: %w", err)
	}

	t.Status = territory.Status(status)
	if err := json.Unmarshal(bounds, &t.Bounds); err != nil {
		return nil, fmt.Errorf("failed to decode bounds: %w", err)
	}
	if err := json.Unmarshal(md, &t.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if err := json.Unmarshal(summary, &t.SessionSummary); err != nil {
		return nil, fmt.Errorf("failed to decode session summary: %w", err)
	}
	if err := json.Unmarshal(history, &t.SettlementHistory); err != nil {
		return nil, fmt.Errorf("failed to decode settlement history: %w", err)
	}
	return &t, nil
}
