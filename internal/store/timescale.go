package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-monitor/speedwatch/internal/config"
	"fleet-monitor/speedwatch/internal/domain"
)

// SchemaStatements create the history tables. Every statement is idempotent.
var SchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS vessel_readings (
		timestamp    TIMESTAMPTZ      NOT NULL,
		received_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
		vessel_id    TEXT             NOT NULL,
		vessel_name  TEXT             NOT NULL DEFAULT '',
		speed_knots  DOUBLE PRECISION NOT NULL,
		state        TEXT             NOT NULL,
		latitude     DOUBLE PRECISION,
		longitude    DOUBLE PRECISION,
		heading      DOUBLE PRECISION,
		nav_status   TEXT             NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS vessel_alerts (
		id              BIGSERIAL        PRIMARY KEY,
		vessel_id       TEXT             NOT NULL,
		vessel_name     TEXT             NOT NULL DEFAULT '',
		alert_kind      TEXT             NOT NULL,
		severity        TEXT             NOT NULL,
		previous_state  TEXT             NOT NULL,
		current_state   TEXT             NOT NULL,
		speed_knots     DOUBLE PRECISION NOT NULL,
		reading_at      TIMESTAMPTZ      NOT NULL,
		created_at      TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
		CONSTRAINT chk_alert_kind CHECK (alert_kind IN ('STOPPED', 'SLOWDOWN', 'RECOVERED')),
		CONSTRAINT chk_severity CHECK (severity IN ('INFO', 'WARNING', 'CRITICAL')),
		CONSTRAINT uq_vessel_alert UNIQUE (vessel_id, alert_kind, reading_at)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_vessel_time ON vessel_readings (vessel_id, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_vessel ON vessel_alerts (vessel_id, created_at DESC)`,
}

// HypertableStatement needs the timescaledb extension; plain PostgreSQL skips it.
const HypertableStatement = `SELECT create_hypertable('vessel_readings', 'timestamp', if_not_exists => TRUE)`

type TimescaleStore struct {
	pool *pgxpool.Pool
}

func ConnString(cfg *config.Config) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)
}

func NewTimescaleStore(ctx context.Context, cfg *config.Config) (*TimescaleStore, error) {
	return OpenTimescale(ctx, ConnString(cfg))
}

func OpenTimescale(ctx context.Context, connStr string) (*TimescaleStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &TimescaleStore{pool: pool}, nil
}

func (s *TimescaleStore) Close() {
	s.pool.Close()
}

func (s *TimescaleStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InitSchema creates the tables and indexes. withHypertable additionally
// converts vessel_readings into a TimescaleDB hypertable.
func (s *TimescaleStore) InitSchema(ctx context.Context, withHypertable bool) error {
	for _, stmt := range SchemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	if withHypertable {
		if _, err := s.pool.Exec(ctx, HypertableStatement); err != nil {
			return fmt.Errorf("create hypertable: %w", err)
		}
	}
	return nil
}

var readingColumns = []string{
	"timestamp",
	"vessel_id",
	"vessel_name",
	"speed_knots",
	"state",
	"latitude",
	"longitude",
	"heading",
	"nav_status",
}

// BatchInsert copies one row per status. Statuses without a reading are skipped.
func (s *TimescaleStore) BatchInsert(ctx context.Context, statuses []domain.VesselStatus) error {
	rows := make([][]interface{}, 0, len(statuses))
	for _, st := range statuses {
		if st.LastReading == nil {
			continue
		}
		rows = append(rows, readingRow(st))
	}
	if len(rows) == 0 {
		return nil
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"vessel_readings"},
		readingColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("CopyFrom failed for batch of %d: %w", len(rows), err)
	}

	return nil
}

func readingRow(st domain.VesselStatus) []interface{} {
	r := st.LastReading
	var lat, lon, heading *float64
	if r.Position != nil {
		lat, lon = &r.Position.Latitude, &r.Position.Longitude
	}
	if r.Heading != nil {
		heading = r.Heading
	}
	return []interface{}{
		r.Timestamp,
		st.ID,
		st.Name,
		r.Speed,
		st.State.String(),
		lat,
		lon,
		heading,
		r.RawStatus,
	}
}

func (s *TimescaleStore) InsertAlert(ctx context.Context, ev domain.AlertEvent) error {
	query := `
		INSERT INTO vessel_alerts
			(vessel_id, vessel_name, alert_kind, severity, previous_state, current_state, speed_knots, reading_at, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
	`
	_, err := s.pool.Exec(
		ctx,
		query,
		ev.ID,
		ev.Name,
		ev.Kind.String(),
		string(ev.Kind.Severity()),
		ev.Previous.String(),
		ev.Current.String(),
		ev.Reading.Speed,
		ev.Reading.Timestamp,
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert alert for %s: %w", ev.ID, err)
	}
	return nil
}

type ReadingRow struct {
	Timestamp time.Time
	Speed     float64
	State     string
}

// RecentReadings returns the newest readings for a vessel, newest first.
func (s *TimescaleStore) RecentReadings(ctx context.Context, id string, limit int) ([]ReadingRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT timestamp, speed_knots, state
		FROM vessel_readings
		WHERE vessel_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("query readings for %s: %w", id, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ReadingRow, error) {
		var r ReadingRow
		err := row.Scan(&r.Timestamp, &r.Speed, &r.State)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan readings for %s: %w", id, err)
	}
	return out, nil
}

func (s *TimescaleStore) CountAlerts(ctx context.Context, id string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vessel_alerts WHERE vessel_id = $1`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count alerts for %s: %w", id, err)
	}
	return n, nil
}
