package implementation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
	interfaces "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Repository/Interfaces"
)

type PostgresReadingRepository struct {
	db    *sql.DB
	table string
}

func NewPostgresReadingRepository(db *sql.DB, table string) *PostgresReadingRepository {
	return &PostgresReadingRepository{db: db, table: pq.QuoteIdentifier(table)}
}

// CreateTables creates the readings table and its recency index if they don't exist
func (r *PostgresReadingRepository) CreateTables(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	createReadingsTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id                BIGSERIAL PRIMARY KEY,
			ts                TIMESTAMPTZ NOT NULL,
			temperature       DOUBLE PRECISION NOT NULL,
			humidity          DOUBLE PRECISION NOT NULL,
			aqi               DOUBLE PRECISION NOT NULL,
			gas_concentration DOUBLE PRECISION NOT NULL,
			status            TEXT NOT NULL DEFAULT 'online',
			device_id         TEXT NOT NULL,
			metadata          JSONB NOT NULL DEFAULT '{}'::jsonb
		);
	`, r.table)

	createIndexes := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (ts DESC);`,
		pq.QuoteIdentifier("idx_readings_ts_desc"), r.table)

	for _, query := range []string{createReadingsTable, createIndexes} {
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

func (r *PostgresReadingRepository) Insert(ctx context.Context, rd aqmmodels.Reading) (string, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (ts, temperature, humidity, aqi, gas_concentration, status, device_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, r.table)

	metaJSON, err := json.Marshal(rd.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx, query,
		rd.Timestamp, rd.Temperature, rd.Humidity, rd.AQI, rd.GasConcentration,
		string(rd.Status), rd.DeviceID, metaJSON,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(id), nil
}

func (r *PostgresReadingRepository) Latest(ctx context.Context) (*aqmmodels.Reading, error) {
	query := fmt.Sprintf(`
		SELECT id, ts, temperature, humidity, aqi, gas_concentration, status, device_id, metadata
		FROM %s
		ORDER BY ts DESC
		LIMIT 1
	`, r.table)

	rd, err := scanReading(r.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return &rd, nil
}

func (r *PostgresReadingRepository) Since(ctx context.Context, since time.Time, limit int) ([]aqmmodels.Reading, error) {
	query := fmt.Sprintf(`
		SELECT id, ts, temperature, humidity, aqi, gas_concentration, status, device_id, metadata
		FROM %s
		WHERE ts >= $1
		ORDER BY ts ASC
		LIMIT $2
	`, r.table)

	rows, err := r.db.QueryContext(ctx, query, since, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := make([]aqmmodels.Reading, 0)
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, rd)
	}
	return readings, rows.Err()
}

func (r *PostgresReadingRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresReadingRepository) Close(_ context.Context) error {
	return r.db.Close()
}

func (r *PostgresReadingRepository) Collections(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReading(row rowScanner) (aqmmodels.Reading, error) {
	var (
		rd       aqmmodels.Reading
		id       int64
		status   string
		deviceID string
		metaJSON []byte
	)
	if err := row.Scan(&id, &rd.Timestamp, &rd.Temperature, &rd.Humidity, &rd.AQI, &rd.GasConcentration, &status, &deviceID, &metaJSON); err != nil {
		return rd, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &rd.Metadata); err != nil {
			return rd, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	rd.ID = fmt.Sprint(id)
	rd.Timestamp = rd.Timestamp.UTC()
	rd.Status = statusOrDefault(status)
	rd.DeviceID = deviceOrDefault(deviceID)
	return rd, nil
}
