package implementation

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	interfaces "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Repository/Interfaces"
)

var readingColumns = []string{"id", "ts", "temperature", "humidity", "aqi", "gas_concentration", "status", "device_id", "metadata"}

type recordedQuery struct {
	sql  string
	args []interface{}
}

// recordingConnector is a database/sql connector that records queries and answers with canned rows
type recordingConnector struct {
	mu      sync.Mutex
	queries []recordedQuery
	rows    [][]driver.Value
}

func (c *recordingConnector) Connect(context.Context) (driver.Conn, error) { return &recordingConn{c}, nil }
func (c *recordingConnector) Driver() driver.Driver                        { return recordingDriver{c} }

type recordingDriver struct{ c *recordingConnector }

func (d recordingDriver) Open(string) (driver.Conn, error) { return &recordingConn{d.c}, nil }

func (c *recordingConnector) last(t *testing.T) recordedQuery {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.queries)
	return c.queries[len(c.queries)-1]
}

type recordingConn struct{ c *recordingConnector }

func (rc *recordingConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements not supported")
}
func (rc *recordingConn) Close() error              { return nil }
func (rc *recordingConn) Begin() (driver.Tx, error) { return nil, errors.New("transactions not supported") }

func (rc *recordingConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	q := recordedQuery{sql: strings.Join(strings.Fields(query), " ")}
	for _, a := range args {
		q.args = append(q.args, a.Value)
	}
	rc.c.mu.Lock()
	defer rc.c.mu.Unlock()
	rc.c.queries = append(rc.c.queries, q)
	return &cannedRows{rows: rc.c.rows}, nil
}

type cannedRows struct {
	rows [][]driver.Value
	pos  int
}

func (r *cannedRows) Columns() []string { return readingColumns }
func (r *cannedRows) Close() error      { return nil }
func (r *cannedRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

func row(id int64, ts time.Time, aqi float64) []driver.Value {
	return []driver.Value{id, ts, 21.0, 45.0, aqi, 100.0, "online", "ESP32_001", []byte(`{"ipAddress":"10.0.0.2","userAgent":"ESP32"}`)}
}

func newRecordingRepo(rows ...[]driver.Value) (*PostgresReadingRepository, *recordingConnector) {
	conn := &recordingConnector{rows: rows}
	return NewPostgresReadingRepository(sql.OpenDB(conn), "sensor_readings"), conn
}

func TestPostgresSinceQuery(t *testing.T) {
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	repo, conn := newRecordingRepo(row(1, base, 10), row(2, base.Add(time.Minute), 20))
	defer repo.Close(context.Background())

	since := base.Add(-time.Hour)
	rs, err := repo.Since(context.Background(), since, 2)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, "1", rs[0].ID)
	assert.Equal(t, 20.0, rs[1].AQI)
	assert.Equal(t, "10.0.0.2", rs[1].Metadata.IPAddress)

	q := conn.last(t)
	assert.Contains(t, q.sql, `FROM "sensor_readings" WHERE ts >= $1 ORDER BY ts ASC LIMIT $2`)
	require.Len(t, q.args, 2)
	assert.True(t, since.Equal(q.args[0].(time.Time)))
	assert.Equal(t, int64(2), q.args[1])
}

func TestPostgresSinceClampsLimitAndReturnsEmptySlice(t *testing.T) {
	repo, conn := newRecordingRepo()
	defer repo.Close(context.Background())

	rs, err := repo.Since(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	assert.NotNil(t, rs)
	assert.Empty(t, rs)
	assert.Equal(t, int64(1), conn.last(t).args[1])
}

func TestPostgresLatestQuery(t *testing.T) {
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	repo, conn := newRecordingRepo(row(9, base, 77))
	defer repo.Close(context.Background())

	r, err := repo.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9", r.ID)
	assert.Equal(t, 77.0, r.AQI)
	assert.Contains(t, conn.last(t).sql, `FROM "sensor_readings" ORDER BY ts DESC LIMIT 1`)
}

func TestPostgresLatestOnEmptyTable(t *testing.T) {
	repo, _ := newRecordingRepo()
	defer repo.Close(context.Background())

	_, err := repo.Latest(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}
