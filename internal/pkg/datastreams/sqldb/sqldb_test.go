package sqldb

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/ohowland/substation_twin/internal/pkg/msg"
	"github.com/ohowland/substation_twin/internal/pkg/telemetry"
	"github.com/ohowland/substation_twin/internal/pkg/twin"
	"gotest.tools/v3/assert"
)

type exec struct {
	query string
	args  []interface{}
}

type fakeDB struct {
	execs []exec
}

func (d *fakeDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	d.execs = append(d.execs, exec{query, args})
	return nil, nil
}

func newHandler(t *testing.T, cfg Config) *Handler {
	h, err := New(cfg, msg.NewPublisher(uuid.New()), nil)
	assert.NilError(t, err)
	return h
}

func TestMySQLDSN(t *testing.T) {
	h := newHandler(t, Config{Username: "twin", Password: "secret", Database: "substation"})
	assert.Equal(t, h.config.Port, 3306)
	assert.Equal(t, h.DSN(), "twin:secret@tcp(localhost:3306)/substation?parseTime=true")
}

func TestPostgresDSN(t *testing.T) {
	h := newHandler(t, Config{Driver: Postgres, Server: "db", Username: "twin", Password: "p@ss", Database: "substation"})
	assert.Equal(t, h.config.Port, 5432)
	assert.Equal(t, h.DSN(), "postgres://twin:p%40ss@db:5432/substation?sslmode=disable")
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(Config{Driver: "sqlite"}, msg.NewPublisher(uuid.New()), nil)
	assert.ErrorContains(t, err, `unsupported driver "sqlite"`)
}

func TestInitDBTables(t *testing.T) {
	db := &fakeDB{}
	assert.NilError(t, initDBTables(context.Background(), db, dialects[Postgres]))
	assert.Equal(t, len(db.execs), 2)
	assert.Assert(t, strings.Contains(db.execs[0].query, "grid_status"))
	assert.Assert(t, strings.Contains(db.execs[1].query, "BIGSERIAL"))
}

func TestWriteFrameAndAlert(t *testing.T) {
	for _, driver := range []string{MySQL, Postgres} {
		t.Run(driver, func(t *testing.T) {
			h := newHandler(t, Config{Driver: driver})
			db := &fakeDB{}
			w := writer{h, db, func() error { return nil }}
			pid := uuid.New()

			frame := telemetry.Frame{Grid: twin.Status{Timestamp: 3, TransformerLoadingPercent: 85, TotalLoadMW: 34}}
			assert.NilError(t, w.Write(msg.New(pid, msg.Telemetry, frame)))
			assert.NilError(t, w.Write(msg.New(pid, msg.Alert, telemetry.Alert{Tick: 3, Message: "WARNING"})))
			assert.ErrorContains(t, w.Write(msg.New(pid, msg.Alert, "raw")), "unexpected payload string")

			assert.Equal(t, len(db.execs), 2)
			assert.Equal(t, db.execs[0].query, dialects[driver].upsertStatus)
			assert.Equal(t, db.execs[0].args[0], pid.String())
			assert.Equal(t, db.execs[0].args[2], 85.0)
			assert.Equal(t, db.execs[1].args[2], "WARNING")
		})
	}
}
