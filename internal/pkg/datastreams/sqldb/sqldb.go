// Package sqldb mirrors the latest grid status per publisher and appends alerts to MySQL or
// PostgreSQL.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/ohowland/substation_twin/internal/pkg/datastreams"
	"github.com/ohowland/substation_twin/internal/pkg/msg"
	"github.com/ohowland/substation_twin/internal/pkg/telemetry"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Supported drivers.
const (
	MySQL    = "mysql"
	Postgres = "postgres"
)

// Config for the SQL handler.
type Config struct {
	Enabled  bool   `json:"Enabled" yaml:"enabled"`
	Driver   string `json:"Driver" yaml:"driver"`
	Server   string `json:"Server" yaml:"server"`
	Port     int    `json:"Port" yaml:"port"`
	Username string `json:"Username" yaml:"username"`
	Password string `json:"Password" yaml:"password"`
	Database string `json:"Database" yaml:"database"`
	Timeout  int    `json:"Timeout" yaml:"timeout"` // milliseconds
}

type dialect struct {
	createStatus string
	createAlerts string
	upsertStatus string
	insertAlert  string
}

var dialects = map[string]dialect{
	MySQL: {
		createStatus: `CREATE TABLE IF NOT EXISTS grid_status(pid VARCHAR(36) PRIMARY KEY, tick BIGINT, transformer_loading DOUBLE, total_load DOUBLE, degraded BOOLEAN, status TEXT, updated_at DATETIME(6))`,
		createAlerts: `CREATE TABLE IF NOT EXISTS alerts(id BIGINT AUTO_INCREMENT PRIMARY KEY, pid VARCHAR(36), tick BIGINT, message TEXT, raised_at DATETIME(6))`,
		upsertStatus: `INSERT INTO grid_status(pid, tick, transformer_loading, total_load, degraded, status, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?) ON DUPLICATE KEY UPDATE tick = VALUES(tick), transformer_loading = VALUES(transformer_loading), total_load = VALUES(total_load), degraded = VALUES(degraded), status = VALUES(status), updated_at = VALUES(updated_at)`,
		insertAlert:  `INSERT INTO alerts(pid, tick, message, raised_at) VALUES (?, ?, ?, ?)`,
	},
	Postgres: {
		createStatus: `CREATE TABLE IF NOT EXISTS grid_status(pid VARCHAR(36) PRIMARY KEY, tick BIGINT, transformer_loading DOUBLE PRECISION, total_load DOUBLE PRECISION, degraded BOOLEAN, status TEXT, updated_at TIMESTAMPTZ)`,
		createAlerts: `CREATE TABLE IF NOT EXISTS alerts(id BIGSERIAL PRIMARY KEY, pid VARCHAR(36), tick BIGINT, message TEXT, raised_at TIMESTAMPTZ)`,
		upsertStatus: `INSERT INTO grid_status(pid, tick, transformer_loading, total_load, degraded, status, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (pid) DO UPDATE SET tick = EXCLUDED.tick, transformer_loading = EXCLUDED.transformer_loading, total_load = EXCLUDED.total_load, degraded = EXCLUDED.degraded, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		insertAlert:  `INSERT INTO alerts(pid, tick, message, raised_at) VALUES ($1, $2, $3, $4)`,
	},
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Handler upserts frames into grid_status and inserts alerts.
type Handler struct {
	*datastreams.Sink
	config  Config
	dialect dialect
	open    func(driver, dsn string) (*sql.DB, error)
}

// New subscribes a handler on system. The driver must be mysql or postgres.
func New(cfg Config, system msg.Publisher, recorder datastreams.FailureRecorder) (*Handler, error) {
	if cfg.Driver == "" {
		cfg.Driver = MySQL
	}
	d, ok := dialects[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("sqldb: unsupported driver %q", cfg.Driver)
	}
	if cfg.Server == "" {
		cfg.Server = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 3306
		if cfg.Driver == Postgres {
			cfg.Port = 5432
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1000
	}
	sink, err := datastreams.NewSink("SQL", system, recorder)
	if err != nil {
		return nil, err
	}
	return &Handler{Sink: sink, config: cfg, dialect: d, open: sql.Open}, nil
}

// DSN returns the driver specific connection string.
func (h *Handler) DSN() string {
	addr := net.JoinHostPort(h.config.Server, strconv.Itoa(h.config.Port))
	if h.config.Driver == Postgres {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(h.config.Username, h.config.Password),
			Host:     addr,
			Path:     "/" + h.config.Database,
			RawQuery: "sslmode=disable",
		}
		return u.String()
	}
	c := mysql.NewConfig()
	c.User = h.config.Username
	c.Passwd = h.config.Password
	c.Net = "tcp"
	c.Addr = addr
	c.DBName = h.config.Database
	c.ParseTime = true
	return c.FormatDSN()
}

func (h *Handler) timeout() time.Duration {
	return time.Duration(h.config.Timeout) * time.Millisecond
}

// Process opens the database, creates the tables and mirrors until Stop. Failures before the
// loop starts are logged and end the process.
func (h *Handler) Process() {
	db, err := h.open(h.config.Driver, h.DSN())
	if err != nil {
		log.Printf("[SQL] unable to open %s database: %v\n", h.config.Driver, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout())
	err = initDBTables(ctx, db, h.dialect)
	cancel()
	if err != nil {
		log.Printf("[SQL] unable to create tables: %v\n", err)
		db.Close()
		return
	}
	h.Run(writer{h, db, db.Close})
}

func initDBTables(ctx context.Context, db execer, d dialect) error {
	for _, stmt := range []string{d.createStatus, d.createAlerts} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type writer struct {
	h     *Handler
	db    execer
	close func() error
}

func (w writer) Write(m msg.Msg) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.h.timeout())
	defer cancel()

	pid := m.PID().String()
	switch p := m.Payload().(type) {
	case telemetry.Frame:
		status, err := json.Marshal(p.Grid)
		if err != nil {
			return err
		}
		_, err = w.db.ExecContext(ctx, w.h.dialect.upsertStatus,
			pid, p.Grid.Timestamp, p.Grid.TransformerLoadingPercent, p.Grid.TotalLoadMW, p.Grid.Degraded, string(status), p.Timestamp)
		return err
	case telemetry.Alert:
		_, err := w.db.ExecContext(ctx, w.h.dialect.insertAlert, pid, p.Tick, p.Message, p.Timestamp)
		return err
	}
	return fmt.Errorf("sqldb: unexpected payload %T", m.Payload())
}

func (w writer) Close() error {
	return w.close()
}
