// Package database opens the bun connection pool shared by the repositories.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/goliatone/go-clinic-auth"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// DefaultConnectTimeout bounds the initial connection attempt
	DefaultConnectTimeout = 2 * time.Second
)

// Options configure the pool
type Options struct {
	Driver         string
	DSN            string
	ConnectTimeout time.Duration
	MaxOpenConns   int
}

// DB owns the pool. Create it at process start, call Connect, and Close
// it on shutdown.
type DB struct {
	*bun.DB
	driver         string
	dsn            string
	connectTimeout time.Duration
}

// Open creates the pool without connecting
func Open(opts Options) (*DB, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch opts.Driver {
	case DriverSQLite, "":
		opts.Driver = DriverSQLite
		sqldb, err = sql.Open(sqliteshim.ShimName, opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// sqlite serializes writers, a single connection avoids SQLITE_BUSY
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres:
		sqldb, err = sql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if opts.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(opts.MaxOpenConns)
			sqldb.SetMaxIdleConns(opts.MaxOpenConns / 2)
		}
		sqldb.SetConnMaxLifetime(15 * time.Minute)
		sqldb.SetConnMaxIdleTime(5 * time.Minute)
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	return &DB{
		DB:             db,
		driver:         opts.Driver,
		dsn:            opts.DSN,
		connectTimeout: opts.ConnectTimeout,
	}, nil
}

// Driver returns the configured driver name
func (d *DB) Driver() string {
	return d.driver
}

// Connect verifies the pool can reach the database within the connect
// timeout. Failures are classified as database unavailable.
func (d *DB) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.connectTimeout)
	defer cancel()

	if err := d.PingContext(ctx); err != nil {
		return auth.ClassifyStoreError(err, "failed to connect to database")
	}
	return nil
}

// Close releases the pool
func (d *DB) Close() error {
	return d.DB.Close()
}

// Prepare brings the schema up to date: embedded migrations for postgres,
// model based tables for sqlite.
func (d *DB) Prepare(ctx context.Context) error {
	if d.driver == DriverPostgres {
		return RunMigrations(d.dsn)
	}
	return EnsureSchema(ctx, d.DB)
}

// Models lists the tables owned by the auth core
func Models() []any {
	return []any{
		(*auth.User)(nil),
		(*auth.DoctorProfile)(nil),
		(*auth.PatientProfile)(nil),
		(*auth.IssuedToken)(nil),
		(*auth.PasswordReset)(nil),
	}
}

// EnsureSchema creates missing tables and indexes from the bun models
func EnsureSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range Models() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}

	if _, err := db.NewCreateIndex().
		Model((*auth.IssuedToken)(nil)).
		Index("issued_tokens_user_id_idx").
		IfNotExists().
		Column("user_id").
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create issued_tokens index: %w", err)
	}

	return nil
}
