package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	waLog "go.mau.fi/whatsmeow/util/log"

	"zelador/internal/infra/config"
	"zelador/internal/metrics"
)

// ErrStoreClosed is returned for any operation after Close.
var ErrStoreClosed = errors.New("store is closed")

// Store owns the MySQL connection pool. All repositories go through it; no
// other component touches the pool directly.
type Store struct {
	db     *sqlx.DB
	cfg    config.DatabaseConfig
	log    waLog.Logger
	closed atomic.Bool
}

// Open creates the database if absent, connects the pool, and applies the
// schema. Times are stored and compared in UTC throughout.
func Open(ctx context.Context, cfg config.DatabaseConfig, log waLog.Logger) (*Store, error) {
	if err := ensureDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, "mysql", dsn(cfg, cfg.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.PoolSize)
	db.SetMaxIdleConns(cfg.PoolSize)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{
		db:  db,
		cfg: cfg,
		log: log.Sub("Store"),
	}

	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create app tables: %w", err)
	}

	return s, nil
}

// ensureDatabase connects without a schema selected and creates the target
// database when it does not exist yet.
func ensureDatabase(ctx context.Context, cfg config.DatabaseConfig) error {
	db, err := sql.Open("mysql", dsn(cfg, ""))
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, fmt.Sprintf(
		"CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci",
		cfg.Name,
	))
	return err
}

func dsn(cfg config.DatabaseConfig, dbName string) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = dbName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Collation = "utf8mb4_unicode_ci"
	mc.Params = map[string]string{
		"charset":   "utf8mb4",
		"time_zone": "'+00:00'",
	}
	return mc.FormatDSN()
}

// createTables applies the schema statement by statement; every statement is
// idempotent.
func (s *Store) createTables(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// Close closes the pool. Operations afterwards fail with ErrStoreClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// Exec runs a statement, timing it for the slow-query log. The tag names the
// caller for diagnostics.
func (s *Store) Exec(ctx context.Context, tag, query string, args ...interface{}) (sql.Result, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	start := time.Now()
	res, err := s.db.ExecContext(ctx, query, args...)
	s.observe(tag, query, start)
	return res, err
}

// Get runs a single-row query into dest.
func (s *Store) Get(ctx context.Context, tag string, dest interface{}, query string, args ...interface{}) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	start := time.Now()
	err := s.db.GetContext(ctx, dest, query, args...)
	s.observe(tag, query, start)
	return err
}

// Select runs a multi-row query into dest.
func (s *Store) Select(ctx context.Context, tag string, dest interface{}, query string, args ...interface{}) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	start := time.Now()
	err := s.db.SelectContext(ctx, dest, query, args...)
	s.observe(tag, query, start)
	return err
}

// WithTx runs fn inside a transaction: commit on nil, rollback on error.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Errorf("Failed to roll back transaction: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) observe(tag, query string, start time.Time) {
	elapsed := time.Since(start)
	if s.cfg.SlowQuery > 0 && elapsed >= s.cfg.SlowQuery {
		metrics.SlowQueriesTotal.Inc()
		s.log.Warnf("Slow query [%s] took %s: %s", tag, elapsed.Round(time.Millisecond), queryShape(query))
	}
}

// queryShape collapses whitespace and truncates so log lines stay readable
// and carry no parameter values.
func queryShape(q string) string {
	shape := strings.Join(strings.Fields(q), " ")
	if len(shape) > 120 {
		shape = shape[:120] + "..."
	}
	return shape
}
