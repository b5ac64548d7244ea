package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	coreconfig "vidforge/core/config"
	"vidforge/core/logger"
	"log/slog"
)

// PGStore persists sessions in a Postgres table, one row per user with the
// credential map stored as JSONB.
type PGStore struct {
	db *sqlx.DB
}

type sessionRow struct {
	UserID    int64  `db:"user_id"`
	Step      string `db:"step"`
	Keys      []byte `db:"api_keys"`
	APIsReady bool   `db:"apis_ready"`
}

// OpenPGStore connects to Postgres, runs pending migrations, and returns the store.
func OpenPGStore(cfg coreconfig.DatabaseConfig) (*PGStore, error) {
	if err := runMigrations(cfg); err != nil {
		return nil, err
	}
	db, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &PGStore{db: db}, nil
}

// Get returns the session for id.
func (p *PGStore) Get(id int64) (UserSession, bool) {
	var row sessionRow
	err := p.db.Get(&row, `SELECT user_id, step, api_keys, apis_ready FROM user_sessions WHERE user_id = $1`, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.SESS.Error("session load failed",
				slog.String("event", "store.get"),
				slog.String("driver", "postgres"),
				slog.Int64("user_id", id),
				slog.String("err", err.Error()),
			)
		}
		return UserSession{}, false
	}
	s := UserSession{
		Step:      Step(row.Step),
		Keys:      make(map[Kind]string),
		APIsReady: row.APIsReady,
	}
	if len(row.Keys) > 0 {
		if err := json.Unmarshal(row.Keys, &s.Keys); err != nil {
			logger.SESS.Warn("malformed api_keys document",
				slog.String("event", "store.get"),
				slog.Int64("user_id", id),
				slog.String("err", err.Error()),
			)
			s.Keys = make(map[Kind]string)
		}
	}
	return s, true
}

// Put upserts the session for id.
func (p *PGStore) Put(id int64, s UserSession) error {
	keys, err := json.Marshal(s.Keys)
	if err != nil {
		return fmt.Errorf("session: marshal keys: %w", err)
	}
	_, err = p.db.Exec(`
		INSERT INTO user_sessions (user_id, step, api_keys, apis_ready, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id)
		DO UPDATE SET step = EXCLUDED.step, api_keys = EXCLUDED.api_keys,
		              apis_ready = EXCLUDED.apis_ready, updated_at = now()`,
		id, string(s.Step), keys, s.APIsReady,
	)
	if err != nil {
		return fmt.Errorf("session: upsert user %d: %w", id, err)
	}
	return nil
}

// Count returns the number of known users.
func (p *PGStore) Count() (int, error) {
	var n int
	if err := p.db.Get(&n, `SELECT COUNT(*) FROM user_sessions`); err != nil {
		return 0, fmt.Errorf("session: count: %w", err)
	}
	return n, nil
}

// Close releases the underlying connection pool.
func (p *PGStore) Close() error {
	return p.db.Close()
}

// connect opens the database connection, configures the pool, and verifies connectivity.
func connect(cfg coreconfig.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	sqlxDB, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	took := time.Since(start)
	if err != nil {
		logger.DB.Error("db connect failed",
			slog.String("event", "db.connect"),
			slog.String("driver", "postgres"),
			slog.String("host", cfg.Host),
			slog.String("port", cfg.Port),
			slog.String("db", cfg.Name),
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	sqlxDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlxDB.SetMaxIdleConns(cfg.MaxConnections)

	logger.DB.Info("db connected",
		slog.String("event", "db.connect"),
		slog.String("driver", "postgres"),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Duration("duration", logger.RoundMS(took)),
	)

	return sqlxDB, nil
}

// waitForPostgres tries to connect to the DB until it is ready or timeout is reached.
func waitForPostgres(dsn string, timeout time.Duration) error {
	start := time.Now()
	var lastErr error
	for {
		db, err := sql.Open("postgres", dsn)
		if err == nil {
			if err = db.Ping(); err == nil {
				_ = db.Close()
				return nil
			}
			_ = db.Close()
		}
		lastErr = err
		if time.Since(start) > timeout {
			return fmt.Errorf("timeout reached waiting for database: %w", lastErr)
		}
		time.Sleep(2 * time.Second)
	}
}

// runMigrations applies all up migrations from the migrations directory.
func runMigrations(cfg coreconfig.DatabaseConfig) error {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
	)
	if err := waitForPostgres(dsn, 30*time.Second); err != nil {
		logger.MIG.Error("db not ready",
			slog.String("event", "db.migrate"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("database not ready: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	migrationsPath := filepath.Join(cwd, "migrations")
	sourceURL := "file://" + migrationsPath

	files := listMigrationFiles(migrationsPath)
	preview, truncated := logger.SummarizeStrings(files, 6)
	args := []any{
		slog.String("event", "resolve"),
		slog.String("path", migrationsPath),
		slog.Int("files_total", len(files)),
	}
	if preview != "" {
		args = append(args, slog.String("files_preview", preview))
	}
	if truncated {
		args = append(args, slog.Bool("files_truncated", true))
	}
	logger.MIG.Debug("migrations resolved", args...)

	m, err := migrate.New(sourceURL, dsn)
	if err != nil {
		logger.MIG.Error("init failed",
			slog.String("event", "db.migrate"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	fromVer, _, _ := m.Version()

	start := time.Now()
	upErr := m.Up()
	took := time.Since(start)

	switch upErr {
	case nil:
	case migrate.ErrNoChange:
		logger.MIG.Info("migrations summary",
			slog.String("event", "summary"),
			slog.Uint64("from_ver", uint64(fromVer)),
			slog.Uint64("to_ver", uint64(fromVer)),
			slog.Int("files", 0),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return nil
	default:
		logger.MIG.Error("migration failed",
			slog.String("event", "apply"),
			slog.String("err", upErr.Error()),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	toVer, _, _ := m.Version()

	logger.MIG.Info("migrations summary",
		slog.String("event", "summary"),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Int("files", len(files)),
		slog.Duration("duration", logger.RoundMS(took)),
	)

	return nil
}

func listMigrationFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".up.sql") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
