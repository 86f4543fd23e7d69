package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"formintake/config"
	"formintake/core/utils"

	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// NewDB opens the configured database and applies pool settings.
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store: config is nil")
	}
	driver := "pgx"
	dsn := strings.TrimSpace(cfg.DBURL)
	if cfg.IsSQLite() {
		driver = "sqlite"
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if cfg.IsSQLite() {
		// a single writer keeps sqlite from returning SQLITE_BUSY mid-transaction
		db.SetMaxOpenConns(1)
	} else {
		if cfg.DB.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
		}
		if cfg.DB.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
		}
		if cfg.DB.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
		}
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", driver, err)
	}
	if logger != nil {
		logger.Printf("database connected driver=%s", driver)
	}
	return db, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqlitePragmas
	}
	return dsn + "?" + sqlitePragmas
}

func isPostgresDB(db *sql.DB) bool {
	if db == nil {
		return false
	}
	_, ok := db.Driver().(*stdlib.Driver)
	return ok
}

// rebind rewrites ? placeholders to $n for postgres.
func rebind(postgres bool, query string) string {
	if !postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '\'' {
			inQuote = !inQuote
		}
		if c == '?' && !inQuote {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// boundExec applies rebind to every statement before it reaches the driver.
type boundExec struct {
	inner    execer
	postgres bool
}

func (b boundExec) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return b.inner.ExecContext(ctx, rebind(b.postgres, query), args...)
}

func (b boundExec) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return b.inner.QueryContext(ctx, rebind(b.postgres, query), args...)
}

func (b boundExec) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return b.inner.QueryRowContext(ctx, rebind(b.postgres, query), args...)
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	val := v.String
	return &val
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	val := v.Float64
	return &val
}
