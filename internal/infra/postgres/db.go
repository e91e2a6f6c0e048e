// Package postgres holds the API token table access.
package postgres

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"projectpreview/internal/config"
)

const defaultPort = 5432

// DSN builds a postgres:// URL from cfg. A Host that already is a URL is
// returned as is.
func DSN(cfg config.PostgresConfig) (string, error) {
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		return cfg.Host, nil
	}
	switch {
	case cfg.Host == "":
		return "", fmt.Errorf("postgres host is empty")
	case cfg.Database == "":
		return "", fmt.Errorf("postgres database is empty")
	case cfg.User == "":
		return "", fmt.Errorf("postgres user is empty")
	}

	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	host := cfg.Host
	switch {
	case strings.HasPrefix(host, "["):
		// [::1] or [::1]:5433
		if !strings.Contains(host, "]:") {
			host = fmt.Sprintf("%s:%d", host, port)
		}
	case strings.Count(host, ":") >= 2:
		host = fmt.Sprintf("[%s]:%d", host, port)
	case !strings.Contains(host, ":"):
		host = fmt.Sprintf("%s:%d", host, port)
	}

	u := &url.URL{Scheme: "postgres", Host: host, Path: "/" + cfg.Database}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	if cfg.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", cfg.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// DB keeps one *sql.DB per DSN and swaps it when the DSN changes.
type DB struct {
	mu  sync.Mutex
	dsn string
	db  *sql.DB
}

func NewDB() *DB {
	return &DB{}
}

// Get returns the pool for dsn. Opening is lazy; connectivity errors surface
// on first use.
func (p *DB) Get(dsn string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil && p.dsn == dsn {
		return p.db, nil
	}
	if p.db != nil {
		_ = p.db.Close()
		p.db, p.dsn = nil, ""
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Small control plane table, read once a minute.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	p.db, p.dsn = db, dsn
	return db, nil
}

func (p *DB) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db, p.dsn = nil, ""
	return err
}
