package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"projectpreview/internal/tokens"
)

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS tokens (
		token TEXT PRIMARY KEY,
		rate_limit INTEGER NOT NULL DEFAULT 60,
		scope JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		comment TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tokens_created_at ON tokens (created_at)`,
}

// VerifySchema creates the tokens table when it does not exist yet.
func VerifySchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ensureSchema(ctx, db)
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure tokens schema: %w", err)
		}
	}
	return nil
}

type TokenRepository struct {
	DB  *DB
	DSN string
}

func NewTokenRepository(db *DB, dsn string) *TokenRepository {
	return &TokenRepository{DB: db, DSN: dsn}
}

// LoadTokens reads the whole token table. A NULL scope means unrestricted.
func (r *TokenRepository) LoadTokens(ctx context.Context) (map[string]tokens.Entry, error) {
	db, err := r.DB.Get(r.DSN)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := ensureSchema(ctx, db); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT token, rate_limit, scope FROM tokens`)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	out := make(map[string]tokens.Entry)
	for rows.Next() {
		var (
			token string
			limit int
			raw   []byte
		)
		if err := rows.Scan(&token, &limit, &raw); err != nil {
			return nil, err
		}
		var scope tokens.Scope
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &scope); err != nil {
				return nil, fmt.Errorf("token scope: %w", err)
			}
		}
		out[token] = tokens.Entry{RateLimit: limit, Scope: scope}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
