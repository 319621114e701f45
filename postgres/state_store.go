// Package postgres implements the OAuth state store on PostgreSQL.
//
// Consume is a single conditional DELETE ... RETURNING, so two concurrent
// validations of the same nonce resolve with exactly one winner without
// any application-level locking.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	authkit "github.com/atlas-pt/authkit-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the backing table. Records are keyed uniquely by nonce
// and indexed by expiry so the sweep stays cheap.
const Schema = `
CREATE TABLE IF NOT EXISTS oauth_states (
    nonce      TEXT PRIMARY KEY,
    provider   TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS oauth_states_expires_at_idx ON oauth_states (expires_at);
`

// DB is the subset of pgxpool.Pool the store needs; it keeps the store
// testable against a stub connection.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StateStore implements authkit.StateStore on a PostgreSQL pool.
type StateStore struct {
	db DB
}

// compile-time checks
var (
	_ authkit.StateStore = (*StateStore)(nil)
	_ DB                 = (*pgxpool.Pool)(nil)
)

// NewStateStore creates a store over the given connection pool.
func NewStateStore(db DB) *StateStore {
	return &StateStore{db: db}
}

// Insert persists a new state record.
func (s *StateStore) Insert(ctx context.Context, rec authkit.StateRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO oauth_states (nonce, provider, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		rec.Nonce, rec.Provider, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert state: %w", err)
	}
	return nil
}

// Consume deletes and returns the record in one statement, conditional on
// it being unexpired and provider-matched. When nothing is deleted a
// read-only follow-up lookup disambiguates the failure reason.
func (s *StateStore) Consume(ctx context.Context, nonce, provider string, now time.Time) (authkit.StateRecord, error) {
	var rec authkit.StateRecord
	err := s.db.QueryRow(ctx,
		`DELETE FROM oauth_states
		 WHERE nonce = $1 AND expires_at > $2 AND ($3 = '' OR provider = $3)
		 RETURNING nonce, provider, created_at, expires_at`,
		nonce, now, provider,
	).Scan(&rec.Nonce, &rec.Provider, &rec.CreatedAt, &rec.ExpiresAt)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return authkit.StateRecord{}, fmt.Errorf("postgres: consume state: %w", err)
	}

	// Nothing deleted: not found, expired, or bound to another provider.
	var existing authkit.StateRecord
	err = s.db.QueryRow(ctx,
		`SELECT nonce, provider, created_at, expires_at FROM oauth_states WHERE nonce = $1`,
		nonce,
	).Scan(&existing.Nonce, &existing.Provider, &existing.CreatedAt, &existing.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return authkit.StateRecord{}, authkit.ErrStateNotFound
	}
	if err != nil {
		return authkit.StateRecord{}, fmt.Errorf("postgres: lookup state: %w", err)
	}
	if existing.Expired(now) {
		return authkit.StateRecord{}, authkit.ErrStateExpired
	}
	return authkit.StateRecord{}, authkit.ErrStateProviderMismatch
}

// PurgeExpired deletes every record expired at now.
func (s *StateStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM oauth_states WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge states: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
