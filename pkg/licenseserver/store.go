package licenseserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/menta2k/circle-snip/pkg/license"
)

// License statuses
const (
	StatusActive        = "active"
	StatusExpired       = "expired"
	StatusPaymentFailed = "payment_failed"
)

// Schema creates the entitlement tables. Subscriptions are recorded on their
// own because subscription events may arrive before the checkout that links
// them to a client.
const Schema = `
CREATE TABLE IF NOT EXISTS licenses (
	client_id          TEXT PRIMARY KEY,
	type               TEXT NOT NULL,
	email              TEXT NOT NULL DEFAULT '',
	subscription_id    TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	current_period_end INTEGER NOT NULL DEFAULT 0,
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_licenses_subscription ON licenses(subscription_id);

CREATE TABLE IF NOT EXISTS subscriptions (
	subscription_id    TEXT PRIMARY KEY,
	status             TEXT NOT NULL,
	current_period_end INTEGER NOT NULL DEFAULT 0,
	updated_at         INTEGER NOT NULL
);
`

// License is one persisted entitlement record
type License struct {
	ClientID         string
	Type             license.Type
	Email            string
	SubscriptionID   string
	Status           string
	CurrentPeriodEnd int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Subscription is the latest known state of a payment-provider subscription
type Subscription struct {
	ID               string
	Status           string
	CurrentPeriodEnd int64
}

// Store persists licenses in SQLite
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path with WAL, busy timeout and
// foreign keys enabled, and applies Schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// One connection keeps per-connection pragmas in force and serializes writes
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an open database and applies Schema
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the license for clientID, or nil when there is none
func (s *Store) Get(ctx context.Context, clientID string) (*License, error) {
	var l License
	var typ string
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT client_id, type, email, subscription_id, status, current_period_end, created_at, updated_at
		FROM licenses WHERE client_id = ?`, clientID).
		Scan(&l.ClientID, &typ, &l.Email, &l.SubscriptionID, &l.Status, &l.CurrentPeriodEnd, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get license: %w", err)
	}
	l.Type = license.Type(typ)
	l.CreatedAt = time.Unix(created, 0)
	l.UpdatedAt = time.Unix(updated, 0)
	return &l, nil
}

// Upsert inserts or replaces a license, keeping the original creation time
func (s *Store) Upsert(ctx context.Context, l *License) error {
	now := s.now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO licenses (client_id, type, email, subscription_id, status, current_period_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			type = excluded.type,
			email = excluded.email,
			subscription_id = excluded.subscription_id,
			status = excluded.status,
			current_period_end = excluded.current_period_end,
			updated_at = excluded.updated_at`,
		l.ClientID, string(l.Type), l.Email, l.SubscriptionID, l.Status, l.CurrentPeriodEnd, now, now)
	if err != nil {
		return fmt.Errorf("store: upsert license: %w", err)
	}
	return nil
}

// RecordSubscription stores the subscription state and applies it to the
// linked license: active renews the period, canceled or unpaid expires it.
// It reports whether a license was updated.
func (s *Store) RecordSubscription(ctx context.Context, sub Subscription) (bool, error) {
	now := s.now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (subscription_id, status, current_period_end, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(subscription_id) DO UPDATE SET
			status = excluded.status,
			current_period_end = excluded.current_period_end,
			updated_at = excluded.updated_at`,
		sub.ID, sub.Status, sub.CurrentPeriodEnd, now)
	if err != nil {
		return false, fmt.Errorf("store: record subscription: %w", err)
	}

	var res sql.Result
	switch sub.Status {
	case "active":
		res, err = s.db.ExecContext(ctx, `
			UPDATE licenses SET status = ?, current_period_end = ?, updated_at = ?
			WHERE subscription_id = ?`, StatusActive, sub.CurrentPeriodEnd, now, sub.ID)
	case "canceled", "unpaid":
		res, err = s.db.ExecContext(ctx, `
			UPDATE licenses SET status = ?, updated_at = ?
			WHERE subscription_id = ?`, StatusExpired, now, sub.ID)
	default:
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: apply subscription: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetSubscription returns the recorded subscription, or nil
func (s *Store) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	sub := Subscription{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT status, current_period_end FROM subscriptions WHERE subscription_id = ?`, id).
		Scan(&sub.Status, &sub.CurrentPeriodEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get subscription: %w", err)
	}
	return &sub, nil
}

// SetStatusBySubscription sets the status of the license linked to a
// subscription and reports whether one was found
func (s *Store) SetStatusBySubscription(ctx context.Context, subscriptionID, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET status = ?, updated_at = ? WHERE subscription_id = ?`,
		status, s.now().Unix(), subscriptionID)
	if err != nil {
		return false, fmt.Errorf("store: set status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Count returns the number of licenses
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM licenses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}
