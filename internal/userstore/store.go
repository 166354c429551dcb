// Package userstore keeps subscribed users and their preferences in SQLite.
package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"fxcalsync/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	email TEXT PRIMARY KEY,
	refresh_token TEXT NOT NULL,
	impact_pref TEXT,
	currencies_pref TEXT,
	last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// ErrNotFound is returned when no user has the requested identity.
var ErrNotFound = errors.New("user not found")

// Defaults given to users who sign up without choosing preferences.
var (
	DefaultImpacts    = models.NewImpactSet(models.ImpactHigh)
	DefaultCurrencies = models.NewCurrencySet("USD", "EUR", "GBP")
)

type userRow struct {
	Email          string         `db:"email"`
	RefreshToken   string         `db:"refresh_token"`
	ImpactPref     sql.NullString `db:"impact_pref"`
	CurrenciesPref sql.NullString `db:"currencies_pref"`
	LastUpdated    sql.NullTime   `db:"last_updated"`
}

func (r userRow) toModel() models.UserPreference {
	return models.UserPreference{
		Identity:     r.Email,
		RefreshToken: r.RefreshToken,
		Impacts:      DecodeImpacts(r.ImpactPref.String),
		Currencies:   DecodeCurrencies(r.CurrenciesPref.String),
	}
}

// Store is the SQLite backed user directory.
type Store struct {
	db *sqlx.DB
}

// New wraps an open database. The schema is not touched.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the database at path and initialises the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection avoids "database is locked" errors with SQLite.
	db.SetMaxOpenConns(1)

	s := New(db)
	if err := s.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InitSchema creates the users table if it does not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialise schema: %w", err)
	}
	return nil
}

// ListUsers returns every subscribed user ordered by email.
func (s *Store) ListUsers(ctx context.Context) ([]models.UserPreference, error) {
	var rows []userRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT email, refresh_token, impact_pref, currencies_pref, last_updated FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users := make([]models.UserPreference, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toModel())
	}
	return users, nil
}

// Get returns the user with the given email.
func (s *Store) Get(ctx context.Context, email string) (models.UserPreference, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row,
		`SELECT email, refresh_token, impact_pref, currencies_pref, last_updated FROM users WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserPreference{}, ErrNotFound
	}
	if err != nil {
		return models.UserPreference{}, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toModel(), nil
}

// Upsert inserts the user or updates an existing one. An empty refresh token keeps
// the stored one, since Google only issues a new refresh token on first consent.
func (s *Store) Upsert(ctx context.Context, user models.UserPreference) error {
	if user.Identity == "" {
		return errors.New("user identity is empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, refresh_token, impact_pref, currencies_pref, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			refresh_token = CASE WHEN excluded.refresh_token != '' THEN excluded.refresh_token ELSE users.refresh_token END,
			impact_pref = excluded.impact_pref,
			currencies_pref = excluded.currencies_pref,
			last_updated = excluded.last_updated
	`, user.Identity, user.RefreshToken, EncodeImpacts(user.Impacts), EncodeCurrencies(user.Currencies), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// Delete removes the user with the given email.
func (s *Store) Delete(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE email = ?`, email)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// EncodeImpacts stores a set as a comma separated list, e.g. "High,Medium".
func EncodeImpacts(set models.ImpactSet) string {
	values := set.Values()
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}

// DecodeImpacts parses a comma separated list. Unknown values are ignored.
func DecodeImpacts(csv string) models.ImpactSet {
	set := models.NewImpactSet()
	for _, part := range strings.Split(csv, ",") {
		if impact, ok := models.ParseImpact(part); ok {
			set[impact] = struct{}{}
		}
	}
	return set
}

func EncodeCurrencies(set models.CurrencySet) string {
	return strings.Join(set.Values(), ",")
}

func DecodeCurrencies(csv string) models.CurrencySet {
	return models.NewCurrencySet(strings.Split(csv, ",")...)
}
