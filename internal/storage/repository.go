// Package storage is the SQLite persistence layer. All loosely-typed
// column values (0/1 booleans, empty-string currencies, NULL amounts)
// are coerced into the strict core types here, at the read boundary,
// so the aggregator and handlers never see raw database shapes.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"invoiced/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist or belongs to a
// different user. Handlers map it to 404.
var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseStamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

func encodeCC(cc []string) string {
	if len(cc) == 0 {
		return "[]"
	}
	b, err := json.Marshal(cc)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeCC(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var cc []string
	if err := json.Unmarshal([]byte(s), &cc); err != nil {
		return nil
	}
	return cc
}

// CreateClient inserts a client, assigning a fresh ID.
func (r *SQLiteRepository) CreateClient(ctx context.Context, userID string, c core.Client) (core.Client, error) {
	c.ID = uuid.NewString()
	now := nowStamp()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clients (id, user_id, name, currency, email, cc, require_timesheet, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, userID, c.Name, c.Currency, c.Email, encodeCC(c.CC), boolToInt(c.RequireTimesheet), now, now)
	if err != nil {
		return core.Client{}, fmt.Errorf("insert client: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) GetClient(ctx context.Context, userID, id string) (core.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, currency, email, cc, require_timesheet
		 FROM clients WHERE id = ? AND user_id = ?`, id, userID)
	return scanClient(row)
}

func (r *SQLiteRepository) ListClients(ctx context.Context, userID string) ([]core.Client, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, currency, email, cc, require_timesheet
		 FROM clients WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	clients := []core.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *SQLiteRepository) UpdateClient(ctx context.Context, userID string, c core.Client) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE clients SET name = ?, currency = ?, email = ?, cc = ?, require_timesheet = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		c.Name, c.Currency, c.Email, encodeCC(c.CC), boolToInt(c.RequireTimesheet), nowStamp(), c.ID, userID)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) DeleteClient(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM clients WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (core.Client, error) {
	var c core.Client
	var cc string
	var requireTimesheet int
	err := row.Scan(&c.ID, &c.Name, &c.Currency, &c.Email, &cc, &requireTimesheet)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Client{}, ErrNotFound
	}
	if err != nil {
		return core.Client{}, fmt.Errorf("scan client: %w", err)
	}
	if c.Currency == "" {
		c.Currency = core.CurrencyEUR
	}
	c.CC = decodeCC(cc)
	c.RequireTimesheet = requireTimesheet != 0
	return c, nil
}

// GetConversionRate returns the stored GBP→EUR rate setting, or "" when
// the user has never set one. Parsing and defaulting happen in core.
func (r *SQLiteRepository) GetConversionRate(ctx context.Context, userID string) (string, error) {
	var rate string
	err := r.db.QueryRowContext(ctx,
		`SELECT gbp_to_eur_rate FROM settings WHERE user_id = ?`, userID).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get conversion rate: %w", err)
	}
	return rate, nil
}

func (r *SQLiteRepository) SetConversionRate(ctx context.Context, userID, rate string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (user_id, gbp_to_eur_rate, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET gbp_to_eur_rate = excluded.gbp_to_eur_rate, updated_at = excluded.updated_at`,
		userID, rate, nowStamp())
	if err != nil {
		return fmt.Errorf("set conversion rate: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetEmailAccount(ctx context.Context, userID string) (core.EmailAccount, error) {
	var a core.EmailAccount
	err := r.db.QueryRowContext(ctx,
		`SELECT id, kind, address, smtp_host, smtp_port, smtp_username, smtp_password, token_file
		 FROM email_accounts WHERE user_id = ?`, userID).
		Scan(&a.ID, &a.Kind, &a.Address, &a.SMTPHost, &a.SMTPPort, &a.SMTPUsername, &a.SMTPPassword, &a.TokenFile)
	if errors.Is(err, sql.ErrNoRows) {
		return core.EmailAccount{}, ErrNotFound
	}
	if err != nil {
		return core.EmailAccount{}, fmt.Errorf("get email account: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) UpsertEmailAccount(ctx context.Context, userID string, a core.EmailAccount) (core.EmailAccount, error) {
	now := nowStamp()
	existing, err := r.GetEmailAccount(ctx, userID)
	switch {
	case err == nil:
		a.ID = existing.ID
		_, err = r.db.ExecContext(ctx,
			`UPDATE email_accounts SET kind = ?, address = ?, smtp_host = ?, smtp_port = ?,
			        smtp_username = ?, smtp_password = ?, token_file = ?, updated_at = ?
			 WHERE user_id = ?`,
			a.Kind, a.Address, a.SMTPHost, a.SMTPPort, a.SMTPUsername, a.SMTPPassword, a.TokenFile, now, userID)
		if err != nil {
			return core.EmailAccount{}, fmt.Errorf("update email account: %w", err)
		}
	case errors.Is(err, ErrNotFound):
		a.ID = uuid.NewString()
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO email_accounts (id, user_id, kind, address, smtp_host, smtp_port, smtp_username, smtp_password, token_file, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, userID, a.Kind, a.Address, a.SMTPHost, a.SMTPPort, a.SMTPUsername, a.SMTPPassword, a.TokenFile, now, now)
		if err != nil {
			return core.EmailAccount{}, fmt.Errorf("insert email account: %w", err)
		}
	default:
		return core.EmailAccount{}, err
	}
	return a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
