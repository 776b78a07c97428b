package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	perr "querypilot/internal/platform/errors"
)

// PGStore persists accounts in Postgres
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps an existing pool
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const ddlAccounts = `
	CREATE TABLE IF NOT EXISTS accounts (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL DEFAULT '',
		key_hash     TEXT NOT NULL UNIQUE,
		postgres_url TEXT NOT NULL DEFAULT '',
		mongo_url    TEXT NOT NULL DEFAULT '',
		model_mode   TEXT NOT NULL DEFAULT 'platform',
		model_key    TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// EnsureSchema creates the accounts table when missing
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, ddlAccounts); err != nil {
		return perr.FromPostgres(err, "ensure accounts table")
	}
	return nil
}

const accountColumns = `id, name, key_hash, postgres_url, mongo_url, model_mode, model_key, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.KeyHash, &a.PostgresURL, &a.MongoURL,
		&a.ModelMode, &a.ModelKey, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perr.NotFoundf("account not found")
		}
		return nil, perr.FromPostgres(err, "scan account")
	}
	return &a, nil
}

func (s *PGStore) GetByID(ctx context.Context, id string) (*Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *PGStore) GetByKeyHash(ctx context.Context, hash string) (*Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE key_hash = $1`, hash)
	return scanAccount(row)
}

func (s *PGStore) List(ctx context.Context) ([]*Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, perr.FromPostgres(err, "list accounts")
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgres(err, "list accounts")
	}
	return out, nil
}

func (s *PGStore) Create(ctx context.Context, a *Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, name, key_hash, postgres_url, mongo_url, model_mode, model_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Name, a.KeyHash, a.PostgresURL, a.MongoURL, a.ModelMode, a.ModelKey)
	if err != nil {
		if perr.IsDuplicateKey(err) {
			return perr.DuplicateKeyf("account %s already exists", a.ID)
		}
		return perr.FromPostgres(err, "create account")
	}
	return nil
}

func (s *PGStore) Update(ctx context.Context, a *Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET name = $2, key_hash = $3, postgres_url = $4, mongo_url = $5,
		    model_mode = $6, model_key = $7, updated_at = now()
		WHERE id = $1`,
		a.ID, a.Name, a.KeyHash, a.PostgresURL, a.MongoURL, a.ModelMode, a.ModelKey)
	if err != nil {
		return perr.FromPostgres(err, "update account")
	}
	if tag.RowsAffected() == 0 {
		return perr.NotFoundf("account %s not found", a.ID)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return perr.FromPostgres(err, "delete account")
	}
	if tag.RowsAffected() == 0 {
		return perr.NotFoundf("account %s not found", id)
	}
	return nil
}

func (s *PGStore) RotateKey(ctx context.Context, id, newHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET key_hash = $2, updated_at = now() WHERE id = $1`, id, newHash)
	if err != nil {
		if perr.IsDuplicateKey(err) {
			return perr.DuplicateKeyf("project key already in use")
		}
		return perr.FromPostgres(err, "rotate account key")
	}
	if tag.RowsAffected() == 0 {
		return perr.NotFoundf("account %s not found", id)
	}
	return nil
}
