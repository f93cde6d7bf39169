package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "invigil/pkg/domain"
	"invigil/pkg/platform/sentinel"
)

// PostgresStore persists accounts in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE accounts (
//	    id                   UUID PRIMARY KEY,
//	    org_id               UUID NOT NULL,
//	    role                 TEXT NOT NULL,
//	    active               BOOLEAN NOT NULL DEFAULT TRUE,
//	    feature_flags        TEXT[] NOT NULL DEFAULT '{}',
//	    must_change_password BOOLEAN NOT NULL DEFAULT FALSE
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed account store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindByID returns the account or sentinel.ErrNotFound.
func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*Account, error) {
	query := `
		SELECT id, org_id, role, active, feature_flags, must_change_password
		FROM accounts
		WHERE id = $1
	`
	var (
		accountID uuid.UUID
		orgID     uuid.UUID
		account   Account
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(userID)).Scan(
		&accountID,
		&orgID,
		&account.Role,
		&account.Active,
		pq.Array(&account.FeatureFlags),
		&account.MustChangePassword,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	account.ID = id.UserID(accountID)
	account.OrgID = id.OrgID(orgID)
	return &account, nil
}

// SetActive flips the active flag; unknown subjects return ErrNotFound.
func (s *PostgresStore) SetActive(ctx context.Context, userID id.UserID, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET active = $2 WHERE id = $1`,
		uuid.UUID(userID), active,
	)
	if err != nil {
		return fmt.Errorf("set account active: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set account active: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
