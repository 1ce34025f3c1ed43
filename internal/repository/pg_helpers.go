package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// mapPgError translates driver errors into the package sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

// jsonb encodes nested values for JSONB columns; nil slices are stored as empty arrays.
func jsonb(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return []byte("[]"), nil
	}
	return raw, nil
}

func fromJSONB(raw []byte, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func expectOne(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NewPostgresStore wires every repository to pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Changes:    NewChangeRequestRepository(pool),
		Ledger:     NewApprovalLedgerRepository(pool),
		Matrices:   NewRiskMatrixRepository(pool),
		Categories: NewCategoryRepository(pool),
		Workflows:  NewWorkflowRepository(pool),
		Ping:       pool.Ping,
	}
}
