package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"registrum/internal/identity/models"
	id "registrum/pkg/domain"
	"registrum/pkg/platform/sentinel"
)

// Schema is the DDL for the persons table.
const Schema = `
CREATE TABLE IF NOT EXISTS persons (
	national_id           TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	date_of_birth         TIMESTAMPTZ NOT NULL,
	status                TEXT NOT NULL,
	pension_active        BOOLEAN NOT NULL DEFAULT FALSE,
	pension_monthly_cents BIGINT NOT NULL DEFAULT 0,
	in_person_only        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);
`

const uniqueViolation = "23505"

// PostgresStore persists persons in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, person *models.Person) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO persons
			(national_id, name, date_of_birth, status, pension_active,
			 pension_monthly_cents, in_person_only, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		person.NationalID.String(), person.Name, person.DateOfBirth,
		string(person.Status), person.Pension.Active,
		person.Pension.MonthlyAmountCents, person.InPersonOnly,
		person.CreatedAt, person.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("person %s already registered: %w", person.NationalID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, nationalID id.NationalID) (*models.Person, error) {
	row := s.db.QueryRowContext(ctx, selectPersons+` WHERE national_id = $1`, nationalID.String())
	person, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("person %s not found: %w", nationalID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find person: %w", err)
	}
	return person, nil
}

func (s *PostgresStore) Update(ctx context.Context, person *models.Person) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE persons
		SET name = $2, status = $3, pension_active = $4,
		    pension_monthly_cents = $5, in_person_only = $6, updated_at = $7
		WHERE national_id = $1`,
		person.NationalID.String(), person.Name, string(person.Status),
		person.Pension.Active, person.Pension.MonthlyAmountCents,
		person.InPersonOnly, person.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("person %s not found: %w", person.NationalID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListActivePensioners(ctx context.Context) ([]*models.Person, error) {
	rows, err := s.db.QueryContext(ctx,
		selectPersons+` WHERE status = 'alive' AND pension_active ORDER BY national_id`)
	if err != nil {
		return nil, fmt.Errorf("list pensioners: %w", err)
	}
	defer rows.Close()

	var out []*models.Person
	for rows.Next() {
		person, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, person)
	}
	return out, rows.Err()
}

const selectPersons = `
	SELECT national_id, name, date_of_birth, status, pension_active,
	       pension_monthly_cents, in_person_only, created_at, updated_at
	FROM persons`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (*models.Person, error) {
	var (
		person     models.Person
		nationalID string
		status     string
	)
	err := row.Scan(&nationalID, &person.Name, &person.DateOfBirth, &status,
		&person.Pension.Active, &person.Pension.MonthlyAmountCents,
		&person.InPersonOnly, &person.CreatedAt, &person.UpdatedAt)
	if err != nil {
		return nil, err
	}
	person.NationalID = id.NationalID(nationalID)
	person.Status = models.PersonStatus(status)
	return &person, nil
}
