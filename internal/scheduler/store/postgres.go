package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"registrum/internal/scheduler/models"
	id "registrum/pkg/domain"
	"registrum/pkg/platform/sentinel"
)

// Schema is the DDL for the verification schedule table.
const Schema = `
CREATE TABLE IF NOT EXISTS verification_schedules (
	subject_id           TEXT PRIMARY KEY,
	last_verified_at     TIMESTAMPTZ NOT NULL,
	next_due_at          TIMESTAMPTZ NOT NULL,
	consecutive_failures INT NOT NULL DEFAULT 0,
	escalated            BOOLEAN NOT NULL DEFAULT FALSE,
	escalated_at         TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS verification_schedules_due ON verification_schedules (next_due_at);
`

const uniqueViolation = "23505"

// PostgresStore persists verification schedules in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, schedule *models.Schedule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_schedules
			(subject_id, last_verified_at, next_due_at, consecutive_failures,
			 escalated, escalated_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		schedule.SubjectID.String(), schedule.LastVerifiedAt, schedule.NextDueAt,
		schedule.ConsecutiveFailures, schedule.Escalated, schedule.EscalatedAt,
		schedule.CreatedAt, schedule.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("schedule for %s already exists: %w", schedule.SubjectID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, subject id.NationalID) (*models.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT subject_id, last_verified_at, next_due_at, consecutive_failures,
		       escalated, escalated_at, created_at, updated_at
		FROM verification_schedules WHERE subject_id = $1`,
		subject.String(),
	)
	return scanSchedule(row)
}

func (s *PostgresStore) Update(ctx context.Context, schedule *models.Schedule) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE verification_schedules SET
			last_verified_at = $2, next_due_at = $3, consecutive_failures = $4,
			escalated = $5, escalated_at = $6, updated_at = $7
		WHERE subject_id = $1`,
		schedule.SubjectID.String(), schedule.LastVerifiedAt, schedule.NextDueAt,
		schedule.ConsecutiveFailures, schedule.Escalated, schedule.EscalatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, subject id.NationalID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM verification_schedules WHERE subject_id = $1`, subject.String())
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDueBy(ctx context.Context, deadline time.Time) ([]*models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, last_verified_at, next_due_at, consecutive_failures,
		       escalated, escalated_at, created_at, updated_at
		FROM verification_schedules
		WHERE next_due_at <= $1
		ORDER BY next_due_at`,
		deadline,
	)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	var schedule models.Schedule
	var subject string
	var escalatedAt sql.NullTime
	err := row.Scan(
		&subject, &schedule.LastVerifiedAt, &schedule.NextDueAt,
		&schedule.ConsecutiveFailures, &schedule.Escalated, &escalatedAt,
		&schedule.CreatedAt, &schedule.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	schedule.SubjectID = id.NationalID(subject)
	if escalatedAt.Valid {
		schedule.EscalatedAt = &escalatedAt.Time
	}
	return &schedule, nil
}
