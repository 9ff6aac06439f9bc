package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"registrum/internal/ledger/models"
	id "registrum/pkg/domain"
	"registrum/pkg/platform/sentinel"
)

// Schema is the DDL for the ledger tables. Applied by migrations in
// deployment and by the integration test harness.
const Schema = `
CREATE TABLE IF NOT EXISTS death_records (
	id               UUID PRIMARY KEY,
	subject_id       TEXT NOT NULL,
	reported_by_role TEXT NOT NULL,
	reported_by_id   TEXT NOT NULL,
	date_of_death    TIMESTAMPTZ NOT NULL,
	time_of_death    TEXT NOT NULL DEFAULT '',
	place_of_death   TEXT NOT NULL DEFAULT '',
	cause_of_death   TEXT NOT NULL DEFAULT '',
	certifier_name   TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	suspicious       BOOLEAN NOT NULL DEFAULT FALSE,
	suspicion_reason TEXT NOT NULL DEFAULT '',
	rejected_reason  TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	finalized_at     TIMESTAMPTZ
);

-- One blocking record per subject: rejected records do not block a re-report.
CREATE UNIQUE INDEX IF NOT EXISTS death_records_active_subject
	ON death_records (subject_id) WHERE status <> 'rejected';

CREATE TABLE IF NOT EXISTS death_record_attestations (
	record_id   UUID NOT NULL REFERENCES death_records(id),
	role        TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	entity_name TEXT NOT NULL DEFAULT '',
	attested_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS death_record_attestations_record
	ON death_record_attestations (record_id);
`

const uniqueViolation = "23505"

// PostgresStore persists death records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed death record store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a record and its pre-filled attestations in one transaction.
// The partial unique index on subject_id makes the one-blocking-record
// invariant hold even under concurrent creates.
func (s *PostgresStore) Create(ctx context.Context, record *models.DeathRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create record: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO death_records
			(id, subject_id, reported_by_role, reported_by_id, date_of_death,
			 time_of_death, place_of_death, cause_of_death, certifier_name,
			 status, suspicious, suspicion_reason, rejected_reason,
			 created_at, updated_at, finalized_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		record.ID.String(), record.SubjectID.String(),
		record.ReportedByRole.String(), string(record.ReportedByID),
		record.Details.DateOfDeath, record.Details.TimeOfDeath,
		record.Details.PlaceOfDeath, record.Details.CauseOfDeath,
		record.Details.CertifierName,
		string(record.Status), record.Suspicious, record.SuspicionReason,
		record.RejectedReason, record.CreatedAt, record.UpdatedAt, record.FinalizedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("subject %s already has a blocking record: %w",
				record.SubjectID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert death record: %w", err)
	}

	if err := insertAttestations(ctx, tx, record.ID, record.Attestations); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) FindByID(ctx context.Context, recordID id.RecordID) (*models.DeathRecord, error) {
	record, err := scanRecord(s.db.QueryRowContext(ctx,
		selectRecords+` WHERE id = $1`, recordID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("death record %s not found: %w", recordID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find death record: %w", err)
	}
	if err := s.loadAttestations(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *PostgresStore) FindBySubject(ctx context.Context, subject id.NationalID) ([]*models.DeathRecord, error) {
	return s.query(ctx, selectRecords+` WHERE subject_id = $1 ORDER BY created_at`, subject.String())
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.RecordStatus) ([]*models.DeathRecord, error) {
	return s.query(ctx, selectRecords+` WHERE status = $1 ORDER BY created_at`, string(status))
}

// Update persists lifecycle fields and appends any attestations not yet
// stored. Existing attestation rows are never deleted.
func (s *PostgresStore) Update(ctx context.Context, record *models.DeathRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update record: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE death_records
		SET status = $2, suspicious = $3, suspicion_reason = $4,
		    rejected_reason = $5, updated_at = $6, finalized_at = $7
		WHERE id = $1`,
		record.ID.String(), string(record.Status), record.Suspicious,
		record.SuspicionReason, record.RejectedReason,
		record.UpdatedAt, record.FinalizedAt,
	)
	if err != nil {
		return fmt.Errorf("update death record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update death record: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("death record %s not found: %w", record.ID, sentinel.ErrNotFound)
	}

	var stored int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM death_record_attestations WHERE record_id = $1`,
		record.ID.String()).Scan(&stored); err != nil {
		return fmt.Errorf("count attestations: %w", err)
	}
	if stored < len(record.Attestations) {
		if err := insertAttestations(ctx, tx, record.ID, record.Attestations[stored:]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const selectRecords = `
	SELECT id, subject_id, reported_by_role, reported_by_id, date_of_death,
	       time_of_death, place_of_death, cause_of_death, certifier_name,
	       status, suspicious, suspicion_reason, rejected_reason,
	       created_at, updated_at, finalized_at
	FROM death_records`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.DeathRecord, error) {
	var (
		record      models.DeathRecord
		recordID    string
		subjectID   string
		role        string
		entityID    string
		status      string
		finalizedAt sql.NullTime
	)
	err := row.Scan(&recordID, &subjectID, &role, &entityID,
		&record.Details.DateOfDeath, &record.Details.TimeOfDeath,
		&record.Details.PlaceOfDeath, &record.Details.CauseOfDeath,
		&record.Details.CertifierName,
		&status, &record.Suspicious, &record.SuspicionReason,
		&record.RejectedReason, &record.CreatedAt, &record.UpdatedAt, &finalizedAt)
	if err != nil {
		return nil, err
	}
	rid, err := id.ParseRecordID(recordID)
	if err != nil {
		return nil, fmt.Errorf("stored record id invalid: %w", err)
	}
	record.ID = rid
	record.SubjectID = id.NationalID(subjectID)
	record.ReportedByRole = id.EntityRole(role)
	record.ReportedByID = id.EntityID(entityID)
	record.Status = models.RecordStatus(status)
	if finalizedAt.Valid {
		at := finalizedAt.Time
		record.FinalizedAt = &at
	}
	return &record, nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.DeathRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query death records: %w", err)
	}
	defer rows.Close()

	var out []*models.DeathRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan death record: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate death records: %w", err)
	}
	for _, record := range out {
		if err := s.loadAttestations(ctx, record); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) loadAttestations(ctx context.Context, record *models.DeathRecord) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, entity_id, entity_name, attested_at
		FROM death_record_attestations
		WHERE record_id = $1
		ORDER BY attested_at`, record.ID.String())
	if err != nil {
		return fmt.Errorf("load attestations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a        models.Attestation
			role     string
			entityID string
		)
		if err := rows.Scan(&role, &entityID, &a.EntityName, &a.AttestedAt); err != nil {
			return fmt.Errorf("scan attestation: %w", err)
		}
		a.Role = id.EntityRole(role)
		a.EntityID = id.EntityID(entityID)
		record.Attestations = append(record.Attestations, a)
	}
	return rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAttestations(ctx context.Context, tx execer, recordID id.RecordID, attestations []models.Attestation) error {
	for _, a := range attestations {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO death_record_attestations
				(record_id, role, entity_id, entity_name, attested_at)
			VALUES ($1,$2,$3,$4,$5)`,
			recordID.String(), a.Role.String(), string(a.EntityID), a.EntityName,
			a.AttestedAt.UTC().Truncate(time.Microsecond))
		if err != nil {
			return fmt.Errorf("insert attestation: %w", err)
		}
	}
	return nil
}
