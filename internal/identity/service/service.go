package service

import (
	"context"
	"errors"
	"time"

	"registrum/internal/identity/models"
	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
	"registrum/pkg/platform/sentinel"
)

// Store is the persistence boundary the service depends on.
type Store interface {
	Create(ctx context.Context, person *models.Person) error
	Find(ctx context.Context, nationalID id.NationalID) (*models.Person, error)
	Update(ctx context.Context, person *models.Person) error
	ListActivePensioners(ctx context.Context) ([]*models.Person, error)
}

// Service owns person status transitions. All mutations go through explicit
// transition methods; nothing writes person state directly.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Register adds a person to the registry.
func (s *Service) Register(ctx context.Context, person *models.Person) error {
	if person.NationalID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "national id is required")
	}
	now := time.Now()
	person.Status = models.StatusAlive
	person.CreatedAt = now
	person.UpdatedAt = now
	if err := s.store.Create(ctx, person); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(dErrors.CodeConflict, "person already registered", err)
		}
		return dErrors.Wrap(dErrors.CodeInternal, "failed to register person", err)
	}
	return nil
}

// Get returns the person, translating store facts to domain errors.
func (s *Service) Get(ctx context.Context, nationalID id.NationalID) (*models.Person, error) {
	person, err := s.store.Find(ctx, nationalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(dErrors.CodeNotFound, "person not found", err)
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load person", err)
	}
	return person, nil
}

// MarkDeceased transitions a person to deceased. Called when a death record
// finalizes.
func (s *Service) MarkDeceased(ctx context.Context, nationalID id.NationalID) error {
	return s.transition(ctx, nationalID, models.StatusDeceased)
}

// MarkPensionTerminated transitions a deceased person to pension-terminated.
// Called by the effect dispatcher after the pension ledger acknowledges.
func (s *Service) MarkPensionTerminated(ctx context.Context, nationalID id.NationalID) error {
	return s.transition(ctx, nationalID, models.StatusPensionTerminated)
}

func (s *Service) transition(ctx context.Context, nationalID id.NationalID, next models.PersonStatus) error {
	person, err := s.Get(ctx, nationalID)
	if err != nil {
		return err
	}
	if err := person.Transition(next, time.Now()); err != nil {
		return dErrors.Wrap(dErrors.CodeInvalidTransition,
			"cannot transition person from "+string(person.Status)+" to "+string(next), err)
	}
	if err := s.store.Update(ctx, person); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "failed to persist transition", err)
	}
	return nil
}

// FlagInPersonOnly blocks remote verification for the subject until the
// in-person workflow clears it.
func (s *Service) FlagInPersonOnly(ctx context.Context, nationalID id.NationalID) error {
	return s.setInPersonOnly(ctx, nationalID, true)
}

// ClearInPersonFlag is the callback from the external in-person workflow.
func (s *Service) ClearInPersonFlag(ctx context.Context, nationalID id.NationalID) error {
	return s.setInPersonOnly(ctx, nationalID, false)
}

func (s *Service) setInPersonOnly(ctx context.Context, nationalID id.NationalID, flag bool) error {
	person, err := s.Get(ctx, nationalID)
	if err != nil {
		return err
	}
	person.InPersonOnly = flag
	person.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, person); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "failed to persist flag", err)
	}
	return nil
}

// ListPensioners returns all persons with an active pension.
func (s *Service) ListPensioners(ctx context.Context) ([]*models.Person, error) {
	pensioners, err := s.store.ListActivePensioners(ctx)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list pensioners", err)
	}
	return pensioners, nil
}
