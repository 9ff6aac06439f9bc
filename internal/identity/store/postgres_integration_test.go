//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"registrum/internal/identity/models"
	"registrum/internal/identity/store"
	id "registrum/pkg/domain"
	"registrum/pkg/platform/sentinel"
	"registrum/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T(), store.Schema)
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "persons"))
}

func newTestPerson(nationalID id.NationalID, pensioner bool) *models.Person {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Person{
		NationalID:  nationalID,
		Name:        "Alice Andersen",
		DateOfBirth: time.Date(1950, 6, 15, 0, 0, 0, 0, time.UTC),
		Status:      models.StatusAlive,
		Pension:     models.Pension{Active: pensioner, MonthlyAmountCents: 180000},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTestPerson("1000000001", true)))

	found, err := s.store.Find(ctx, "1000000001")
	s.Require().NoError(err)
	s.Equal("Alice Andersen", found.Name)
	s.Equal(models.StatusAlive, found.Status)
	s.True(found.Pension.Active)
	s.Equal(int64(180000), found.Pension.MonthlyAmountCents)
}

func (s *PostgresStoreSuite) TestDuplicateRegistration() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTestPerson("1000000001", false)))

	err := s.store.Create(ctx, newTestPerson("1000000001", false))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestFindUnknownPerson() {
	_, err := s.store.Find(context.Background(), "9999999999")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateRoundTripsStatusAndFlags() {
	ctx := context.Background()
	person := newTestPerson("1000000001", true)
	s.Require().NoError(s.store.Create(ctx, person))

	person.Status = models.StatusDeceased
	person.InPersonOnly = true
	person.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.Update(ctx, person))

	found, err := s.store.Find(ctx, "1000000001")
	s.Require().NoError(err)
	s.Equal(models.StatusDeceased, found.Status)
	s.True(found.InPersonOnly)
}

func (s *PostgresStoreSuite) TestListActivePensioners() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTestPerson("1000000001", true)))
	s.Require().NoError(s.store.Create(ctx, newTestPerson("1000000002", false)))

	deceased := newTestPerson("1000000003", true)
	deceased.Status = models.StatusDeceased
	s.Require().NoError(s.store.Create(ctx, deceased))

	pensioners, err := s.store.ListActivePensioners(ctx)
	s.Require().NoError(err)
	s.Require().Len(pensioners, 1)
	s.Equal(id.NationalID("1000000001"), pensioners[0].NationalID)
}
