//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"connection/internal/connection/models"
	"connection/internal/connection/view/store"
	"connection/pkg/platform/sentinel"
	"connection/pkg/testutil/containers"
)

type PostgresViewStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresViewStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresViewStoreSuite))
}

func (s *PostgresViewStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB, models.ViewConnected, store.TableName(models.ViewConnected))
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresViewStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, store.TableName(models.ViewConnected)))
}

func connected(registryID, personID, last, dbc string, submitted *time.Time) models.Projection {
	return models.Projection{
		RegistryID:         registryID,
		PersonID:           personID,
		FirstName:          "Sam",
		LastName:           last,
		SubmissionDate:     submitted,
		ProgrammeName:      "General Practice",
		DesignatedBodyCode: dbc,
		ConnectionStatus:   models.ConnectionStatusYes,
	}
}

func (s *PostgresViewStoreSuite) TestUpsertPreservesID() {
	ctx := context.Background()
	key := models.NewNaturalKey("2000001", "11")

	s.Require().NoError(s.store.Upsert(ctx, connected("2000001", "11", "Khan", "1-AIIDR8", nil)))
	first, err := s.store.FindByKey(ctx, key)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Upsert(ctx, connected("2000001", "11", "Khan-Lee", "1-AIIDR8", models.DatePtr(2024, 3, 1))))
	second, err := s.store.FindByKey(ctx, key)
	s.Require().NoError(err)

	s.Equal(first.ID, second.ID)
	s.Equal("Khan-Lee", second.LastName)
	s.Equal(models.ViewConnected, second.View)
	s.Require().NotNil(second.SubmissionDate)
	s.Equal(*models.DatePtr(2024, 3, 1), *second.SubmissionDate)
}

func (s *PostgresViewStoreSuite) TestDeleteByKey() {
	ctx := context.Background()
	key := models.NewNaturalKey("2000002", "12")

	s.Require().NoError(s.store.Upsert(ctx, connected("2000002", "12", "Ode", "1-AIIDR8", nil)))
	s.Require().NoError(s.store.DeleteByKey(ctx, key))
	s.Require().NoError(s.store.DeleteByKey(ctx, key))

	_, err := s.store.FindByKey(ctx, key)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresViewStoreSuite) TestSearch() {
	ctx := context.Background()
	s.Require().NoError(s.store.Upsert(ctx, connected("2000010", "21", "Adams", "1-AIIDR8", models.DatePtr(2024, 1, 10))))
	s.Require().NoError(s.store.Upsert(ctx, connected("2000011", "22", "Baker", "1-AIIDQQ", models.DatePtr(2024, 2, 10))))
	s.Require().NoError(s.store.Upsert(ctx, connected("2000012", "23", "Clark", "1-AIIDR8", models.DatePtr(2024, 3, 10))))

	s.Run("pages newest first by default", func() {
		page, err := s.store.Search(ctx, models.Criteria{PageSize: 2})
		s.Require().NoError(err)
		s.Equal(int64(3), page.TotalResults)
		s.Equal(2, page.TotalPages)
		s.Require().Len(page.Records, 2)
		s.Equal("Clark", page.Records[0].LastName)
		s.Equal("Baker", page.Records[1].LastName)
	})

	s.Run("filters by designated body, case-insensitive", func() {
		page, err := s.store.Search(ctx, models.Criteria{
			DesignatedBodyCodes: []string{"1-aiidr8"},
			SortField:           models.SortLastName,
			SortOrder:           models.SortAsc,
		})
		s.Require().NoError(err)
		s.Require().Len(page.Records, 2)
		s.Equal("Adams", page.Records[0].LastName)
		s.Equal("Clark", page.Records[1].LastName)
	})

	s.Run("free text matches registry id", func() {
		page, err := s.store.Search(ctx, models.Criteria{FreeText: "2000011"})
		s.Require().NoError(err)
		s.Require().Len(page.Records, 1)
		s.Equal("Baker", page.Records[0].LastName)
	})

	s.Run("submission date range is inclusive", func() {
		from, to := models.DatePtr(2024, 1, 10), models.DatePtr(2024, 2, 10)
		page, err := s.store.Search(ctx, models.Criteria{SubmissionFrom: from, SubmissionTo: to})
		s.Require().NoError(err)
		s.Equal(int64(2), page.TotalResults)
	})

	s.Run("page past the end is empty", func() {
		page, err := s.store.Search(ctx, models.Criteria{Page: 5, PageSize: 2})
		s.Require().NoError(err)
		s.Empty(page.Records)
		s.Equal(int64(3), page.TotalResults)
	})
}

func (s *PostgresViewStoreSuite) TestRecreateEmptiesTable() {
	ctx := context.Background()
	s.Require().NoError(s.store.Upsert(ctx, connected("2000020", "31", "Dee", "1-AIIDR8", nil)))

	s.Require().NoError(s.store.Recreate(ctx))

	page, err := s.store.Search(ctx, models.Criteria{})
	s.Require().NoError(err)
	s.Empty(page.Records)
	s.Zero(page.TotalResults)
}
