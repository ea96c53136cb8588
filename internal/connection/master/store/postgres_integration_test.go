//go:build integration

package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"connection/internal/connection/master/store"
	"connection/internal/connection/models"
	"connection/pkg/platform/sentinel"
	"connection/pkg/testutil/containers"
)

type PostgresMasterStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresMasterStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresMasterStoreSuite))
}

func (s *PostgresMasterStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.Pool, store.WithCursorKeepAlive(30*time.Second))
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresMasterStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "connection_master"))
}

func record(registryID, personID, dbc string) *models.Record {
	return &models.Record{
		RegistryID:         registryID,
		PersonID:           personID,
		FirstName:          "Jo",
		LastName:           "Patel",
		SubmissionDate:     models.DatePtr(2024, 5, 1),
		DesignatedBodyCode: dbc,
		UpdatedAt:          time.Now().UTC(),
	}
}

func (s *PostgresMasterStoreSuite) TestSaveUpsertsByNaturalKey() {
	ctx := context.Background()

	rec := record("3000001", "41", "1-AIIDR8")
	s.Require().NoError(s.store.Save(ctx, rec))
	s.NotZero(rec.ID)
	firstID := rec.ID

	again := record("3000001", "41", "")
	again.ExceptionReason = models.StringPtr("manual")
	s.Require().NoError(s.store.Save(ctx, again))
	s.Equal(firstID, again.ID)

	found, err := s.store.FindByKey(ctx, models.NewNaturalKey("3000001", "41"))
	s.Require().NoError(err)
	s.Equal(firstID, found.ID)
	s.Empty(found.DesignatedBodyCode)
	s.Require().NotNil(found.ExceptionReason)
	s.Equal("manual", *found.ExceptionReason)
	s.Equal(*models.DatePtr(2024, 5, 1), *found.SubmissionDate)

	count, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}

func (s *PostgresMasterStoreSuite) TestSaveRejectsEmptyKey() {
	err := s.store.Save(context.Background(), record(" ", "", ""))
	s.ErrorIs(err, sentinel.ErrInvalidKey)
}

func (s *PostgresMasterStoreSuite) TestFindByKeyNotFound() {
	_, err := s.store.FindByKey(context.Background(), models.NewNaturalKey("missing", ""))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresMasterStoreSuite) TestFindByRegistryIDReturnsEveryMatch() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, record("3000002", "52", "1-AIIDR8")))
	s.Require().NoError(s.store.Save(ctx, record("3000002", "51", "1-AIIDR8")))
	s.Require().NoError(s.store.Save(ctx, record("3000003", "53", "1-AIIDR8")))

	found, err := s.store.FindByRegistryID(ctx, "3000002")
	s.Require().NoError(err)
	s.Require().Len(found, 2)
	s.Equal("51", found[0].PersonID)
	s.Equal("52", found[1].PersonID)
}

func (s *PostgresMasterStoreSuite) TestCursorStreamsAllRecordsInBatches() {
	ctx := context.Background()
	for i := range 5 {
		s.Require().NoError(s.store.Save(ctx, record(fmt.Sprintf("40000%02d", i), "", "1-AIIDR8")))
	}

	cursor, err := s.store.OpenCursor(ctx, 2)
	s.Require().NoError(err)
	defer func() { s.NoError(cursor.Close(ctx)) }()

	var (
		sizes []int
		seen  = map[string]bool{}
	)
	for {
		batch, err := cursor.Next(ctx)
		s.Require().NoError(err)
		if len(batch) == 0 {
			break
		}
		sizes = append(sizes, len(batch))
		for _, rec := range batch {
			seen[rec.RegistryID] = true
		}
	}

	s.Equal([]int{2, 2, 1}, sizes)
	s.Len(seen, 5)
}

func (s *PostgresMasterStoreSuite) TestCursorCloseIsIdempotent() {
	ctx := context.Background()
	cursor, err := s.store.OpenCursor(ctx, 10)
	s.Require().NoError(err)

	s.NoError(cursor.Close(ctx))
	s.NoError(cursor.Close(ctx))
}
