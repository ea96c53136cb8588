package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"connection/internal/connection/models"
	"connection/pkg/platform/sentinel"
)

// Store invariants (natural-key uniqueness, id preservation, paging) are
// validated here because every view relies on them.
type MemoryStoreSuite struct {
	suite.Suite
	store *Memory
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory(models.ViewConnected)
	s.ctx = context.Background()
}

func projection(registryID, personID, lastName string) models.Projection {
	return models.Projection{
		RegistryID:         registryID,
		PersonID:           personID,
		FirstName:          "Alex",
		LastName:           lastName,
		DesignatedBodyCode: "1-AIIDR8",
		ConnectionStatus:   models.ConnectionStatusYes,
	}
}

func (s *MemoryStoreSuite) TestUpsert() {
	s.Run("insert assigns an id and the store view", func() {
		s.Require().NoError(s.store.Upsert(s.ctx, projection("1000001", "1", "Smith")))

		found, err := s.store.FindByKey(s.ctx, models.NewNaturalKey("1000001", "1"))
		s.Require().NoError(err)
		s.NotZero(found.ID)
		s.Equal(models.ViewConnected, found.View)
	})

	s.Run("repeated upsert overwrites in place and keeps the id", func() {
		key := models.NewNaturalKey("1000002", "2")
		s.Require().NoError(s.store.Upsert(s.ctx, projection("1000002", "2", "Jones")))
		first, err := s.store.FindByKey(s.ctx, key)
		s.Require().NoError(err)

		updated := projection("1000002", "2", "Jones-Brown")
		s.Require().NoError(s.store.Upsert(s.ctx, updated))
		s.Require().NoError(s.store.Upsert(s.ctx, updated))

		second, err := s.store.FindByKey(s.ctx, key)
		s.Require().NoError(err)
		s.Equal(first.ID, second.ID)
		s.Equal("Jones-Brown", second.LastName)
		s.Equal(2, s.store.Len())
	})

	s.Run("rejects a key with no identity", func() {
		err := s.store.Upsert(s.ctx, projection("", "", "Nobody"))
		s.ErrorIs(err, sentinel.ErrInvalidKey)
	})

	s.Run("registry-only and full keys are distinct rows", func() {
		s.Require().NoError(s.store.Upsert(s.ctx, projection("1000003", "", "Solo")))
		s.Require().NoError(s.store.Upsert(s.ctx, projection("1000003", "3", "Solo")))
		s.Equal(4, s.store.Len())
	})
}

func (s *MemoryStoreSuite) TestDeleteByKey() {
	s.Require().NoError(s.store.Upsert(s.ctx, projection("2000001", "1", "Gone")))

	s.Require().NoError(s.store.DeleteByKey(s.ctx, models.NewNaturalKey("2000001", "1")))
	_, err := s.store.FindByKey(s.ctx, models.NewNaturalKey("2000001", "1"))
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Run("absent key is a no-op", func() {
		s.NoError(s.store.DeleteByKey(s.ctx, models.NewNaturalKey("missing", "")))
	})
}

func (s *MemoryStoreSuite) TestSearch() {
	for i := 0; i < 25; i++ {
		p := projection(fmt.Sprintf("30000%02d", i), fmt.Sprint(i), fmt.Sprintf("Surname%02d", i))
		p.SubmissionDate = models.DatePtr(2025, time.January, i+1)
		if i%5 == 0 {
			p.DesignatedBodyCode = "1-AIIDWA"
		}
		s.Require().NoError(s.store.Upsert(s.ctx, p))
	}

	s.Run("pages with totals", func() {
		page, err := s.store.Search(s.ctx, models.Criteria{PageSize: 10, Page: 2})
		s.Require().NoError(err)
		s.Equal(int64(25), page.TotalResults)
		s.Equal(3, page.TotalPages)
		s.Len(page.Records, 5)
	})

	s.Run("default sort is submission date descending", func() {
		page, err := s.store.Search(s.ctx, models.Criteria{PageSize: 1})
		s.Require().NoError(err)
		s.Equal("Surname24", page.Records[0].LastName)
	})

	s.Run("free text matches name and identifiers", func() {
		page, err := s.store.Search(s.ctx, models.Criteria{FreeText: "surname07"})
		s.Require().NoError(err)
		s.Equal(int64(1), page.TotalResults)

		page, err = s.store.Search(s.ctx, models.Criteria{FreeText: "3000012"})
		s.Require().NoError(err)
		s.Equal(int64(1), page.TotalResults)
	})

	s.Run("designated body filter", func() {
		page, err := s.store.Search(s.ctx, models.Criteria{DesignatedBodyCodes: []string{"1-aiidwa"}})
		s.Require().NoError(err)
		s.Equal(int64(5), page.TotalResults)
	})

	s.Run("submission date range is inclusive", func() {
		page, err := s.store.Search(s.ctx, models.Criteria{
			SubmissionFrom: models.DatePtr(2025, time.January, 3),
			SubmissionTo:   models.DatePtr(2025, time.January, 5),
			SortField:      models.SortSubmissionDate,
			SortOrder:      models.SortAsc,
		})
		s.Require().NoError(err)
		s.Require().Len(page.Records, 3)
		s.Equal("Surname02", page.Records[0].LastName)
	})

	s.Run("page past the end is empty", func() {
		page, err := s.store.Search(s.ctx, models.Criteria{Page: 99})
		s.Require().NoError(err)
		s.Empty(page.Records)
		s.Equal(int64(25), page.TotalResults)
	})
}

func (s *MemoryStoreSuite) TestRecreate() {
	s.Require().NoError(s.store.Upsert(s.ctx, projection("4000001", "1", "Wiped")))
	s.Require().NoError(s.store.Recreate(s.ctx))
	s.Equal(0, s.store.Len())

	s.Require().NoError(s.store.Upsert(s.ctx, projection("4000001", "1", "Back")))
	s.Equal(1, s.store.Len())
}
