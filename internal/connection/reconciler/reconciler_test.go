package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"connection/internal/connection/classify"
	"connection/internal/connection/metrics"
	"connection/internal/connection/models"
	"connection/internal/connection/view"
	"connection/internal/connection/view/mocks"
	"connection/internal/connection/view/store"
	"connection/pkg/platform/sentinel"
)

var today = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

type ReconcilerSuite struct {
	suite.Suite
	ctx          context.Context
	connected    *store.Memory
	disconnected *store.Memory
	exception    *store.Memory
	reconciler   *Reconciler
}

func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}

func (s *ReconcilerSuite) SetupTest() {
	s.ctx = context.Background()
	s.connected = store.NewMemory(models.ViewConnected)
	s.disconnected = store.NewMemory(models.ViewDisconnected)
	s.exception = store.NewMemory(models.ViewException)

	set, err := view.NewSet(s.connected, s.disconnected, s.exception)
	s.Require().NoError(err)
	s.reconciler, err = New(set, WithClock(func() time.Time { return today }))
	s.Require().NoError(err)
}

func (s *ReconcilerSuite) membership(key models.NaturalKey) []models.View {
	var in []models.View
	for _, st := range []*store.Memory{s.connected, s.disconnected, s.exception} {
		if _, err := st.FindByKey(s.ctx, key); err == nil {
			in = append(in, st.View())
		}
	}
	return in
}

func (s *ReconcilerSuite) TestNew() {
	_, err := New(nil)
	s.Error(err)
}

func (s *ReconcilerSuite) TestVisitorStoredAsConnectedException() {
	rec := &models.Record{RegistryID: "1000001", PersonID: "1", MembershipType: "Visitor", DesignatedBodyCode: "BODY1"}

	res := s.reconciler.Reconcile(s.ctx, rec)

	s.Equal(models.ViewException, res.View)
	s.Require().NotNil(rec.ExceptionReason)
	s.Equal(classify.ReasonVisitor, *rec.ExceptionReason)

	stored, err := s.exception.FindByKey(s.ctx, rec.Key())
	s.Require().NoError(err)
	s.Equal(models.ConnectionStatusYes, stored.ConnectionStatus)
	s.Equal(classify.ReasonVisitor, stored.ExceptionReason)
	s.Empty(res.Failed())
}

func (s *ReconcilerSuite) TestMovesRecordOutOfPreviousView() {
	rec := &models.Record{
		RegistryID:        "1000002",
		PersonID:          "2",
		MembershipType:    "Substantive",
		MembershipEndDate: models.DatePtr(2025, time.June, 1),
	}
	s.reconciler.Reconcile(s.ctx, rec)
	s.Equal([]models.View{models.ViewException}, s.membership(rec.Key()))

	rec.DesignatedBodyCode = "BODY2"
	rec.MembershipEndDate = models.DatePtr(2026, time.June, 1)
	res := s.reconciler.Reconcile(s.ctx, rec)

	s.Equal(models.ViewConnected, res.View)
	s.Nil(rec.ExceptionReason)
	s.Equal([]models.View{models.ViewConnected}, s.membership(rec.Key()))
}

func (s *ReconcilerSuite) TestExactlyOneView() {
	records := []*models.Record{
		{RegistryID: "2000001", MembershipType: "Visitor"},
		{PersonID: "3", MembershipEndDate: models.DatePtr(2020, time.January, 1)},
		{RegistryID: "2000003", PersonID: "4", DesignatedBodyCode: "BODY1"},
		{RegistryID: "2000004", PersonID: "5"},
	}
	// seed every record into every view to prove eviction
	for _, rec := range records {
		for _, st := range []*store.Memory{s.connected, s.disconnected, s.exception} {
			s.Require().NoError(st.Upsert(s.ctx, models.ProjectFor(st.View(), rec)))
		}
	}

	for _, rec := range records {
		res := s.reconciler.Reconcile(s.ctx, rec)
		s.Equal([]models.View{res.View}, s.membership(rec.Key()))
	}
}

func (s *ReconcilerSuite) TestIdempotent() {
	rec := &models.Record{RegistryID: "3000001", PersonID: "7", DesignatedBodyCode: "BODY1"}

	first := s.reconciler.Reconcile(s.ctx, rec)
	stored, err := s.connected.FindByKey(s.ctx, rec.Key())
	s.Require().NoError(err)

	second := s.reconciler.Reconcile(s.ctx, rec)
	again, err := s.connected.FindByKey(s.ctx, rec.Key())
	s.Require().NoError(err)

	s.Equal(first.View, second.View)
	s.Equal(stored.ID, again.ID)
	s.Equal(1, s.connected.Len())
	s.Equal(0, s.disconnected.Len()+s.exception.Len())
}

// TestFailureIsolation verifies a failing view neither aborts the other
// writes nor escapes Reconcile.
func (s *ReconcilerSuite) TestFailureIsolation() {
	ctrl := gomock.NewController(s.T())
	failing := mocks.NewMockStore(ctrl)
	failing.EXPECT().View().Return(models.ViewConnected).AnyTimes()

	set, err := view.NewSet(failing, s.disconnected, s.exception)
	s.Require().NoError(err)

	reg := prometheus.NewRegistry()
	m := metrics.NewWith(reg)
	r, err := New(set, WithClock(func() time.Time { return today }), WithMetrics(m))
	s.Require().NoError(err)

	rec := &models.Record{RegistryID: "4000001", PersonID: "9", DesignatedBodyCode: "BODY1"}
	s.Require().NoError(s.exception.Upsert(s.ctx, models.ProjectFor(models.ViewException, rec)))

	failing.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(sentinel.ErrUnavailable)

	res := r.Reconcile(s.ctx, rec)

	s.Equal(models.ViewConnected, res.View)
	failed := res.Failed()
	s.Require().Len(failed, 1)
	s.Equal(view.OpUpsert, failed[0].Op)
	s.True(errors.Is(failed[0].Err, sentinel.ErrUnavailable))
	s.Equal(rec.Key(), failed[0].Key)

	_, err = s.exception.FindByKey(s.ctx, rec.Key())
	s.ErrorIs(err, sentinel.ErrNotFound, "eviction from sibling view still ran")
	s.Equal(float64(1), testutil.ToFloat64(m.ViewWriteFailures.WithLabelValues("connected", "upsert")))
}

func (s *ReconcilerSuite) TestDiscrepancyProjector() {
	discrepancies := store.NewMemory(models.ViewDiscrepancy)
	p, err := NewDiscrepancyProjector(discrepancies, nil, nil)
	s.Require().NoError(err)

	rec := &models.Record{RegistryID: "5000001", PersonID: "11", DesignatedBodyCode: "1-AIIDR8", TCSDesignatedBodyCode: "1-AIIDWA"}
	s.True(p.Project(s.ctx, rec).OK())
	s.Equal(1, discrepancies.Len())

	rec.TCSDesignatedBodyCode = "1-AIIDR8"
	o := p.Project(s.ctx, rec)
	s.True(o.OK())
	s.Equal(view.OpDelete, o.Op)
	s.Equal(0, discrepancies.Len())

	s.Run("rejects a non-discrepancy store", func() {
		_, err := NewDiscrepancyProjector(s.connected, nil, nil)
		s.Error(err)
	})
}
