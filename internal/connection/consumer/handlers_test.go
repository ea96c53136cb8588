package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"connection/internal/connection/master"
	"connection/internal/connection/models"
	"connection/internal/connection/resync"
	"connection/internal/platform/kafka/consumer"
	"connection/pkg/platform/sentinel"
)

type fakeMerger struct {
	internal    []models.InternalSystemUpdate
	registry    []models.RegistryUpdate
	corrections []models.ManualCorrectionUpdate
	err         error
}

func (f *fakeMerger) MergeFromInternalSystem(_ context.Context, u models.InternalSystemUpdate) (master.MergeResult, error) {
	f.internal = append(f.internal, u)
	return master.MergeResult{Status: master.MergeStatusCreated}, f.err
}

func (f *fakeMerger) MergeFromExternalRegistry(_ context.Context, u models.RegistryUpdate) (master.MergeResult, error) {
	f.registry = append(f.registry, u)
	return master.MergeResult{Status: master.MergeStatusMerged}, f.err
}

func (f *fakeMerger) ApplyManualCorrection(_ context.Context, u models.ManualCorrectionUpdate) (master.MergeResult, error) {
	f.corrections = append(f.corrections, u)
	return master.MergeResult{Status: master.MergeStatusMerged}, f.err
}

type fakeTrigger struct {
	signals []string
	err     error
}

func (f *fakeTrigger) HandleTrigger(_ context.Context, signal string) (resync.Summary, bool, error) {
	f.signals = append(f.signals, signal)
	return resync.Summary{}, signal == resync.DefaultTriggerValue, f.err
}

type HandlersSuite struct {
	suite.Suite
	ctx     context.Context
	merger  *fakeMerger
	trigger *fakeTrigger
	router  *Router
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

func (s *HandlersSuite) SetupTest() {
	s.ctx = context.Background()
	s.merger = &fakeMerger{}
	s.trigger = &fakeTrigger{}
	s.router = NewRouter(nil)
	s.router.Register("internal", NewInternalUpdateHandler(s.merger, nil))
	s.router.Register("registry", NewRegistryUpdateHandler(s.merger, nil))
	s.router.Register("corrections", NewCorrectionHandler(s.merger, nil))
	s.router.Register("resync", NewResyncTriggerHandler(s.trigger, nil))
}

func (s *HandlersSuite) msg(topic, value string) *consumer.Message {
	return &consumer.Message{Topic: topic, Value: []byte(value)}
}

func (s *HandlersSuite) TestInternalUpdateDecoded() {
	payload := `{"gmcReferenceNumber":"8000001","tcsPersonId":"77","programmeName":"Surgery",` +
		`"programmeMembershipType":"Substantive","programmeMembershipEndDate":"2027-07-31T00:00:00Z"}`
	s.Require().NoError(s.router.Handle(s.ctx, s.msg("internal", payload)))

	s.Require().Len(s.merger.internal, 1)
	u := s.merger.internal[0]
	s.Equal("8000001", u.RegistryID)
	s.Equal("77", u.PersonID)
	s.Equal("Surgery", u.ProgrammeName)
	s.Require().NotNil(u.MembershipEndDate)
	s.Equal(time.Date(2027, time.July, 31, 0, 0, 0, 0, time.UTC), u.MembershipEndDate.UTC())
}

func (s *HandlersSuite) TestInternalUpdateWithCalendarDates() {
	payload := `{"gmcReferenceNumber":"8000004","tcsPersonId":"78","programmeName":"Surgery",` +
		`"submissionDate":"2025-01-15","programmeMembershipEndDate":"2027-07-31"}`
	s.Require().NoError(s.router.Handle(s.ctx, s.msg("internal", payload)))

	s.Require().Len(s.merger.internal, 1, "date-only payload must reach the master")
	u := s.merger.internal[0]
	s.Require().NotNil(u.SubmissionDate)
	s.Equal(time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC), *u.SubmissionDate)
	s.Require().NotNil(u.MembershipEndDate)
	s.Equal(time.Date(2027, time.July, 31, 0, 0, 0, 0, time.UTC), *u.MembershipEndDate)
}

func (s *HandlersSuite) TestRegistryAndCorrectionDecoded() {
	s.Require().NoError(s.router.Handle(s.ctx, s.msg("registry",
		`{"gmcReferenceNumber":"8000002","doctorFirstName":"Ada","designatedBodyCode":"BODY1"}`)))
	s.Require().NoError(s.router.Handle(s.ctx, s.msg("corrections",
		`{"gmcId":"8000002","designatedBodyCode":"BODY2","previousDesignatedBodyCode":"BODY1","reason":"moved"}`)))

	s.Require().Len(s.merger.registry, 1)
	s.Equal("BODY1", s.merger.registry[0].DesignatedBodyCode)
	s.Require().Len(s.merger.corrections, 1)
	s.Equal("BODY2", s.merger.corrections[0].NewDesignatedBodyCode)
	s.Equal("moved", s.merger.corrections[0].ReasonCode)
}

func (s *HandlersSuite) TestMalformedPayloadIsCommitted() {
	s.NoError(s.router.Handle(s.ctx, s.msg("internal", `{not json`)))
	s.Empty(s.merger.internal)
}

func (s *HandlersSuite) TestInvalidKeyIsCommitted() {
	s.merger.err = sentinel.ErrInvalidKey
	s.NoError(s.router.Handle(s.ctx, s.msg("internal", `{"programmeName":"Surgery"}`)))
}

func (s *HandlersSuite) TestMasterFailureIsRetried() {
	s.merger.err = errors.New("connection refused")
	err := s.router.Handle(s.ctx, s.msg("registry", `{"gmcReferenceNumber":"8000003"}`))
	s.ErrorIs(err, s.merger.err)
}

func (s *HandlersSuite) TestUnknownTopicIsSkipped() {
	s.NoError(s.router.Handle(s.ctx, s.msg("elsewhere", `{}`)))
}

func (s *HandlersSuite) TestResyncTriggerPayloads() {
	s.NoError(s.router.Handle(s.ctx, s.msg("resync", "resync\n")))
	s.NoError(s.router.Handle(s.ctx, s.msg("resync", `"resync"`)))
	s.NoError(s.router.Handle(s.ctx, s.msg("resync", "rebuild")))
	s.Equal([]string{"resync", "resync", "rebuild"}, s.trigger.signals)
}

func (s *HandlersSuite) TestResyncFailureIsCommitted() {
	s.trigger.err = resync.ErrResyncInProgress
	s.NoError(s.router.Handle(s.ctx, s.msg("resync", "resync")))
}

func (s *HandlersSuite) TestTopics() {
	s.ElementsMatch([]string{"internal", "registry", "corrections", "resync"}, s.router.Topics())
}
