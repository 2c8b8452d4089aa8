package linkgen_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"promisetracker/internal/audit"
	"promisetracker/internal/linkgen"
	"promisetracker/internal/models"
	"promisetracker/internal/oracle"
	"promisetracker/internal/oracle/mocks"
	"promisetracker/internal/scoring"
	"promisetracker/internal/store/memory"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
	"promisetracker/pkg/requestcontext"
)

type GeneratorSuite struct {
	suite.Suite
	store *memory.Store
	ctx   context.Context
	now   time.Time
}

func TestGeneratorSuite(t *testing.T) {
	suite.Run(t, new(GeneratorSuite))
}

func (s *GeneratorSuite) SetupTest() {
	s.store = memory.New()
	s.now = time.Date(2024, 9, 10, 8, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *GeneratorSuite) lexical() *linkgen.Generator {
	return linkgen.New(s.store, s.store, scoring.New(scoring.Config{}))
}

func (s *GeneratorSuite) promise(pid, text, session string) *models.Promise {
	p := &models.Promise{
		ID:                id.PromiseID(pid),
		Text:              text,
		Department:        "Housing, Infrastructure and Communities",
		ParliamentSession: session,
		DateIssued:        time.Date(2021, 12, 16, 0, 0, 0, 0, time.UTC),
		Status:            models.PromiseStatusActive,
		LinkedEvidenceIDs: models.StringSet{},
		UpdatedAt:         s.now,
	}
	s.Require().NoError(s.store.SavePromise(s.ctx, p))
	return p
}

func (s *GeneratorSuite) evidence(key, title string, status models.EvidenceStatus) *models.EvidenceItem {
	e := &models.EvidenceItem{
		ID:                id.EvidenceIDForSource(key),
		SourceKey:         key,
		SourceType:        models.SourceNewsRelease,
		Title:             title,
		EvidenceDate:      time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		ParliamentSession: "44-1",
		ExtractedKeywords: models.StringSet{},
		PromiseIDs:        models.StringSet{},
		ProcessingStatus:  status,
		CreatedAt:         s.now,
		UpdatedAt:         s.now,
	}
	s.Require().NoError(s.store.CreateEvidence(s.ctx, e))
	return e
}

func (s *GeneratorSuite) link(p *models.Promise, e *models.EvidenceItem, status models.LinkStatus) {
	l := models.NewPotentialLink(p.ID, e.ID, models.KeywordOverlap{}, models.LikelihoodLow, "", s.now.Add(-time.Hour))
	l.LinkStatus = status
	ok, err := s.store.InsertLink(s.ctx, l)
	s.Require().NoError(err)
	s.Require().True(ok)
}

func (s *GeneratorSuite) status(eid id.EvidenceID) models.EvidenceStatus {
	e, err := s.store.FindEvidence(s.ctx, eid)
	s.Require().NoError(err)
	return e.ProcessingStatus
}

func (s *GeneratorSuite) TestGenerate_ProposesLexicalCandidates() {
	housingTax := s.promise("p-housing-tax", "Housing tax", "44-1")
	s.promise("p-defence", "Defence procurement", "44-1")
	e := s.evidence("canada_news:1", "Housing immigration", models.EvidenceStatusPendingLinkGeneration)

	out, err := s.lexical().Generate(s.ctx, e.ID, linkgen.Options{})
	s.Require().NoError(err)
	s.Equal(models.EvidenceStatusPendingReview, out.Status)
	s.Equal(2, out.Scored)
	s.Equal(1, out.LinksCreated)

	links, err := s.store.ListLinksByEvidence(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Require().Len(links, 1)
	s.Equal(housingTax.ID, links[0].PromiseID)
	s.Equal(models.LinkStatusPendingReview, links[0].LinkStatus)
	s.InDelta(1.0/3.0, links[0].KeywordOverlap.Jaccard, 1e-9)
	s.Equal(1, links[0].KeywordOverlap.CommonCount)

	stored, err := s.store.FindEvidence(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(models.StringSet{"housing", "immigration"}, stored.ExtractedKeywords)
}

func (s *GeneratorSuite) TestGenerate_NoCandidates() {
	s.promise("p-defence", "Defence procurement", "44-1")
	e := s.evidence("canada_news:2", "Fisheries licensing", models.EvidenceStatusPendingLinkGeneration)

	out, err := s.lexical().Generate(s.ctx, e.ID, linkgen.Options{})
	s.Require().NoError(err)
	s.Equal(models.EvidenceStatusNoCandidatesFound, out.Status)
	s.Zero(out.LinksCreated)

	s.Run("not re-entered without force", func() {
		out, err := s.lexical().Generate(s.ctx, e.ID, linkgen.Options{})
		s.Require().NoError(err)
		s.True(out.Noop)
	})

	s.Run("forced re-run picks up a new promise", func() {
		s.promise("p-fish", "Modernize fisheries licensing", "44-1")
		out, err := s.lexical().Generate(s.ctx, e.ID, linkgen.Options{Force: true})
		s.Require().NoError(err)
		s.Equal(models.EvidenceStatusNoCandidatesFound, out.From)
		s.Equal(models.EvidenceStatusPendingReview, out.Status)
		s.Equal(1, out.LinksCreated)
	})
}

func (s *GeneratorSuite) TestGenerate_SkipsExistingPairs() {
	ctrl := gomock.NewController(s.T())
	o := mocks.NewMockOracle(ctrl)
	gen := linkgen.New(s.store, s.store, scoring.New(scoring.Config{}, scoring.WithOracle(o)))

	p1 := s.promise("p1", "Housing supply", "44-1")
	p2 := s.promise("p2", "Housing affordability", "44-1")
	p3 := s.promise("p3", "Housing for veterans", "44-1")
	e := s.evidence("canada_news:3", "Housing announcement", models.EvidenceStatusPendingLinkGeneration)
	s.link(p1, e, models.LinkStatusPendingReview)
	s.link(p2, e, models.LinkStatusRejected)

	o.EXPECT().Score(gomock.Any(), gomock.Any(), p3.Text).
		Return(oracle.Verdict{Likelihood: models.LikelihoodMedium, Explanation: "veterans housing"}, nil).
		Times(1)

	out, err := gen.Generate(s.ctx, e.ID, linkgen.Options{})
	s.Require().NoError(err)
	s.Equal(1, out.LinksCreated)
	s.Equal(models.EvidenceStatusPendingReview, out.Status)

	links, err := s.store.ListLinksByEvidence(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Len(links, 3)
	seen := map[id.PromiseID]int{}
	for _, l := range links {
		seen[l.PromiseID]++
	}
	s.Equal(map[id.PromiseID]int{p1.ID: 1, p2.ID: 1, p3.ID: 1}, seen)
}

func (s *GeneratorSuite) TestGenerate_RateLimitedWritesNothing() {
	ctrl := gomock.NewController(s.T())
	o := mocks.NewMockOracle(ctrl)
	gen := linkgen.New(s.store, s.store, scoring.New(scoring.Config{}, scoring.WithOracle(o)))

	s.promise("p1", "Housing supply", "44-1")
	s.promise("p2", "Housing affordability", "44-1")
	e := s.evidence("canada_news:4", "Housing announcement", models.EvidenceStatusPendingLinkGeneration)

	gomock.InOrder(
		o.EXPECT().Score(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(oracle.Verdict{Likelihood: models.LikelihoodHigh}, nil),
		o.EXPECT().Score(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(oracle.Verdict{}, oracle.NewError(oracle.CategoryRateLimited, "429", nil)),
	)

	_, err := gen.Generate(s.ctx, e.ID, linkgen.Options{})
	s.Require().Error(err)
	s.True(oracle.IsRateLimited(err))

	s.Equal(models.EvidenceStatusPendingLinkGeneration, s.status(e.ID))
	links, err := s.store.ListLinksByEvidence(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Empty(links)
}

func (s *GeneratorSuite) TestGenerate_TransientFailureWritesNothing() {
	ctrl := gomock.NewController(s.T())
	o := mocks.NewMockOracle(ctrl)
	gen := linkgen.New(s.store, s.store, scoring.New(scoring.Config{}, scoring.WithOracle(o)))

	s.promise("p1", "Housing supply", "44-1")
	e := s.evidence("canada_news:5", "Housing announcement", models.EvidenceStatusPendingLinkGeneration)
	o.EXPECT().Score(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(oracle.Verdict{}, oracle.NewError(oracle.CategoryOutage, "502", nil))

	_, err := gen.Generate(s.ctx, e.ID, linkgen.Options{})
	s.Require().Error(err)
	s.True(oracle.IsTransient(err))
	s.Equal(models.EvidenceStatusPendingLinkGeneration, s.status(e.ID))
}

func (s *GeneratorSuite) TestGenerate_LinkedWhenOnlyConfirmedRemain() {
	p := s.promise("p1", "Housing supply", "44-1")
	e := s.evidence("canada_news:6", "Housing supply update", models.EvidenceStatusPendingLinkGeneration)
	s.link(p, e, models.LinkStatusConfirmed)
	s.Require().NoError(s.store.AddEvidencePromise(s.ctx, e.ID, p.ID, s.now))
	s.Require().NoError(s.store.AddPromiseEvidence(s.ctx, p.ID, e.ID, s.now))

	out, err := s.lexical().Generate(s.ctx, e.ID, linkgen.Options{})
	s.Require().NoError(err)
	s.Zero(out.Scored)
	s.Equal(models.EvidenceStatusLinked, out.Status)
}

func (s *GeneratorSuite) TestGenerate_MissingPromiseQuarantines() {
	p := s.promise("p1", "Housing supply", "44-1")
	e := s.evidence("canada_news:7", "Housing supply update", models.EvidenceStatusPendingLinkGeneration)
	l := models.NewPotentialLink("p-ghost", e.ID, models.KeywordOverlap{}, models.LikelihoodLow, "", s.now)
	_, err := s.store.InsertLink(s.ctx, l)
	s.Require().NoError(err)
	_ = p

	g := linkgen.New(s.store, s.store, scoring.New(scoring.Config{}),
		linkgen.WithAuditEmitter(audit.NewEmitter(s.store, nil)))
	out, err := g.Generate(s.ctx, e.ID, linkgen.Options{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeDataIntegrity))
	s.Equal(models.EvidenceStatusErrorDataIntegrity, out.Status)
	s.Equal(models.EvidenceStatusErrorDataIntegrity, s.status(e.ID))

	entries, err := s.store.ListUnpublishedOutbox(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	event, err := audit.DecodeEvent(entries[0].Payload)
	s.Require().NoError(err)
	s.Equal(audit.ActionEvidenceQuarantined, event.Action)
	s.Equal(e.ID.String(), event.EvidenceID)

	out, err = s.lexical().Generate(s.ctx, e.ID, linkgen.Options{Force: true})
	s.Require().NoError(err)
	s.True(out.Noop, "quarantined items are not processed again")
}

func (s *GeneratorSuite) TestGenerate_CandidateScope() {
	s.promise("p-old", "Housing supply", "43-2")
	recent := s.promise("p-new", "Housing supply", "44-1")
	e := s.evidence("canada_news:8", "Housing supply update", models.EvidenceStatusPendingLinkGeneration)

	out, err := s.lexical().Generate(s.ctx, e.ID, linkgen.Options{Session: "44-1"})
	s.Require().NoError(err)
	s.Equal(1, out.Scored)

	links, err := s.store.ListLinksByEvidence(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Require().Len(links, 1)
	s.Equal(recent.ID, links[0].PromiseID)
}

func (s *GeneratorSuite) TestGenerate_CandidateWindow() {
	s.promise("p1", "Housing supply", "44-1")
	e := s.evidence("canada_news:9", "Housing supply update", models.EvidenceStatusPendingLinkGeneration)

	out, err := s.lexical().Generate(s.ctx, e.ID, linkgen.Options{CandidateWindow: 90 * 24 * time.Hour})
	s.Require().NoError(err)
	s.Zero(out.Scored)
	s.Equal(models.EvidenceStatusNoCandidatesFound, out.Status)
}

// movingScorer moves the item to another status mid-run, as a concurrent
// generator would.
type movingScorer struct {
	store *memory.Store
	id    id.EvidenceID
	now   time.Time
}

func (m movingScorer) Score(ctx context.Context, _, _ scoring.Text) (scoring.Result, error) {
	err := m.store.TransitionEvidence(ctx, m.id, models.EvidenceStatusPendingLinkGeneration,
		models.EvidenceStatusNoCandidatesFound, m.now)
	return scoring.Result{Likelihood: models.LikelihoodHigh, Proposed: true}, err
}

func (s *GeneratorSuite) TestGenerate_StatusMovedIsNoop() {
	s.promise("p1", "Housing supply", "44-1")
	e := s.evidence("canada_news:10", "Housing supply update", models.EvidenceStatusPendingLinkGeneration)
	gen := linkgen.New(s.store, s.store, movingScorer{store: s.store, id: e.ID, now: s.now})

	out, err := gen.Generate(s.ctx, e.ID, linkgen.Options{})
	s.Require().NoError(err)
	s.True(out.Noop)
	s.Equal(models.EvidenceStatusNoCandidatesFound, out.Status)

	links, err := s.store.ListLinksByEvidence(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Empty(links)
}

func (s *GeneratorSuite) TestGenerate_UnknownEvidence() {
	_, err := s.lexical().Generate(s.ctx, "missing", linkgen.Options{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
