package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvidenceStatus(t *testing.T) {
	t.Run("defined values are valid", func(t *testing.T) {
		for _, s := range []EvidenceStatus{
			EvidenceStatusPendingLinkGeneration, EvidenceStatusPendingReview, EvidenceStatusLinked,
			EvidenceStatusNoCandidatesFound, EvidenceStatusErrorDataIntegrity,
		} {
			assert.True(t, s.Valid(), s)
		}
		assert.False(t, EvidenceStatus("").Valid())
		assert.False(t, EvidenceStatus("processed").Valid())
	})

	t.Run("forward transitions", func(t *testing.T) {
		assert.True(t, EvidenceStatusPendingLinkGeneration.CanTransitionTo(EvidenceStatusPendingReview))
		assert.True(t, EvidenceStatusPendingLinkGeneration.CanTransitionTo(EvidenceStatusNoCandidatesFound))
		assert.True(t, EvidenceStatusPendingReview.CanTransitionTo(EvidenceStatusLinked))
		assert.True(t, EvidenceStatusNoCandidatesFound.CanTransitionTo(EvidenceStatusPendingReview))
	})

	t.Run("no backward transitions", func(t *testing.T) {
		assert.False(t, EvidenceStatusPendingReview.CanTransitionTo(EvidenceStatusPendingLinkGeneration))
		assert.False(t, EvidenceStatusLinked.CanTransitionTo(EvidenceStatusPendingReview))
		assert.False(t, EvidenceStatusLinked.CanTransitionTo(EvidenceStatusNoCandidatesFound))
		assert.False(t, EvidenceStatusErrorDataIntegrity.CanTransitionTo(EvidenceStatusPendingReview))
		assert.False(t, EvidenceStatusPendingReview.CanTransitionTo(EvidenceStatusPendingReview))
	})

	t.Run("terminal", func(t *testing.T) {
		assert.True(t, EvidenceStatusLinked.IsTerminal())
		assert.True(t, EvidenceStatusErrorDataIntegrity.IsTerminal())
		assert.False(t, EvidenceStatusNoCandidatesFound.IsTerminal())
	})
}

func TestIngestStatus(t *testing.T) {
	assert.True(t, IngestStatusPendingEvidenceCreation.CanTransitionTo(IngestStatusEvidenceCreated))
	assert.True(t, IngestStatusErrorMaterialization.CanTransitionTo(IngestStatusErrorMaterialization))
	assert.True(t, IngestStatusErrorMaterialization.CanTransitionTo(IngestStatusEvidenceCreated))
	assert.False(t, IngestStatusEvidenceCreated.CanTransitionTo(IngestStatusErrorMaterialization))
	assert.False(t, IngestStatusSkippedLowRelevance.CanTransitionTo(IngestStatusEvidenceCreated))

	assert.True(t, IngestStatusErrorMaterialization.NeedsMaterialization())
	assert.False(t, IngestStatus("").NeedsMaterialization())
	assert.False(t, IngestStatus("").Valid())
}

func TestLinkStatus_Monotonic(t *testing.T) {
	all := []LinkStatus{LinkStatusPendingReview, LinkStatusConfirmed, LinkStatusRejected}
	for _, from := range all {
		for _, to := range all {
			allowed := from.CanTransitionTo(to)
			if from == LinkStatusPendingReview && to != LinkStatusPendingReview {
				assert.True(t, allowed, "%s -> %s", from, to)
				continue
			}
			assert.False(t, allowed, "%s -> %s", from, to)
		}
	}
}

func TestFeedTypeSourceType(t *testing.T) {
	st, ok := FeedOrdersInCouncil.SourceType()
	assert.True(t, ok)
	assert.Equal(t, SourceOrderInCouncil, st)

	_, ok = FeedType("rss").SourceType()
	assert.False(t, ok)
	assert.True(t, SourceNewsRelease.Valid())
}

func TestLikelihood(t *testing.T) {
	assert.True(t, LikelihoodHigh.AtLeast(LikelihoodMedium))
	assert.True(t, LikelihoodMedium.AtLeast(LikelihoodMedium))
	assert.False(t, LikelihoodLow.AtLeast(LikelihoodMedium))
	assert.False(t, Likelihood("certain").Valid())
}
