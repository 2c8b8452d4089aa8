package scoring_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"promisetracker/internal/models"
	"promisetracker/internal/oracle"
	"promisetracker/internal/oracle/mocks"
	"promisetracker/internal/scoring"
)

func TestShouldPropose(t *testing.T) {
	third := models.KeywordOverlap{Jaccard: 1.0 / 3.0, CommonCount: 1}
	none := models.KeywordOverlap{}

	tests := []struct {
		name    string
		overlap models.KeywordOverlap
		l       models.Likelihood
		cfg     scoring.Config
		want    bool
	}{
		{"any overlap proposes by default", third, models.LikelihoodLow, scoring.Config{}, true},
		{"floor at one third proposes", third, models.LikelihoodLow, scoring.Config{JaccardFloor: 1.0 / 3.0}, true},
		{"floor above one third discards", third, models.LikelihoodLow, scoring.Config{JaccardFloor: 0.5}, false},
		{"medium verdict overrides floor", third, models.LikelihoodMedium, scoring.Config{JaccardFloor: 0.5}, true},
		{"high verdict without overlap", none, models.LikelihoodHigh, scoring.Config{}, true},
		{"zero overlap and low verdict", none, models.LikelihoodLow, scoring.Config{}, false},
		{"zero overlap with zero floor", none, models.LikelihoodLow, scoring.Config{JaccardFloor: 0}, false},
		{"lexical gated by min likelihood", third, models.LikelihoodLow, scoring.Config{MinLexicalLikelihood: models.LikelihoodMedium}, false},
		{"min likelihood low keeps lexical", third, models.LikelihoodLow, scoring.Config{MinLexicalLikelihood: models.LikelihoodLow}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scoring.ShouldPropose(tt.overlap, tt.l, tt.cfg))
		})
	}
}

func TestScorer_LexicalOnly(t *testing.T) {
	s := scoring.New(scoring.Config{MinLexicalLikelihood: models.LikelihoodHigh})
	assert.False(t, s.Semantic())

	res, err := s.Score(context.Background(),
		scoring.NewText("Housing and immigration levels plan"),
		scoring.NewText("Cut the housing tax"))
	require.NoError(t, err)
	assert.Equal(t, models.LikelihoodLow, res.Likelihood)
	assert.Empty(t, res.Explanation)
	assert.Equal(t, models.StringSet{"housing"}, res.Overlap.CommonKeywords)
	assert.True(t, res.Proposed, "min likelihood is ignored without an oracle")
}

func TestScorer_WithOracle(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := mocks.NewMockOracle(ctrl)
	s := scoring.New(scoring.Config{}, scoring.WithOracle(o))

	evidence := scoring.NewText("Defence procurement update")
	promise := scoring.NewText("Build 500,000 homes")

	t.Run("semantic match with no overlap", func(t *testing.T) {
		o.EXPECT().Score(gomock.Any(), evidence.Body, promise.Body).
			Return(oracle.Verdict{Likelihood: models.LikelihoodHigh, Explanation: " related "}, nil)
		res, err := s.Score(context.Background(), evidence, promise)
		require.NoError(t, err)
		assert.Zero(t, res.Overlap.Jaccard)
		assert.True(t, res.Proposed)
		assert.Equal(t, "related", res.Explanation)
	})

	t.Run("rate limit passes through", func(t *testing.T) {
		o.EXPECT().Score(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(oracle.Verdict{}, oracle.NewError(oracle.CategoryRateLimited, "429", nil))
		_, err := s.Score(context.Background(), evidence, promise)
		require.Error(t, err)
		assert.True(t, oracle.IsRateLimited(err))
	})
}
