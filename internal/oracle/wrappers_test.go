package oracle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"promisetracker/internal/models"
	"promisetracker/internal/oracle"
	"promisetracker/internal/oracle/mocks"
	"promisetracker/pkg/platform/circuit"
)

//go:generate mockgen -source=oracle.go -destination=mocks/mocks.go -package=mocks Oracle

var high = oracle.Verdict{Likelihood: models.LikelihoodHigh, Explanation: "direct"}

func TestCached(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockOracle(ctrl)
	outage := oracle.NewError(oracle.CategoryOutage, "down", nil)

	gomock.InOrder(
		inner.EXPECT().Score(gomock.Any(), "e1", "p1").Return(oracle.Verdict{}, outage),
		inner.EXPECT().Score(gomock.Any(), "e1", "p1").Return(high, nil),
	)

	c := oracle.NewCached(inner, time.Minute)
	_, err := c.Score(context.Background(), "e1", "p1")
	require.ErrorIs(t, err, outage)

	for range 3 {
		v, err := c.Score(context.Background(), "e1", "p1")
		require.NoError(t, err)
		assert.Equal(t, high, v)
	}
}

type countingQuota struct {
	left int
}

func (q *countingQuota) Acquire(context.Context) error {
	if q.left == 0 {
		return oracle.NewError(oracle.CategoryRateLimited, "spent", nil)
	}
	q.left--
	return nil
}

func TestLimited(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockOracle(ctrl)
	inner.EXPECT().Score(gomock.Any(), gomock.Any(), gomock.Any()).Return(high, nil).Times(2)

	l := oracle.NewLimited(inner, &countingQuota{left: 2})
	for range 2 {
		_, err := l.Score(context.Background(), "e", "p")
		require.NoError(t, err)
	}
	_, err := l.Score(context.Background(), "e", "p")
	assert.True(t, oracle.IsRateLimited(err))
}

func TestLocalQuota(t *testing.T) {
	q := oracle.NewLocalQuota(1, time.Hour, 1, 10*time.Millisecond)
	require.NoError(t, q.Acquire(context.Background()))

	err := q.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, oracle.IsRateLimited(err))
}

func TestGuarded(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockOracle(ctrl)
	breaker := circuit.New("oracle", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	g := oracle.NewGuarded(inner, breaker, nil)
	ctx := context.Background()

	t.Run("rate limits do not trip the breaker", func(t *testing.T) {
		inner.EXPECT().Score(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(oracle.Verdict{}, oracle.NewError(oracle.CategoryRateLimited, "429", nil)).Times(3)
		for range 3 {
			_, err := g.Score(ctx, "e", "p")
			assert.True(t, oracle.IsRateLimited(err))
		}
		assert.False(t, breaker.IsOpen())
	})

	t.Run("outages open it and calls fail fast", func(t *testing.T) {
		inner.EXPECT().Score(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(oracle.Verdict{}, oracle.NewError(oracle.CategoryOutage, "502", nil)).Times(2)
		for range 2 {
			_, err := g.Score(ctx, "e", "p")
			require.Error(t, err)
		}
		assert.True(t, breaker.IsOpen())

		_, err := g.Score(ctx, "e", "p")
		assert.Equal(t, oracle.CategoryCircuitOpen, oracle.CategoryOf(err))
		assert.True(t, oracle.IsTransient(err))
	})
}

func TestErrorClassification(t *testing.T) {
	assert.False(t, oracle.IsTransient(nil))
	assert.True(t, oracle.IsTransient(errors.New("dial tcp: refused")))
	assert.Equal(t, oracle.CategoryTimeout, oracle.CategoryOf(context.DeadlineExceeded))

	wrapped := errors.Join(errors.New("ctx"), oracle.NewError(oracle.CategoryRateLimited, "429", nil))
	assert.True(t, oracle.IsRateLimited(wrapped))
}
