package session

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/stockroom/pkg/observability"
)

func TestJanitor_Sweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	expired, err := New(time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	live, err := New(time.Now(), time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, expired))
	require.NoError(t, store.Create(ctx, live))

	purged := prometheus.NewCounter(prometheus.CounterOpts{Name: "purged"})
	j, err := NewJanitor(store, "", observability.NewNopLogger(), purged)
	require.NoError(t, err)

	assert.Equal(t, int64(1), j.Sweep(ctx))
	assert.Equal(t, float64(1), testutil.ToFloat64(purged))

	_, err = store.Get(ctx, live.ID)
	assert.NoError(t, err)
}

func TestJanitor_InvalidSchedule(t *testing.T) {
	_, err := NewJanitor(NewMemoryStore(), "every tuesday", observability.NewNopLogger(), nil)
	assert.Error(t, err)
}

func TestJanitor_StartStop(t *testing.T) {
	j, err := NewJanitor(NewMemoryStore(), "@every 1h", observability.NewNopLogger(), nil)
	require.NoError(t, err)
	j.Start()
	assert.NoError(t, j.Stop(context.Background()))
}
