package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/stockroom/pkg/observability"
)

// blockingSink holds the first Log call until release is closed
type blockingSink struct {
	MemoryLogger
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingSink() *blockingSink {
	return &blockingSink{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingSink) Log(ctx context.Context, entry *Entry) error {
	b.once.Do(func() {
		close(b.started)
		<-b.release
	})
	return b.MemoryLogger.Log(ctx, entry)
}

type failingSink struct{}

func (failingSink) Log(ctx context.Context, entry *Entry) error {
	return errors.New("audit table unavailable")
}

func (failingSink) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return nil, errors.New("audit table unavailable")
}

type panickingSink struct {
	MemoryLogger
	calls int
}

func (p *panickingSink) Log(ctx context.Context, entry *Entry) error {
	p.calls++
	if p.calls == 1 {
		panic("sink exploded")
	}
	return p.MemoryLogger.Log(ctx, entry)
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

func TestDispatcher_DeliversInSubmissionOrder(t *testing.T) {
	sink := NewMemoryLogger()
	d := NewDispatcher(sink, 16, observability.NewNopLogger(), nil)

	base := time.Now()
	for i := 0; i < 5; i++ {
		ok := d.Submit(&Entry{Action: fmt.Sprintf("ACTION_%d", i), Timestamp: base})
		require.True(t, ok)
	}
	closeDispatcher(t, d)

	entries, err := sink.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	// equal timestamps fall back to append order, newest first
	assert.Equal(t, "ACTION_4", entries[0].Action)
	assert.Equal(t, "ACTION_0", entries[4].Action)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	sink := newBlockingSink()
	metrics := observability.NewTestMetrics()
	d := NewDispatcher(sink, 1, observability.NewNopLogger(), metrics)

	require.True(t, d.Submit(&Entry{Action: "FIRST"}))
	<-sink.started

	require.True(t, d.Submit(&Entry{Action: "SECOND"}))
	assert.False(t, d.Submit(&Entry{Action: "THIRD"}))

	close(sink.release)
	closeDispatcher(t, d)

	assert.Equal(t, uint64(1), d.Dropped())
	assert.Equal(t, 2, sink.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuditRecordsTotal.WithLabelValues(observability.OutcomeDropped)))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.AuditRecordsTotal.WithLabelValues(observability.OutcomeSuccess)))
}

func TestDispatcher_SinkFailureIsCounted(t *testing.T) {
	metrics := observability.NewTestMetrics()
	d := NewDispatcher(failingSink{}, 4, observability.NewNopLogger(), metrics)

	assert.True(t, d.Submit(&Entry{Action: "CREATE_INVENTORY"}))
	closeDispatcher(t, d)

	assert.Equal(t, uint64(1), d.Failed())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuditRecordsTotal.WithLabelValues(observability.OutcomeFailure)))
}

func TestDispatcher_SurvivesPanickingSink(t *testing.T) {
	sink := &panickingSink{}
	d := NewDispatcher(sink, 4, observability.NewNopLogger(), nil)

	d.Submit(&Entry{Action: "FIRST"})
	d.Submit(&Entry{Action: "SECOND"})
	closeDispatcher(t, d)

	entries, err := sink.MemoryLogger.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "SECOND", entries[0].Action)
}

func TestDispatcher_SubmitAfterClose(t *testing.T) {
	sink := NewMemoryLogger()
	d := NewDispatcher(sink, 4, nil, nil)
	closeDispatcher(t, d)

	assert.False(t, d.Submit(&Entry{Action: "LATE"}))
	assert.Equal(t, 0, sink.Len())
	assert.Equal(t, uint64(1), d.Dropped())
	// second close is a no-op
	assert.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_EveryEntryIsWrittenOrDroppedDuringClose(t *testing.T) {
	const submitters, perSubmitter = 8, 50
	sink := NewMemoryLogger()
	d := NewDispatcher(sink, submitters*perSubmitter, nil, nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		start    = make(chan struct{})
	)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			for j := 0; j < perSubmitter; j++ {
				if d.Submit(&Entry{Action: fmt.Sprintf("ACTION_%d_%d", i, j)}) {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}(i)
	}
	close(start)
	closeDispatcher(t, d)
	wg.Wait()

	assert.Equal(t, accepted, sink.Len())
	assert.Equal(t, uint64(submitters*perSubmitter-accepted), d.Dropped())
}

func TestDispatcher_CloseHonoursDeadline(t *testing.T) {
	sink := newBlockingSink()
	d := NewDispatcher(sink, 4, nil, nil)
	d.Submit(&Entry{Action: "STUCK"})
	<-sink.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	close(sink.release)
	closeDispatcher(t, d)
}

func TestDispatcher_NilIsSafe(t *testing.T) {
	var d *Dispatcher
	assert.False(t, d.Submit(&Entry{}))
	assert.Equal(t, uint64(0), d.Dropped())
	assert.NoError(t, d.Close(context.Background()))
}
