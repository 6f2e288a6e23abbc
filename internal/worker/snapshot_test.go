package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/finances/internal/portfolio"
	"github.com/mtlprog/finances/internal/snapshot"
)

type mockSnapshotGenerator struct {
	mu     sync.Mutex
	calls  []uuid.UUID
	dates  []time.Time
	failOn uuid.UUID
}

func (m *mockSnapshotGenerator) Generate(_ context.Context, userID uuid.UUID, date time.Time) (snapshot.Data, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, userID)
	m.dates = append(m.dates, date)
	if userID == m.failOn {
		return snapshot.Data{}, errors.New("portfolio unavailable")
	}
	return snapshot.Data{Summary: portfolio.Summary{UserID: userID, PositionCount: 1}}, nil
}

func (m *mockSnapshotGenerator) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type staticUsers struct {
	ids []uuid.UUID
	err error
}

func (s staticUsers) ListUserIDs(_ context.Context) ([]uuid.UUID, error) {
	return s.ids, s.err
}

type mockHook struct {
	calls atomic.Int32
}

func (m *mockHook) AfterSnapshot(_ context.Context, _ uuid.UUID, _ time.Time, s portfolio.Summary) error {
	m.calls.Add(1)
	if s.PositionCount != 1 {
		return errors.New("unexpected summary")
	}
	return nil
}

func TestSnapshotWorkerRejectsBadSchedule(t *testing.T) {
	_, err := NewSnapshotWorker(&mockSnapshotGenerator{}, staticUsers{}, "every tuesday", nil)
	assert.Error(t, err)
}

func TestSnapshotWorkerRunOnce(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	gen := &mockSnapshotGenerator{failOn: b}
	hook := &mockHook{}

	w, err := NewSnapshotWorker(gen, staticUsers{ids: []uuid.UUID{a, b, c}}, "@daily", hook)
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2024, 6, 15, 23, 59, 0, 0, time.UTC) }

	stored, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stored, "one failing user does not stop the rest")
	assert.Equal(t, []uuid.UUID{a, b, c}, gen.calls)
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), gen.dates[0])
	assert.Equal(t, int32(2), hook.calls.Load())
}

func TestSnapshotWorkerRunOnceUserListError(t *testing.T) {
	w, err := NewSnapshotWorker(&mockSnapshotGenerator{}, staticUsers{err: errors.New("db down")}, "@daily", nil)
	require.NoError(t, err)

	_, err = w.RunOnce(context.Background())
	assert.ErrorContains(t, err, "listing users")
}

func TestSnapshotWorkerRunsAndShutdown(t *testing.T) {
	gen := &mockSnapshotGenerator{}
	w, err := NewSnapshotWorker(gen, staticUsers{ids: []uuid.UUID{uuid.New()}}, "@every 1s", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
	assert.GreaterOrEqual(t, gen.count(), 1, "initial generation runs on startup")
}
