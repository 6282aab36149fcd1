package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRecorder struct {
	mu      sync.Mutex
	records []Record
	nextID  int64
	err     error
	closed  bool
}

func (m *memoryRecorder) Record(ctx context.Context, record *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.nextID++
	record.ID = m.nextID
	m.records = append(m.records, *record)
	return nil
}

func (m *memoryRecorder) Close() error {
	m.closed = true
	return nil
}

func (m *memoryRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type staticToggle bool

func (s staticToggle) AuditLoggingEnabled(ctx context.Context) bool { return bool(s) }

func TestGatedRecorder(t *testing.T) {
	t.Run("enabled persists", func(t *testing.T) {
		inner := &memoryRecorder{}
		g := NewGatedRecorder(inner, staticToggle(true), nil)

		require.NoError(t, g.Record(context.Background(), &Record{HTTPMethod: "GET", Path: "/x"}))
		assert.Equal(t, 1, inner.count())
	})

	t.Run("disabled skips", func(t *testing.T) {
		inner := &memoryRecorder{}
		g := NewGatedRecorder(inner, staticToggle(false), nil)

		require.NoError(t, g.Record(context.Background(), &Record{HTTPMethod: "GET", Path: "/x"}))
		assert.Equal(t, 0, inner.count())
	})

	t.Run("nil toggle persists", func(t *testing.T) {
		inner := &memoryRecorder{}
		g := NewGatedRecorder(inner, nil, nil)

		require.NoError(t, g.Record(context.Background(), &Record{HTTPMethod: "GET", Path: "/x"}))
		assert.Equal(t, 1, inner.count())
		require.NoError(t, g.Close())
		assert.True(t, inner.closed)
	})
}

func TestMultiRecorder_Sync(t *testing.T) {
	primary := &memoryRecorder{nextID: 100}
	secondary := &memoryRecorder{}
	m := NewMultiRecorder(primary, secondary)

	record := &Record{HTTPMethod: "GET", Path: "/x"}
	require.NoError(t, m.Record(context.Background(), record))

	assert.Equal(t, int64(101), record.ID, "primary id is kept")
	assert.Equal(t, 1, primary.count())
	assert.Equal(t, 1, secondary.count())

	require.NoError(t, m.Close())
	assert.True(t, primary.closed)
	assert.True(t, secondary.closed)
}

func TestMultiRecorder_SecondaryFailure(t *testing.T) {
	primary := &memoryRecorder{}
	secondary := &memoryRecorder{err: errors.New("disk full")}
	m := NewMultiRecorder(primary, secondary)

	err := m.Record(context.Background(), &Record{HTTPMethod: "GET", Path: "/x"})
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 1, primary.count())
}

func TestMultiRecorder_Async(t *testing.T) {
	primary := &memoryRecorder{}
	secondary := &memoryRecorder{}
	failing := &memoryRecorder{err: errors.New("unreachable")}
	m := NewMultiRecorder(primary, secondary, failing)
	m.SetAsync(true)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Record(context.Background(), &Record{HTTPMethod: "GET", Path: "/x"}))
	}
	m.Wait()

	assert.Equal(t, 5, primary.count())
	assert.Equal(t, 5, secondary.count())
	assert.NotEmpty(t, m.Errors())
}

func TestMultiRecorder_Empty(t *testing.T) {
	m := NewMultiRecorder()
	assert.NoError(t, m.Record(context.Background(), &Record{}))
	assert.NoError(t, m.Close())
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = NopRecorder{}
	assert.NoError(t, r.Record(context.Background(), &Record{}))
	assert.NoError(t, r.Close())
}
