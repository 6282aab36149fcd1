package audit

import (
	"context"
	"fmt"
	"sync"
)

// MultiRecorder fans records out to several recorders. The first recorder is
// the primary: its ID assignment is kept on the record.
type MultiRecorder struct {
	recorders []Recorder
	async     bool
	wg        sync.WaitGroup
	errChan   chan error
}

// NewMultiRecorder creates a recorder writing to every destination synchronously
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	return &MultiRecorder{
		recorders: recorders,
		errChan:   make(chan error, len(recorders)+1),
	}
}

// SetAsync makes secondary recorders write in the background
func (m *MultiRecorder) SetAsync(async bool) {
	m.async = async
}

// Record writes to the primary recorder and then the secondaries
func (m *MultiRecorder) Record(ctx context.Context, record *Record) error {
	if len(m.recorders) == 0 {
		return nil
	}

	firstErr := m.recorders[0].Record(ctx, record)
	secondaries := m.recorders[1:]

	if m.async {
		snapshot := *record
		for _, r := range secondaries {
			m.wg.Add(1)
			go func(r Recorder) {
				defer m.wg.Done()
				rec := snapshot
				if err := r.Record(context.WithoutCancel(ctx), &rec); err != nil {
					select {
					case m.errChan <- err:
					default:
					}
				}
			}(r)
		}
		return firstErr
	}

	for _, r := range secondaries {
		rec := *record
		if err := r.Record(ctx, &rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Wait waits for all async writes to complete
func (m *MultiRecorder) Wait() {
	m.wg.Wait()
}

// Errors drains errors collected from async writes
func (m *MultiRecorder) Errors() []error {
	var errs []error
	for {
		select {
		case err := <-m.errChan:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}

// Close waits for pending writes and closes every recorder
func (m *MultiRecorder) Close() error {
	m.wg.Wait()

	var firstErr error
	for _, r := range m.recorders {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close recorder: %w", err)
		}
	}

	return firstErr
}
