package audit

import (
	"context"
	"time"
)

// Store provides methods for querying and managing audit logs
type Store interface {
	// Search returns a page of entries matching the filter
	Search(ctx context.Context, filter SearchFilter) ([]*Entry, error)

	// Get retrieves a specific entry by ID, nil when absent
	Get(ctx context.Context, id int64) (*Entry, error)

	// GetStats retrieves audit log statistics
	GetStats(ctx context.Context, startTime, endTime *time.Time) (*Stats, error)

	// Export renders every entry matching the filter in the given format
	Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error)

	// Cleanup removes entries older than the retention period
	Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error)
}

// DBStore implements Store on top of a DBRecorder
type DBStore struct {
	recorder *DBRecorder
	now      func() time.Time
}

// NewDBStore creates a new database-backed audit store
func NewDBStore(recorder *DBRecorder) *DBStore {
	return &DBStore{
		recorder: recorder,
		now:      time.Now,
	}
}

// Search returns a page of entries matching the filter
func (s *DBStore) Search(ctx context.Context, filter SearchFilter) ([]*Entry, error) {
	return s.recorder.Search(ctx, filter)
}

// Get retrieves a specific entry by ID
func (s *DBStore) Get(ctx context.Context, id int64) (*Entry, error) {
	return s.recorder.Get(ctx, id)
}

// GetStats retrieves audit log statistics
func (s *DBStore) GetStats(ctx context.Context, startTime, endTime *time.Time) (*Stats, error) {
	return s.recorder.GetStats(ctx, startTime, endTime)
}

// Export renders every matching entry; pagination fields are ignored
func (s *DBStore) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	entries, err := s.recorder.All(ctx, filter)
	if err != nil {
		return nil, err
	}
	return Render(entries, format)
}

// Cleanup removes entries older than the retention period
func (s *DBStore) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	return s.recorder.DeleteThrough(ctx, policy.Cutoff(s.now()))
}
