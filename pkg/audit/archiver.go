package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// Uploader stores archive objects. storage/postgres.S3Client satisfies it.
type Uploader interface {
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) error
}

// ArchiveSource reads and prunes archived entries
type ArchiveSource interface {
	All(ctx context.Context, filter SearchFilter) ([]*Entry, error)
	DeleteThrough(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchiverConfig configures scheduled archival
type ArchiverConfig struct {
	Schedule  string          // cron expression, e.g. "0 3 * * *"
	Prefix    string          // object key prefix
	Retention RetentionPolicy // entries older than this are archived then removed
	Timeout   time.Duration   // bound for a single run
}

// ArchiveResult describes one archival run
type ArchiveResult struct {
	Key      string    `json:"key,omitempty"`
	Archived int       `json:"archived"`
	Deleted  int64     `json:"deleted"`
	Cutoff   time.Time `json:"cutoff"`
}

// Archiver periodically exports old audit entries as NDJSON to object storage
// and removes them from the database once the upload has succeeded.
type Archiver struct {
	source   ArchiveSource
	uploader Uploader
	config   ArchiverConfig
	logger   *observability.Logger
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewArchiver creates an archiver
func NewArchiver(source ArchiveSource, uploader Uploader, config ArchiverConfig, logger *observability.Logger) (*Archiver, error) {
	if source == nil || uploader == nil {
		return nil, fmt.Errorf("archive source and uploader are required")
	}
	if config.Retention.RetentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive")
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Archiver{
		source:   source,
		uploader: uploader,
		config:   config,
		logger:   logger.WithField("component", "audit_archiver"),
		now:      time.Now,
	}, nil
}

// Run archives and prunes every entry older than the retention cutoff
func (a *Archiver) Run(ctx context.Context) (*ArchiveResult, error) {
	now := a.now().UTC()
	cutoff := a.config.Retention.Cutoff(now)
	result := &ArchiveResult{Cutoff: cutoff}

	entries, err := a.source.All(ctx, SearchFilter{EndTime: &cutoff})
	if err != nil {
		return nil, fmt.Errorf("failed to read audit entries: %w", err)
	}
	if len(entries) == 0 {
		return result, nil
	}

	data, err := exportNDJSON(entries)
	if err != nil {
		return nil, err
	}

	key := path.Join(a.config.Prefix, ExportFilename(ExportFormatNDJSON, now))
	if err := a.uploader.PutObject(ctx, key, bytes.NewReader(data), ExportFormatNDJSON.ContentType()); err != nil {
		return nil, fmt.Errorf("failed to upload audit archive: %w", err)
	}
	result.Key = key
	result.Archived = len(entries)

	deleted, err := a.source.DeleteThrough(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to prune archived entries: %w", err)
	}
	result.Deleted = deleted

	return result, nil
}

// Start schedules Run on the configured cron expression
func (a *Archiver) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cron != nil {
		return fmt.Errorf("archiver already started")
	}

	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(a.config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.config.Timeout)
		defer cancel()

		result, err := a.Run(ctx)
		if err != nil {
			a.logger.WithError(err).Error("audit archival failed")
			return
		}
		a.logger.WithFields(map[string]interface{}{
			"key":      result.Key,
			"archived": result.Archived,
			"deleted":  result.Deleted,
		}).Info("audit archival completed")
	})
	if err != nil {
		return fmt.Errorf("invalid archive schedule %q: %w", a.config.Schedule, err)
	}

	c.Start()
	a.cron = c
	a.logger.Infof("audit archival scheduled: %s", a.config.Schedule)
	return nil
}

// Stop halts the schedule and waits for a running job to finish
func (a *Archiver) Stop(ctx context.Context) {
	a.mu.Lock()
	c := a.cron
	a.cron = nil
	a.mu.Unlock()

	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
