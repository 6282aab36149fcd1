package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const currentFileName = "audit.log"

// FileRecorder mirrors audit records to JSON-lines files with size-based rotation
type FileRecorder struct {
	basePath string
	file     *os.File
	mu       sync.Mutex
	encoder  *json.Encoder
	rotate   bool
	maxSize  int64
	maxFiles int
	now      func() time.Time
}

// FileRecorderConfig configures the file recorder
type FileRecorderConfig struct {
	BasePath string // Base directory for audit files
	Rotate   bool   // Enable rotation
	MaxSize  int64  // Max file size in bytes (default: 100MB)
	MaxFiles int    // Max number of rotated files to keep (default: 10)
}

// DefaultFileRecorderConfig returns default configuration
func DefaultFileRecorderConfig() FileRecorderConfig {
	return FileRecorderConfig{
		BasePath: "/var/log/nexus-mcp/audit",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// NewFileRecorder creates a new file-based audit recorder
func NewFileRecorder(config FileRecorderConfig) (*FileRecorder, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	r := &FileRecorder{
		basePath: config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
		now:      time.Now,
	}
	if r.maxSize == 0 {
		r.maxSize = 100 * 1024 * 1024
	}
	if r.maxFiles == 0 {
		r.maxFiles = 10
	}

	if err := r.openFile(); err != nil {
		return nil, err
	}

	return r, nil
}

// openFile opens or creates the current audit file
func (r *FileRecorder) openFile() error {
	filename := filepath.Join(r.basePath, currentFileName)

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}

	r.file = file
	r.encoder = json.NewEncoder(file)
	return nil
}

// rotateFile renames the current file with a timestamp suffix and reopens
func (r *FileRecorder) rotateFile() error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}

	current := filepath.Join(r.basePath, currentFileName)
	rotated := filepath.Join(r.basePath, fmt.Sprintf("audit-%s.log", r.now().UTC().Format("20060102-150405.000000000")))

	if err := os.Rename(current, rotated); err != nil {
		return fmt.Errorf("failed to rename audit file: %w", err)
	}

	if err := r.cleanupOldFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to cleanup old audit files: %v\n", err)
	}

	return r.openFile()
}

// cleanupOldFiles removes rotated files beyond the retention limit
func (r *FileRecorder) cleanupOldFiles() error {
	files, err := r.rotatedFiles()
	if err != nil {
		return err
	}

	if len(files) <= r.maxFiles {
		return nil
	}

	for _, file := range files[:len(files)-r.maxFiles] {
		if err := os.Remove(file); err != nil {
			return err
		}
	}

	return nil
}

// rotatedFiles lists rotated files, oldest first
func (r *FileRecorder) rotatedFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(r.basePath, "audit-*.log"))
	if err != nil {
		return nil, err
	}
	// Timestamped names sort chronologically
	sort.Strings(files)
	return files, nil
}

// Record appends one record as a JSON line
func (r *FileRecorder) Record(ctx context.Context, record *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return fmt.Errorf("audit file is closed")
	}

	if record.Timestamp.IsZero() {
		record.Timestamp = r.now().UTC()
	}

	if r.rotate {
		if info, err := r.file.Stat(); err == nil && info.Size() >= r.maxSize {
			if err := r.rotateFile(); err != nil {
				return fmt.Errorf("failed to rotate audit file: %w", err)
			}
		}
	}

	if err := r.encoder.Encode(record); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}

	return nil
}

// Close closes the current file
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}

	return nil
}

// ReadRecords reads up to count records from the current file (0 for all)
func (r *FileRecorder) ReadRecords(count int) ([]*Record, error) {
	file, err := os.Open(filepath.Join(r.basePath, currentFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	defer file.Close()

	var records []*Record
	decoder := json.NewDecoder(file)

	for {
		var record Record
		if err := decoder.Decode(&record); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode audit record: %w", err)
		}
		records = append(records, &record)

		if count > 0 && len(records) >= count {
			break
		}
	}

	return records, nil
}
