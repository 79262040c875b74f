package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// FileStore persists records as append-only JSONL, one record per line.
// Existing records are loaded at open and served from memory; every append
// is written and fsynced before it is acknowledged, so a decision is never
// reported to a caller before its record is durable.
type FileStore struct {
	path string
	mu   sync.RWMutex
	f    *os.File
	mem  MemoryStore
}

// NewFileStore opens or creates the JSONL ledger file at path, creating
// parent directories as needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: ledger path is empty", domain.ErrConfigInvalid)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	s := &FileStore{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) // #nosec G304 -- path is operator configuration
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	s.f = f
	return s, nil
}

func (s *FileStore) load() error {
	f, err := os.Open(s.path) // #nosec G304 -- path is operator configuration
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open ledger file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec domain.AttestationRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return fmt.Errorf("ledger file %s line %d: %w", s.path, line, err)
		}
		if err := s.mem.Append(context.Background(), &rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Append writes the record as one JSONL line and syncs the file.
func (s *FileStore) Append(ctx context.Context, rec *domain.AttestationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync ledger file: %w", err)
	}
	return s.mem.Append(ctx, rec)
}

// Record returns the record with the given sequence number.
func (s *FileStore) Record(ctx context.Context, seq uint64) (*domain.AttestationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mem.Record(ctx, seq)
}

// Records returns up to limit records starting at sequence from.
func (s *FileStore) Records(ctx context.Context, from uint64, limit int) ([]*domain.AttestationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mem.Records(ctx, from, limit)
}

// Count returns the number of stored records.
func (s *FileStore) Count(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mem.Count(ctx)
}

// Close closes the underlying file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
