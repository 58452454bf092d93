package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore persists keys as a JSON document. Every insert rewrites the
// file via temp file + rename, so a crash leaves either the old or the new
// set on disk. Suitable for a single process; use Redis or PostgreSQL when
// several instances share a ledger.
type FileStore struct {
	path string

	mu      sync.Mutex
	records []fileRecord
	index   map[Key]struct{}
}

type fileRecord struct {
	Key
	SentAt time.Time `json:"sent_at"`
}

type fileDocument struct {
	Version int          `json:"version"`
	Records []fileRecord `json:"records"`
}

// OpenFileStore loads path, or starts empty if it does not exist yet.
func OpenFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("ledger: file path is empty")
	}

	s := &FileStore{path: path, index: make(map[Key]struct{})}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}

	var doc fileDocument
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("ledger: decode %s: %w", path, err)
		}
	}
	for _, r := range doc.Records {
		if _, dup := s.index[r.Key]; dup {
			continue
		}
		s.index[r.Key] = struct{}{}
		s.records = append(s.records, r)
	}
	return s, nil
}

func (s *FileStore) Exists(_ context.Context, k Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[k]
	return ok, nil
}

func (s *FileStore) InsertIfAbsent(_ context.Context, k Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[k]; ok {
		return false, nil
	}

	records := append(s.records[:len(s.records):len(s.records)], fileRecord{Key: k, SentAt: time.Now().UTC()})
	if err := s.write(records); err != nil {
		return false, err
	}
	s.records = records
	s.index[k] = struct{}{}
	return true, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) write(records []fileRecord) error {
	data, err := json.MarshalIndent(fileDocument{Version: 1, Records: records}, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
