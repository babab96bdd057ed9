package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/aluiziolira/go-scrape-listings/models"
)

const lockRetryDelay = 100 * time.Millisecond

// pathLocks serialises snapshot updates within the process; the flock file covers
// other processes.
var pathLocks sync.Map

// Store is the durable snapshot of every record seen so far, keyed by URL.
type Store struct {
	path string
}

// NewStore returns a store backed by the CSV file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. A missing file is an empty store.
func (s *Store) Load() ([]*models.Product, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	idx, err := headerIndex(header)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", s.path, err)
	}

	var products []*models.Product
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read snapshot line %d: %w", line, err)
		}
		p, err := parseRow(idx, row)
		if err != nil {
			slog.Warn("skipping snapshot row", slog.String("path", s.path), slog.Int("line", line), slog.Any("error", err))
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

// Save replaces the snapshot atomically.
func (s *Store) Save(products []*models.Product) error {
	if err := ensureDir(s.path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.WriteString(utf8BOM); err != nil {
		cleanup()
		return fmt.Errorf("write snapshot bom: %w", err)
	}
	writer := csv.NewWriter(tmp)
	if err := writer.Write(Columns); err != nil {
		cleanup()
		return fmt.Errorf("write snapshot header: %w", err)
	}
	for _, p := range products {
		if err := writer.Write(productRow(p)); err != nil {
			cleanup()
			return fmt.Errorf("write snapshot row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		cleanup()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Update loads the snapshot, merges fresh into it and saves the result, holding the
// path lock for the whole read-modify-write.
func (s *Store) Update(ctx context.Context, fresh []*models.Product) ([]*models.Product, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	old, err := s.Load()
	if err != nil {
		return nil, err
	}
	merged := Merge(old, fresh)
	if err := s.Save(merged); err != nil {
		return nil, err
	}
	slog.Info("snapshot updated",
		slog.String("path", s.path),
		slog.Int("previous", len(old)),
		slog.Int("fresh", len(fresh)),
		slog.Int("total", len(merged)),
	)
	return merged, nil
}

func (s *Store) lock(ctx context.Context) (func(), error) {
	key, err := filepath.Abs(s.path)
	if err != nil {
		key = s.path
	}
	muAny, _ := pathLocks.LoadOrStore(key, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()

	if err := ensureDir(s.path); err != nil {
		mu.Unlock()
		return nil, err
	}
	fileLock := flock.New(s.path + ".lock")
	locked, err := fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		mu.Unlock()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("lock snapshot %s: %w", s.path, err)
	}

	return func() {
		if err := fileLock.Unlock(); err != nil {
			slog.Warn("unlock snapshot failed", slog.String("path", s.path), slog.Any("error", err))
		}
		mu.Unlock()
	}, nil
}
