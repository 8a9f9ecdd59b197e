package portfolio

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"cortexre/internal/logging"
)

// Store holds the current Dataset snapshot and optionally hot-reloads it
// when the backing file changes. Readers always get a consistent snapshot;
// a reload swaps the pointer atomically under the lock.
type Store struct {
	mu      sync.RWMutex
	dataset *Dataset
	path    string

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewStore loads the dataset at path and returns a Store serving it.
func NewStore(path string) (*Store, error) {
	ds, err := LoadCSV(path)
	if err != nil {
		return nil, err
	}
	return &Store{dataset: ds, path: path}, nil
}

// NewStoreFromDataset wraps an already-built dataset, mainly for tests.
func NewStoreFromDataset(ds *Dataset) *Store {
	return &Store{dataset: ds}
}

// Dataset returns the current snapshot. Safe for concurrent use; callers
// keep the snapshot they were handed even across a reload.
func (s *Store) Dataset() *Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataset
}

// Watch starts reloading the dataset when the backing file is rewritten.
// Reload failures keep the previous snapshot in place. The watch stops when
// ctx is cancelled or Close is called.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.path); err != nil {
		w.Close()
		return err
	}
	s.watcher = w
	s.done = make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Editors often emit a burst of events for one save; debounce
		// so we reload once per burst.
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					pending = time.After(200 * time.Millisecond)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logging.PortfolioWarn("dataset watcher error: %v", err)
			case <-pending:
				pending = nil
				s.reload()
			}
		}
	}()
	return nil
}

func (s *Store) reload() {
	ds, err := LoadCSV(s.path)
	if err != nil {
		logging.PortfolioWarn("dataset reload failed, keeping previous snapshot: %v", err)
		return
	}
	s.mu.Lock()
	s.dataset = ds
	s.mu.Unlock()
	logging.Portfolio("dataset reloaded: %d records", ds.Len())
}

// Close stops the watcher goroutine and releases the fsnotify handle.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	err := s.watcher.Close()
	s.wg.Wait()
	s.watcher = nil
	return err
}
