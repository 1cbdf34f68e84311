package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/sensei-scan/internal/scan/domain"
	"github.com/cuongbtq/sensei-scan/shared/kvstore"
)

// ResultStore holds write-once scan results keyed by id.
// Reads may run concurrently with the single writer.
type ResultStore struct {
	mu      sync.RWMutex
	store   kvstore.Store
	logger  *slog.Logger
	results []domain.ScanResult
}

// LoadResults rehydrates the results collection from the store
func LoadResults(ctx context.Context, store kvstore.Store, logger *slog.Logger) (*ResultStore, error) {
	rs := &ResultStore{store: store, logger: logger}

	raw, found, err := store.Get(ctx, domain.ResultsKey)
	if err != nil {
		return nil, fmt.Errorf("%w: load results: %v", domain.ErrPersistence, err)
	}
	if found {
		if err := json.Unmarshal(raw, &rs.results); err != nil {
			return nil, fmt.Errorf("failed to decode scan results: %w", err)
		}
	}

	logger.Info("Scan results loaded",
		slog.Int("results", len(rs.results)),
	)
	return rs, nil
}

// Put appends a new result. Ids are write-once.
func (rs *ResultStore) Put(ctx context.Context, result domain.ScanResult) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.indexOf(result.ID) >= 0 {
		return fmt.Errorf("result %s already stored", result.ID)
	}

	next := make([]domain.ScanResult, len(rs.results), len(rs.results)+1)
	copy(next, rs.results)
	next = append(next, cloneResult(result))
	return rs.commit(ctx, next)
}

// Get returns a copy of the result with the given id or domain.ErrResultNotFound
func (rs *ResultStore) Get(_ context.Context, id string) (domain.ScanResult, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	i := rs.indexOf(id)
	if i < 0 {
		return domain.ScanResult{}, fmt.Errorf("%w: %s", domain.ErrResultNotFound, id)
	}
	return cloneResult(rs.results[i]), nil
}

// Delete removes a result. Jobs that reference it keep a dangling id.
func (rs *ResultStore) Delete(ctx context.Context, id string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	i := rs.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", domain.ErrResultNotFound, id)
	}

	next := make([]domain.ScanResult, 0, len(rs.results)-1)
	next = append(next, rs.results[:i]...)
	next = append(next, rs.results[i+1:]...)
	return rs.commit(ctx, next)
}

// Len returns the number of stored results
func (rs *ResultStore) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.results)
}

func (rs *ResultStore) indexOf(id string) int {
	for i := range rs.results {
		if rs.results[i].ID == id {
			return i
		}
	}
	return -1
}

func (rs *ResultStore) commit(ctx context.Context, next []domain.ScanResult) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode scan results: %w", err)
	}
	if err := rs.store.Set(ctx, domain.ResultsKey, raw); err != nil {
		rs.logger.Error("Failed to persist scan results",
			slog.Int("results", len(next)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: save results: %v", domain.ErrPersistence, err)
	}
	rs.results = next
	return nil
}

func cloneResult(r domain.ScanResult) domain.ScanResult {
	findings := make([]domain.Finding, len(r.Findings))
	copy(findings, r.Findings)
	r.Findings = findings
	return r
}

// Reader reads the persisted collections directly, without caching.
// Other processes use it to observe what the scheduler has written.
type Reader struct {
	store kvstore.Store
}

// NewReader creates a Reader over store
func NewReader(store kvstore.Store) *Reader {
	return &Reader{store: store}
}

// Jobs returns the persisted queue in insertion order
func (r *Reader) Jobs(ctx context.Context) ([]domain.ScanJob, error) {
	var jobs []domain.ScanJob
	if err := r.load(ctx, domain.QueueKey, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Get returns the persisted result with the given id
func (r *Reader) Get(ctx context.Context, id string) (domain.ScanResult, error) {
	var results []domain.ScanResult
	if err := r.load(ctx, domain.ResultsKey, &results); err != nil {
		return domain.ScanResult{}, err
	}
	for _, result := range results {
		if result.ID == id {
			return result, nil
		}
	}
	return domain.ScanResult{}, fmt.Errorf("%w: %s", domain.ErrResultNotFound, id)
}

func (r *Reader) load(ctx context.Context, key string, dest any) error {
	raw, found, err := r.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", domain.ErrPersistence, key, err)
	}
	if !found {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
