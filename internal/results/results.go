// Package results keeps descriptions the user chose to save. Only text and counts are stored, never image bytes or face descriptors.
package results

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/sight-analyzer/pkg/pipeline"
	"github.com/menta2k/sight-analyzer/pkg/types"
)

// ErrNotFound is returned for unknown or expired result IDs
var ErrNotFound = errors.New("results: not found")

// Result is one saved analysis
type Result struct {
	ID          string     `json:"id"`
	Mode        types.Mode `json:"mode"`
	Description string     `json:"description"`
	Labels      []string   `json:"labels,omitempty"`
	FaceCount   int        `json:"faceCount"`
	Source      string     `json:"source,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// FromReport keeps the parts of a report that are safe to store
func FromReport(report *pipeline.Report, source string) *Result {
	r := &Result{
		Mode:        report.Mode,
		Description: report.Description,
		FaceCount:   len(report.Faces),
		Source:      source,
	}
	seen := map[string]bool{}
	for _, o := range report.Objects {
		if !seen[o.ClassName] {
			seen[o.ClassName] = true
			r.Labels = append(r.Labels, o.ClassName)
		}
	}
	return r
}

// Store persists saved results
type Store interface {
	// Save assigns an ID and timestamp when missing and returns the ID
	Save(ctx context.Context, r *Result) (string, error)
	Get(ctx context.Context, id string) (*Result, error)
	// List returns results newest first
	List(ctx context.Context) ([]Result, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

func prepare(r *Result, now time.Time) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now.UTC()
	}
}

// MemoryStore is a Store that lives for the process lifetime
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]Result
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an empty store. ttl <= 0 keeps results forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		results: make(map[string]Result),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) expired(r Result) bool {
	return m.ttl > 0 && m.now().Sub(r.CreatedAt) > m.ttl
}

func (m *MemoryStore) Save(ctx context.Context, r *Result) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prepare(r, m.now())

	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *r
	stored.Labels = append([]string(nil), r.Labels...)
	m.results[r.ID] = stored
	return r.ID, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[id]
	if !ok || m.expired(r) {
		return nil, ErrNotFound
	}
	r.Labels = append([]string(nil), r.Labels...)
	return &r, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Result, 0, len(m.results))
	for _, r := range m.results {
		if !m.expired(r) {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[id]; !ok {
		return ErrNotFound
	}
	delete(m.results, id)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func sortNewestFirst(rs []Result) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].CreatedAt.After(rs[j].CreatedAt)
	})
}
