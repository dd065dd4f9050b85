// internal/repository/memory_repository.go
package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"eload-service/internal/model"
)

// memoryCommandRepository keeps the most recent records in a ring when no
// database is configured
type memoryCommandRepository struct {
	mutex    sync.RWMutex
	records  []*model.CommandRecord
	next     int
	full     bool
	capacity int
}

// NewMemoryCommandRepository creates an in-process audit log holding up to
// capacity records
func NewMemoryCommandRepository(capacity int) CommandRepository {
	if capacity <= 0 {
		capacity = 1000
	}
	return &memoryCommandRepository{
		records:  make([]*model.CommandRecord, capacity),
		capacity: capacity,
	}
}

func (r *memoryCommandRepository) Create(_ context.Context, record *model.CommandRecord) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored := *record
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	r.records[r.next] = &stored
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
	return nil
}

func (r *memoryCommandRepository) GetByID(_ context.Context, id uuid.UUID) (*model.CommandRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, rec := range r.newestFirst() {
		if rec.ID == id {
			copied := *rec
			return &copied, nil
		}
	}
	return nil, &NotFoundError{ID: id}
}

func (r *memoryCommandRepository) List(_ context.Context, filter *model.CommandFilter) ([]*model.CommandRecord, int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	matched := []*model.CommandRecord{}
	for _, rec := range r.newestFirst() {
		if matches(rec, filter) {
			matched = append(matched, rec)
		}
	}

	total := len(matched)
	limit, offset := pageOf(filter)
	if offset >= total {
		return []*model.CommandRecord{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	page := make([]*model.CommandRecord, 0, end-offset)
	for _, rec := range matched[offset:end] {
		copied := *rec
		page = append(page, &copied)
	}
	return page, total, nil
}

func (r *memoryCommandRepository) GetStats(_ context.Context, since *time.Time) (*CommandStats, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	acc := newStatsAccumulator()
	for _, rec := range r.newestFirst() {
		if since != nil && rec.CreatedAt.Before(*since) {
			continue
		}
		acc.add(rec.Operation, rec.Status, 1, float64(rec.DurationMs))
	}
	return acc.stats(), nil
}

func (r *memoryCommandRepository) DeleteOlderThan(_ context.Context, olderThan time.Time) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	kept := []*model.CommandRecord{}
	var deleted int64
	all := r.newestFirst()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].CreatedAt.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, all[i])
	}

	r.records = make([]*model.CommandRecord, r.capacity)
	copy(r.records, kept)
	r.next = len(kept) % r.capacity
	r.full = len(kept) == r.capacity
	return deleted, nil
}

// newestFirst returns the stored records from the newest to the oldest
func (r *memoryCommandRepository) newestFirst() []*model.CommandRecord {
	count := r.next
	if r.full {
		count = r.capacity
	}

	out := make([]*model.CommandRecord, 0, count)
	for i := 1; i <= count; i++ {
		out = append(out, r.records[(r.next-i+r.capacity)%r.capacity])
	}
	return out
}

func matches(rec *model.CommandRecord, filter *model.CommandFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Operation != "" && rec.Operation != filter.Operation {
		return false
	}
	if filter.Status != "" && rec.Status != filter.Status {
		return false
	}
	if filter.Since != nil && rec.CreatedAt.Before(*filter.Since) {
		return false
	}
	return true
}
