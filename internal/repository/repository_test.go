package repository

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"eload-service/internal/model"
)

func record(op string, status model.CommandStatus, ms int64, created time.Time) *model.CommandRecord {
	return &model.CommandRecord{
		ID:         uuid.New(),
		DeviceID:   "kel-1",
		Operation:  op,
		Status:     status,
		DurationMs: ms,
		StartedAt:  created,
		CreatedAt:  created,
	}
}

func TestMemoryRepositoryRing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCommandRepository(3)
	base := time.Now()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		rec := record("set_current", model.CommandStatusSuccess, 1, base.Add(time.Duration(i)*time.Second))
		ids = append(ids, rec.ID)
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	list, total, err := repo.List(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	got := []uuid.UUID{list[0].ID, list[1].ID, list[2].ID}
	want := []uuid.UUID{ids[4], ids[3], ids[2]}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("List() order = %v, want %v", got, want)
	}

	var notFound *NotFoundError
	if _, err := repo.GetByID(ctx, ids[0]); !errors.As(err, &notFound) {
		t.Errorf("GetByID(evicted) error = %v", err)
	}
	if rec, err := repo.GetByID(ctx, ids[4]); err != nil || rec.ID != ids[4] {
		t.Errorf("GetByID() = %v, %v", rec, err)
	}
}

func TestMemoryRepositoryFilterAndStats(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCommandRepository(10)
	now := time.Now()

	repo.Create(ctx, record("set_current", model.CommandStatusSuccess, 10, now.Add(-time.Hour)))
	repo.Create(ctx, record("set_current", model.CommandStatusRejected, 0, now))
	repo.Create(ctx, record("set_list", model.CommandStatusFailed, 20, now))
	repo.Create(ctx, record("status", model.CommandStatusSuccess, 30, now))

	list, total, _ := repo.List(ctx, &model.CommandFilter{Operation: "set_current"})
	if total != 2 || len(list) != 2 {
		t.Errorf("List(operation) total = %d", total)
	}
	list, total, _ = repo.List(ctx, &model.CommandFilter{Limit: 2, Offset: 3})
	if total != 4 || len(list) != 1 {
		t.Errorf("List(page) = %d records of %d", len(list), total)
	}

	stats, err := repo.GetStats(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalCommands != 4 || stats.Successful != 2 || stats.Rejected != 1 || stats.Failed != 1 {
		t.Errorf("GetStats() = %+v", stats)
	}
	if stats.AvgDurationMs != 15 || stats.ByOperation["set_current"] != 2 {
		t.Errorf("GetStats() avg = %v by operation = %v", stats.AvgDurationMs, stats.ByOperation)
	}

	since := now.Add(-time.Minute)
	if stats, _ = repo.GetStats(ctx, &since); stats.TotalCommands != 3 {
		t.Errorf("GetStats(since) total = %d, want 3", stats.TotalCommands)
	}

	deleted, err := repo.DeleteOlderThan(ctx, since)
	if err != nil || deleted != 1 {
		t.Fatalf("DeleteOlderThan() = %d, %v", deleted, err)
	}
	if _, total, _ = repo.List(ctx, nil); total != 3 {
		t.Errorf("total after delete = %d, want 3", total)
	}
}

func TestBuildCommandWhere(t *testing.T) {
	since := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		filter    *model.CommandFilter
		wantWhere string
		wantArgs  int
	}{
		{"nil", nil, "", 0},
		{"empty", &model.CommandFilter{}, "", 0},
		{"operation", &model.CommandFilter{Operation: "set_list"}, "WHERE operation = $1", 1},
		{"all", &model.CommandFilter{Operation: "set_list", Status: model.CommandStatusFailed, Since: &since},
			"WHERE operation = $1 AND status = $2 AND created_at >= $3", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildCommandWhere(tt.filter)
			if where != tt.wantWhere || len(args) != tt.wantArgs {
				t.Errorf("buildCommandWhere() = %q, %d args; want %q, %d", where, len(args), tt.wantWhere, tt.wantArgs)
			}
		})
	}
}

func TestPageOf(t *testing.T) {
	tests := []struct {
		filter     *model.CommandFilter
		wantLimit  int
		wantOffset int
	}{
		{nil, 50, 0},
		{&model.CommandFilter{Limit: 10, Offset: 20}, 10, 20},
		{&model.CommandFilter{Limit: 10000}, 500, 0},
		{&model.CommandFilter{Limit: -1, Offset: -5}, 50, 0},
	}

	for _, tt := range tests {
		limit, offset := pageOf(tt.filter)
		if limit != tt.wantLimit || offset != tt.wantOffset {
			t.Errorf("pageOf(%+v) = %d, %d", tt.filter, limit, offset)
		}
	}
}
