package storage

import (
	"testing"
	"time"

	"github.com/Anuvesh07/Planicorn/domain"
)

func TestEntityRoundTrip(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	completed := created.Add(time.Hour)
	task := domain.Task{
		ID:          "t1",
		OwnerID:     "alice",
		Title:       "Draft release notes",
		Description: "first pass",
		Lane:        domain.LaneDone,
		Rank:        3,
		CompletedAt: &completed,
		CreatedAt:   created,
		UpdatedAt:   completed,
	}

	got, err := fromEntity(toEntity(task))
	if err != nil {
		t.Fatalf("fromEntity: %v", err)
	}
	if got.ID != "t1" || got.OwnerID != "alice" || got.Lane != domain.LaneDone || got.Rank != 3 {
		t.Fatalf("unexpected task %+v", got)
	}
	if !got.CreatedAt.Equal(created) || !got.UpdatedAt.Equal(completed) {
		t.Fatalf("timestamps not preserved: %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Fatalf("completion stamp not preserved: %v", got.CompletedAt)
	}
}

func TestFromEntityRejectsMalformedTimestamps(t *testing.T) {
	valid := toEntity(domain.Task{
		ID:        "t1",
		OwnerID:   "alice",
		Lane:      domain.LaneTodo,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})

	cases := []struct {
		name   string
		mutate func(*taskEntity)
	}{
		{"created", func(e *taskEntity) { e.CreatedAt = "yesterday" }},
		{"updated", func(e *taskEntity) { e.UpdatedAt = "" }},
		{"completed", func(e *taskEntity) { e.CompletedAt = "not-a-time" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ent := valid
			tc.mutate(&ent)
			if _, err := fromEntity(ent); err == nil {
				t.Fatal("expected error for malformed timestamp")
			}
		})
	}
}
