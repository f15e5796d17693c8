package domain

import (
	"time"
	"unicode/utf8"
)

// Lane is one of the three fixed board columns a task can occupy.
type Lane string

const (
	LaneTodo       Lane = "todo"
	LaneInProgress Lane = "inprogress"
	LaneDone       Lane = "done"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
)

// ParseLane converts a wire value into a Lane.
func ParseLane(s string) (Lane, bool) {
	switch Lane(s) {
	case LaneTodo, LaneInProgress, LaneDone:
		return Lane(s), true
	}
	return "", false
}

// Valid reports whether the lane is one of the three known columns.
func (l Lane) Valid() bool {
	_, ok := ParseLane(string(l))
	return ok
}

func laneIndex(l Lane) int {
	switch l {
	case LaneTodo:
		return 0
	case LaneInProgress:
		return 1
	case LaneDone:
		return 2
	}
	return 3
}

// Task represents a single board item.
type Task struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Lane        Lane       `json:"lane"`
	Rank        int        `json:"rank"`
	CompletedAt *time.Time `json:"completedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Draft holds caller-supplied fields for task creation. Lane defaults to
// todo and Rank, when nil, is assigned one past the lane's current maximum.
type Draft struct {
	Title       string
	Description string
	Lane        Lane
	Rank        *int
}

// Validate checks draft fields against the board limits.
func (d Draft) Validate() error {
	if d.Title == "" {
		return ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(d.Title) > MaxTitleLength {
		return ValidationError{Field: "title", Reason: "too long"}
	}
	if utf8.RuneCountInString(d.Description) > MaxDescriptionLength {
		return ValidationError{Field: "description", Reason: "too long"}
	}
	if d.Lane != "" && !d.Lane.Valid() {
		return ValidationError{Field: "lane", Reason: "unknown lane"}
	}
	if d.Rank != nil && *d.Rank < 0 {
		return ValidationError{Field: "rank", Reason: "must not be negative"}
	}
	return nil
}

// Patch carries a partial update; nil fields are left untouched.
type Patch struct {
	Title       *string
	Description *string
	Lane        *Lane
	Rank        *int
}

// Empty reports whether the patch carries no fields at all.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Lane == nil && p.Rank == nil
}

// Validate checks patch fields against the board limits.
func (p Patch) Validate() error {
	if p.Title != nil {
		if *p.Title == "" {
			return ValidationError{Field: "title", Reason: "must not be empty"}
		}
		if utf8.RuneCountInString(*p.Title) > MaxTitleLength {
			return ValidationError{Field: "title", Reason: "too long"}
		}
	}
	if p.Description != nil && utf8.RuneCountInString(*p.Description) > MaxDescriptionLength {
		return ValidationError{Field: "description", Reason: "too long"}
	}
	if p.Lane != nil && !p.Lane.Valid() {
		return ValidationError{Field: "lane", Reason: "unknown lane"}
	}
	if p.Rank != nil && *p.Rank < 0 {
		return ValidationError{Field: "rank", Reason: "must not be negative"}
	}
	return nil
}

// Apply merges the patch into the task. A lane transition into done stamps
// CompletedAt and a transition out of done clears it; writing the same lane
// again leaves the stamp untouched.
func (t *Task) Apply(p Patch, now time.Time) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Lane != nil && *p.Lane != t.Lane {
		if *p.Lane == LaneDone {
			done := now
			t.CompletedAt = &done
		} else if t.Lane == LaneDone {
			t.CompletedAt = nil
		}
		t.Lane = *p.Lane
	}
	if p.Rank != nil {
		t.Rank = *p.Rank
	}
	t.UpdatedAt = now
}

// Less orders tasks for display: lane, then rank ascending, ties broken by
// creation time descending so the newest task wins a shared rank.
func Less(a, b Task) bool {
	if ai, bi := laneIndex(a.Lane), laneIndex(b.Lane); ai != bi {
		return ai < bi
	}
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// NextRank returns one past the highest rank in the lane, or 0 for an empty lane.
func NextRank(tasks []Task, lane Lane) int {
	next := 0
	for _, t := range tasks {
		if t.Lane == lane && t.Rank+1 > next {
			next = t.Rank + 1
		}
	}
	return next
}
