package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Anuvesh07/Planicorn/domain"
)

// Remote is the mutation surface the board reconciles against. *Client
// implements it; tests substitute fakes.
type Remote interface {
	ListTasks(ctx context.Context, opts ListOptions) ([]domain.Task, Pagination, error)
	CreateTask(ctx context.Context, draft domain.Draft) (domain.Task, error)
	UpdateTask(ctx context.Context, taskID string, patch domain.Patch) (domain.Task, error)
	DeleteTask(ctx context.Context, taskID string) (domain.Task, error)
	ChangeStatus(ctx context.Context, taskID string, lane domain.Lane, rank *int) (domain.Task, error)
}

// MutationState tracks one pending mutation through its lifecycle.
type MutationState int

const (
	StateIdle MutationState = iota
	// StateOptimistic: local state updated, request in flight or debounced.
	StateOptimistic
	// StateConfirmed: the server's canonical record has been merged in.
	StateConfirmed
	// StateRolledBack: the request failed and the prior state was restored.
	StateRolledBack
)

const (
	defaultDebounceInterval = 250 * time.Millisecond
	defaultCacheTTL         = 30 * time.Second
	defaultRequestTimeout   = 10 * time.Second
	refreshPageSize         = 100
)

// Options configures a Board.
type Options struct {
	// DebounceInterval is the window within which rapid moves of the same
	// task collapse into a single network call.
	DebounceInterval time.Duration
	// CacheTTL bounds how long a fetched listing is reused before Tasks
	// refetches from the server.
	CacheTTL time.Duration
	// RequestTimeout bounds each debounced network call.
	RequestTimeout time.Duration
	// OnError receives exactly one callback per rolled-back debounced move.
	OnError func(taskID string, err error)
}

type pendingMove struct {
	timer    *time.Timer
	lane     domain.Lane
	rank     *int
	snapshot domain.Task
	gen      uint64
}

// Board keeps a locally cached copy of the account's task list and makes
// mutations feel immediate: every user action is applied to the local copy
// first, then reconciled against the server's canonical record, rolling back
// on failure. Moves are debounced per task so a burst of drags produces a
// single network call carrying the final target state.
type Board struct {
	remote Remote
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	tasks     map[string]domain.Task
	pending   map[string]*pendingMove
	states    map[string]MutationState
	fetchedAt time.Time
	closed    bool
}

// NewBoard creates a Board over the given remote.
func NewBoard(remote Remote, opts Options) *Board {
	if opts.DebounceInterval <= 0 {
		opts.DebounceInterval = defaultDebounceInterval
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Board{
		remote:  remote,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(map[string]domain.Task),
		pending: make(map[string]*pendingMove),
		states:  make(map[string]MutationState),
	}
}

// Refresh refetches the full board from the server, keeping optimistic
// values for tasks that still have a move in flight.
func (b *Board) Refresh(ctx context.Context) error {
	var all []domain.Task
	page := 1
	for {
		tasks, pg, err := b.remote.ListTasks(ctx, ListOptions{Page: page, Limit: refreshPageSize})
		if err != nil {
			return err
		}
		all = append(all, tasks...)
		if len(tasks) == 0 || pg.TotalPages == 0 || page >= pg.TotalPages {
			break
		}
		page++
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	fresh := make(map[string]domain.Task, len(all))
	for _, t := range all {
		fresh[t.ID] = t
	}
	for id, p := range b.pending {
		if local, ok := b.tasks[id]; ok {
			if canonical, ok := fresh[id]; ok {
				// Roll back to the latest canonical record, not the stale one.
				p.snapshot = canonical
			}
			fresh[id] = local
		}
	}
	b.tasks = fresh
	b.fetchedAt = time.Now()
	return nil
}

// Tasks returns the board in display order, refetching when the cached
// listing is older than the configured TTL.
func (b *Board) Tasks(ctx context.Context) ([]domain.Task, error) {
	b.mu.Lock()
	stale := b.fetchedAt.IsZero() || time.Since(b.fetchedAt) >= b.opts.CacheTTL
	b.mu.Unlock()
	if stale {
		if err := b.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return b.Snapshot(), nil
}

// Snapshot returns the local board in display order without touching the
// network.
func (b *Board) Snapshot() []domain.Task {
	b.mu.Lock()
	out := make([]domain.Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		out = append(out, t)
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return domain.Less(out[i], out[j]) })
	return out
}

// MutationState reports the lifecycle state of the task's latest mutation.
func (b *Board) MutationState(taskID string) MutationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[taskID]; ok {
		return StateOptimistic
	}
	return b.states[taskID]
}

// Create inserts the task optimistically under a provisional id, sends the
// creation and swaps in the server's canonical record. On failure the
// provisional entry is removed and the error returned.
func (b *Board) Create(ctx context.Context, draft domain.Draft) (domain.Task, error) {
	now := time.Now()
	lane := draft.Lane
	if lane == "" {
		lane = domain.LaneTodo
	}
	provisional := domain.Task{
		ID:          "pending-" + uuid.NewString(),
		Title:       draft.Title,
		Description: draft.Description,
		Lane:        lane,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.mu.Lock()
	if draft.Rank != nil {
		provisional.Rank = *draft.Rank
	} else {
		provisional.Rank = domain.NextRank(b.taskListLocked(), lane)
	}
	b.tasks[provisional.ID] = provisional
	b.states[provisional.ID] = StateOptimistic
	b.mu.Unlock()

	task, err := b.remote.CreateTask(ctx, draft)

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tasks, provisional.ID)
	delete(b.states, provisional.ID)
	if err != nil {
		return domain.Task{}, err
	}
	b.tasks[task.ID] = task
	b.states[task.ID] = StateConfirmed
	b.fetchedAt = time.Time{}
	return task, nil
}

// Update applies the patch optimistically, sends it, and merges the
// canonical record. On failure the pre-mutation state is restored and the
// error returned.
func (b *Board) Update(ctx context.Context, taskID string, patch domain.Patch) (domain.Task, error) {
	b.mu.Lock()
	prior, ok := b.tasks[taskID]
	if !ok {
		b.mu.Unlock()
		return domain.Task{}, domain.ErrNotFound
	}
	local := prior
	local.Apply(patch, time.Now())
	b.tasks[taskID] = local
	b.states[taskID] = StateOptimistic
	b.mu.Unlock()

	task, err := b.remote.UpdateTask(ctx, taskID, patch)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.tasks[taskID] = prior
		b.states[taskID] = StateRolledBack
		return domain.Task{}, err
	}
	b.tasks[taskID] = task
	b.states[taskID] = StateConfirmed
	b.fetchedAt = time.Time{}
	return task, nil
}

// Delete removes the task optimistically; a failed request restores it. Any
// move still debouncing for the task is abandoned: the user deleted the card,
// so its pending cycle must not fire or roll the deletion back.
func (b *Board) Delete(ctx context.Context, taskID string) error {
	b.mu.Lock()
	prior, ok := b.tasks[taskID]
	if !ok {
		b.mu.Unlock()
		return domain.ErrNotFound
	}
	if p, ok := b.pending[taskID]; ok {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(b.pending, taskID)
	}
	delete(b.tasks, taskID)
	b.states[taskID] = StateOptimistic
	b.mu.Unlock()

	_, err := b.remote.DeleteTask(ctx, taskID)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.tasks[taskID] = prior
		b.states[taskID] = StateRolledBack
		return err
	}
	delete(b.states, taskID)
	b.fetchedAt = time.Time{}
	return nil
}

// Move places the task into the given lane (drag-and-drop). The local board
// updates immediately; the network call is debounced per task so only the
// last requested target within the window is sent. Failures roll the task
// back to its pre-move state and surface through Options.OnError.
func (b *Board) Move(taskID string, lane domain.Lane, rank *int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	t, ok := b.tasks[taskID]
	if !ok {
		return
	}

	p := b.pending[taskID]
	if p == nil {
		p = &pendingMove{snapshot: t}
		b.pending[taskID] = p
	} else if p.timer != nil {
		p.timer.Stop()
	}
	p.gen++
	p.lane = lane
	p.rank = rank
	gen := p.gen

	patch := domain.Patch{Lane: &lane, Rank: rank}
	t.Apply(patch, time.Now())
	b.tasks[taskID] = t
	b.states[taskID] = StateOptimistic

	p.timer = time.AfterFunc(b.opts.DebounceInterval, func() {
		b.flushMove(taskID, gen)
	})
}

func (b *Board) flushMove(taskID string, gen uint64) {
	b.mu.Lock()
	p := b.pending[taskID]
	if p == nil || p.gen != gen || b.closed {
		b.mu.Unlock()
		return
	}
	lane, rank := p.lane, p.rank
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(b.ctx, b.opts.RequestTimeout)
	task, err := b.remote.ChangeStatus(ctx, taskID, lane, rank)
	cancel()

	b.mu.Lock()
	p = b.pending[taskID]
	if p == nil || p.gen != gen {
		// Superseded by a later debounce cycle; that cycle reconciles.
		b.mu.Unlock()
		return
	}
	delete(b.pending, taskID)
	if err != nil {
		b.tasks[taskID] = p.snapshot
		b.states[taskID] = StateRolledBack
		cb := b.opts.OnError
		b.mu.Unlock()
		if cb != nil {
			cb(taskID, err)
		}
		return
	}
	b.tasks[taskID] = task
	b.states[taskID] = StateConfirmed
	b.fetchedAt = time.Time{}
	b.mu.Unlock()
}

// ApplyEvent merges a fan-out event into the local board. Upserts and
// deletes are keyed by id, so replayed events are no-ops. Events for a task
// with a move still pending are skipped (except deletion): the pending
// cycle's response carries the state that wins.
func (b *Board) ApplyEvent(ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch ev.Type {
	case domain.EventTaskDeleted:
		if p, ok := b.pending[ev.TaskID]; ok {
			if p.timer != nil {
				p.timer.Stop()
			}
			delete(b.pending, ev.TaskID)
		}
		delete(b.tasks, ev.TaskID)
		delete(b.states, ev.TaskID)
	case domain.EventTaskCreated, domain.EventTaskUpdated, domain.EventTaskStatusUpdated:
		if ev.Task == nil {
			return
		}
		if _, ok := b.pending[ev.TaskID]; ok {
			return
		}
		b.tasks[ev.TaskID] = *ev.Task
	}
}

// Close cancels pending debounced calls and tears the board down. No
// mutation still in flight is guaranteed to complete.
func (b *Board) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, p := range b.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(b.pending, id)
	}
	b.mu.Unlock()
	b.cancel()
}

func (b *Board) taskListLocked() []domain.Task {
	out := make([]domain.Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		out = append(out, t)
	}
	return out
}
