// Package verify runs the pre-launch campaign checks as a background task
// that clients submit, poll and await.
package verify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/outreach/internal/campaign"
	"github.com/foxzi/outreach/internal/metrics"
)

// FailureMessage is the task message when any check fails
const FailureMessage = "Verification failed - please check your settings"

var (
	// ErrBusy is returned by Submit while another task is running
	ErrBusy = errors.New("verification already in progress")
	// ErrNotFound is returned by Get for unknown task ids
	ErrNotFound = errors.New("verification not found")
)

// StepStatus is the state of one check within a task
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepLoading StepStatus = "loading"
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
)

// State is the overall task state
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Check is one verification step. Run reports progress in percent and
// returns the success message.
type Check interface {
	Name() string
	Run(ctx context.Context, cfg campaign.Config, progress func(int)) (string, error)
}

// Step is the observable state of one check
type Step struct {
	Name     string     `json:"name"`
	Status   StepStatus `json:"status"`
	Progress int        `json:"progress"`
	Message  string     `json:"message,omitempty"`
}

// Snapshot is a point-in-time copy of a task
type Snapshot struct {
	ID         string     `json:"id"`
	State      State      `json:"state"`
	Steps      []Step     `json:"steps"`
	Message    string     `json:"message,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Task is one verification run
type Task struct {
	id   string
	done chan struct{}

	mu         sync.Mutex
	state      State
	steps      []Step
	message    string
	startedAt  time.Time
	finishedAt time.Time
}

// ID returns the task id
func (t *Task) ID() string {
	return t.id
}

// Done is closed when the task finishes
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Snapshot returns a copy of the current task state
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		ID:        t.id,
		State:     t.state,
		Steps:     append([]Step(nil), t.steps...),
		Message:   t.message,
		StartedAt: t.startedAt,
	}
	if !t.finishedAt.IsZero() {
		fin := t.finishedAt
		s.FinishedAt = &fin
	}
	return s
}

// Wait blocks until the task finishes or ctx is done
func (t *Task) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-t.done:
		return t.Snapshot(), nil
	case <-ctx.Done():
		return t.Snapshot(), ctx.Err()
	}
}

func (t *Task) update(i int, fn func(*Step)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.steps[i])
}

func (t *Task) finish(state State, message string) {
	t.mu.Lock()
	t.state = state
	t.message = message
	t.finishedAt = time.Now()
	t.mu.Unlock()
	close(t.done)
}

// Options configures a Runner
type Options struct {
	// Pause between consecutive checks
	Pause time.Duration
	// Number of finished tasks kept for polling
	History int
}

// Runner executes one verification task at a time
type Runner struct {
	checks []Check
	opts   Options
	logger *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	active *Task
	tasks  map[string]*Task
	order  []string
}

// NewRunner creates a runner for the given checks
func NewRunner(checks []Check, opts Options, logger *slog.Logger) *Runner {
	if opts.History <= 0 {
		opts.History = 32
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		checks:  checks,
		opts:    opts,
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
		tasks:   make(map[string]*Task),
	}
}

// Submit starts a task for a snapshot of cfg. Only one task runs at a time;
// a running task is not cancelled by the caller's context.
func (r *Runner) Submit(ctx context.Context, cfg campaign.Config) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return nil, ErrBusy
	}
	if r.baseCtx.Err() != nil {
		return nil, r.baseCtx.Err()
	}

	task := &Task{
		id:        uuid.New().String(),
		done:      make(chan struct{}),
		state:     StateRunning,
		steps:     make([]Step, len(r.checks)),
		startedAt: time.Now(),
	}
	for i, c := range r.checks {
		task.steps[i] = Step{Name: c.Name(), Status: StepPending}
	}

	r.active = task
	r.remember(task)

	r.logger.Info("verification started", "id", task.id, "checks", len(r.checks))
	metrics.VerificationStarted()

	r.wg.Add(1)
	go r.run(task, cfg.Clone())

	return task, nil
}

// Get returns a task by id
func (r *Runner) Get(id string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return task, nil
}

// Busy reports whether a task is running
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Close cancels a running task and waits for it to finish
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) remember(task *Task) {
	r.tasks[task.id] = task
	r.order = append(r.order, task.id)
	for len(r.order) > r.opts.History {
		delete(r.tasks, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *Runner) run(task *Task, cfg campaign.Config) {
	defer r.wg.Done()

	state, message := StateSucceeded, ""

	for i, check := range r.checks {
		if i > 0 && !sleep(r.baseCtx, r.opts.Pause) {
			state, message = StateFailed, FailureMessage
			break
		}

		task.update(i, func(s *Step) { s.Status = StepLoading })

		msg, err := check.Run(r.baseCtx, cfg, func(p int) {
			task.update(i, func(s *Step) { s.Progress = clamp(p) })
		})

		if err != nil {
			task.update(i, func(s *Step) {
				s.Status = StepFailed
				s.Message = FailureMessage
			})
			metrics.IncVerificationStep(check.Name(), string(StepFailed))
			r.logger.Info("verification check failed", "id", task.id, "check", check.Name(), "error", err)
			state, message = StateFailed, FailureMessage

			// Remaining checks still run unless the runner is closing
			if r.baseCtx.Err() != nil {
				break
			}
			continue
		}

		task.update(i, func(s *Step) {
			s.Status = StepSuccess
			s.Progress = 100
			s.Message = msg
		})
		metrics.IncVerificationStep(check.Name(), string(StepSuccess))
	}

	// Release the slot before waking waiters so they can submit again.
	r.mu.Lock()
	r.active = nil
	r.mu.Unlock()

	task.finish(state, message)
	metrics.VerificationFinished(string(state))
	r.logger.Info("verification finished", "id", task.id, "state", state)
}

func clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
