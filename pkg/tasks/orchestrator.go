// Package tasks runs the background content-generation work: a worker pool
// consuming enqueued tasks, a bounded retry loop around each task body, and
// a reaper that releases records stuck in the processing state.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/postpilot/postpilot/pkg/agents"
	"github.com/postpilot/postpilot/pkg/storage"
)

// Type identifies a task body.
type Type string

const (
	TypeGenerateTopics        Type = "generate_topics"
	TypeGeneratePost          Type = "generate_post"
	TypeImprovePost           Type = "improve_post"
	TypeRegenerateImagePrompt Type = "regenerate_image_prompt"
)

// State represents the lifecycle of an enqueued task.
type State string

const (
	StatePending State = "pending"
	StateStarted State = "started"
	StateRetry   State = "retry"
	StateSuccess State = "success"
	StateFailure State = "failure"
)

// Result statuses. Every task produces a result envelope with one of these
// regardless of outcome.
const (
	StatusSuccess = "success"
	StatusWarning = "warning"
	StatusError   = "error"
)

// Result is the envelope returned by every task.
type Result struct {
	Status      string     `json:"status"`
	Message     string     `json:"message"`
	ThemeID     *uuid.UUID `json:"theme_id,omitempty"`
	PostID      *uuid.UUID `json:"post_id,omitempty"`
	TopicsCount int        `json:"topics_count,omitempty"`
	Action      string     `json:"action,omitempty"`
}

// Args carries the parameters of a task.
type Args struct {
	ThemeID  uuid.UUID `json:"theme_id,omitempty"`
	PostID   uuid.UUID `json:"post_id,omitempty"`
	Topic    string    `json:"topic,omitempty"`
	PostType string    `json:"post_type,omitempty"`
}

// Task is a unit of background work tracked by the orchestrator.
type Task struct {
	ID          string     `json:"id"`
	Type        Type       `json:"type"`
	State       State      `json:"state"`
	Args        Args       `json:"args"`
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Attempt     int        `json:"attempt"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the task has finished.
func (t *Task) Terminal() bool {
	return t.State == StateSuccess || t.State == StateFailure
}

// TopicGenerator proposes new topics for a theme.
type TopicGenerator interface {
	Generate(ctx context.Context, themeTitle string, existing []agents.Topic) (agents.TopicBatch, error)
}

// ContentGenerator drafts a post or article for a topic.
type ContentGenerator interface {
	Generate(ctx context.Context, topic, postType, themeTitle string, topicData *agents.Topic) (agents.GeneratedContent, error)
}

// Improver rewrites existing post content.
type Improver interface {
	Improve(ctx context.Context, currentContent, postTitle, postType, topic string) agents.Improvement
}

// ImagePromptGenerator produces cover-image prompts for articles.
type ImagePromptGenerator interface {
	Generate(ctx context.Context, postTitle, topic, themeTitle, currentPrompt string) (agents.ImagePrompt, error)
}

// Agents bundles the four prompt agents the task bodies call. Each slot is
// an interface so tests can substitute fakes.
type Agents struct {
	Topics  TopicGenerator
	Content ContentGenerator
	Improve Improver
	Image   ImagePromptGenerator
}

// Options configures the orchestrator.
type Options struct {
	Workers    int           // worker goroutines, default 4
	MaxRetries int           // retries after the first attempt, default 3
	Backoff    time.Duration // base backoff, multiplied by attempt number, default 60s
	Model      string        // model name recorded on generated posts
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 60 * time.Second
	}
	return o
}

// ErrValidation marks domain validation failures rejected before a task is
// enqueued.
var ErrValidation = errors.New("validation failed")

// Orchestrator validates, enqueues, and executes background tasks.
type Orchestrator struct {
	store  storage.Store
	agents Agents
	opts   Options

	mu    sync.RWMutex
	tasks map[string]*Task

	queue chan string
	wg    sync.WaitGroup

	// injectable for tests
	sleep func(time.Duration)
	now   func() time.Time
}

// NewOrchestrator creates an orchestrator. Call Start to launch workers.
func NewOrchestrator(store storage.Store, ag Agents, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		store:  store,
		agents: ag,
		opts:   opts,
		tasks:  make(map[string]*Task),
		queue:  make(chan string, 256),
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// Start launches the worker pool. Workers run until Stop is called or the
// context is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	for i := 0; i < o.opts.Workers; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id, ok := <-o.queue:
					if !ok {
						return
					}
					o.run(ctx, id)
				}
			}
		}()
	}
}

// Stop closes the queue and waits for in-flight tasks to finish.
func (o *Orchestrator) Stop() {
	close(o.queue)
	o.wg.Wait()
}

// Enqueue validates the request, claims the target record, and hands the
// task to the worker pool. The record is marked processing before Enqueue
// returns, so a status check immediately afterwards observes "processing".
//
// Validation failures return ErrValidation-wrapped errors and enqueue
// nothing. A record already being processed returns a warning result and
// enqueues nothing.
func (o *Orchestrator) Enqueue(ctx context.Context, typ Type, args Args) (*Task, *Result, error) {
	kind, recordID, err := o.validate(ctx, typ, args)
	if err != nil {
		return nil, nil, err
	}

	if err := o.store.TryMarkProcessing(ctx, kind, recordID); err != nil {
		if errors.Is(err, storage.ErrAlreadyProcessing) {
			return nil, &Result{
				Status:  StatusWarning,
				Message: fmt.Sprintf("%s is already being processed", kind),
			}, nil
		}
		return nil, nil, err
	}

	task := &Task{
		ID:        uuid.New().String(),
		Type:      typ,
		State:     StatePending,
		Args:      args,
		CreatedAt: o.now(),
	}

	o.mu.Lock()
	o.tasks[task.ID] = task
	o.mu.Unlock()

	o.queue <- task.ID

	return o.snapshot(task.ID), nil, nil
}

// validate checks the request synchronously and resolves the record the
// task will claim.
func (o *Orchestrator) validate(ctx context.Context, typ Type, args Args) (storage.RecordKind, uuid.UUID, error) {
	switch typ {
	case TypeGenerateTopics:
		return storage.KindTheme, args.ThemeID, nil
	case TypeGeneratePost:
		if args.Topic == "" {
			return "", uuid.Nil, fmt.Errorf("%w: topic is required", ErrValidation)
		}
		if args.PostType != agents.PostTypeSimple && args.PostType != agents.PostTypeArticle {
			return "", uuid.Nil, fmt.Errorf("%w: unknown post type %q", ErrValidation, args.PostType)
		}
		return storage.KindTheme, args.ThemeID, nil
	case TypeImprovePost:
		return storage.KindPost, args.PostID, nil
	case TypeRegenerateImagePrompt:
		post, err := o.store.GetPost(ctx, args.PostID)
		if err != nil {
			return "", uuid.Nil, err
		}
		if post.PostType != agents.PostTypeArticle {
			return "", uuid.Nil, fmt.Errorf("%w: image prompts are only available for articles", ErrValidation)
		}
		return storage.KindPost, args.PostID, nil
	default:
		return "", uuid.Nil, fmt.Errorf("%w: unknown task type %q", ErrValidation, typ)
	}
}

// Status returns a snapshot of the task, or nil when the id is unknown.
func (o *Orchestrator) Status(id string) *Task {
	return o.snapshot(id)
}

func (o *Orchestrator) snapshot(id string) *Task {
	o.mu.RLock()
	defer o.mu.RUnlock()

	task, ok := o.tasks[id]
	if !ok {
		return nil
	}
	copy := *task
	if task.Result != nil {
		r := *task.Result
		copy.Result = &r
	}
	return &copy
}

func (o *Orchestrator) setState(id string, state State, mutate func(*Task)) {
	o.mu.Lock()
	defer o.mu.Unlock()

	task, ok := o.tasks[id]
	if !ok {
		return
	}
	task.State = state
	if mutate != nil {
		mutate(task)
	}
}

// run executes a task with the bounded retry loop. Transport and store
// errors are retried with linear backoff; not-found errors are terminal
// because retrying cannot restore a missing record. Task bodies report
// domain failures through the result envelope, which is never retried.
func (o *Orchestrator) run(ctx context.Context, id string) {
	task := o.snapshot(id)
	if task == nil {
		return
	}

	started := o.now()
	o.setState(id, StateStarted, func(t *Task) { t.StartedAt = &started })

	var lastErr error
	for attempt := 1; attempt <= o.opts.MaxRetries+1; attempt++ {
		o.setState(id, StateStarted, func(t *Task) { t.Attempt = attempt })

		result, err := o.execute(ctx, task.Type, task.Args)
		if err == nil {
			state := StateSuccess
			if result.Status == StatusError {
				state = StateFailure
			}
			completed := o.now()
			o.setState(id, state, func(t *Task) {
				t.Result = &result
				t.CompletedAt = &completed
			})
			return
		}

		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("task %s (%s): record missing: %v", id, task.Type, err)
			completed := o.now()
			o.setState(id, StateFailure, func(t *Task) {
				t.Result = &Result{Status: StatusError, Message: err.Error()}
				t.Error = err.Error()
				t.CompletedAt = &completed
			})
			return
		}

		lastErr = err
		if attempt <= o.opts.MaxRetries {
			backoff := time.Duration(attempt) * o.opts.Backoff
			log.Printf("task %s (%s): attempt %d failed, retrying in %s: %v", id, task.Type, attempt, backoff, err)
			o.setState(id, StateRetry, nil)
			o.sleep(backoff)
		}
	}

	log.Printf("task %s (%s): retries exhausted: %v", id, task.Type, lastErr)
	o.cleanupFailure(ctx, task.Type, task.Args)

	completed := o.now()
	o.setState(id, StateFailure, func(t *Task) {
		t.Result = &Result{Status: StatusError, Message: lastErr.Error()}
		t.Error = lastErr.Error()
		t.CompletedAt = &completed
	})
}

func (o *Orchestrator) execute(ctx context.Context, typ Type, args Args) (Result, error) {
	switch typ {
	case TypeGenerateTopics:
		return o.generateTopics(ctx, args)
	case TypeGeneratePost:
		return o.generatePost(ctx, args)
	case TypeImprovePost:
		return o.improvePost(ctx, args)
	case TypeRegenerateImagePrompt:
		return o.regenerateImagePrompt(ctx, args)
	default:
		return Result{}, fmt.Errorf("unknown task type %q", typ)
	}
}

// cleanupFailure force-releases the claimed record after retries are
// exhausted. Best effort: any error here is swallowed so it never masks
// the task's own failure.
func (o *Orchestrator) cleanupFailure(ctx context.Context, typ Type, args Args) {
	switch typ {
	case TypeGenerateTopics, TypeGeneratePost:
		theme, err := o.store.GetTheme(ctx, args.ThemeID)
		if err != nil {
			log.Printf("failure cleanup: load theme %s: %v", args.ThemeID, err)
			return
		}
		theme.IsProcessing = false
		theme.ProcessingStatus = storage.ProcessingFailed
		if err := o.store.UpdateTheme(ctx, theme); err != nil {
			log.Printf("failure cleanup: release theme %s: %v", args.ThemeID, err)
		}
	case TypeImprovePost, TypeRegenerateImagePrompt:
		post, err := o.store.GetPost(ctx, args.PostID)
		if err != nil {
			log.Printf("failure cleanup: load post %s: %v", args.PostID, err)
			return
		}
		post.IsProcessing = false
		post.ProcessingStatus = storage.ProcessingFailed
		if err := o.store.UpdatePost(ctx, post); err != nil {
			log.Printf("failure cleanup: release post %s: %v", args.PostID, err)
		}
	}
}
