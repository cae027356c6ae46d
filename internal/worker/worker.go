package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"taskify/backend/internal/cache"
	"taskify/backend/internal/config"

	"github.com/redis/go-redis/v9"
)

type JobType string

const (
	JobTypeTaskReminder JobType = "task_reminder"
)

const (
	readyQueue     = "taskify:jobs:ready"
	scheduledQueue = "taskify:jobs:scheduled"
	deadQueue      = "taskify:jobs:dead"
	jobData        = "taskify:jobs:data"
)

var ErrNoHandler = errors.New("no handler registered for job type")

type Job struct {
	ID        string            `json:"id"`
	Type      JobType           `json:"type"`
	Payload   map[string]string `json:"payload"`
	Attempts  int               `json:"attempts"`
	MaxTries  int               `json:"max_tries"`
	CreatedAt time.Time         `json:"created_at"`
	ProcessAt time.Time         `json:"process_at"`
}

type JobHandler func(ctx context.Context, job *Job) error

// JobQueue stores job bodies in a hash keyed by job ID. Delayed jobs wait in
// a sorted set scored by their due time until the worker promotes them to the
// ready list. Reusing an ID replaces the pending job.
//
// Schedule and Cancel run on request paths, so they go through the store's
// circuit breaker and per-call timeout. The worker side talks to the client
// directly.
type JobQueue struct {
	store    *cache.RedisStore
	client   *redis.Client
	maxTries int
	now      func() time.Time
}

func NewJobQueue(store *cache.RedisStore, maxTries int, now func() time.Time) *JobQueue {
	if maxTries < 1 {
		maxTries = 3
	}
	if now == nil {
		now = time.Now
	}
	return &JobQueue{store: store, client: store.Client(), maxTries: maxTries, now: now}
}

func (q *JobQueue) EnqueueAt(ctx context.Context, id string, jobType JobType, payload map[string]string, processAt time.Time) error {
	job := &Job{
		ID:        id,
		Type:      jobType,
		Payload:   payload,
		MaxTries:  q.maxTries,
		CreatedAt: q.now(),
		ProcessAt: processAt,
	}
	return q.schedule(ctx, job)
}

func (q *JobQueue) schedule(ctx context.Context, job *Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = q.store.Do(ctx, func(ctx context.Context) error {
		_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, jobData, job.ID, body)
			pipe.ZAdd(ctx, scheduledQueue, redis.Z{Score: float64(job.ProcessAt.UnixMilli()), Member: job.ID})
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.ID, err)
	}
	return nil
}

// Cancel drops a pending job. A job already handed to a worker still runs.
func (q *JobQueue) Cancel(ctx context.Context, id string) error {
	err := q.store.Do(ctx, func(ctx context.Context) error {
		_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, scheduledQueue, id)
			pipe.HDel(ctx, jobData, id)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", id, err)
	}
	return nil
}

// PromoteDue moves every scheduled job whose time has come onto the ready list.
func (q *JobQueue) PromoteDue(ctx context.Context) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, scheduledQueue, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read scheduled jobs: %w", err)
	}

	promoted := 0
	for _, id := range ids {
		// ZRem decides the winner when several workers promote at once.
		removed, err := q.client.ZRem(ctx, scheduledQueue, id).Result()
		if err != nil {
			return promoted, fmt.Errorf("failed to claim job %s: %w", id, err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.RPush(ctx, readyQueue, id).Err(); err != nil {
			return promoted, fmt.Errorf("failed to promote job %s: %w", id, err)
		}
		promoted++
	}
	return promoted, nil
}

func (q *JobQueue) load(ctx context.Context, id string) (*Job, error) {
	body, err := q.client.HGet(ctx, jobData, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

func (q *JobQueue) complete(ctx context.Context, id string) error {
	return q.client.HDel(ctx, jobData, id).Err()
}

func (q *JobQueue) bury(ctx context.Context, job *Job, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    q.now(),
	}

	body, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, deadQueue, body)
		pipe.HDel(ctx, jobData, job.ID)
		return nil
	})
	return err
}

func (q *JobQueue) Sizes(ctx context.Context) (map[string]int64, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, readyQueue)
	scheduled := pipe.ZCard(ctx, scheduledQueue)
	dead := pipe.LLen(ctx, deadQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return map[string]int64{
		"ready":     ready.Val(),
		"scheduled": scheduled.Val(),
		"dead":      dead.Val(),
	}, nil
}

type Worker struct {
	queue        *JobQueue
	handlers     map[JobType]JobHandler
	concurrency  int
	pollInterval time.Duration
	retryBase    time.Duration
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

func NewWorker(queue *JobQueue, cfg config.WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}

	return &Worker{
		queue:        queue,
		handlers:     make(map[JobType]JobHandler),
		concurrency:  concurrency,
		pollInterval: poll,
		retryBase:    time.Minute,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

func (w *Worker) Start() {
	slog.Info("starting worker", "concurrency", w.concurrency)

	w.wg.Add(1)
	go w.promoteLoop()

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}
}

func (w *Worker) Stop() {
	slog.Info("stopping worker")
	w.cancel()
	w.wg.Wait()
	slog.Info("worker stopped")
}

func (w *Worker) promoteLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.queue.PromoteDue(w.ctx); err != nil && w.ctx.Err() == nil {
			slog.Error("failed to promote jobs", "error", err)
		}

		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		if _, err := w.ProcessNext(w.ctx, w.pollInterval); err != nil && w.ctx.Err() == nil {
			slog.Error("error processing job", "error", err)
			time.Sleep(time.Second)
		}
	}
}

// ProcessNext waits up to timeout for a ready job and runs it. It reports
// whether a job was taken off the queue.
func (w *Worker) ProcessNext(ctx context.Context, timeout time.Duration) (bool, error) {
	result, err := w.queue.client.BLPop(ctx, timeout, readyQueue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return false, fmt.Errorf("invalid job result")
	}

	job, err := w.queue.load(ctx, result[1])
	if err != nil {
		return true, err
	}
	if job == nil {
		// Cancelled after promotion.
		return true, nil
	}

	return true, w.executeJob(ctx, job)
}

func (w *Worker) executeJob(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		return w.queue.bury(ctx, job, fmt.Errorf("%w: %s", ErrNoHandler, job.Type))
	}

	log := slog.With("job_id", job.ID, "job_type", job.Type)
	log.Debug("processing job")

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := handler(runCtx, job); err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			log.Warn("job failed, retrying", "attempt", job.Attempts, "max_tries", job.MaxTries, "error", err)
			return w.retryJob(ctx, job)
		}

		log.Error("job failed permanently", "attempts", job.Attempts, "error", err)
		return w.queue.bury(ctx, job, err)
	}

	log.Debug("job completed")
	return w.queue.complete(ctx, job.ID)
}

func (w *Worker) retryJob(ctx context.Context, job *Job) error {
	delay := time.Duration(1<<job.Attempts) * w.retryBase
	job.ProcessAt = w.queue.now().Add(delay)

	return w.queue.schedule(ctx, job)
}
