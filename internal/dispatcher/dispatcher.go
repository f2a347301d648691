// Package dispatcher delivers task summaries to linked phones through a bounded worker pool.
package dispatcher

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// SummaryJob asks for one user's summary to be sent to one phone
type SummaryJob struct {
	UserID  string
	Phone   string
	Attempt int // managed by the dispatcher
}

// JobRunner performs a single delivery attempt
type JobRunner interface {
	Run(ctx context.Context, job *SummaryJob) error
}

// Config controls dispatcher behaviour
type Config struct {
	Workers           int
	QueueSize         int
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// Dispatcher serialises deliveries per phone and retries failed jobs with backoff
type Dispatcher struct {
	runner JobRunner
	cfg    Config

	queue chan *queueItem

	keyedLocks *keyedMutex

	// pending counts accepted jobs that have not reached a final outcome
	pending sync.WaitGroup

	stopCh chan struct{}
	wg     sync.WaitGroup

	once sync.Once
}

type queueItem struct {
	job     *SummaryJob
	attempt int
}

// New creates a dispatcher and starts its workers
func New(runner JobRunner, cfg Config) *Dispatcher {
	normalized := normalizeConfig(cfg)
	d := &Dispatcher{
		runner:     runner,
		cfg:        normalized,
		queue:      make(chan *queueItem, normalized.QueueSize),
		keyedLocks: newKeyedMutex(),
		stopCh:     make(chan struct{}),
	}
	d.startWorkers()
	return d
}

func normalizeConfig(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 16
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 5 * time.Second
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	return cfg
}

func (d *Dispatcher) startWorkers() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Enqueue queues a job. It never blocks: a full queue returns ErrQueueFull.
func (d *Dispatcher) Enqueue(job *SummaryJob) error {
	if job == nil {
		return errors.New("dispatcher enqueue: job is nil")
	}

	select {
	case <-d.stopCh:
		return ErrQueueClosed
	default:
	}

	d.pending.Add(1)
	select {
	case d.queue <- &queueItem{job: job, attempt: 1}:
		return nil
	default:
		d.pending.Done()
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			return
		case item, ok := <-d.queue:
			if !ok {
				return
			}
			d.process(item)
		}
	}
}

func (d *Dispatcher) process(item *queueItem) {
	job := item.job
	job.Attempt = item.attempt

	d.keyedLocks.Lock(job.Phone)
	err := d.runner.Run(context.Background(), job)
	d.keyedLocks.Unlock(job.Phone)

	if err != nil {
		log.Printf("[Dispatcher] Summary for %s attempt %d failed: %v", job.Phone, item.attempt, err)
		if IsPermanent(err) {
			log.Printf("[Dispatcher] Summary for %s marked permanent; no further attempts", job.Phone)
			d.pending.Done()
			return
		}
		d.handleRetry(item, err)
		return
	}

	log.Printf("[Dispatcher] Summary for %s attempt %d delivered", job.Phone, item.attempt)
	d.pending.Done()
}

func (d *Dispatcher) handleRetry(item *queueItem, runErr error) {
	if item.attempt >= d.cfg.MaxAttempts {
		log.Printf("[Dispatcher] Summary for %s exceeded max attempts (%d): %v", item.job.Phone, d.cfg.MaxAttempts, runErr)
		d.pending.Done()
		return
	}

	nextAttempt := item.attempt + 1
	delay := d.backoffDuration(nextAttempt)
	log.Printf("[Dispatcher] Scheduling retry %d for %s in %s", nextAttempt, item.job.Phone, delay)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			d.enqueueRetry(&queueItem{job: item.job, attempt: nextAttempt})
		case <-d.stopCh:
			d.pending.Done()
		}
	}()
}

func (d *Dispatcher) enqueueRetry(item *queueItem) {
	for {
		select {
		case <-d.stopCh:
			d.pending.Done()
			return
		case d.queue <- item:
			return
		default:
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func (d *Dispatcher) backoffDuration(attempt int) time.Duration {
	backoff := float64(d.cfg.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= d.cfg.BackoffMultiplier
		if backoff >= float64(d.cfg.MaxBackoff) {
			return d.cfg.MaxBackoff
		}
	}
	return time.Duration(backoff)
}

// Drain waits until every accepted job has been delivered or given up on.
// Call it before Shutdown; jobs still queued at shutdown never finish.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.pending.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Shutdown stops the workers and waits for in-flight jobs or ctx expiry
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.once.Do(func() {
		close(d.stopCh)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	k.mu.Unlock()

	if ok {
		m.Unlock()
	}
}
