package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cexll/pomotask/internal/model"
	"github.com/cexll/pomotask/internal/store"
	"github.com/cexll/pomotask/internal/whatsapp"
)

// SummaryLimit caps the tasks included in a summary
const SummaryLimit = 20

// SummaryStore reads the profile and tasks behind a summary
type SummaryStore interface {
	ProfileByUser(ctx context.Context, userID string) (model.Profile, error)
	ListTasks(ctx context.Context, q store.TaskQuery) ([]model.Task, error)
}

// ProfileLister reads every linked profile
type ProfileLister interface {
	ListProfiles(ctx context.Context) ([]model.Profile, error)
}

// Sender delivers a text message
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// Enqueuer accepts summary jobs
type Enqueuer interface {
	Enqueue(job *SummaryJob) error
}

// SummaryRunner sends the summary of a user's newest tasks
type SummaryRunner struct {
	store  SummaryStore
	sender Sender
}

// NewSummaryRunner creates a runner
func NewSummaryRunner(st SummaryStore, sender Sender) *SummaryRunner {
	return &SummaryRunner{store: st, sender: sender}
}

// Run performs one delivery attempt. A user without a linked profile is a permanent failure;
// lookup and send errors are retried.
func (r *SummaryRunner) Run(ctx context.Context, job *SummaryJob) error {
	profile, err := r.store.ProfileByUser(ctx, job.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Permanent(fmt.Errorf("user %s has no profile: %w", job.UserID, err))
		}
		return fmt.Errorf("lookup profile for %s: %w", job.UserID, err)
	}
	if profile.Phone == "" {
		return Permanent(fmt.Errorf("user %s has no linked phone", job.UserID))
	}

	tasks, err := r.store.ListTasks(ctx, store.TaskQuery{UserID: job.UserID, Limit: SummaryLimit})
	if err != nil {
		return fmt.Errorf("list tasks for %s: %w", job.UserID, err)
	}
	if err := r.sender.SendText(ctx, job.Phone, whatsapp.FormatSummary(tasks)); err != nil {
		return fmt.Errorf("send summary to %s: %w", job.Phone, err)
	}
	return nil
}

// Broadcaster fans a summary out to every linked profile
type Broadcaster struct {
	profiles ProfileLister
	queue    Enqueuer
}

// NewBroadcaster creates a broadcaster
func NewBroadcaster(profiles ProfileLister, queue Enqueuer) *Broadcaster {
	return &Broadcaster{profiles: profiles, queue: queue}
}

// EnqueueAll queues one job per profile with a phone and returns how many were accepted.
// It stops at the first enqueue error.
func (b *Broadcaster) EnqueueAll(ctx context.Context) (int, error) {
	profiles, err := b.profiles.ListProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list profiles: %w", err)
	}

	queued := 0
	for _, p := range profiles {
		if p.Phone == "" {
			continue
		}
		if err := b.queue.Enqueue(&SummaryJob{UserID: p.UserID, Phone: p.Phone}); err != nil {
			log.Printf("[Dispatcher] Broadcast stopped after %d of %d profiles: %v", queued, len(profiles), err)
			return queued, err
		}
		queued++
	}
	log.Printf("[Dispatcher] Broadcast queued %d summaries", queued)
	return queued, nil
}
