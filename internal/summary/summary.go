// Package summary derives the dashboard footer metrics from a task collection.
package summary

import (
	"sync"
	"time"

	"github.com/cexll/pomotask/internal/model"
)

// PomodoroDuration is the length of one focused-work unit
const PomodoroDuration = 25 * time.Minute

// Summary holds aggregate metrics over a task collection
type Summary struct {
	IncompleteTasks    int       `json:"incomplete_tasks"`
	TotalEstimated     int       `json:"total_estimated"`
	TotalActual        int       `json:"total_actual"`
	RemainingPomodoros int       `json:"remaining_pomodoros"`
	RemainingMinutes   int       `json:"remaining_minutes"`
	FinishAt           time.Time `json:"finish_at"`
}

// Compute is a pure function of tasks and now.
// Remaining work per task is clamped at zero so overrun tasks never pull the finish time back.
func Compute(tasks []model.Task, now time.Time) Summary {
	var s Summary
	for _, t := range tasks {
		s.TotalActual += t.PomodorosActual
		if t.IsCompleted {
			continue
		}
		s.IncompleteTasks++
		s.TotalEstimated += t.PomodorosEstimated
		if left := t.PomodorosEstimated - t.PomodorosActual; left > 0 {
			s.RemainingPomodoros += left
		}
	}
	s.RemainingMinutes = s.RemainingPomodoros * int(PomodoroDuration/time.Minute)
	s.FinishAt = now.Add(time.Duration(s.RemainingPomodoros) * PomodoroDuration)
	return s
}

// Memo caches the last computed summary for a collection revision.
// FinishAt is always re-anchored to the caller's clock.
type Memo struct {
	mu       sync.Mutex
	revision uint64
	valid    bool
	last     Summary
}

// Get returns the summary for tasks at revision, recomputing only when the revision changed
func (m *Memo) Get(revision uint64, tasks []model.Task, now time.Time) Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.valid || m.revision != revision {
		m.last = Compute(tasks, now)
		m.revision = revision
		m.valid = true
		return m.last
	}

	s := m.last
	s.FinishAt = now.Add(time.Duration(s.RemainingPomodoros) * PomodoroDuration)
	return s
}
