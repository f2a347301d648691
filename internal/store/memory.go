package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cexll/pomotask/internal/model"
)

// Memory is an in-process Store used for development and tests
type Memory struct {
	mu       sync.RWMutex
	seq      uint64
	tasks    map[string]*taskRow
	notes    map[string]*noteRow
	profiles map[string]*model.Profile // keyed by user id
	now      func() time.Time
}

type taskRow struct {
	task model.Task
	seq  uint64
}

type noteRow struct {
	note model.Note
	seq  uint64
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		tasks:    make(map[string]*taskRow),
		notes:    make(map[string]*noteRow),
		profiles: make(map[string]*model.Profile),
		now:      time.Now,
	}
}

func (s *Memory) ListTasks(ctx context.Context, q TaskQuery) ([]model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*taskRow, 0, len(s.tasks))
	for _, row := range s.tasks {
		if q.UserID != "" && row.task.UserID != q.UserID {
			continue
		}
		if q.IncompleteOnly && row.task.IsCompleted {
			continue
		}
		rows = append(rows, row)
	}
	// Sort by created time descending; insertion order breaks ties
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].task.CreatedAt.Equal(rows[j].task.CreatedAt) {
			return rows[i].task.CreatedAt.After(rows[j].task.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	tasks := make([]model.Task, len(rows))
	for i, row := range rows {
		tasks[i] = row.task
	}
	return tasks, nil
}

func (s *Memory) GetTask(ctx context.Context, id string) (model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.tasks[id]
	if !ok {
		return model.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return row.task, nil
}

func (s *Memory) InsertTask(ctx context.Context, task model.Task) (model.Task, error) {
	if err := task.Validate(); err != nil {
		return model.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task.ID = uuid.NewString()
	now := s.now()
	task.CreatedAt = now
	task.UpdatedAt = now
	s.seq++
	s.tasks[task.ID] = &taskRow{task: task, seq: s.seq}
	return task, nil
}

func (s *Memory) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	if err := patch.Validate(); err != nil {
		return model.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tasks[id]
	if !ok {
		return model.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	row.task = patch.Apply(row.task)
	row.task.UpdatedAt = s.now()
	return row.task, nil
}

func (s *Memory) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	delete(s.tasks, id)
	for noteID, row := range s.notes {
		if row.note.TaskID == id {
			delete(s.notes, noteID)
		}
	}
	return nil
}

func (s *Memory) ListNotes(ctx context.Context, taskID string) ([]model.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*noteRow, 0)
	for _, row := range s.notes {
		if row.note.TaskID == taskID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].note.CreatedAt.Equal(rows[j].note.CreatedAt) {
			return rows[i].note.CreatedAt.After(rows[j].note.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})

	notes := make([]model.Note, len(rows))
	for i, row := range rows {
		notes[i] = row.note
	}
	return notes, nil
}

func (s *Memory) GetNote(ctx context.Context, id string) (model.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.notes[id]
	if !ok {
		return model.Note{}, fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	return row.note, nil
}

func (s *Memory) InsertNote(ctx context.Context, note model.Note) (model.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[note.TaskID]; !ok {
		return model.Note{}, fmt.Errorf("task %s: %w", note.TaskID, ErrNotFound)
	}
	note.ID = uuid.NewString()
	note.CreatedAt = s.now()
	s.seq++
	s.notes[note.ID] = &noteRow{note: note, seq: s.seq}
	return note, nil
}

func (s *Memory) DeleteNote(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[id]; !ok {
		return fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	delete(s.notes, id)
	return nil
}

func (s *Memory) ProfileByPhone(ctx context.Context, phone string) (model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.Phone == phone {
			return *p, nil
		}
	}
	return model.Profile{}, fmt.Errorf("profile for phone %s: %w", phone, ErrNotFound)
}

func (s *Memory) ProfileByUser(ctx context.Context, userID string) (model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return model.Profile{}, fmt.Errorf("profile for user %s: %w", userID, ErrNotFound)
	}
	return *p, nil
}

func (s *Memory) UpsertProfile(ctx context.Context, userID, phone string) (model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if p, ok := s.profiles[userID]; ok {
		p.Phone = phone
		p.UpdatedAt = now
		return *p, nil
	}
	p := &model.Profile{
		ID:        uuid.NewString(),
		UserID:    userID,
		Phone:     phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.profiles[userID] = p
	return *p, nil
}

func (s *Memory) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profiles := make([]model.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		profiles = append(profiles, *p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].CreatedAt.Before(profiles[j].CreatedAt)
	})
	return profiles, nil
}

func (s *Memory) Close() error { return nil }
