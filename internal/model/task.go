package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrValidation marks input that fails a model invariant
var ErrValidation = errors.New("validation failed")

// Task is a unit of work tracked in pomodoros
type Task struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Description        *string   `json:"description"`
	PomodorosEstimated int       `json:"pomodoros_estimated"`
	PomodorosActual    int       `json:"pomodoros_actual"`
	IsCompleted        bool      `json:"is_completed"`
	UserID             string    `json:"user_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Validate checks the fields a task must always satisfy
func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if t.PomodorosEstimated < 0 {
		return fmt.Errorf("%w: pomodoros_estimated must be >= 0", ErrValidation)
	}
	if t.PomodorosActual < 0 {
		return fmt.Errorf("%w: pomodoros_actual must be >= 0", ErrValidation)
	}
	if t.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	return nil
}

// TaskPatch holds the fields of a partial task update. Nil means unchanged.
type TaskPatch struct {
	Title              *string `json:"title,omitempty"`
	Description        *string `json:"description,omitempty"`
	PomodorosEstimated *int    `json:"pomodoros_estimated,omitempty"`
	PomodorosActual    *int    `json:"pomodoros_actual,omitempty"`
	IsCompleted        *bool   `json:"is_completed,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.PomodorosEstimated == nil &&
		p.PomodorosActual == nil && p.IsCompleted == nil
}

// Apply merges the set fields of the patch into t
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		desc := *p.Description
		t.Description = &desc
	}
	if p.PomodorosEstimated != nil {
		t.PomodorosEstimated = *p.PomodorosEstimated
	}
	if p.PomodorosActual != nil {
		t.PomodorosActual = *p.PomodorosActual
	}
	if p.IsCompleted != nil {
		t.IsCompleted = *p.IsCompleted
	}
	return t
}

// Validate rejects patches that would break task invariants
func (p TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrValidation)
	}
	if p.PomodorosEstimated != nil && *p.PomodorosEstimated < 0 {
		return fmt.Errorf("%w: pomodoros_estimated must be >= 0", ErrValidation)
	}
	if p.PomodorosActual != nil && *p.PomodorosActual < 0 {
		return fmt.Errorf("%w: pomodoros_actual must be >= 0", ErrValidation)
	}
	return nil
}

// Incomplete returns the tasks that are not completed, preserving order
func Incomplete(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.IsCompleted {
			out = append(out, t)
		}
	}
	return out
}

// Completed returns the completed tasks, preserving order
func Completed(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.IsCompleted {
			out = append(out, t)
		}
	}
	return out
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
