package store

import (
	"context"
	"errors"

	"github.com/cexll/pomotask/internal/model"
)

// ErrNotFound is returned when a referenced row does not exist
var ErrNotFound = errors.New("not found")

// TaskQuery filters task listings. Results are always ordered by creation time, newest first.
type TaskQuery struct {
	UserID         string
	IncompleteOnly bool
	Limit          int // 0 means no limit
}

// Store is the relational source of truth for tasks, notes and profiles
type Store interface {
	ListTasks(ctx context.Context, q TaskQuery) ([]model.Task, error)
	GetTask(ctx context.Context, id string) (model.Task, error)
	InsertTask(ctx context.Context, task model.Task) (model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error)
	DeleteTask(ctx context.Context, id string) error

	ListNotes(ctx context.Context, taskID string) ([]model.Note, error)
	GetNote(ctx context.Context, id string) (model.Note, error)
	InsertNote(ctx context.Context, note model.Note) (model.Note, error)
	DeleteNote(ctx context.Context, id string) error

	ProfileByPhone(ctx context.Context, phone string) (model.Profile, error)
	ProfileByUser(ctx context.Context, userID string) (model.Profile, error)
	UpsertProfile(ctx context.Context, userID, phone string) (model.Profile, error)
	ListProfiles(ctx context.Context) ([]model.Profile, error)

	Close() error
}
