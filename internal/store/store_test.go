package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cexll/pomotask/internal/model"
)

// steppingClock returns strictly increasing timestamps so ordering is deterministic.
func steppingClock() func() time.Time {
	base := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newStores(t *testing.T) map[string]Store {
	t.Helper()

	mem := NewMemory()
	mem.now = steppingClock()

	lite, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	lite.now = steppingClock()
	t.Cleanup(func() { lite.Close() })

	return map[string]Store{"memory": mem, "sqlite": lite}
}

func TestStore_TaskLifecycle(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := s.InsertTask(ctx, model.Task{Title: "Write report", UserID: "u1", PomodorosEstimated: 2})
			if err != nil {
				t.Fatalf("InsertTask failed: %v", err)
			}
			if first.ID == "" || first.CreatedAt.IsZero() {
				t.Fatalf("InsertTask should assign id and timestamps: %+v", first)
			}
			second, _ := s.InsertTask(ctx, model.Task{Title: "Call client", UserID: "u1", PomodorosEstimated: 1})
			_, _ = s.InsertTask(ctx, model.Task{Title: "Other user", UserID: "u2"})

			list, err := s.ListTasks(ctx, TaskQuery{UserID: "u1"})
			if err != nil {
				t.Fatalf("ListTasks failed: %v", err)
			}
			if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
				t.Fatalf("ListTasks order = %+v, want newest first", list)
			}

			updated, err := s.UpdateTask(ctx, first.ID, model.TaskPatch{IsCompleted: model.Ptr(true), PomodorosActual: model.Ptr(3)})
			if err != nil {
				t.Fatalf("UpdateTask failed: %v", err)
			}
			if !updated.IsCompleted || updated.PomodorosActual != 3 || updated.Title != "Write report" {
				t.Fatalf("UpdateTask result = %+v", updated)
			}

			open, _ := s.ListTasks(ctx, TaskQuery{UserID: "u1", IncompleteOnly: true})
			if len(open) != 1 || open[0].ID != second.ID {
				t.Fatalf("incomplete list = %+v, want only %s", open, second.ID)
			}

			limited, _ := s.ListTasks(ctx, TaskQuery{UserID: "u1", Limit: 1})
			if len(limited) != 1 {
				t.Fatalf("limit 1 returned %d tasks", len(limited))
			}

			if err := s.DeleteTask(ctx, first.ID); err != nil {
				t.Fatalf("DeleteTask failed: %v", err)
			}
			if _, err := s.GetTask(ctx, first.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetTask after delete err = %v, want ErrNotFound", err)
			}
			if err := s.DeleteTask(ctx, first.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("second DeleteTask err = %v, want ErrNotFound", err)
			}
			if _, err := s.UpdateTask(ctx, "missing", model.TaskPatch{Title: model.Ptr("x")}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("UpdateTask missing err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_RejectsInvalidTask(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.InsertTask(context.Background(), model.Task{Title: " ", UserID: "u1"})
			if !errors.Is(err, model.ErrValidation) {
				t.Fatalf("InsertTask err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestStore_Notes(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			task, _ := s.InsertTask(ctx, model.Task{Title: "t", UserID: "u1"})

			a, err := s.InsertNote(ctx, model.Note{TaskID: task.ID, Content: "first"})
			if err != nil {
				t.Fatalf("InsertNote failed: %v", err)
			}
			b, _ := s.InsertNote(ctx, model.Note{TaskID: task.ID, Content: "second"})

			notes, err := s.ListNotes(ctx, task.ID)
			if err != nil {
				t.Fatalf("ListNotes failed: %v", err)
			}
			if len(notes) != 2 || notes[0].ID != b.ID || notes[1].ID != a.ID {
				t.Fatalf("ListNotes = %+v, want newest first", notes)
			}

			got, err := s.GetNote(ctx, a.ID)
			if err != nil || got.TaskID != task.ID {
				t.Fatalf("GetNote = %+v, %v", got, err)
			}

			if err := s.DeleteNote(ctx, a.ID); err != nil {
				t.Fatalf("DeleteNote failed: %v", err)
			}
			notes, _ = s.ListNotes(ctx, task.ID)
			if len(notes) != 1 {
				t.Fatalf("notes after delete = %d, want 1", len(notes))
			}

			if _, err := s.InsertNote(ctx, model.Note{TaskID: "missing", Content: "x"}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("InsertNote on missing task err = %v", err)
			}

			// Deleting the task removes its notes too.
			if err := s.DeleteTask(ctx, task.ID); err != nil {
				t.Fatalf("DeleteTask failed: %v", err)
			}
			if _, err := s.GetNote(ctx, b.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("note should be gone with its task, err = %v", err)
			}
		})
	}
}

func TestStore_Profiles(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.ProfileByPhone(ctx, "5511999998888"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("ProfileByPhone on empty store err = %v", err)
			}

			p, err := s.UpsertProfile(ctx, "u1", "5511999998888")
			if err != nil {
				t.Fatalf("UpsertProfile insert failed: %v", err)
			}
			p2, err := s.UpsertProfile(ctx, "u1", "5511000000000")
			if err != nil {
				t.Fatalf("UpsertProfile update failed: %v", err)
			}
			if p2.ID != p.ID {
				t.Fatalf("upsert should keep the profile id: %s != %s", p2.ID, p.ID)
			}

			byPhone, err := s.ProfileByPhone(ctx, "5511000000000")
			if err != nil || byPhone.UserID != "u1" {
				t.Fatalf("ProfileByPhone = %+v, %v", byPhone, err)
			}
			if _, err := s.ProfileByPhone(ctx, "5511999998888"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("old phone should not resolve, err = %v", err)
			}

			byUser, err := s.ProfileByUser(ctx, "u1")
			if err != nil || byUser.Phone != "5511000000000" {
				t.Fatalf("ProfileByUser = %+v, %v", byUser, err)
			}

			_, _ = s.UpsertProfile(ctx, "u2", "5521888887777")
			all, err := s.ListProfiles(ctx)
			if err != nil || len(all) != 2 || all[0].UserID != "u1" {
				t.Fatalf("ListProfiles = %+v, %v", all, err)
			}
		})
	}
}

func TestNewSQLite_ReopensExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pomotask.db")

	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	if _, err := s.InsertTask(context.Background(), model.Task{Title: "persisted", UserID: "u1"}); err != nil {
		t.Fatalf("InsertTask failed: %v", err)
	}
	s.Close()

	reopened, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	tasks, err := reopened.ListTasks(context.Background(), TaskQuery{UserID: "u1"})
	if err != nil || len(tasks) != 1 || tasks[0].Title != "persisted" {
		t.Fatalf("tasks after reopen = %+v, %v", tasks, err)
	}
}
