package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cexll/pomotask/internal/model"
	"github.com/cexll/pomotask/internal/store"
	"github.com/cexll/pomotask/internal/summary"
)

func setupTools(t *testing.T) (*TaskTools, *store.Memory, map[string]model.Task) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	seeded := make(map[string]model.Task)
	for _, seed := range []struct {
		user, title string
		est, actual int
	}{
		{"u1", "Write report", 3, 1},
		{"u1", "Call client", 1, 0},
		{"u2", "Other user's task", 2, 0},
	} {
		task, err := st.InsertTask(ctx, model.Task{Title: seed.title, UserID: seed.user, PomodorosEstimated: seed.est, PomodorosActual: seed.actual})
		if err != nil {
			t.Fatalf("InsertTask failed: %v", err)
		}
		seeded[seed.title] = task
	}

	tools := NewTaskTools(st, "u1")
	tools.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	return tools, st, seeded
}

func resultText(t *testing.T, res *mcp.CallToolResult, i int) string {
	t.Helper()
	if res == nil || len(res.Content) <= i {
		t.Fatalf("result has no content[%d]: %+v", i, res)
	}
	text, ok := res.Content[i].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content[%d] = %T, want *mcp.TextContent", i, res.Content[i])
	}
	return text.Text
}

func TestHandleListTasks(t *testing.T) {
	tools, _, _ := setupTools(t)

	res, _, err := tools.HandleListTasks(context.Background(), nil, ListTasksParams{})
	if err != nil {
		t.Fatalf("HandleListTasks failed: %v", err)
	}
	var got struct {
		Tasks []model.Task `json:"tasks"`
		Count int          `json:"count"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res, 0)), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Count != 2 || len(got.Tasks) != 2 {
		t.Fatalf("got %d tasks, want the 2 owned by u1", got.Count)
	}
	for _, task := range got.Tasks {
		if task.UserID != "u1" {
			t.Fatalf("leaked task %+v", task)
		}
	}

	res, _, _ = tools.HandleListTasks(context.Background(), nil, ListTasksParams{Limit: 1})
	if err := json.Unmarshal([]byte(resultText(t, res, 0)), &got); err != nil || got.Count != 1 {
		t.Fatalf("limited list = %+v, %v", got, err)
	}

	if _, _, err := tools.HandleListTasks(context.Background(), nil, ListTasksParams{Limit: -1}); err == nil {
		t.Fatal("expected error for negative limit")
	}
}

func TestHandleCompleteTask(t *testing.T) {
	tests := []struct {
		name      string
		params    func(map[string]model.Task) CompleteTaskParams
		wantErr   bool
		wantIsErr bool
		completed string
	}{
		{
			name:      "by id",
			params:    func(m map[string]model.Task) CompleteTaskParams { return CompleteTaskParams{TaskID: m["Write report"].ID} },
			completed: "Write report",
		},
		{
			name:      "by index",
			params:    func(map[string]model.Task) CompleteTaskParams { return CompleteTaskParams{Index: 1} },
			completed: "Call client",
		},
		{
			name:      "index out of range",
			params:    func(map[string]model.Task) CompleteTaskParams { return CompleteTaskParams{Index: 3} },
			wantIsErr: true,
		},
		{
			name: "other user's task",
			params: func(m map[string]model.Task) CompleteTaskParams {
				return CompleteTaskParams{TaskID: m["Other user's task"].ID}
			},
			wantIsErr: true,
		},
		{
			name:    "neither field",
			params:  func(map[string]model.Task) CompleteTaskParams { return CompleteTaskParams{} },
			wantErr: true,
		},
		{
			name:    "both fields",
			params:  func(m map[string]model.Task) CompleteTaskParams { return CompleteTaskParams{TaskID: "x", Index: 1} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tools, st, seeded := setupTools(t)
			res, _, err := tools.HandleCompleteTask(context.Background(), nil, tt.params(seeded))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("HandleCompleteTask failed: %v", err)
			}
			if res.IsError != tt.wantIsErr {
				t.Fatalf("IsError = %v, want %v (%s)", res.IsError, tt.wantIsErr, resultText(t, res, 0))
			}
			if tt.completed == "" {
				return
			}
			got, err := st.GetTask(context.Background(), seeded[tt.completed].ID)
			if err != nil || !got.IsCompleted {
				t.Fatalf("task %q not completed: %+v, %v", tt.completed, got, err)
			}
		})
	}
}

func TestHandleSummary(t *testing.T) {
	tools, _, _ := setupTools(t)

	res, _, err := tools.HandleSummary(context.Background(), nil, SummaryParams{})
	if err != nil {
		t.Fatalf("HandleSummary failed: %v", err)
	}
	var s summary.Summary
	if err := json.Unmarshal([]byte(resultText(t, res, 0)), &s); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if s.IncompleteTasks != 2 || s.RemainingPomodoros != 3 || s.RemainingMinutes != 75 {
		t.Fatalf("summary = %+v", s)
	}
	if want := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC); !s.FinishAt.Equal(want) {
		t.Fatalf("FinishAt = %s, want %s", s.FinishAt, want)
	}
	if text := resultText(t, res, 1); !strings.Contains(text, "Daily Task Summary") || !strings.Contains(text, "Write report (1/3") {
		t.Fatalf("formatted summary = %q", text)
	}
}

func TestRegister(t *testing.T) {
	tools, _, _ := setupTools(t)
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	// AddTool panics on schema inference failures, so registering is the check.
	tools.Register(server)
}
