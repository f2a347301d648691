package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cexll/pomotask/internal/model"
	"github.com/cexll/pomotask/internal/store"
	"github.com/cexll/pomotask/internal/whatsapp"
)

type sentMessage struct {
	to   string
	text string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *recordingSender) SendText(ctx context.Context, to, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{to: to, text: text})
	return nil
}

func (s *recordingSender) last(t *testing.T) sentMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatal("no message was sent")
	}
	return s.sent[len(s.sent)-1]
}

// countingStore records task queries so tests can assert none were made.
type countingStore struct {
	*store.Memory
	queries []store.TaskQuery
}

func (c *countingStore) ListTasks(ctx context.Context, q store.TaskQuery) ([]model.Task, error) {
	c.queries = append(c.queries, q)
	return c.Memory.ListTasks(ctx, q)
}

type recordingNotifier struct {
	users []string
}

func (n *recordingNotifier) TasksChanged(ctx context.Context, userID string) {
	n.users = append(n.users, userID)
}

const phone = "5511999998888"

func newFixture(t *testing.T) (*Interpreter, *countingStore, *recordingSender) {
	t.Helper()
	ctx := context.Background()
	st := &countingStore{Memory: store.NewMemory()}
	if _, err := st.UpsertProfile(ctx, "u1", phone); err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}
	// Inserted oldest first so the listing is newest first.
	for _, title := range []string{"Write report", "Call client"} {
		if _, err := st.InsertTask(ctx, model.Task{Title: title, UserID: "u1", PomodorosEstimated: 2}); err != nil {
			t.Fatalf("InsertTask failed: %v", err)
		}
	}
	sender := &recordingSender{}
	return NewInterpreter(st, sender), st, sender
}

func TestHandle_TodoListListsIncompleteTasks(t *testing.T) {
	interp, _, sender := newFixture(t)

	for _, text := range []string{"#todolist", "  #TODOLIST ", "#tasks"} {
		res, err := interp.Handle(context.Background(), Inbound{From: phone, Text: text})
		if err != nil {
			t.Fatalf("Handle(%q) failed: %v", text, err)
		}
		if res.Status != StatusTasksSent {
			t.Fatalf("Handle(%q) status = %s, want %s", text, res.Status, StatusTasksSent)
		}
		msg := sender.last(t)
		if msg.to != phone {
			t.Errorf("reply sent to %s, want %s", msg.to, phone)
		}
		if !strings.Contains(msg.text, "1. Call client\n2. Write report") {
			t.Errorf("reply = %q, want numbered newest-first list", msg.text)
		}
	}
}

func TestHandle_NumberCompletesTask(t *testing.T) {
	interp, st, sender := newFixture(t)
	notifier := &recordingNotifier{}
	interp.WithNotifier(notifier)

	res, err := interp.Handle(context.Background(), Inbound{From: phone, Text: "2"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if res.Status != StatusTaskCompleted {
		t.Fatalf("status = %s, want %s", res.Status, StatusTaskCompleted)
	}
	if got := sender.last(t).text; got != "✅ Concluída: Write report" {
		t.Fatalf("reply = %q", got)
	}

	task, err := st.GetTask(context.Background(), res.TaskID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task.Title != "Write report" || !task.IsCompleted {
		t.Fatalf("task = %+v, want Write report completed", task)
	}
	if len(notifier.users) != 1 || notifier.users[0] != "u1" {
		t.Fatalf("notifier calls = %v, want [u1]", notifier.users)
	}

	open, _ := st.Memory.ListTasks(context.Background(), store.TaskQuery{UserID: "u1", IncompleteOnly: true})
	if len(open) != 1 || open[0].Title != "Call client" {
		t.Fatalf("remaining open tasks = %+v", open)
	}
}

func TestHandle_NumberWithTrailingText(t *testing.T) {
	interp, _, sender := newFixture(t)

	res, err := interp.Handle(context.Background(), Inbound{From: phone, Text: "1 done!"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if res.Status != StatusTaskCompleted {
		t.Fatalf("status = %s, want %s", res.Status, StatusTaskCompleted)
	}
	if got := sender.last(t).text; got != whatsapp.FormatCompleted("Call client") {
		t.Fatalf("reply = %q", got)
	}
}

func TestHandle_FallsThroughToHelp(t *testing.T) {
	tests := []string{"99", "0", "-1", "hello", "#unknown", "   ", "\t\n"}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			interp, st, sender := newFixture(t)
			res, err := interp.Handle(context.Background(), Inbound{From: phone, Text: text})
			if err != nil {
				t.Fatalf("Handle failed: %v", err)
			}
			if res.Status != StatusHelpSent {
				t.Fatalf("status = %s, want %s", res.Status, StatusHelpSent)
			}
			if got := sender.last(t).text; got != whatsapp.HelpMessage {
				t.Fatalf("reply = %q, want help", got)
			}
			open, _ := st.Memory.ListTasks(context.Background(), store.TaskQuery{UserID: "u1", IncompleteOnly: true})
			if len(open) != 2 {
				t.Fatalf("no task should be completed, open = %d", len(open))
			}
		})
	}
}

func TestHandle_SummaryUsesLimit(t *testing.T) {
	interp, st, sender := newFixture(t)

	res, err := interp.Handle(context.Background(), Inbound{From: phone, Text: "#summary"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if res.Status != StatusSummarySent {
		t.Fatalf("status = %s, want %s", res.Status, StatusSummarySent)
	}
	if len(st.queries) != 1 || st.queries[0].Limit != SummaryLimit || st.queries[0].IncompleteOnly {
		t.Fatalf("queries = %+v, want one limited query over all tasks", st.queries)
	}
	if !strings.HasPrefix(sender.last(t).text, "*📋 Daily Task Summary*") {
		t.Fatalf("reply = %q", sender.last(t).text)
	}
}

func TestHandle_UnknownPhone(t *testing.T) {
	interp, st, sender := newFixture(t)

	res, err := interp.Handle(context.Background(), Inbound{From: "440000", Text: "#todolist"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if res.Status != StatusUserNotFound {
		t.Fatalf("status = %s, want %s", res.Status, StatusUserNotFound)
	}
	if got := sender.last(t); got.to != "440000" || got.text != whatsapp.NotLinkedMessage {
		t.Fatalf("reply = %+v, want not-linked message", got)
	}
	if len(st.queries) != 0 {
		t.Fatalf("task queries = %+v, want none", st.queries)
	}
}

func TestHandle_IgnoresIncompleteMessages(t *testing.T) {
	interp, _, sender := newFixture(t)

	for _, msg := range []Inbound{{Text: "#todolist"}, {From: phone}, {From: phone, Text: ""}} {
		res, err := interp.Handle(context.Background(), msg)
		if err != nil {
			t.Fatalf("Handle(%+v) failed: %v", msg, err)
		}
		if res.Status != StatusIgnored {
			t.Fatalf("Handle(%+v) status = %s, want ignored", msg, res.Status)
		}
	}
	if len(sender.sent) != 0 {
		t.Fatalf("sent = %+v, want nothing", sender.sent)
	}
}

func TestHandle_SendErrorPropagates(t *testing.T) {
	interp, _, sender := newFixture(t)
	sender.err = errors.New("gateway down")

	if _, err := interp.Handle(context.Background(), Inbound{From: phone, Text: "#todolist"}); err == nil {
		t.Fatal("Handle should surface gateway failures")
	}
}

func TestParseLeadingInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"2", 2, true},
		{"2.", 2, true},
		{"12 please", 12, true},
		{"+3", 3, true},
		{"-1", -1, true},
		{"abc", 0, false},
		{"", 0, false},
		{"+", 0, false},
		{"99999999999999999999999", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseLeadingInt(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseLeadingInt(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
