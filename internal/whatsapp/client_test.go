package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cexll/pomotask/internal/model"
)

func TestNew_RequiresAllSettings(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"complete", Config{APIURL: "http://evo", APIKey: "k", InstanceName: "i"}, true},
		{"missing url", Config{APIKey: "k", InstanceName: "i"}, false},
		{"missing key", Config{APIURL: "http://evo", InstanceName: "i"}, false},
		{"missing instance", Config{APIURL: "http://evo", APIKey: "k"}, false},
		{"blank values", Config{APIURL: " ", APIKey: " ", InstanceName: " "}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.cfg) != nil; got != tt.want {
				t.Fatalf("New() configured = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSendText(t *testing.T) {
	var (
		gotPath   string
		gotKey    string
		gotBody   sendTextRequest
		gotMethod string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotKey = r.Header.Get("apikey")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(Config{APIURL: srv.URL + "/", APIKey: "secret", InstanceName: "main"})
	if err := c.SendText(context.Background(), "5511999998888", "hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotPath != "/message/sendText/main" {
		t.Errorf("path = %s, want /message/sendText/main", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("apikey header = %q, want secret", gotKey)
	}
	if gotBody.Number != "5511999998888" || gotBody.Text != "hello" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestSendText_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "instance offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{APIURL: srv.URL, APIKey: "k", InstanceName: "i"})
	err := c.SendText(context.Background(), "1", "x")
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("SendText err = %v, want 503 error", err)
	}
}

func TestFormatTaskList(t *testing.T) {
	tasks := []model.Task{
		{Title: "Call client"},
		{Title: "Done already", IsCompleted: true},
		{Title: "Write report"},
	}
	got := FormatTaskList(tasks)
	want := "*📋 Your Active Tasks:*\n\n1. Call client\n2. Write report\n\n_Reply with a task number to mark it complete_"
	if got != want {
		t.Fatalf("FormatTaskList =\n%q\nwant\n%q", got, want)
	}

	if got := FormatTaskList(nil); got != NoActiveTasksMessage {
		t.Fatalf("empty list = %q", got)
	}
}

func TestFormatSummary(t *testing.T) {
	tasks := []model.Task{
		{Title: "Call client", PomodorosEstimated: 2, PomodorosActual: 1},
		{Title: "Ship release", PomodorosEstimated: 3, PomodorosActual: 4, IsCompleted: true},
	}
	got := FormatSummary(tasks)
	want := "*📋 Daily Task Summary*\n\n" +
		"*Active Tasks:*\n1. Call client (1/2 🍅)\n" +
		"\n*Completed Today:*\n✅ Ship release\n" +
		"\n*Total Pomodoros:* 5 🍅"
	if got != want {
		t.Fatalf("FormatSummary =\n%q\nwant\n%q", got, want)
	}

	if got := FormatSummary(nil); got != "*📋 Daily Task Summary*\n\n\n*Total Pomodoros:* 0 🍅" {
		t.Fatalf("empty summary = %q", got)
	}
}

func TestSendTaskListAndSummary(t *testing.T) {
	var bodies []sendTextRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body sendTextRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{APIURL: srv.URL, APIKey: "secret", InstanceName: "main"})
	tasks := []model.Task{
		{Title: "Write report", PomodorosEstimated: 3, PomodorosActual: 1},
		{Title: "Call client", PomodorosEstimated: 1, IsCompleted: true},
	}
	if err := c.SendTaskList(context.Background(), "5511", tasks); err != nil {
		t.Fatalf("SendTaskList failed: %v", err)
	}
	if err := c.SendTaskSummary(context.Background(), "5511", tasks); err != nil {
		t.Fatalf("SendTaskSummary failed: %v", err)
	}

	if len(bodies) != 2 {
		t.Fatalf("requests = %d, want 2", len(bodies))
	}
	if bodies[0].Text != FormatTaskList(tasks) || bodies[1].Text != FormatSummary(tasks) {
		t.Fatalf("bodies = %+v", bodies)
	}
}
