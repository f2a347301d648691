package web

import (
	"bytes"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cexll/pomotask/internal/model"
	"github.com/cexll/pomotask/internal/summary"
)

type dashboardData struct {
	UserID    string
	Active    []model.Task
	Completed []model.Task
	Summary   summary.Summary
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}

	h.refresh(r, b)
	tasks, revision := b.Snapshot()
	data := dashboardData{
		UserID:    b.UserID(),
		Active:    model.Incomplete(tasks),
		Completed: model.Completed(tasks),
		Summary:   h.summaryFor(b, tasks, revision),
	}

	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, "dashboard.html", data); err != nil {
		log.Printf("[Web] Failed to render dashboard: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// clock renders a finish time the way the footer shows it, in the server's zone
func clock(t time.Time) string {
	return t.Local().Format("3:04 PM")
}

func firstLine(s *string) string {
	if s == nil {
		return ""
	}
	line, _, _ := strings.Cut(*s, "\n")
	return line
}
