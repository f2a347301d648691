// Package web serves the task JSON API and the dashboard page.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/cexll/pomotask/internal/auth"
	"github.com/cexll/pomotask/internal/chat"
	"github.com/cexll/pomotask/internal/concurrency"
	"github.com/cexll/pomotask/internal/model"
	"github.com/cexll/pomotask/internal/store"
	"github.com/cexll/pomotask/internal/summary"
	"github.com/cexll/pomotask/internal/tasksync"
)

//go:embed templates/*
var templatesFS embed.FS

const maxBodySize = 1 << 20

// Assistant answers chat messages
type Assistant interface {
	Reply(ctx context.Context, req chat.Request) (string, error)
}

// Handler serves the authenticated API and dashboard
type Handler struct {
	store     store.Store
	boards    *tasksync.Registry
	assistant Assistant
	templates *template.Template
	inFlight  *concurrency.Manager
	now       func() time.Time

	memoMu sync.Mutex
	memos  map[string]*summary.Memo
}

// NewHandler creates a new web handler
func NewHandler(st store.Store, boards *tasksync.Registry, assistant Assistant) (*Handler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"clock":     clock,
		"firstLine": firstLine,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	h := &Handler{
		store:     st,
		boards:    boards,
		assistant: assistant,
		templates: tmpl,
		inFlight:  concurrency.NewManager(),
		now:       time.Now,
		memos:     make(map[string]*summary.Memo),
	}
	boards.OnEvict(h.forgetMemo)
	return h, nil
}

// RegisterRoutes registers the API routes behind requireAPI and the dashboard behind requirePage
func (h *Handler) RegisterRoutes(r *mux.Router, requireAPI, requirePage func(http.Handler) http.Handler) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(mux.MiddlewareFunc(requireAPI))

	api.HandleFunc("/tasks", h.listTasks).Methods(http.MethodGet)
	api.HandleFunc("/tasks", h.createTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}", h.updateTask).Methods(http.MethodPatch)
	api.HandleFunc("/tasks/{id}", h.deleteTask).Methods(http.MethodDelete)
	api.HandleFunc("/tasks/{id}/toggle", h.toggleTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/pomodoro", h.incrementPomodoro).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/notes", h.listNotes).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}/notes", h.createNote).Methods(http.MethodPost)
	api.HandleFunc("/notes/{id}", h.deleteNote).Methods(http.MethodDelete)
	api.HandleFunc("/profile", h.getProfile).Methods(http.MethodGet)
	api.HandleFunc("/profile", h.putProfile).Methods(http.MethodPut)
	api.HandleFunc("/chat", h.chat).Methods(http.MethodPost)

	r.Handle("/dashboard", requirePage(http.HandlerFunc(h.dashboard))).Methods(http.MethodGet)
}

// board resolves the caller's task board
func (h *Handler) board(w http.ResponseWriter, r *http.Request) (*tasksync.Board, bool) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	b, err := h.boards.Board(r.Context(), userID)
	if err != nil {
		log.Printf("[Web] Failed to load tasks for %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to load tasks")
		return nil, false
	}
	return b, true
}

// ownedTask finds id on the caller's board, reloading once in case another writer added it
func (h *Handler) ownedTask(w http.ResponseWriter, r *http.Request, b *tasksync.Board, id string) (model.Task, bool) {
	if t, ok := b.Get(id); ok {
		return t, true
	}
	if err := b.Reload(r.Context()); err != nil {
		log.Printf("[Web] Reload for user %s failed: %v", b.UserID(), err)
	}
	if t, ok := b.Get(id); ok {
		return t, true
	}
	writeError(w, http.StatusNotFound, "Task not found")
	return model.Task{}, false
}

// refresh re-reads the caller's tasks so writes from other processes show up.
// A failed reload keeps serving the last snapshot.
func (h *Handler) refresh(r *http.Request, b *tasksync.Board) {
	if err := b.Reload(r.Context()); err != nil {
		log.Printf("[Web] Reload for user %s failed, serving cached tasks: %v", b.UserID(), err)
	}
}

// storedTask reads the current row for id so patches build on the store's values
func (h *Handler) storedTask(w http.ResponseWriter, r *http.Request, id string) (model.Task, bool) {
	t, err := h.store.GetTask(r.Context(), id)
	if err != nil {
		log.Printf("[Web] Failed to read task %s: %v", id, err)
		writeStoreError(w, err)
		return model.Task{}, false
	}
	return t, true
}

func (h *Handler) summaryFor(b *tasksync.Board, tasks []model.Task, revision uint64) summary.Summary {
	h.memoMu.Lock()
	m, ok := h.memos[b.UserID()]
	if !ok {
		m = &summary.Memo{}
		h.memos[b.UserID()] = m
	}
	h.memoMu.Unlock()
	return m.Get(revision, tasks, h.now())
}

// forgetMemo drops the summary memo of a user whose board was evicted
func (h *Handler) forgetMemo(userID string) {
	h.memoMu.Lock()
	delete(h.memos, userID)
	h.memoMu.Unlock()
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// writeStoreError maps domain errors onto HTTP statuses
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Web] Failed to encode response: %v", err)
	}
}
