package web

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/cexll/pomotask/internal/auth"
	"github.com/cexll/pomotask/internal/model"
	"github.com/cexll/pomotask/internal/store"
	"github.com/cexll/pomotask/internal/summary"
)

type taskListResponse struct {
	Tasks   []model.Task    `json:"tasks"`
	Summary summary.Summary `json:"summary"`
}

type createTaskRequest struct {
	Title              string  `json:"title"`
	Description        *string `json:"description"`
	PomodorosEstimated *int    `json:"pomodoros_estimated"`
}

type createNoteRequest struct {
	Content string `json:"content"`
}

type profileRequest struct {
	Phone string `json:"phone"`
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}
	h.refresh(r, b)
	tasks, revision := b.Snapshot()
	writeJSON(w, http.StatusOK, taskListResponse{
		Tasks:   tasks,
		Summary: h.summaryFor(b, tasks, revision),
	})
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	draft := model.Task{
		Title:              strings.TrimSpace(req.Title),
		Description:        req.Description,
		PomodorosEstimated: 1,
	}
	if req.PomodorosEstimated != nil {
		draft.PomodorosEstimated = *req.PomodorosEstimated
	}

	task, err := b.Create(r.Context(), draft)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if _, ok := h.ownedTask(w, r, b, id); !ok {
		return
	}

	var patch model.TaskPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "No fields to update")
		return
	}

	task, err := b.Update(r.Context(), id, patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if _, ok := h.ownedTask(w, r, b, id); !ok {
		return
	}

	if err := b.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleTask(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if _, ok := h.ownedTask(w, r, b, id); !ok {
		return
	}
	current, ok := h.storedTask(w, r, id)
	if !ok {
		return
	}

	task, err := b.Update(r.Context(), id, model.TaskPatch{IsCompleted: model.Ptr(!current.IsCompleted)})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) incrementPomodoro(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if _, ok := h.ownedTask(w, r, b, id); !ok {
		return
	}
	current, ok := h.storedTask(w, r, id)
	if !ok {
		return
	}

	task, err := b.Update(r.Context(), id, model.TaskPatch{PomodorosActual: model.Ptr(current.PomodorosActual + 1)})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) listNotes(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if _, ok := h.ownedTask(w, r, b, id); !ok {
		return
	}

	notes, err := h.store.ListNotes(r.Context(), id)
	if err != nil {
		log.Printf("[Web] Failed to list notes for task %s: %v", id, err)
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

func (h *Handler) createNote(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if _, ok := h.ownedTask(w, r, b, id); !ok {
		return
	}

	var req createNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	note, err := h.store.InsertNote(r.Context(), model.Note{TaskID: id, Content: content})
	if err != nil {
		log.Printf("[Web] Failed to add note to task %s: %v", id, err)
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (h *Handler) deleteNote(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	note, err := h.store.GetNote(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Note not found")
			return
		}
		writeStoreError(w, err)
		return
	}
	if _, ok := h.ownedTask(w, r, b, note.TaskID); !ok {
		return
	}

	if err := h.store.DeleteNote(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	p, err := h.store.ProfileByUser(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, model.Profile{UserID: userID})
		return
	}
	if err != nil {
		log.Printf("[Web] Failed to load profile for %s: %v", userID, err)
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) putProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	phone := model.NormalizePhone(req.Phone)
	if phone == "" {
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	}

	p, err := h.store.UpsertProfile(r.Context(), userID, phone)
	if err != nil {
		log.Printf("[Web] Failed to save profile for %s: %v", userID, err)
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
