package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cexll/pomotask/internal/model"
)

const currentSchemaVersion = 1

// SQLite is the Store backed by a SQLite database file
type SQLite struct {
	conn *sql.DB
	now  func() time.Time
}

// NewSQLite opens (creating if needed) the database at path and migrates its schema.
// Use ":memory:" for a throwaway database.
func NewSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and avoids SQLITE_BUSY on writes.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLite{conn: conn, now: time.Now}
	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return err
	}

	version, err := readSchemaVersion(tx)
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("db schema version %d is newer than runtime version %d", version, currentSchemaVersion)
	}

	if version < 1 {
		if err := migrateToTaskSchema(tx); err != nil {
			return fmt.Errorf("migrate schema %d -> 1: %w", version, err)
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_meta(key, value) VALUES('schema_version', ?)`, strconv.Itoa(currentSchemaVersion)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func readSchemaVersion(tx *sql.Tx) (int, error) {
	var versionText string
	err := tx.QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&versionText)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	version, err := strconv.Atoi(versionText)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", versionText, err)
	}
	return version, nil
}

func migrateToTaskSchema(tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT,
	pomodoros_estimated INTEGER NOT NULL DEFAULT 1,
	pomodoros_actual INTEGER NOT NULL DEFAULT 0,
	is_completed INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_created ON tasks(user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS notes (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_notes_task_created ON notes(task_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	phone TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_user ON profiles(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_phone ON profiles(phone)`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const taskColumns = `id, user_id, title, description, pomodoros_estimated, pomodoros_actual, is_completed, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (model.Task, error) {
	var (
		t                model.Task
		desc             sql.NullString
		completed        int
		created, updated int64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &desc, &t.PomodorosEstimated, &t.PomodorosActual, &completed, &created, &updated); err != nil {
		return model.Task{}, err
	}
	if desc.Valid {
		d := desc.String
		t.Description = &d
	}
	t.IsCompleted = completed != 0
	t.CreatedAt = time.Unix(0, created)
	t.UpdatedAt = time.Unix(0, updated)
	return t, nil
}

func (s *SQLite) ListTasks(ctx context.Context, q TaskQuery) ([]model.Task, error) {
	var (
		where []string
		args  []any
	)
	if q.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, q.UserID)
	}
	if q.IncompleteOnly {
		where = append(where, "is_completed = 0")
	}

	query := "SELECT " + taskColumns + " FROM tasks"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLite) GetTask(ctx context.Context, id string) (model.Task, error) {
	row := s.conn.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *SQLite) InsertTask(ctx context.Context, task model.Task) (model.Task, error) {
	if err := task.Validate(); err != nil {
		return model.Task{}, err
	}

	task.ID = uuid.NewString()
	now := s.now()
	task.CreatedAt = now
	task.UpdatedAt = now

	var desc sql.NullString
	if task.Description != nil {
		desc = sql.NullString{String: *task.Description, Valid: true}
	}

	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO tasks ("+taskColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		task.ID, task.UserID, task.Title, desc, task.PomodorosEstimated, task.PomodorosActual,
		boolToInt(task.IsCompleted), now.UnixNano(), now.UnixNano())
	if err != nil {
		return model.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

func (s *SQLite) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	if err := patch.Validate(); err != nil {
		return model.Task{}, err
	}

	sets := []string{"updated_at = ?"}
	args := []any{s.now().UnixNano()}
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, strings.TrimSpace(*patch.Title))
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.PomodorosEstimated != nil {
		sets = append(sets, "pomodoros_estimated = ?")
		args = append(args, *patch.PomodorosEstimated)
	}
	if patch.PomodorosActual != nil {
		sets = append(sets, "pomodoros_actual = ?")
		args = append(args, *patch.PomodorosActual)
	}
	if patch.IsCompleted != nil {
		sets = append(sets, "is_completed = ?")
		args = append(args, boolToInt(*patch.IsCompleted))
	}
	args = append(args, id)

	res, err := s.conn.ExecContext(ctx, "UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return model.Task{}, fmt.Errorf("update task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return s.GetTask(ctx, id)
}

func (s *SQLite) DeleteTask(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) ListNotes(ctx context.Context, taskID string) ([]model.Note, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, task_id, content, created_at FROM notes WHERE task_id = ? ORDER BY created_at DESC, rowid DESC", taskID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	notes := make([]model.Note, 0)
	for rows.Next() {
		var (
			n       model.Note
			created int64
		)
		if err := rows.Scan(&n.ID, &n.TaskID, &n.Content, &created); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.CreatedAt = time.Unix(0, created)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (s *SQLite) GetNote(ctx context.Context, id string) (model.Note, error) {
	var (
		n       model.Note
		created int64
	)
	err := s.conn.QueryRowContext(ctx, "SELECT id, task_id, content, created_at FROM notes WHERE id = ?", id).
		Scan(&n.ID, &n.TaskID, &n.Content, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Note{}, fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Note{}, fmt.Errorf("get note: %w", err)
	}
	n.CreatedAt = time.Unix(0, created)
	return n, nil
}

func (s *SQLite) InsertNote(ctx context.Context, note model.Note) (model.Note, error) {
	if _, err := s.GetTask(ctx, note.TaskID); err != nil {
		return model.Note{}, err
	}
	note.ID = uuid.NewString()
	note.CreatedAt = s.now()
	_, err := s.conn.ExecContext(ctx, "INSERT INTO notes (id, task_id, content, created_at) VALUES (?, ?, ?, ?)",
		note.ID, note.TaskID, note.Content, note.CreatedAt.UnixNano())
	if err != nil {
		return model.Note{}, fmt.Errorf("insert note: %w", err)
	}
	return note, nil
}

func (s *SQLite) DeleteNote(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	return nil
}

const profileColumns = `id, user_id, phone, created_at, updated_at`

func scanProfile(row rowScanner) (model.Profile, error) {
	var (
		p                model.Profile
		created, updated int64
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Phone, &created, &updated); err != nil {
		return model.Profile{}, err
	}
	p.CreatedAt = time.Unix(0, created)
	p.UpdatedAt = time.Unix(0, updated)
	return p, nil
}

func (s *SQLite) profileWhere(ctx context.Context, column, value string) (model.Profile, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE "+column+" = ? ORDER BY created_at ASC LIMIT 1", value)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Profile{}, fmt.Errorf("profile for %s %s: %w", column, value, ErrNotFound)
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *SQLite) ProfileByPhone(ctx context.Context, phone string) (model.Profile, error) {
	return s.profileWhere(ctx, "phone", phone)
}

func (s *SQLite) ProfileByUser(ctx context.Context, userID string) (model.Profile, error) {
	return s.profileWhere(ctx, "user_id", userID)
}

func (s *SQLite) UpsertProfile(ctx context.Context, userID, phone string) (model.Profile, error) {
	now := s.now()
	existing, err := s.ProfileByUser(ctx, userID)
	switch {
	case err == nil:
		if _, err := s.conn.ExecContext(ctx, "UPDATE profiles SET phone = ?, updated_at = ? WHERE user_id = ?",
			phone, now.UnixNano(), userID); err != nil {
			return model.Profile{}, fmt.Errorf("update profile: %w", err)
		}
		existing.Phone = phone
		existing.UpdatedAt = time.Unix(0, now.UnixNano())
		return existing, nil
	case errors.Is(err, ErrNotFound):
		p := model.Profile{ID: uuid.NewString(), UserID: userID, Phone: phone, CreatedAt: now, UpdatedAt: now}
		if _, err := s.conn.ExecContext(ctx, "INSERT INTO profiles ("+profileColumns+") VALUES (?, ?, ?, ?, ?)",
			p.ID, p.UserID, p.Phone, now.UnixNano(), now.UnixNano()); err != nil {
			return model.Profile{}, fmt.Errorf("insert profile: %w", err)
		}
		return p, nil
	default:
		return model.Profile{}, err
	}
}

func (s *SQLite) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT "+profileColumns+" FROM profiles ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]model.Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
