package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

// Supported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'todo',
	priority         TEXT NOT NULL DEFAULT 'medium',
	due_at           BIGINT,
	duration_minutes INTEGER,
	source           TEXT NOT NULL DEFAULT '',
	created_at       BIGINT NOT NULL,
	updated_at       BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS tasks_user_created_idx ON tasks (user_id, created_at);
CREATE TABLE IF NOT EXISTS idempotency_keys (
	key        TEXT PRIMARY KEY,
	response   TEXT NOT NULL,
	created_at BIGINT NOT NULL
);`

const taskColumns = `id, user_id, title, description, status, priority, due_at, duration_minutes, source, created_at, updated_at`

// SQLStore stores tasks in PostgreSQL or SQLite. Queries are written with
// "?" placeholders and rebound for PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// NewSQL wraps an open database.
func NewSQL(db *sql.DB, driver string, now func() time.Time) *SQLStore {
	if now == nil {
		now = time.Now
	}
	return &SQLStore{db: db, driver: driver, now: now}
}

// Connect opens and pings the database and configures the pool.
func Connect(driver, databaseURL string) (*sql.DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if driver == DriverSQLite {
		// a single connection keeps ":memory:" databases shared and avoids
		// SQLITE_BUSY on writes
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	return db, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Create(ctx context.Context, userID string, in NewTask) (*Task, error) {
	in, err := normalizeNew(in)
	if err != nil {
		return nil, err
	}
	now := s.now().Unix()
	t := &Task{
		ID:              uuid.NewString(),
		UserID:          userID,
		Title:           in.Title,
		Status:          StatusTodo,
		DueAt:           epochPtr(in.DueAt),
		Description:     in.Description,
		Priority:        in.Priority,
		DurationMinutes: in.DurationMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
		Source:          in.Source,
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), t.ID, t.UserID, t.Title, t.Description, string(t.Status), string(t.Priority),
		nullInt64(t.DueAt), nullInt(t.DurationMinutes), t.Source, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *SQLStore) Get(ctx context.Context, userID, taskID string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = ? AND user_id = ?
	`), taskID, userID)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, notFound(taskID)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *SQLStore) List(ctx context.Context, userID string, f ListFilter) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if f.Status != "" && f.Status != StatusAll {
		rows, err = s.db.QueryContext(ctx, s.rebind(`
			SELECT `+taskColumns+`
			FROM tasks
			WHERE user_id = ? AND status = ?
			ORDER BY created_at ASC, id ASC
		`), userID, string(f.Status))
	} else {
		rows, err = s.db.QueryContext(ctx, s.rebind(`
			SELECT `+taskColumns+`
			FROM tasks
			WHERE user_id = ?
			ORDER BY created_at ASC, id ASC
		`), userID)
	}
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

func (s *SQLStore) Update(ctx context.Context, userID, taskID string, p Patch) (*Task, error) {
	var (
		sets []string
		args []interface{}
	)
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, ErrInvalidTitle
		}
		sets, args = append(sets, "title = ?"), append(args, title)
	}
	if p.Description != nil {
		sets, args = append(sets, "description = ?"), append(args, *p.Description)
	}
	if p.Status != nil {
		sets, args = append(sets, "status = ?"), append(args, string(*p.Status))
	}
	if p.DueAt != nil {
		sets, args = append(sets, "due_at = ?"), append(args, p.DueAt.Unix())
	}
	if p.Priority != nil {
		sets, args = append(sets, "priority = ?"), append(args, string(*p.Priority))
	}
	if p.DurationMinutes != nil {
		sets, args = append(sets, "duration_minutes = ?"), append(args, *p.DurationMinutes)
	}
	sets, args = append(sets, "updated_at = ?"), append(args, s.now().Unix())
	args = append(args, taskID, userID)

	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE tasks
		SET `+strings.Join(sets, ", ")+`
		WHERE id = ? AND user_id = ?
	`), args...)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, notFound(taskID)
	}
	return s.Get(ctx, userID, taskID)
}

func (s *SQLStore) Delete(ctx context.Context, userID, taskID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM tasks WHERE id = ? AND user_id = ?
	`), taskID, userID)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (s *SQLStore) Search(ctx context.Context, userID, query string, limit int) ([]*Task, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+taskColumns+`
		FROM tasks
		WHERE user_id = ? AND LOWER(title) LIKE ? ESCAPE '\'
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`), userID, "%"+escapeLike(q)+"%", limit)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

// CheckIdempotencyKey checks if an operation was already performed.
// Returns the cached response if found, nil if not found.
func (s *SQLStore) CheckIdempotencyKey(ctx context.Context, key string) ([]byte, error) {
	var response string
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT response FROM idempotency_keys WHERE key = ?
	`), key).Scan(&response)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(response), nil
}

// StoreIdempotencyKey stores the result of an operation for idempotency.
func (s *SQLStore) StoreIdempotencyKey(ctx context.Context, key string, response interface{}) error {
	jsonResponse, err := json.Marshal(response)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO idempotency_keys (key, response, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO NOTHING
	`), key, string(jsonResponse), s.now().Unix())
	return err
}

// rebind rewrites "?" placeholders as "$n" for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t        Task
		status   string
		priority string
		due      sql.NullInt64
		duration sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &status, &priority,
		&due, &duration, &t.Source, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	if due.Valid {
		v := due.Int64
		t.DueAt = &v
	}
	if duration.Valid {
		v := int(duration.Int64)
		t.DurationMinutes = &v
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*Task, error) {
	defer rows.Close()
	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
