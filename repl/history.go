package repl

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Entry is one recorded REPL submission.
type Entry struct {
	ID        int64
	Session   string
	Source    string
	Result    string
	CreatedAt time.Time
}

// History persists REPL submissions in a SQLite database. Each History
// value records under its own session id.
type History struct {
	db      *sql.DB
	session string
}

// OpenHistory opens (creating if needed) the history database at path.
func OpenHistory(path string) (*History, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		source TEXT NOT NULL,
		result TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history table: %w", err)
	}

	return &History{db: db, session: uuid.NewString()}, nil
}

// Session returns the id entries appended through h are recorded under.
func (h *History) Session() string {
	return h.session
}

// Append records one submission and its rendered outcome.
func (h *History) Append(source, result string) error {
	_, err := h.db.Exec(
		"INSERT INTO history (session, source, result, created_at) VALUES (?, ?, ?, ?)",
		h.session, source, result, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	return nil
}

// Recent returns up to n of the newest entries across all sessions, oldest
// first.
func (h *History) Recent(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := h.db.Query(
		"SELECT id, session, source, result, created_at FROM history ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.Session, &e.Source, &e.Result, &created); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Close closes the database connection.
func (h *History) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}
