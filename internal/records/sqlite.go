package records

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"quiz-rewards-api/internal/models"
)

// SQLiteSink stores records in an insert-only table.
type SQLiteSink struct {
	conn *sql.DB
}

// NewSQLiteSink opens the database at dbPath and initializes the schema.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteSink{conn: conn}

	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the necessary tables if they don't exist.
func (s *SQLiteSink) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS user_records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			email TEXT NOT NULL,
			points INTEGER NOT NULL,
			codes TEXT NOT NULL,
			consent INTEGER NOT NULL,
			time TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_records_id ON user_records(id)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

func (s *SQLiteSink) Append(record models.UserRecord) error {
	query := `INSERT INTO user_records (id, email, points, codes, consent, time)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.conn.Exec(
		query,
		record.ID,
		record.Email,
		record.Points,
		record.Codes,
		record.Consent,
		record.Time.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	return nil
}

// count returns the number of stored records.
func (s *SQLiteSink) count() (int, error) {
	var count int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM user_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

func (s *SQLiteSink) Close() error {
	return s.conn.Close()
}
