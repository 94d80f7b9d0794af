package records

import (
	"fmt"
	"io"
	"os"

	"quiz-rewards-api/internal/models"
)

// CSVSink appends one CSV line per record to a file opened in append mode.
// No header is written.
type CSVSink struct {
	file io.WriteCloser
}

// NewCSVSink opens path for appending, creating it if absent.
func NewCSVSink(path string) (*CSVSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open records file: %w", err)
	}

	return &CSVSink{file: file}, nil
}

// Append writes the whole line in a single call. No state carries over
// between calls, so one failed write does not poison the next.
func (s *CSVSink) Append(record models.UserRecord) error {
	line, err := recordLine(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if _, err := io.WriteString(s.file, line+"\n"); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func (s *CSVSink) Close() error {
	return s.file.Close()
}
