// Package records appends redemption records to a durable, append-only
// destination.
//
// A Sink is the destination. A Writer owns one Sink and serializes appends
// to it from a small pool of worker goroutines, so request goroutines never
// do the blocking I/O themselves. A Recorder turns a session state plus
// submitted codes into at most one record per call.
package records

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strconv"
	"time"

	"quiz-rewards-api/internal/models"
)

var (
	// ErrWriteFailure wraps every failed append. It is not retried.
	ErrWriteFailure = errors.New("record write failed")
	// ErrWriterClosed is returned by Write after Close.
	ErrWriterClosed = errors.New("record writer closed")
)

// Sink is an append-only record destination. Append must not return until
// the record is flushed to the underlying store. Sinks are not required to
// be safe for concurrent use; Writer serializes access.
type Sink interface {
	Append(record models.UserRecord) error
	Close() error
}

// recordFields returns a record in its fixed column order:
// id, email, points, codes, consent, time.
func recordFields(r models.UserRecord) []string {
	return []string{
		r.ID,
		r.Email,
		strconv.FormatUint(uint64(r.Points), 10),
		r.Codes,
		strconv.FormatBool(r.Consent),
		r.Time.UTC().Format(time.RFC3339Nano),
	}
}

// recordLine renders r as a single CSV line without the trailing newline.
func recordLine(r models.UserRecord) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(recordFields(r)); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
