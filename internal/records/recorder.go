package records

import (
	"sort"
	"strings"
	"time"

	"quiz-rewards-api/internal/catalog"
	"quiz-rewards-api/internal/models"
	"quiz-rewards-api/internal/quiz"
)

// RecordWriter is the append side of a Writer.
type RecordWriter interface {
	Write(record models.UserRecord) error
}

// Redemption is the outcome of Register.
type Redemption struct {
	Points   uint32
	Codes    []string // matched code names, sorted
	Recorded bool
}

// Recorder converts a session's points plus submitted codes into a record.
type Recorder struct {
	catalog *catalog.Catalog
	writer  RecordWriter
	now     func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the time source used for code windows and record
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

func NewRecorder(cat *catalog.Catalog, writer RecordWriter, opts ...Option) *Recorder {
	r := &Recorder{
		catalog: cat,
		writer:  writer,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register totals the state's points and every submitted code that exists
// and is valid now, then appends one record if the total is positive.
// Submitted codes are deduplicated verbatim before normalization.
//
// Calls are not deduplicated by user: registering the same state twice
// appends two records.
func (r *Recorder) Register(codes []string, email string, consent bool, state models.UserState) (Redemption, error) {
	now := r.now().UTC()
	points := quiz.Points(r.catalog, state)

	var matched []string
	seen := make(map[string]struct{}, len(codes))
	for _, submitted := range codes {
		if _, dup := seen[submitted]; dup {
			continue
		}
		seen[submitted] = struct{}{}

		code, ok := r.catalog.Code(submitted)
		if !ok || !code.ActiveAt(now) {
			continue
		}
		points += code.Points
		matched = append(matched, code.Code)
	}
	sort.Strings(matched)

	redemption := Redemption{Points: points, Codes: matched}
	if points == 0 {
		return redemption, nil
	}

	record := models.UserRecord{
		ID:      state.ID.String(),
		Email:   email,
		Points:  points,
		Codes:   strings.Join(matched, " "),
		Consent: consent,
		Time:    now,
	}
	if err := r.writer.Write(record); err != nil {
		return redemption, err
	}

	redemption.Recorded = true
	return redemption, nil
}
