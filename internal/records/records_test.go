package records

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-rewards-api/internal/catalog"
	"quiz-rewards-api/internal/models"
)

// memorySink collects records in memory.
type memorySink struct {
	mu      sync.Mutex
	records []models.UserRecord
	fail    error
	panics  int
	closed  bool
}

func (m *memorySink) Append(record models.UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panics > 0 {
		m.panics--
		panic("sink exploded")
	}
	if m.fail != nil {
		return m.fail
	}
	m.records = append(m.records, record)
	return nil
}

func (m *memorySink) Close() error {
	m.closed = true
	return nil
}

func (m *memorySink) all() []models.UserRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.UserRecord(nil), m.records...)
}

var (
	janStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	janEnd   = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	midJan   = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	firstFeb = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(
		[]models.Quiz{{Name: "four", Points: 100, Questions: []models.QuizQuestion{
			{Question: "1", Correct: []string{"a"}},
			{Question: "2", Correct: []string{"a"}},
			{Question: "3", Correct: []string{"a"}},
			{Question: "4", Correct: []string{"a"}},
		}}},
		[]models.Code{
			{Code: "Winter", Points: 1, ValidFrom: janStart, ValidTo: janEnd},
			{Code: "alpha", Points: 5, ValidFrom: janStart, ValidTo: janEnd},
			{Code: "future", Points: 50, ValidFrom: firstFeb, ValidTo: firstFeb.AddDate(0, 1, 0)},
		},
		[]models.Wheel{{Name: "booth"}},
	)
	require.NoError(t, err)
	return c
}

func fixedClock(at time.Time) Option {
	return WithClock(func() time.Time { return at })
}

func emptyState() models.UserState {
	return models.NewUserState(models.UserID{0xab, 0xcd})
}

func TestRegister_ZeroPointsWritesNothing(t *testing.T) {
	sink := &memorySink{}
	w := NewWriter(sink, 1)
	defer w.Close()
	r := NewRecorder(newTestCatalog(t), w, fixedClock(midJan))

	res, err := r.Register([]string{"unknown", "", "  "}, "a@b.c", true, emptyState())
	require.NoError(t, err)
	assert.Equal(t, uint32(0), res.Points)
	assert.False(t, res.Recorded)
	assert.Empty(t, sink.all())
}

func TestRegister_SingleCodeOnePoint(t *testing.T) {
	sink := &memorySink{}
	w := NewWriter(sink, 1)
	defer w.Close()
	r := NewRecorder(newTestCatalog(t), w, fixedClock(midJan))

	res, err := r.Register([]string{"  WINTER "}, "a@b.c", true, emptyState())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), res.Points)
	assert.True(t, res.Recorded)

	recs := sink.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "abcd0000000000000000000000000000", recs[0].ID)
	assert.Equal(t, "a@b.c", recs[0].Email)
	assert.Equal(t, uint32(1), recs[0].Points)
	assert.Equal(t, "Winter", recs[0].Codes)
	assert.True(t, recs[0].Consent)
	assert.True(t, recs[0].Time.Equal(midJan))
}

func TestRegister_CodesSortedAndPointsSummed(t *testing.T) {
	sink := &memorySink{}
	w := NewWriter(sink, 1)
	defer w.Close()
	r := NewRecorder(newTestCatalog(t), w, fixedClock(midJan))

	state := emptyState()
	state.Answers["four"] = []bool{true, true, false, true}
	state.Wheels["booth"] = 40

	res, err := r.Register([]string{"winter", "ALPHA", "future", "nope"}, "a@b.c", false, state)
	require.NoError(t, err)
	assert.Equal(t, uint32(75+40+1+5), res.Points)
	assert.Equal(t, []string{"Winter", "alpha"}, res.Codes)

	recs := sink.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "Winter alpha", recs[0].Codes)
	assert.False(t, recs[0].Consent)
}

func TestRegister_ValidityWindow(t *testing.T) {
	cat := newTestCatalog(t)

	tests := []struct {
		name string
		now  time.Time
		want uint32
	}{
		{"inside", midJan, 1},
		{"first instant", janStart, 1},
		{"last instant", janEnd, 1},
		{"before", janStart.Add(-time.Second), 0},
		{"after", firstFeb, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memorySink{}
			w := NewWriter(sink, 1)
			defer w.Close()
			r := NewRecorder(cat, w, fixedClock(tt.now))

			res, err := r.Register([]string{"winter"}, "a@b.c", true, emptyState())
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Points)
			assert.Len(t, sink.all(), int(tt.want))
		})
	}
}

func TestRegister_DeduplicatesVerbatimOnly(t *testing.T) {
	sink := &memorySink{}
	w := NewWriter(sink, 1)
	defer w.Close()
	r := NewRecorder(newTestCatalog(t), w, fixedClock(midJan))

	res, err := r.Register([]string{"alpha", "alpha"}, "a@b.c", true, emptyState())
	require.NoError(t, err)
	assert.Equal(t, uint32(5), res.Points)

	// differently written submissions of one code are distinct inputs
	res, err = r.Register([]string{"alpha", "ALPHA"}, "a@b.c", true, emptyState())
	require.NoError(t, err)
	assert.Equal(t, uint32(10), res.Points)
	assert.Equal(t, []string{"alpha", "alpha"}, res.Codes)
}

func TestRegister_RepeatedCallsAppendEachTime(t *testing.T) {
	sink := &memorySink{}
	w := NewWriter(sink, 1)
	defer w.Close()
	r := NewRecorder(newTestCatalog(t), w, fixedClock(midJan))

	state := emptyState()
	state.Wheels["booth"] = 20

	for i := 0; i < 2; i++ {
		res, err := r.Register(nil, "a@b.c", true, state)
		require.NoError(t, err)
		assert.Equal(t, uint32(20), res.Points)
	}

	// expected: redemption is not idempotent per user
	recs := sink.all()
	require.Len(t, recs, 2)
	assert.Equal(t, recs[0].ID, recs[1].ID)
}

func TestRegister_WriteFailure(t *testing.T) {
	sink := &memorySink{fail: errors.New("disk full")}
	w := NewWriter(sink, 1)
	defer w.Close()
	r := NewRecorder(newTestCatalog(t), w, fixedClock(midJan))

	res, err := r.Register([]string{"alpha"}, "a@b.c", true, emptyState())
	assert.ErrorIs(t, err, ErrWriteFailure)
	assert.False(t, res.Recorded)
}

func TestWriter_PanicReleasesLock(t *testing.T) {
	sink := &memorySink{panics: 1}
	w := NewWriter(sink, 1)
	defer w.Close()

	err := w.Write(models.UserRecord{ID: "first"})
	assert.ErrorIs(t, err, ErrWriteFailure)

	require.NoError(t, w.Write(models.UserRecord{ID: "second"}))
	recs := sink.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "second", recs[0].ID)
}

func TestWriter_CloseClosesSinkAndRejectsWrites(t *testing.T) {
	sink := &memorySink{}
	w := NewWriter(sink, 0)

	require.NoError(t, w.Close())
	assert.True(t, sink.closed)
	assert.ErrorIs(t, w.Write(models.UserRecord{}), ErrWriterClosed)
	assert.NoError(t, w.Close())
}

func TestCSVSink_ConcurrentWritesStayIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.csv")
	sink, err := NewCSVSink(path)
	require.NoError(t, err)
	w := NewWriter(sink, 4)

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := w.Write(models.UserRecord{
				ID:      fmt.Sprintf("%032d", i),
				Email:   fmt.Sprintf("user%d@example.com", i),
				Points:  uint32(i + 1),
				Codes:   "a b",
				Consent: i%2 == 0,
				Time:    midJan,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, writers)
	for _, row := range rows {
		require.Len(t, row, 6)
		assert.Equal(t, "a b", row[3])
		assert.Equal(t, "2024-01-15T12:00:00Z", row[5])
	}
}

func TestCSVSink_AppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.csv")

	for i := 0; i < 2; i++ {
		sink, err := NewCSVSink(path)
		require.NoError(t, err)
		require.NoError(t, sink.Append(models.UserRecord{ID: "x", Email: "e,mail@x", Points: 3, Time: midJan}))
		require.NoError(t, sink.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := "x,\"e,mail@x\",3,,false,2024-01-15T12:00:00Z\n"
	assert.Equal(t, line+line, string(data))
}

// flakyFile fails the next n writes, then behaves like a buffer.
type flakyFile struct {
	bytes.Buffer
	failures int
}

func (f *flakyFile) Write(p []byte) (int, error) {
	if f.failures > 0 {
		f.failures--
		return 0, syscall.ENOSPC
	}
	return f.Buffer.Write(p)
}

func (f *flakyFile) Close() error { return nil }

func TestCSVSink_RecoversAfterFailedWrite(t *testing.T) {
	file := &flakyFile{failures: 1}
	w := NewWriter(&CSVSink{file: file}, 1)
	defer w.Close()

	err := w.Write(models.UserRecord{ID: "lost", Email: "a@b.c", Points: 1, Time: midJan})
	assert.ErrorIs(t, err, ErrWriteFailure)
	assert.ErrorContains(t, err, syscall.ENOSPC.Error())

	for _, id := range []string{"b", "c", "d"} {
		require.NoError(t, w.Write(models.UserRecord{ID: id, Email: "a@b.c", Points: 1, Time: midJan}))
	}

	want := "b,a@b.c,1,,false,2024-01-15T12:00:00Z\n" +
		"c,a@b.c,1,,false,2024-01-15T12:00:00Z\n" +
		"d,a@b.c,1,,false,2024-01-15T12:00:00Z\n"
	assert.Equal(t, want, file.String())
}

func TestSQLiteSink(t *testing.T) {
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Append(models.UserRecord{ID: "a", Email: "a@b.c", Points: 5, Codes: "x y", Consent: true, Time: midJan}))
	require.NoError(t, sink.Append(models.UserRecord{ID: "a", Email: "a@b.c", Points: 5, Time: midJan}))

	count, err := sink.count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// fakeRedis records RPUSH calls.
type fakeRedis struct {
	pushed map[string][]string
	err    error
}

func (f *fakeRedis) RPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	for _, v := range values {
		f.pushed[key] = append(f.pushed[key], v.(string))
	}
	return redis.NewIntResult(int64(len(f.pushed[key])), nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisSink(t *testing.T) {
	client := &fakeRedis{pushed: map[string][]string{}}
	sink := newRedisSink(client, "")

	require.NoError(t, sink.Append(models.UserRecord{ID: "a", Email: "a@b.c", Points: 7, Codes: "k", Consent: true, Time: midJan}))
	assert.Equal(t, []string{"a,a@b.c,7,k,true,2024-01-15T12:00:00Z"}, client.pushed[DefaultRedisKey])

	client.err = errors.New("connection refused")
	assert.Error(t, sink.Append(models.UserRecord{ID: "b"}))
}
