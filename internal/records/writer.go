package records

import (
	"fmt"
	"sync"

	"quiz-rewards-api/internal/models"
)

// DefaultWorkers is the size of the append pool when none is configured.
const DefaultWorkers = 2

type job struct {
	record models.UserRecord
	done   chan error
}

// Writer runs appends on a fixed pool of goroutines. Appends are serialized
// by a mutex held only for the append itself; it is released on every exit
// path, including a panicking sink.
type Writer struct {
	sink Sink
	mu   sync.Mutex // guards sink

	jobs chan job
	wg   sync.WaitGroup

	stateMu sync.RWMutex
	closed  bool
}

// NewWriter starts workers goroutines appending to sink.
func NewWriter(sink Sink, workers int) *Writer {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	w := &Writer{
		sink: sink,
		jobs: make(chan job),
	}

	w.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go w.run()
	}

	return w
}

func (w *Writer) run() {
	defer w.wg.Done()
	for j := range w.jobs {
		j.done <- w.append(j.record)
	}
}

func (w *Writer) append(record models.UserRecord) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", ErrWriteFailure, p)
		}
	}()

	if err := w.sink.Append(record); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	return nil
}

// Write hands record to the pool and blocks until it is appended or the
// append fails. Once handed over, the append is not cancelled.
func (w *Writer) Write(record models.UserRecord) error {
	j := job{record: record, done: make(chan error, 1)}

	w.stateMu.RLock()
	if w.closed {
		w.stateMu.RUnlock()
		return ErrWriterClosed
	}
	w.jobs <- j
	w.stateMu.RUnlock()

	return <-j.done
}

// Close waits for in-flight appends, stops the pool and closes the sink.
func (w *Writer) Close() error {
	w.stateMu.Lock()
	if w.closed {
		w.stateMu.Unlock()
		return nil
	}
	w.closed = true
	close(w.jobs)
	w.stateMu.Unlock()

	w.wg.Wait()
	return w.sink.Close()
}
