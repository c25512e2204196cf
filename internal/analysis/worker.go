package analysis

import (
	"errors"
	"sync"
)

// Runner wraps a start function so the service can hold on to a
// configured worker pool before kicking it off.
type Runner[T any] struct {
	Run T
}

// ErrNoJobQueue is returned when workers are set up before a job queue
// exists for the current run.
var ErrNoJobQueue = errors.New("job queue not initialized, call WithJobQueue first")

// Worker defines the interface for the per-run extraction pool.
type Worker interface {
	WithJobQueue(size int) Worker
	SetupExtractionWorkers(numberOfWorkers int) (Runner[func()], *sync.WaitGroup, error)
	Dispatch(job func())
	Finish()
}

// AsyncWorker runs extraction jobs over a fixed pool of goroutines.
// WithJobQueue returns a fresh worker per run, so one prototype can be
// shared by concurrent Analyze calls.
type AsyncWorker struct {
	jobs chan func()
	wg   *sync.WaitGroup
}

func NewAsyncWorker() *AsyncWorker {
	return &AsyncWorker{}
}

func (w *AsyncWorker) WithJobQueue(size int) Worker {
	return &AsyncWorker{
		jobs: make(chan func(), size),
		wg:   &sync.WaitGroup{},
	}
}

func (w *AsyncWorker) ExtractionWorker() {
	defer w.wg.Done()
	for job := range w.jobs {
		job()
	}
}

func (w *AsyncWorker) SetupExtractionWorkers(numberOfWorkers int) (Runner[func()], *sync.WaitGroup, error) {
	if w.jobs == nil {
		return Runner[func()]{}, nil, ErrNoJobQueue
	}
	return Runner[func()]{
		Run: func() {
			for i := 1; i <= numberOfWorkers; i++ {
				w.wg.Add(1)
				go w.ExtractionWorker()
			}
		},
	}, w.wg, nil
}

func (w *AsyncWorker) Dispatch(job func()) {
	w.jobs <- job
}

// Finish closes the job queue so workers drain and exit.
func (w *AsyncWorker) Finish() {
	close(w.jobs)
}
