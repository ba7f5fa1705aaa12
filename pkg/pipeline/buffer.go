package pipeline

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
)

// resultBuffer accumulates page results and hands them to the sink in batches. A flush swaps
// the slice out under the lock, so producers never wait on the sink.
type resultBuffer struct {
	mu        sync.Mutex
	items     []models.PageResult
	batchSize int

	flushMu sync.Mutex // serializes sink calls
	pending sync.WaitGroup
	errs    []error

	sink BatchSink
	emit func(Event)
	log  *logrus.Entry
}

func newResultBuffer(sink BatchSink, batchSize int, emit func(Event), log *logrus.Entry) *resultBuffer {
	return &resultBuffer{
		items:     make([]models.PageResult, 0, batchSize),
		batchSize: batchSize,
		sink:      sink,
		emit:      emit,
		log:       log,
	}
}

// add appends r and schedules an asynchronous flush once the batch is full
func (b *resultBuffer) add(ctx context.Context, r models.PageResult) {
	b.mu.Lock()
	b.items = append(b.items, r)
	full := len(b.items) >= b.batchSize
	b.mu.Unlock()

	if full {
		b.pending.Add(1)
		go func() {
			defer b.pending.Done()
			b.flush(ctx)
		}()
	}
}

// flush persists everything buffered so far. The sink runs detached from ctx cancellation
// so results already produced are not dropped on shutdown.
func (b *resultBuffer) flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.items
	b.items = make([]models.PageResult, 0, b.batchSize)
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	b.emit(BufferFlushing{Size: len(batch)})
	err := b.sink.PersistBatch(context.WithoutCancel(ctx), batch)
	b.emit(BufferFlushed{Size: len(batch), Err: err})
	if err != nil {
		b.log.WithField("batch_size", len(batch)).Errorf("Batch persist failed: %v", err)
		b.errs = append(b.errs, err)
	}
	return err
}

// wait blocks until every scheduled flush has returned
func (b *resultBuffer) wait() {
	b.pending.Wait()
}

func (b *resultBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// sinkErrors returns the sink errors seen so far
func (b *resultBuffer) sinkErrors() []error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	return append([]error(nil), b.errs...)
}
