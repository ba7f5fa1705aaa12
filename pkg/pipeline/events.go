package pipeline

import (
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
)

// Event is a pipeline lifecycle notification. The set of implementations is closed; switch
// on the concrete type to handle one.
type Event interface {
	isEvent()
}

// Started is emitted once per run, before discovery
type Started struct {
	RunID   string
	BaseURL string
}

// URLsDiscovered reports the size of the page set
type URLsDiscovered struct {
	Count     int
	FromCache bool
}

// CacheHit reports a result cache hit for a discovery list or a page
type CacheHit struct {
	Key string
}

// ChunkStarted is emitted before a chunk's workers are started. Index is 0-based.
type ChunkStarted struct {
	Index int
	Total int
	Size  int
}

// ChunkCompleted is emitted after every worker of a chunk has returned
type ChunkCompleted struct {
	Index     int
	Total     int
	Processed int
}

// PageProcessed carries the outcome of one URL, including duplicates and cache hits
type PageProcessed struct {
	Result models.PageResult
}

// MemoryWarning reports heap usage above the configured limit fraction
type MemoryWarning struct {
	UsedMB    float64
	LimitMB   int
	Threshold float64
}

// BufferFlushing is emitted after the buffer was swapped out, before the sink runs
type BufferFlushing struct {
	Size int
}

// BufferFlushed is emitted after the sink returned; Err is its error, if any
type BufferFlushed struct {
	Size int
	Err  error
}

// Completed carries the final metrics of a run
type Completed struct {
	Metrics models.RunMetrics
}

func (Started) isEvent()        {}
func (URLsDiscovered) isEvent() {}
func (CacheHit) isEvent()       {}
func (ChunkStarted) isEvent()   {}
func (ChunkCompleted) isEvent() {}
func (PageProcessed) isEvent()  {}
func (MemoryWarning) isEvent()  {}
func (BufferFlushing) isEvent() {}
func (BufferFlushed) isEvent()  {}
func (Completed) isEvent()      {}
