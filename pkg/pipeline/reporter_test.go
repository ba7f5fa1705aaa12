package pipeline

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
)

func TestReporterFuncAndMulti(t *testing.T) {
	var a, b []Event
	m := MultiReporter{
		ReporterFunc(func(e Event) { a = append(a, e) }),
		NopReporter{},
		ReporterFunc(func(e Event) { b = append(b, e) }),
	}
	m.Report(CacheHit{Key: "k"})
	assert.Equal(t, []Event{CacheHit{Key: "k"}}, a)
	assert.Equal(t, a, b)
}

func TestLogReporter(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	r := NewLogReporter(logrus.NewEntry(logger), 2)

	r.Report(Started{RunID: "run-1", BaseURL: "https://d/"})
	r.Report(PageProcessed{Result: models.PageResult{URL: "a", Success: true}})
	r.Report(PageProcessed{Result: models.PageResult{URL: "b", ErrorKind: models.ErrorKindHTTP, Error: "HTTP 404"}})
	r.Report(BufferFlushed{Size: 2, Err: errors.New("disk full")})
	r.Report(Completed{Metrics: models.RunMetrics{TotalPages: 2}})

	var progress, failed, flushErr int
	for _, e := range hook.AllEntries() {
		switch e.Message {
		case "Crawl Progress":
			progress++
			assert.Equal(t, int64(1), e.Data["failed"])
		case "Page failed: HTTP 404":
			failed++
		case "Failed to persist batch of 2 result(s): disk full":
			flushErr++
		}
	}
	assert.Equal(t, 1, progress)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, flushErr)
	assert.Equal(t, "Pipeline run completed", hook.LastEntry().Message)
}
