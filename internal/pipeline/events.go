package pipeline

import (
	"sync"
	"time"
)

// Stage identifies one pipeline stage.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageRecognize Stage = "recognize"
	StageDiarize   Stage = "diarize"
	StageNarrate   Stage = "narrate"
)

// Status tags a finished stage.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Event types.
const (
	EventStageBegin = "stage_begin"
	EventStageEnd   = "stage_end"
)

// Event is a progress notification. Events for a single run are totally
// ordered and delivered in stage order.
type Event struct {
	Type   string    `json:"type"`
	Stage  Stage     `json:"stage"`
	Status Status    `json:"status,omitempty"` // stage_end only
	Detail string    `json:"detail,omitempty"`
	Time   time.Time `json:"time"`
}

// ProgressSink receives run events. Publish must not block the pipeline.
type ProgressSink interface {
	Publish(Event)
}

// SinkFunc adapts a function to a ProgressSink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// BufferedSink decouples the pipeline from a slow consumer. Events flow
// through a small bounded channel and the oldest event is dropped when the
// consumer lags; progress is advisory, the pipeline never waits for it.
type BufferedSink struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewBufferedSink starts a consumer goroutine over a buffer of size events.
func NewBufferedSink(size int, consume func(Event)) *BufferedSink {
	if size < 1 {
		size = 16
	}
	s := &BufferedSink{
		ch:   make(chan Event, size),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		for e := range s.ch {
			consume(e)
		}
	}()
	return s
}

// Publish enqueues an event, evicting the oldest buffered one when full.
// Must not be called after Close.
func (s *BufferedSink) Publish(e Event) {
	for {
		select {
		case s.ch <- e:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// Close stops the consumer after draining buffered events.
func (s *BufferedSink) Close() {
	s.once.Do(func() { close(s.ch) })
	<-s.done
}
