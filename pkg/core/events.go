package core

import "sync"

// EventKind identifies a pipeline event.
type EventKind int

const (
	EventScanStarted EventKind = iota
	EventProjectFound
	EventScanCompleted
	EventCleanStarted
	EventProjectCleaned
	EventCleanCompleted
)

func (k EventKind) String() string {
	switch k {
	case EventScanStarted:
		return "ScanStarted"
	case EventProjectFound:
		return "ProjectFound"
	case EventScanCompleted:
		return "ScanCompleted"
	case EventCleanStarted:
		return "CleanStarted"
	case EventProjectCleaned:
		return "ProjectCleaned"
	case EventCleanCompleted:
		return "CleanCompleted"
	}
	return "EventKind(?)"
}

// Event carries the payload of its Kind; other fields are zero.
type Event struct {
	Kind EventKind

	Roots    []string       // ScanStarted
	Project  *ProjectRecord // ProjectFound
	Found    int            // ScanCompleted
	Warnings []ScanWarning  // ScanCompleted
	Total    int            // CleanStarted
	DryRun   bool           // CleanStarted
	Result   *CleanResult   // ProjectCleaned
	Summary  *Summary       // CleanCompleted
}

// EventSink receives events. Emit may be called from several goroutines.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to EventSink. The function must be safe for
// concurrent use.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// DiscardSink drops every event.
var DiscardSink EventSink = SinkFunc(func(Event) {})

// ChannelSink hands events to exactly one consumer reading Events().
// Emit blocks while the buffer is full.
type ChannelSink struct {
	ch   chan Event
	once sync.Once
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(e Event) { s.ch <- e }

func (s *ChannelSink) Events() <-chan Event { return s.ch }

// Close ends the stream. No Emit may follow.
func (s *ChannelSink) Close() {
	s.once.Do(func() { close(s.ch) })
}

// Recorder keeps every event in emission order. Used by tests and by
// callers that want the stream after the fact.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []EventKind {
	events := r.Events()
	kinds := make([]EventKind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}
