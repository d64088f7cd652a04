package diag

import (
	"errors"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/vmaark/storesync/types"
)

// Sink receives diagnostics. Report must not block for long; wrap slow sinks
// with Async.
type Sink interface {
	Report(err error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(err error)

func (f SinkFunc) Report(err error) {
	f(err)
}

// Discard drops every report.
var Discard Sink = SinkFunc(func(error) {})

// Recorder keeps every report in memory.
type Recorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *Recorder) Report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

// Errors returns a copy of the recorded reports in arrival order.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// Count returns how many recorded reports carry code.
func (r *Recorder) Count(code Code) int {
	n := 0
	for _, err := range r.Errors() {
		if IsCode(err, code) {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = nil
}

type LogSinkOption func(*LogSink) error

// WithDedup suppresses repeated unknown_table reports for the last size tables seen.
func WithDedup(size int) LogSinkOption {
	return func(s *LogSink) error {
		seen, err := lru.New[types.TableID, struct{}](size)
		if err != nil {
			return err
		}
		s.seen = seen
		return nil
	}
}

// LogSink writes diagnostics as structured logrus warnings.
type LogSink struct {
	log  logrus.FieldLogger
	seen *lru.Cache[types.TableID, struct{}]
}

func NewLogSink(log logrus.FieldLogger, opts ...LogSinkOption) (*LogSink, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &LogSink{log: log}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *LogSink) Report(err error) {
	if err == nil {
		return
	}

	var diagErr *Error
	if !errors.As(err, &diagErr) {
		s.log.WithError(err).Warn("storesync diagnostic")
		return
	}

	if diagErr.Code == CodeUnknownTable && s.seen != nil {
		if ok, _ := s.seen.ContainsOrAdd(diagErr.Table, struct{}{}); ok {
			return
		}
	}

	fields := logrus.Fields{"code": string(diagErr.Code)}
	if diagErr.Op != "" {
		fields["op"] = diagErr.Op
	}
	if diagErr.Table != (types.TableID{}) {
		fields["table"] = diagErr.Table.Label()
		fields["table_id"] = diagErr.Table.String()
	}
	if diagErr.ID != "" {
		fields["id"] = string(diagErr.ID)
	}
	if diagErr.Block != 0 {
		fields["block"] = diagErr.Block
	}
	entry := s.log.WithFields(fields)
	if diagErr.Err != nil {
		entry = entry.WithError(diagErr.Err)
	}

	switch diagErr.Code {
	case CodeUnknownTable:
		entry.Debug("skipping event for unknown table")
	case CodeMissingRawRow:
		entry.Error("no raw row for updated id")
	default:
		entry.Warn("skipping row")
	}
}

// AsyncSink forwards reports to another sink from its own goroutine. Reports
// that do not fit the buffer, or arrive after Close, are dropped and counted.
type AsyncSink struct {
	next    Sink
	ch      chan error
	done    chan struct{}
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

func Async(next Sink, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = 1
	}
	s := &AsyncSink{
		next: next,
		ch:   make(chan error, buffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		for err := range s.ch {
			s.next.Report(err)
		}
	}()
	return s
}

func (s *AsyncSink) Report(err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- err:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many reports were discarded.
func (s *AsyncSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops accepting reports and waits until buffered ones are delivered.
// Later reports are counted as dropped.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	<-s.done
}
