package results

import (
	"context"
	"errors"
	"sync"
)

const subscriberBuffer = 256

// Sink persists the full row set of a table. rows must not be modified.
type Sink interface {
	Save(ctx context.Context, rows []Row) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rows []Row) error

func (f SinkFunc) Save(ctx context.Context, rows []Row) error { return f(ctx, rows) }

type multiSink []Sink

// MultiSink saves to every sink and joins their errors.
func MultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

func (m multiSink) Save(ctx context.Context, rows []Row) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Table is the append-only result table of one sweep. Every Append saves
// the whole table to the sink so that progress survives interruption.
type Table struct {
	mu     sync.RWMutex
	rows   []Row
	sink   Sink
	subs   map[int]chan Row
	nextID int
	closed bool
}

// NewTable returns an empty table; sink may be nil.
func NewTable(sink Sink) *Table {
	return &Table{sink: sink, subs: make(map[int]chan Row)}
}

// Append adds a row and persists the table. The row is kept even when
// saving fails; the sink error is returned.
func (t *Table) Append(ctx context.Context, row Row) error {
	t.mu.Lock()
	t.rows = append(t.rows, row)
	n := len(t.rows)
	// rows are never rewritten, so the capped view is safe to hand out
	snapshot := t.rows[:n:n]
	for id, ch := range t.subs {
		select {
		case ch <- row:
		default:
			// slow subscriber; drop it rather than stall the sweep
			close(ch)
			delete(t.subs, id)
		}
	}
	t.mu.Unlock()

	if t.sink == nil {
		return nil
	}
	return t.sink.Save(ctx, snapshot)
}

// Flush saves the current rows once more.
func (t *Table) Flush(ctx context.Context) error {
	if t.sink == nil {
		return nil
	}
	return t.sink.Save(ctx, t.Rows())
}

// Rows returns a copy of the rows in append order.
func (t *Table) Rows() []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Row(nil), t.rows...)
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Subscribe returns the rows already in the table and a channel receiving
// every row appended afterwards. The channel is closed by Close, by cancel,
// or when the subscriber falls too far behind.
func (t *Table) Subscribe() (existing []Row, updates <-chan Row, cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing = append([]Row(nil), t.rows...)
	ch := make(chan Row, subscriberBuffer)
	if t.closed {
		close(ch)
		return existing, ch, func() {}
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if c, ok := t.subs[id]; ok {
				close(c)
				delete(t.subs, id)
			}
		})
	}
	return existing, ch, cancel
}

// Close ends all subscriptions; the table stays readable.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
