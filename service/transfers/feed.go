package transfers

import (
	"log/slog"
	"sync"
)

// DefaultMaxSize is the number of transfers the dashboard keeps.
const DefaultMaxSize = 100

// EventType distinguishes feed notifications.
type EventType string

const (
	EventAdded   EventType = "transfer"
	EventRemoved EventType = "removed"
)

// Event is delivered to feed subscribers when the list changes.
type Event struct {
	Type   EventType
	Record Record
}

// Query selects a view of the feed without mutating it.
type Query struct {
	Filter    Filter
	SortField SortField // empty keeps the feed order
	SortDir   int
}

// Feed is the bounded, ordered in-memory list of transfers.
// All methods are safe for concurrent use.
type Feed struct {
	mu      sync.RWMutex
	records []Record
	keys    map[Key]struct{}
	maxSize int
	loaded  bool

	// evicted remembers the last maxSize keys truncated off the tail so a
	// replayed live log is not taken for a new transfer.
	evicted    map[Key]struct{}
	evictOrder []Key

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int

	onDrop func()
	logger *slog.Logger
}

// NewFeed creates an empty feed capped at maxSize records.
// A non-positive maxSize falls back to DefaultMaxSize.
func NewFeed(maxSize int, logger *slog.Logger) *Feed {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Feed{
		keys:    make(map[Key]struct{}),
		evicted: make(map[Key]struct{}),
		maxSize: maxSize,
		subs:    make(map[int]chan Event),
		logger:  logger,
	}
}

// MaxSize returns the feed capacity.
func (f *Feed) MaxSize() int {
	return f.maxSize
}

// Replace loads the historical batch: duplicates are merged away, the most
// recent maxSize records (in chain order) are kept and the list is ordered
// newest first. Returns the number of duplicates dropped.
func (f *Feed) Replace(records []Record) int {
	unique, dups := Merge(records)
	latest := Latest(unique, f.maxSize)

	list := make([]Record, len(latest))
	copy(list, latest)
	newestFirst(list)

	f.mu.Lock()
	defer f.mu.Unlock()

	// Live records that arrived while the backfill was in flight stay on top.
	for _, r := range list {
		if f.knownLocked(r.Key()) {
			continue
		}
		f.records = append(f.records, r)
		f.keys[r.Key()] = struct{}{}
	}
	f.truncateLocked()
	f.loaded = true
	return dups
}

// Prepend inserts a live record at the front of the list and drops the tail
// beyond maxSize. It returns false if the record is already present or was
// recently truncated off the tail.
func (f *Feed) Prepend(r Record) bool {
	f.mu.Lock()
	k := r.Key()
	if f.knownLocked(k) {
		f.mu.Unlock()
		return false
	}
	f.records = append([]Record{r}, f.records...)
	f.keys[k] = struct{}{}
	f.truncateLocked()
	f.mu.Unlock()

	f.broadcast(Event{Type: EventAdded, Record: r})
	return true
}

// Remove drops the record with the given key, used when a log is reorged out.
func (f *Feed) Remove(k Key) bool {
	f.mu.Lock()
	idx := -1
	for i, r := range f.records {
		if r.Key() == k {
			idx = i
			break
		}
	}
	if idx < 0 {
		f.mu.Unlock()
		return false
	}
	removed := f.records[idx]
	f.records = append(f.records[:idx], f.records[idx+1:]...)
	delete(f.keys, k)
	f.mu.Unlock()

	f.broadcast(Event{Type: EventRemoved, Record: removed})
	return true
}

// Snapshot returns a copy of the list in its current order.
func (f *Feed) Snapshot() []Record {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Record, len(f.records))
	copy(out, f.records)
	return out
}

// Query returns a filtered and optionally sorted copy of the list.
func (f *Feed) Query(q Query) []Record {
	out := q.Filter.Apply(f.Snapshot())
	if q.SortField != "" {
		Sort(out, q.SortField, q.SortDir)
	}
	return out
}

// Len returns the number of records held.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.records)
}

// Loaded reports whether the historical batch has been applied.
func (f *Feed) Loaded() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loaded
}

// Subscribe registers for change notifications. Events are dropped for a
// subscriber whose buffer is full. The returned cancel func must be called
// to release the subscription.
func (f *Feed) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	f.subMu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.subMu.Lock()
			delete(f.subs, id)
			f.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// OnDrop registers a hook invoked whenever an event is dropped for a slow
// subscriber. It must be set before the feed is shared.
func (f *Feed) OnDrop(fn func()) {
	f.onDrop = fn
}

// Subscribers returns the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	return len(f.subs)
}

func (f *Feed) broadcast(ev Event) {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	for id, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			if f.logger != nil {
				f.logger.Warn("dropping feed event for slow subscriber",
					"subscriber", id,
					"tx_hash", ev.Record.TxHash,
				)
			}
			if f.onDrop != nil {
				f.onDrop()
			}
		}
	}
}

func (f *Feed) truncateLocked() {
	if len(f.records) <= f.maxSize {
		return
	}
	for _, r := range f.records[f.maxSize:] {
		delete(f.keys, r.Key())
		f.rememberEvictedLocked(r.Key())
	}
	f.records = f.records[:f.maxSize:f.maxSize]
}

func (f *Feed) knownLocked(k Key) bool {
	if _, ok := f.keys[k]; ok {
		return true
	}
	_, ok := f.evicted[k]
	return ok
}

func (f *Feed) rememberEvictedLocked(k Key) {
	if _, ok := f.evicted[k]; ok {
		return
	}
	f.evicted[k] = struct{}{}
	f.evictOrder = append(f.evictOrder, k)
	if len(f.evictOrder) > f.maxSize {
		delete(f.evicted, f.evictOrder[0])
		f.evictOrder = f.evictOrder[1:]
	}
}
