package collector

import (
	"context"
	"sync"

	"github.com/gofrs/uuid"
)

// DefaultCapacity is the number of records a ledger keeps by default
const DefaultCapacity = 50

// ChangeKind tells what changed in a ledger
type ChangeKind string

const (
	ChangeAppended ChangeKind = "appended"
	ChangeUpdated  ChangeKind = "updated"
	ChangeCleared  ChangeKind = "cleared"
)

// Change is the signal emitted once per ledger mutation
type Change struct {
	Kind ChangeKind
	// ID of the appended or updated record, uuid.Nil for ChangeCleared
	ID uuid.UUID
	// Size is the number of records after the change
	Size int
}

// LedgerOptions configures a ledger
type LedgerOptions struct {
	// NotifierOptions are options for change notification
	NotifierOptions *NotifierOptions
	// Metrics receives ledger metrics, may be nil
	Metrics *Metrics
}

// DefaultLedgerOptions returns default options for a ledger
func DefaultLedgerOptions() LedgerOptions {
	return LedgerOptions{}
}

// Ledger is the bounded, newest-first history of observed requests
type Ledger struct {
	buffer   *LookupRingBuffer[Request, uuid.UUID]
	notifier *Notifier[Change]
	metrics  *Metrics

	// mu makes a mutation and its notification one step
	mu sync.Mutex
}

// NewLedger creates a ledger keeping at most capacity records
func NewLedger(capacity uint64) *Ledger {
	return NewLedgerWithOptions(capacity, DefaultLedgerOptions())
}

// NewLedgerWithOptions creates a ledger with specified options.
// A capacity of 0 uses DefaultCapacity.
func NewLedgerWithOptions(capacity uint64, options LedgerOptions) *Ledger {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	notifierOptions := DefaultNotifierOptions()
	if options.NotifierOptions != nil {
		notifierOptions = *options.NotifierOptions
	}

	return &Ledger{
		buffer:   NewLookupRingBuffer[Request, uuid.UUID](capacity),
		notifier: NewNotifierWithOptions[Change](notifierOptions),
		metrics:  options.Metrics,
	}
}

// Append inserts a record as the newest entry, evicting the oldest one if the ledger is full
func (l *Ledger) Append(rec Request) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, evicted := l.buffer.Add(rec); evicted {
		l.metrics.evicted()
	}
	size := l.size()
	l.metrics.ledgerSize(size)
	l.notifier.Notify(Change{Kind: ChangeAppended, ID: rec.ID, Size: size})
}

// UpdateByID applies mutate to the record with the given ID in place.
// It returns false, without notifying, if the record is unknown or was evicted.
func (l *Ledger) UpdateByID(id uuid.UUID, mutate func(*Request)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	found := l.buffer.Update(id, func(rec Request) Request {
		mutate(&rec)
		// The identity is owned by the ledger
		rec.ID = id
		return rec
	})
	if !found {
		l.metrics.droppedUpdate()
		return false
	}

	l.notifier.Notify(Change{Kind: ChangeUpdated, ID: id, Size: l.size()})
	return true
}

// Clear removes all records
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer.Clear()
	l.metrics.ledgerSize(0)
	l.notifier.Notify(Change{Kind: ChangeCleared, Size: 0})
}

// Snapshot returns a copy of all records, newest first
func (l *Ledger) Snapshot() []Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buffer.Newest(l.buffer.Capacity())
}

// Get returns the record with the given ID
func (l *Ledger) Get(id uuid.UUID) (Request, bool) {
	return l.buffer.Lookup(id)
}

// Len returns the number of records
func (l *Ledger) Len() int {
	return int(l.buffer.Size())
}

// Capacity returns the maximum number of records
func (l *Ledger) Capacity() int {
	return int(l.buffer.Capacity())
}

// Subscribe returns a channel that receives a Change for every mutation
func (l *Ledger) Subscribe(ctx context.Context) <-chan Change {
	return l.notifier.Subscribe(ctx)
}

// SubscribeFunc calls listener for every mutation until unsubscribe is called
func (l *Ledger) SubscribeFunc(listener func(Change)) (unsubscribe func()) {
	return l.notifier.SubscribeFunc(listener)
}

// Close releases resources used by the ledger. Subscriptions are closed.
func (l *Ledger) Close() {
	l.notifier.Close()
}

func (l *Ledger) size() int {
	return int(l.buffer.Size())
}
