package sshsession

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// observerBufferSize bounds the per-observer delivery channel. The design
// leaves observer buffering as an implementer's policy choice (see §9); a
// bounded channel with drop-oldest-on-full semantics means one slow observer
// can lose its own entries without blocking the session actor or its peers.
const observerBufferSize = MaxOutputBuffer / 4

// Observer is a live subscriber to a session's terminal output.
type Observer struct {
	id string
	ch chan OutputEntry
}

// ID returns the subscription handle returned by ObserverFanout.Subscribe.
func (o *Observer) ID() string { return o.id }

// Entries returns the channel OutputEntries are delivered on. The channel is
// closed when the observer is unsubscribed.
func (o *Observer) Entries() <-chan OutputEntry { return o.ch }

// ObserverFanout is a per-session set of live subscribers. Delivery never
// blocks the broadcaster: a full observer buffer drops its oldest entry
// instead of stalling the session, and a panicking receive loop on the
// caller's side cannot affect its peers.
type ObserverFanout struct {
	mu        sync.Mutex
	observers map[string]*Observer
}

// NewObserverFanout creates an empty ObserverFanout.
func NewObserverFanout() *ObserverFanout {
	return &ObserverFanout{observers: make(map[string]*Observer)}
}

// Subscribe registers a new observer and returns its handle.
func (f *ObserverFanout) Subscribe() *Observer {
	obs := &Observer{
		id: uuid.New().String(),
		ch: make(chan OutputEntry, observerBufferSize),
	}
	f.mu.Lock()
	f.observers[obs.id] = obs
	f.mu.Unlock()
	return obs
}

// Unsubscribe removes an observer by handle; a no-op if id is unknown.
func (f *ObserverFanout) Unsubscribe(id string) {
	f.mu.Lock()
	obs, ok := f.observers[id]
	if ok {
		delete(f.observers, id)
	}
	f.mu.Unlock()
	if ok {
		close(obs.ch)
	}
}

// Broadcast delivers entry to every current subscriber exactly once. A
// subscriber whose buffer is full has its oldest queued entry dropped to
// make room — isolating it from delivery to its peers.
func (f *ObserverFanout) Broadcast(entry OutputEntry) {
	f.mu.Lock()
	targets := make([]*Observer, 0, len(f.observers))
	for _, obs := range f.observers {
		targets = append(targets, obs)
	}
	f.mu.Unlock()

	for _, obs := range targets {
		select {
		case obs.ch <- entry:
		default:
			select {
			case <-obs.ch:
			default:
			}
			select {
			case obs.ch <- entry:
			default:
				slog.Warn("observer fanout: dropping entry for slow subscriber", "observer", obs.id)
			}
		}
	}
}

// Count returns the number of currently registered observers.
func (f *ObserverFanout) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

// CloseAll unsubscribes and closes the channel of every current observer,
// used when a session is destroyed.
func (f *ObserverFanout) CloseAll() {
	f.mu.Lock()
	observers := f.observers
	f.observers = make(map[string]*Observer)
	f.mu.Unlock()

	for _, obs := range observers {
		close(obs.ch)
	}
}
