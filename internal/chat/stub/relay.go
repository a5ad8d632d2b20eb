// Package stub provides an in-memory chat transport for tests.
package stub

import (
	"context"
	"sync"

	"solana-signal-trader/internal/domain"
)

// Relay delivers pushed messages and serves configured recent history.
type Relay struct {
	mu      sync.Mutex
	ch      chan domain.Message
	recent  map[string][]string
	fetches int

	// FetchErr is returned by FetchRecent when set.
	FetchErr error
}

// NewRelay creates a stub relay.
func NewRelay() *Relay {
	return &Relay{
		ch:     make(chan domain.Message, 64),
		recent: make(map[string][]string),
	}
}

// Push delivers a message to the subscriber.
func (r *Relay) Push(m domain.Message) {
	r.ch <- m
}

// SetRecent sets the recent texts of a channel, newest first.
func (r *Relay) SetRecent(channelRef string, texts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recent[channelRef] = texts
}

// Fetches returns the number of FetchRecent calls.
func (r *Relay) Fetches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

// Subscribe returns the pushed message stream. It closes when ctx is done.
func (r *Relay) Subscribe(ctx context.Context) (<-chan domain.Message, error) {
	out := make(chan domain.Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-r.ch:
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// FetchRecent returns up to count configured texts.
func (r *Relay) FetchRecent(_ context.Context, channelRef string, count int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	if r.FetchErr != nil {
		return nil, r.FetchErr
	}
	texts := r.recent[channelRef]
	if len(texts) > count {
		texts = texts[:count]
	}
	return append([]string(nil), texts...), nil
}
