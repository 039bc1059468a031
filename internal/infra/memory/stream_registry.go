package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// StreamRegistry is an in-memory implementation of app.StreamRegistry.
type StreamRegistry struct {
	mu      sync.RWMutex
	streams map[string]map[string]context.CancelFunc
}

func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{
		streams: make(map[string]map[string]context.CancelFunc),
	}
}

func (r *StreamRegistry) Register(_ context.Context, contestID string, cancel context.CancelFunc) string {
	connID := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.streams[contestID]
	if !ok {
		conns = make(map[string]context.CancelFunc)
		r.streams[contestID] = conns
	}
	conns[connID] = cancel
	return connID
}

func (r *StreamRegistry) Release(_ context.Context, contestID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.streams[contestID]
	if !ok {
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.streams, contestID)
	}
}

// Heartbeat is a no-op; local registrations live until Release.
func (r *StreamRegistry) Heartbeat(context.Context, string, string) {}

func (r *StreamRegistry) Active(_ context.Context, contestID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams[contestID]), nil
}

// CloseAll cancels every registered stream; each stream releases itself as it unwinds.
func (r *StreamRegistry) CloseAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conns := range r.streams {
		for _, cancel := range conns {
			cancel()
		}
	}
}
