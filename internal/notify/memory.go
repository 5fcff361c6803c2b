package notify

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryGateway keeps pending notifications in a map. It satisfies both
// Gateway and Outbox.
type MemoryGateway struct {
	mu      sync.Mutex
	pending map[string]Notification
	creates int
	cancels int
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{pending: make(map[string]Notification)}
}

func (g *MemoryGateway) Create(ctx context.Context, n Notification) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending[n.ID] = cloneNotification(n)
	g.creates++
	return nil
}

func (g *MemoryGateway) CancelByIDs(ctx context.Context, ids []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		delete(g.pending, id)
	}
	g.cancels++
	return nil
}

// ListPending returns undelivered notifications ordered by trigger time.
func (g *MemoryGateway) ListPending(ctx context.Context) ([]Notification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Notification
	for _, n := range g.pending {
		if n.DeliveredAt == nil {
			out = append(out, cloneNotification(n))
		}
	}
	sortByTrigger(out)
	return out, nil
}

func (g *MemoryGateway) Due(ctx context.Context, now time.Time) ([]Notification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Notification
	for _, n := range g.pending {
		if n.DeliveredAt == nil && !n.TriggerAt.After(now) {
			out = append(out, cloneNotification(n))
		}
	}
	sortByTrigger(out)
	return out, nil
}

func (g *MemoryGateway) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.pending[id]; ok {
		n.DeliveredAt = &at
		g.pending[id] = n
	}
	return nil
}

// IDs returns the ids of pending notifications, sorted.
func (g *MemoryGateway) IDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.pending))
	for id, n := range g.pending {
		if n.DeliveredAt == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Get returns the pending notification with the given id.
func (g *MemoryGateway) Get(id string) (Notification, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.pending[id]
	return cloneNotification(n), ok
}

// Creates reports how many Create calls were made.
func (g *MemoryGateway) Creates() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.creates
}

func sortByTrigger(ns []Notification) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].TriggerAt.Equal(ns[j].TriggerAt) {
			return ns[i].ID < ns[j].ID
		}
		return ns[i].TriggerAt.Before(ns[j].TriggerAt)
	})
}

func cloneNotification(n Notification) Notification {
	if n.Data != nil {
		data := make(map[string]string, len(n.Data))
		for k, v := range n.Data {
			data[k] = v
		}
		n.Data = data
	}
	return n
}
