package hub

import "sync/atomic"

// Stats is a point-in-time view of hub delivery counters.
type Stats struct {
	Name        string                     `json:"name"`
	Running     bool                       `json:"running"`
	Subscribers int                        `json:"subscribers"`
	Published   uint64                     `json:"published"` // messages broadcast
	Delivered   uint64                     `json:"delivered"` // per-subscriber sends that succeeded
	Dropped     uint64                     `json:"dropped"`   // per-subscriber sends that failed
	Rejected    uint64                     `json:"rejected"`  // snapshots refused by a full submit queue
	PerClient   map[string]SubscriberStats `json:"per_client"`
}

// SubscriberStats tracks one subscriber.
type SubscriberStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

type subscriberStats struct {
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Stats returns current counters. Safe to call from any goroutine.
func (h *Hub) Stats() Stats {
	st := Stats{
		Name:        h.name,
		Running:     h.running.Load(),
		Subscribers: int(h.subCount.Load()),
		Published:   h.published.Load(),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
		Rejected:    h.rejected.Load(),
		PerClient:   make(map[string]SubscriberStats),
	}
	h.perSub.Range(func(id string, s *subscriberStats) bool {
		st.PerClient[id] = SubscriberStats{
			Sent:    s.sent.Load(),
			Dropped: s.dropped.Load(),
		}
		return true
	})
	return st
}
