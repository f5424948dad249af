package api

import (
    "sync"
)

// Event is one progress or lifecycle notification for a plan.
type Event struct {
    Type string
    Data map[string]any
}

type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan Event]struct{} // planId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(planID string) chan Event {
    ch := make(chan Event, 16)
    b.mu.Lock()
    if b.subs[planID] == nil { b.subs[planID] = map[chan Event]struct{}{} }
    b.subs[planID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(planID string, ch chan Event) {
    b.mu.Lock()
    if m := b.subs[planID]; m != nil {
        delete(m, ch)
        if len(m) == 0 { delete(b.subs, planID) }
    }
    b.mu.Unlock()
    close(ch)
}

func (b *Broker) Publish(planID string, evt Event) {
    b.mu.Lock()
    m := b.subs[planID]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
