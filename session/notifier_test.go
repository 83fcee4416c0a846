package session

import (
	"context"
	"errors"
	"sync"
)

type delivery struct {
	ConnID  string
	Event   string
	Payload any
}

type recordingNotifier struct {
	mu         sync.Mutex
	deliveries []delivery
	failFor    map[string]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{failFor: make(map[string]bool)}
}

func (n *recordingNotifier) Notify(_ context.Context, connID, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[connID] {
		return errors.New("buffer full")
	}
	n.deliveries = append(n.deliveries, delivery{ConnID: connID, Event: event, Payload: payload})
	return nil
}

func (n *recordingNotifier) fail(connID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failFor[connID] = true
}

func (n *recordingNotifier) to(connID string) []delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []delivery
	for _, d := range n.deliveries {
		if d.ConnID == connID {
			out = append(out, d)
		}
	}
	return out
}

func (n *recordingNotifier) events(connID string) []string {
	var out []string
	for _, d := range n.to(connID) {
		out = append(out, d.Event)
	}
	return out
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.deliveries)
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = nil
}
