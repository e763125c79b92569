package capability

import "sync"

// changeNotifier fans out "registry changed" signals to subscribers. Sends
// are non-blocking; a subscriber that has not drained its previous signal
// simply keeps the one pending signal.
type changeNotifier struct {
	mu     sync.Mutex
	subs   []chan struct{}
	closed bool
}

func (n *changeNotifier) notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// subscribe returns a channel with capacity 1 that receives a signal after
// each change. After close it returns an already-closed channel.
func (n *changeNotifier) subscribe() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	ch := make(chan struct{}, 1)
	n.subs = append(n.subs, ch)
	return ch
}

func (n *changeNotifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	subs := n.subs
	n.subs = nil
	n.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}
