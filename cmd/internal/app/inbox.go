package app

import (
	"sync"

	hubv1 "tasklane/shared/contracts/hub/v1"
)

const inboxSize = 50

// inbox keeps the most recent notifications for GET /notifications.
type inbox struct {
	mu    sync.Mutex
	items []hubv1.Notification
	next  int
	full  bool
}

func newInbox(size int) *inbox {
	if size <= 0 {
		size = 1
	}
	return &inbox{items: make([]hubv1.Notification, size)}
}

func (b *inbox) add(n hubv1.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.next] = n
	b.next = (b.next + 1) % len(b.items)
	if b.next == 0 {
		b.full = true
	}
}

// list returns newest first.
func (b *inbox) list() []hubv1.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.next
	if b.full {
		n = len(b.items)
	}
	out := make([]hubv1.Notification, 0, n)
	for i := 1; i <= n; i++ {
		idx := (b.next - i + len(b.items)) % len(b.items)
		out = append(out, b.items[idx])
	}
	return out
}
