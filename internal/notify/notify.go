// Package notify keeps the transient per-process notification list. It is
// the server-side twin of the SPA's toast stack: anything may publish, and
// entries remove themselves after their duration unless it is zero.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"skillforge/internal/model"
)

type Center struct {
	mu              sync.Mutex
	defaultDuration time.Duration
	items           []model.Notification
	timers          map[string]*time.Timer
}

func NewCenter(defaultDuration time.Duration) *Center {
	if defaultDuration <= 0 {
		defaultDuration = 4 * time.Second
	}
	return &Center{
		defaultDuration: defaultDuration,
		timers:          map[string]*time.Timer{},
	}
}

// Publish adds a notification with the default auto-dismiss duration.
func (c *Center) Publish(kind model.NotificationKind, message string) model.Notification {
	return c.PublishDuration(kind, message, c.defaultDuration)
}

// PublishDuration adds a notification that self-removes after d. d == 0 makes
// it sticky until dismissed explicitly.
func (c *Center) PublishDuration(kind model.NotificationKind, message string, d time.Duration) model.Notification {
	n := model.Notification{
		ID:       uuid.NewString(),
		Message:  message,
		Kind:     kind,
		Duration: d,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, n)
	if d > 0 {
		id := n.ID
		c.timers[id] = time.AfterFunc(d, func() { c.Dismiss(id) })
	}
	return n
}

func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timer, ok := c.timers[id]; ok {
		timer.Stop()
		delete(c.timers, id)
	}
	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

func (c *Center) List() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Notification, len(c.items))
	copy(out, c.items)
	return out
}

// Close stops all pending dismiss timers.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, timer := range c.timers {
		timer.Stop()
		delete(c.timers, id)
	}
}
