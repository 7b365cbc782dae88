package mailer

import (
	"context"
	"sync"
)

// Capture records notifications in memory. It is both a Transport and a
// synchronous Sender, which makes it usable in tests and dry runs.
type Capture struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

func (c *Capture) Name() string { return "capture" }

func (c *Capture) Send(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.sent = append(c.sent, n)
	return nil
}

func (c *Capture) Submit(ctx context.Context, n Notification) bool {
	return c.Send(ctx, n) == nil
}

func (c *Capture) Sent() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.sent))
	copy(out, c.sent)
	return out
}

// Last returns the most recent notification sent to addr.
func (c *Capture) Last(addr string) (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].To == addr {
			return c.sent[i], true
		}
	}
	return Notification{}, false
}
