package gobayeux

import (
	"context"
	"time"
)

// SetSleep replaces how a Client waits between attempts. It must be called
// before Start.
func SetSleep(c *Client, fn func(context.Context, time.Duration) bool) {
	c.sleep = fn
}
