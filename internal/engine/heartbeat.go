package engine

import (
	"context"
	"sync"
	"time"
)

// heartbeatController paces the engine run loop. It sleeps for the configured
// heartbeat interval between ticks and wakes up early when the interval
// changes so a shorter setting takes effect without waiting out the old one.
type heartbeatController struct {
	mu       sync.RWMutex
	interval time.Duration
	notify   chan struct{}
}

func newHeartbeatController(interval time.Duration) *heartbeatController {
	if interval <= 0 {
		interval = time.Second
	}
	return &heartbeatController{
		interval: interval,
		notify:   make(chan struct{}, 1),
	}
}

func (c *heartbeatController) Wait(ctx context.Context) (time.Time, error) {
	for {
		c.mu.RLock()
		interval := c.interval
		c.mu.RUnlock()

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return time.Time{}, ctx.Err()
		case <-timer.C:
			return time.Now(), nil
		case <-c.notify:
			if !timer.Stop() {
				<-timer.C
			}
			continue
		}
	}
}

func (c *heartbeatController) SetInterval(d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	c.mu.Lock()
	if c.interval == d {
		c.mu.Unlock()
		return
	}
	c.interval = d
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *heartbeatController) Interval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interval
}
