package clock

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultResyncInterval is how often the clock re-queries the reference
// source.
const DefaultResyncInterval = 5 * time.Minute

// Clock maintains an estimated offset between the local clock and an
// external reference clock, and exposes the adjusted "room time" used to
// schedule synchronized command execution. Now never blocks: the offset is
// read atomically and resyncing happens on a background loop.
type Clock struct {
	source   ReferenceSource
	interval time.Duration
	log      *log.Logger

	offsetNs atomic.Int64

	mu       sync.Mutex
	lastSync time.Time

	stop chan struct{}
	done chan struct{}
}

func NewClock(source ReferenceSource, interval time.Duration, logger *log.Logger) *Clock {
	if interval <= 0 {
		interval = DefaultResyncInterval
	}
	return &Clock{
		source:   source,
		interval: interval,
		log:      logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Now returns the local time adjusted by the current reference offset.
func (c *Clock) Now() time.Time {
	return time.Now().UTC().Add(time.Duration(c.offsetNs.Load()))
}

// Offset is the current estimated reference-minus-local offset.
func (c *Clock) Offset() time.Duration {
	return time.Duration(c.offsetNs.Load())
}

// Resync performs one round trip to the reference source and records the
// new offset. On failure the previous offset is retained and the error
// surfaced; callers of Now are never affected.
func (c *Clock) Resync() (time.Duration, error) {
	ref, err := c.source.Now()
	if err != nil {
		return c.Offset(), fmt.Errorf("reference time query: %w", err)
	}

	offset := ref.Sub(time.Now().UTC())
	c.offsetNs.Store(int64(offset))

	c.mu.Lock()
	c.lastSync = time.Now()
	c.mu.Unlock()

	return offset, nil
}

// Stale reports whether the last successful sync is older than the resync
// interval. Observability only: a stale clock still answers Now.
func (c *Clock) Stale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync.IsZero() || time.Since(c.lastSync) > c.interval
}

// Run performs an initial sync and then resyncs on a fixed period until
// Stop is called. Sync failures are logged and retried on the next tick.
func (c *Clock) Run() {
	go func() {
		defer close(c.done)

		if _, err := c.Resync(); err != nil {
			c.log.Println("clock: initial sync:", err)
		}

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := c.Resync(); err != nil {
					c.log.Println("clock: resync:", err)
				}
			case <-c.stop:
				return
			}
		}
	}()
}

func (c *Clock) Stop() {
	close(c.stop)
	<-c.done
}

// Exchange is the server half of the per-client latency estimation
// protocol. The client sends its send-time t0; the server brackets its
// reference-time read with t1 and t2 and echoes all three. The client
// derives round-trip latency and its own offset from the triple; the server
// stores nothing per client.
type Exchange struct {
	T0 time.Time `json:"t0"`
	T1 time.Time `json:"t1"`
	T2 time.Time `json:"t2"`
}

func (c *Clock) HandleExchange(t0 time.Time) Exchange {
	t1 := c.Now()
	t2 := c.Now()
	return Exchange{T0: t0, T1: t1, T2: t2}
}
