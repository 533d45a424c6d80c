package spanz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/zoobzio/spanz/internal/encoding"
)

// Collector encodes flushed trace chunks into a payload and sends it to the
// agent on a fixed interval, immediately when the interval is zero, or when
// the encoder reaches its soft size limit.
// At most maxInFlight payloads are sent at once; a payload flushed while
// that many are in flight is dropped, not queued.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	encoder      encoding.Encoder
	transport    transport
	clock        clockz.Clock
	sem          *semaphore.Weighted
	workers      *workerPool
	logger       *zap.Logger
	metrics      *metrics
	stopCh       chan struct{}
	done         chan struct{}
	version      string
	interval     time.Duration
	droppedCount atomic.Int64
	dropLog      rate.Sometimes
	mu           sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool // Track if collector is closed.
	syncMode     bool        // Send on the flushing goroutine.
}

func newCollector(enc encoding.Encoder, tr transport, maxInFlight int, interval time.Duration, clock clockz.Clock, logger *zap.Logger, m *metrics) *Collector {
	c := &Collector{
		encoder:   enc,
		transport: tr,
		clock:     clock,
		sem:       semaphore.NewWeighted(int64(maxInFlight)),
		workers:   newWorkerPool(maxInFlight),
		logger:    logger,
		metrics:   m,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		version:   enc.Version(),
		interval:  interval,
		dropLog:   rate.Sometimes{First: 1, Interval: time.Minute},
	}

	if interval > 0 {
		go c.start()
	} else {
		close(c.done)
	}
	return c
}

// start runs the flush timer until the collector is closed.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			return
		case <-c.clock.After(c.interval):
			c.Flush()
		}
	}
}

// close stops the timer, flushes what is left and waits for in-flight
// payloads.
func (c *Collector) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		<-c.done

		c.Flush()
		c.workers.shutdown()
	})
}

// Export encodes a trace chunk. Chunks exported after close are dropped.
func (c *Collector) Export(chunk []*encoding.Span) {
	if c.closed.Load() {
		c.drop(1, "closed")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	full := c.encoder.Encode(chunk)
	if full || c.interval == 0 {
		c.flushLocked()
	}
}

// Flush sends the pending payload, if any.
func (c *Collector) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *Collector) flushLocked() {
	count := c.encoder.Count()
	if count == 0 {
		return
	}
	c.send(c.encoder.Payload(), count)
}

func (c *Collector) send(payload []byte, traces int) {
	if !c.sem.TryAcquire(1) {
		c.drop(traces, "max_in_flight")
		return
	}

	task := func() {
		defer c.sem.Release(1)
		c.deliver(payload, traces)
	}

	if c.syncMode {
		task()
		return
	}
	if !c.workers.submit(task) {
		c.sem.Release(1)
		c.drop(traces, "queue_full")
	}
}

func (c *Collector) deliver(payload []byte, traces int) {
	err := c.transport.send(context.Background(), payload, traces, c.version)
	if err != nil {
		reason := "network"
		if errors.Is(err, errAgentStatus) {
			reason = "status"
		}
		c.metrics.apiErrors.WithLabelValues(reason).Inc()
		c.logger.Error("failed to send traces", zap.Int("traces", traces), zap.Error(err))
		return
	}
	c.metrics.payloadsSent.Inc()
}

func (c *Collector) drop(traces int, reason string) {
	c.droppedCount.Add(1)
	c.metrics.payloadsDropped.WithLabelValues(reason).Inc()
	c.dropLog.Do(func() {
		c.logger.Warn("dropping trace payload",
			zap.Error(ErrPayloadDropped),
			zap.String("reason", reason),
			zap.Int("traces", traces))
	})
}

// Count returns the number of chunks waiting for the next flush.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoder.Count()
}

// DroppedCount returns the total number of payloads dropped.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous sends for testing.
// When enabled, payloads are sent on the flushing goroutine.
func (c *Collector) SetSyncMode(sync bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncMode = sync
}

// workerPool runs payload sends on a fixed number of goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks chan func()
	stop  chan struct{}
	wg    sync.WaitGroup
}

func newWorkerPool(workers int) *workerPool {
	w := &workerPool{
		tasks: make(chan func(), workers),
		stop:  make(chan struct{}),
	}
	w.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go w.run()
	}
	return w
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			// Drain queued tasks before exiting.
			for {
				select {
				case task := <-w.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

func (w *workerPool) submit(task func()) bool {
	select {
	case w.tasks <- task:
		return true
	default:
		return false
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}
