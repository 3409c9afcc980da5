package indiserver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rickbassham/logging"
)

// ClientSlotState is one position in the per-connection state machine:
// Idle→Connecting→Connected→Draining→Idle.
type ClientSlotState int32

const (
	SlotIdle ClientSlotState = iota
	SlotConnecting
	SlotConnected
	SlotDraining
)

// RouterHandle is the narrow view of the router a ClientSlot needs: hand
// off an inbound element for routing, read the current def* snapshot for
// a keepalive re-announce, and say goodbye. It is the other half of the
// seam the Owner interface provides — together they mean neither side
// holds a concrete pointer to the other's full type.
type RouterHandle interface {
	Dispatch(fromSlotID string, ev interface{})
	Snapshot() []AnyVector
	Unregister(slotID string)
}

// ClientSlot is one accepted TCP connection: a reader goroutine parsing
// inbound elements, a writer goroutine draining a bounded outbound queue
// through this client's BLOB gate, and a liveness timer that re-sends
// def* for everything known after ClientIdleTimeout with nothing sent to
// or received from the client.
// One connection owns exactly one reader goroutine and one writer
// goroutine, plus BLOB-gating and keepalive on top.
type ClientSlot struct {
	id     string
	conn   net.Conn
	log    logging.Logger
	router RouterHandle
	gate   *BLOBGate

	outbox         chan interface{}
	enqueueTimeout time.Duration
	idleTimeout    time.Duration

	mu       sync.Mutex
	state    ClientSlotState
	lastSent time.Time
	lastRecv time.Time

	stop chan struct{}
	done chan struct{}
}

// NewClientSlot wraps an accepted connection. Call Serve to run it; Serve
// blocks until the connection ends or ctx is canceled.
func NewClientSlot(conn net.Conn, log logging.Logger, router RouterHandle, opts Options) *ClientSlot {
	return &ClientSlot{
		id:             uuid.New().String(),
		conn:           conn,
		log:            log,
		router:         router,
		gate:           NewBLOBGate(),
		outbox:         make(chan interface{}, opts.QueueCapacity),
		enqueueTimeout: opts.EnqueueTimeout,
		idleTimeout:    opts.ClientIdleTimeout,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// ID returns this slot's unique identifier (a client session id, not a
// device name).
func (c *ClientSlot) ID() string { return c.id }

func (c *ClientSlot) setState(s ClientSlotState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State reports the slot's current position in the Idle/Connecting/
// Connected/Draining state machine.
func (c *ClientSlot) State() ClientSlotState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Serve runs the slot's full lifecycle: Connecting, reader and writer
// goroutines while Connected (the writer also runs the liveness timer),
// then Draining teardown back to Idle. It returns once the connection has fully closed.
func (c *ClientSlot) Serve(ctx context.Context) {
	defer close(c.done)
	c.setState(SlotConnecting)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.readLoop(sessionCtx, cancel)
	}()
	go func() {
		defer wg.Done()
		c.writeLoop(sessionCtx)
	}()

	c.setState(SlotConnected)

	select {
	case <-ctx.Done():
	case <-sessionCtx.Done():
	}

	c.setState(SlotDraining)
	cancel()
	_ = c.conn.Close()
	wg.Wait()
	c.router.Unregister(c.id)
	c.setState(SlotIdle)
}

func (c *ClientSlot) readLoop(ctx context.Context, onClosed context.CancelFunc) {
	f := NewFramer(c.conn, c.log)
	for {
		ev, err := f.Next()
		if err != nil {
			onClosed()
			return
		}
		c.mu.Lock()
		c.lastRecv = time.Now()
		c.mu.Unlock()
		if e, ok := ev.(*EnableBLOB); ok {
			knownVector := c.knownBLOBVector(e.Device, e.Name)
			if err := c.gate.Update(e.Device, e.Name, BlobPolicy(e.Value), knownVector); err != nil && c.log != nil {
				c.log.WithField("client", c.id).WithError(err).Warn("rejected enableBLOB")
			}
			continue
		}
		c.router.Dispatch(c.id, ev)
	}
}

func (c *ClientSlot) knownBLOBVector(device, name string) bool {
	if name == "" {
		return true
	}
	for _, v := range c.router.Snapshot() {
		b := v.Base()
		if b.Device == device && b.Name == name {
			_, ok := v.(*BLOBVector)
			return ok
		}
	}
	return false
}

func (c *ClientSlot) writeLoop(ctx context.Context) {
	idle := time.NewTimer(c.idleTimeout)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.outbox:
			if !c.gate.Allowed(ev) {
				continue
			}
			if err := writeElement(c.conn, ev); err != nil {
				return
			}
			c.mu.Lock()
			c.lastSent = time.Now()
			c.mu.Unlock()
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(c.idleTimeout)
		case <-idle.C:
			now := time.Now()
			c.mu.Lock()
			sentIdle := now.Sub(c.lastSent) >= c.idleTimeout
			recvIdle := now.Sub(c.lastRecv) >= c.idleTimeout
			c.mu.Unlock()
			if sentIdle && recvIdle {
				c.resendKnownDefs()
			}
			idle.Reset(c.idleTimeout)
		}
	}
}

// resendKnownDefs re-announces every vector the router currently knows
// about after an idle window passes with nothing sent or received, guarding against
// clients that missed the original def* traffic.
func (c *ClientSlot) resendKnownDefs() {
	for _, v := range c.router.Snapshot() {
		if !v.Base().Enabled {
			continue
		}
		ev := DefElement(v)
		if !c.gate.Allowed(ev) {
			continue
		}
		if err := writeElement(c.conn, ev); err != nil {
			return
		}
	}
	c.mu.Lock()
	c.lastSent = time.Now()
	c.mu.Unlock()
}

// Enqueue offers ev to this client's outbound queue using a
// timeout-and-retry backpressure discipline. It returns false if ctx is
// canceled (e.g. the router is shutting down) before the element could be
// queued.
func (c *ClientSlot) Enqueue(ctx context.Context, ev interface{}) bool {
	return enqueueTimeoutRetry(ctx, c.outbox, ev, c.enqueueTimeout)
}
