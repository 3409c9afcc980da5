package indiserver

import (
	"context"
	"sync"
	"time"

	"github.com/rickbassham/logging"
)

// Owner is implemented by everything the router can route traffic to and
// from: a Driver, an ExternalDriver, or a RemoteConnection. It is a
// narrow seam that avoids a driver↔router owning pointer cycle — the
// router holds Owners, an Owner never holds a concrete *Router (see
// RouterHandle in clientslot.go for the client side's view of the router).
type Owner interface {
	// ID identifies this owner for logging and self-exclusion from
	// snoop fan-out (a producer never snoops its own traffic).
	ID() string

	// Devices lists the device names currently owned, for the router's
	// device registry and duplicate-device detection.
	Devices() []string

	// Outbox is drained by the router's ingress fan-in; every element
	// this owner wants to send (to clients, to snoopers) arrives here.
	Outbox() <-chan interface{}

	// Deliver hands ev to this owner: a new* addressed to one of its
	// devices, a getProperties addressed to it, or a def*/set*/message/
	// delProperty from another owner that matches its snoop
	// subscriptions.
	Deliver(ev interface{})

	// Snoop exposes the subscription table the router consults when
	// forwarding traffic to owners snooping on another owner's devices.
	Snoop() *SnoopTable

	// DeviceByName looks up one of this owner's devices, for the
	// router's keepalive snapshot and BLOB-gate vector-kind checks.
	DeviceByName(name string) (*Device, bool)
}

// ownerBase factors out the send-side plumbing shared by Driver,
// ExternalDriver, and RemoteConnection: a bounded outbox, a
// timeout-and-retry enqueue discipline, and the snoop subscription table.
// Each owner type keeps a single goroutine writing to its own outbox,
// generalized here across the three producer types.
type ownerBase struct {
	id      string
	log     logging.Logger
	snoop   *SnoopTable
	outbox  chan interface{}
	timeout time.Duration

	mu      sync.RWMutex
	devices map[string]*Device
}

func newOwnerBase(id string, log logging.Logger, queueCap int, enqueueTimeout time.Duration) ownerBase {
	return ownerBase{
		id:      id,
		log:     log,
		snoop:   NewSnoopTable(),
		outbox:  make(chan interface{}, queueCap),
		timeout: enqueueTimeout,
		devices: map[string]*Device{},
	}
}

func (b *ownerBase) ID() string            { return b.id }
func (b *ownerBase) Outbox() <-chan interface{} { return b.outbox }
func (b *ownerBase) Snoop() *SnoopTable     { return b.snoop }

func (b *ownerBase) addDevice(d *Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[d.Name] = d
}

func (b *ownerBase) Devices() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.devices))
	for name := range b.devices {
		out = append(out, name)
	}
	return out
}

func (b *ownerBase) device(name string) (*Device, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.devices[name]
	return d, ok
}

// DeviceByName is the exported form of device, satisfying Owner.
func (b *ownerBase) DeviceByName(name string) (*Device, bool) { return b.device(name) }

// enqueue implements a timeout-and-retry backpressure pattern: attempt to
// enqueue with a short timeout, and on each failure check ctx before
// retrying, so a wedged consumer never causes a leaked goroutine or a
// stuck shutdown.
func (b *ownerBase) enqueue(ctx context.Context, ev interface{}) bool {
	return enqueueTimeoutRetry(ctx, b.outbox, ev, b.timeout)
}

// enqueueTimeoutRetry is the shared backpressure primitive behind every
// bounded queue in the server: ownerBase's outbox and clientslot.go's
// per-client outbound queue both retry on a timeout rather than blocking
// forever or dropping silently, until ctx says to give up.
func enqueueTimeoutRetry(ctx context.Context, ch chan interface{}, ev interface{}, timeout time.Duration) bool {
	for {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		case <-time.After(timeout):
			select {
			case <-ctx.Done():
				return false
			default:
			}
		}
	}
}
