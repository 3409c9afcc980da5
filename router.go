package indiserver

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rickbassham/logging"
)

// Router is the accept loop, device registry, and traffic fan-out: a
// fixed pool of client slots, a set of device owners (drivers, externals,
// remotes), and the routing rules that connect them. Its
// single-writer-per-channel, timeout-and-retry idioms scale the same
// discipline an individual connection uses up from one connection to N
// producers and M consumers.
type Router struct {
	opts Options
	log  logging.Logger

	listenerMu sync.Mutex
	listener   net.Listener
	ready      chan struct{}

	mu          sync.RWMutex
	deviceOwner map[string]Owner
	owners      []Owner

	slotMu sync.Mutex
	slots  map[string]*ClientSlot
	slotCh chan struct{} // capacity == MaxConnections

	fatal chan error

	// runCtx governs every owner pump goroutine, independent of the ctx
	// passed to ListenAndServe, so owners added before the listener
	// starts are never orphaned: runCancel fires on fatal abort or on
	// ListenAndServe's ctx finishing, whichever comes first.
	runCtx    context.Context
	runCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewRouter validates opts and returns an unstarted Router. Call
// ListenAndServe to begin accepting connections.
func NewRouter(log logging.Logger, opts Options) (*Router, error) {
	normalized, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	runCtx, runCancel := context.WithCancel(context.Background())
	return &Router{
		opts:        normalized,
		log:         log,
		deviceOwner: map[string]Owner{},
		slots:       map[string]*ClientSlot{},
		slotCh:      make(chan struct{}, normalized.MaxConnections),
		fatal:       make(chan error, 1),
		runCtx:      runCtx,
		runCancel:   runCancel,
		ready:       make(chan struct{}),
	}, nil
}

// AddDriver registers an in-process driver host. Its devices (added
// before this call) are claimed in the registry immediately; a name
// collision with an already-registered owner is returned here and also
// raises the router's fatal condition, so ListenAndServe returns it.
func (r *Router) AddDriver(d *Driver) error {
	return r.addOwner(d)
}

// AddExternal registers and starts a subprocess driver adapter, tied to
// the router's own lifetime: it is torn down when ListenAndServe's ctx
// ends or a fatal condition fires, whichever happens first. Its devices
// are discovered dynamically from the child's def* traffic, so
// duplicate-device detection for it happens at routing time, not here.
func (r *Router) AddExternal(e *ExternalDriver) error {
	if err := e.Start(r.runCtx); err != nil {
		return err
	}
	return r.addOwner(e)
}

// AddRemote registers a remote connection and starts its supervised
// reconnect loop, tied to the router's own lifetime.
func (r *Router) AddRemote(rc *RemoteConnection) error {
	if err := r.addOwner(rc); err != nil {
		return err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		rc.Run(r.runCtx)
	}()
	return nil
}

func (r *Router) addOwner(o Owner) error {
	for _, name := range o.Devices() {
		if err := r.registerDeviceOwner(o, name); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.owners = append(r.owners, o)
	r.mu.Unlock()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pumpOwner(o)
	}()
	return nil
}

// Close stops every owner pump and releases resources tied to runCtx,
// independent of whether ListenAndServe was ever called. Safe to call
// more than once.
func (r *Router) Close() {
	r.runCancel()
}

// registerDeviceOwner implements the duplicate-device routing rule: a
// device name first claimed by owner A and later announced by a
// *different* owner B is a fatal, whole-server condition. A
// re-announcement by the same owner (a driver refreshing its own def*) is
// a harmless no-op: repeat defs from one driver are ordinary metadata
// refreshes, never a collision.
func (r *Router) registerDeviceOwner(o Owner, device string) error {
	r.mu.Lock()
	existing, ok := r.deviceOwner[device]
	if !ok {
		r.deviceOwner[device] = o
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()
	if existing == o {
		return nil
	}
	err := newDuplicateDeviceError(device)
	r.raiseFatal(err)
	return err
}

func (r *Router) raiseFatal(err error) {
	select {
	case r.fatal <- err:
	default:
	}
	if r.log != nil {
		r.log.WithError(err).Error("fatal condition, server stopping")
	}
}

func (r *Router) ownerOf(device string) (Owner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.deviceOwner[device]
	return o, ok
}

// pumpOwner drains one owner's outbox for the lifetime of the router:
// every def*/set*/message/delProperty is broadcast to clients and
// forwarded to snooping owners (routing rules 2-3); every getProperties
// an owner emits about a device it doesn't itself own is treated as a
// snoop registration plus a routed query (routing rule 1, read from the
// producing side).
func (r *Router) pumpOwner(o Owner) {
	for {
		var ev interface{}
		select {
		case <-r.runCtx.Done():
			return
		case e, ok := <-o.Outbox():
			if !ok {
				return
			}
			ev = e
		}

		device, hasDevice := DeviceOf(ev)
		vector, _ := VectorNameOf(ev)

		if IsDef(ev) && hasDevice && device != "" {
			if err := r.registerDeviceOwner(o, device); err != nil {
				return
			}
		}

		if gp, ok := ev.(*GetProperties); ok {
			r.routeSnoopRequest(o, gp)
			continue
		}

		r.broadcastToClients(ev)
		r.forwardToSnoopers(o, device, vector, ev)
	}
}

func (r *Router) routeSnoopRequest(from Owner, gp *GetProperties) {
	now := time.Now()
	if gp.Device == "" {
		from.Snoop().SubscribeAll()
		r.mu.RLock()
		targets := make([]Owner, 0, len(r.owners))
		for _, o := range r.owners {
			if o != from {
				targets = append(targets, o)
			}
		}
		r.mu.RUnlock()
		for _, o := range targets {
			o.Deliver(gp)
		}
		return
	}

	owner, ok := r.ownerOf(gp.Device)
	if ok && owner == from {
		return
	}
	if gp.Name == "" {
		from.Snoop().SubscribeDevice(gp.Device)
	} else if !from.Snoop().Matches(gp.Device, gp.Name) {
		// Keep a timeout the owner already chose (Driver.SendGetProperties).
		from.Snoop().SubscribeVector(gp.Device, gp.Name, r.opts.MinSnoopTimeout, r.opts.MinSnoopTimeout, now)
	}
	if ok {
		owner.Deliver(gp)
		return
	}
	// gp.Device names no device any owner has registered yet: broadcast
	// so a not-yet-announced driver/external/remote still sees the query.
	r.mu.RLock()
	targets := make([]Owner, 0, len(r.owners))
	for _, o := range r.owners {
		if o != from {
			targets = append(targets, o)
		}
	}
	r.mu.RUnlock()
	for _, o := range targets {
		o.Deliver(gp)
	}
}

func (r *Router) forwardToSnoopers(from Owner, device, vector string, ev interface{}) {
	r.mu.RLock()
	owners := append([]Owner(nil), r.owners...)
	r.mu.RUnlock()
	for _, o := range owners {
		if o == from {
			continue
		}
		if o.Snoop().Matches(device, vector) {
			o.Deliver(ev)
		}
	}
}

func (r *Router) broadcastToClients(ev interface{}) {
	r.slotMu.Lock()
	slots := make([]*ClientSlot, 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	r.slotMu.Unlock()
	for _, s := range slots {
		s.Enqueue(r.runCtx, ev)
	}
}

// Dispatch routes a new*Vector or getProperties a client slot received
// to the owner of the device it names. A new*Vector without a device, or
// naming a device no owner has claimed, is dropped; such a getProperties
// is delivered to every owner instead.
func (r *Router) Dispatch(fromSlotID string, ev interface{}) {
	if gp, ok := ev.(*GetProperties); ok {
		r.dispatchClientGetProperties(fromSlotID, gp)
		return
	}
	device, ok := DeviceOf(ev)
	if !ok || device == "" {
		return
	}
	owner, ok := r.ownerOf(device)
	if !ok {
		return
	}
	owner.Deliver(ev)
}

func (r *Router) dispatchClientGetProperties(fromSlotID string, gp *GetProperties) {
	r.mu.RLock()
	owners := append([]Owner(nil), r.owners...)
	r.mu.RUnlock()
	if gp.Device == "" {
		for _, o := range owners {
			o.Deliver(gp)
		}
		return
	}
	if owner, ok := r.ownerOf(gp.Device); ok {
		owner.Deliver(gp)
		return
	}
	// No owner claims gp.Device yet: broadcast rather than drop, the same
	// fallback routeSnoopRequest uses for an owner-originated query.
	for _, o := range owners {
		o.Deliver(gp)
	}
}

// Snapshot returns every currently-registered vector across every owner,
// for a client slot's keepalive re-announce.
func (r *Router) Snapshot() []AnyVector {
	r.mu.RLock()
	devices := make(map[string]Owner, len(r.deviceOwner))
	for name, o := range r.deviceOwner {
		devices[name] = o
	}
	r.mu.RUnlock()

	var out []AnyVector
	for name, o := range devices {
		dev, ok := o.DeviceByName(name)
		if !ok {
			continue
		}
		out = append(out, dev.Vectors()...)
	}
	return out
}

// Unregister drops a client slot from the broadcast set once it finishes
// draining.
func (r *Router) Unregister(slotID string) {
	r.slotMu.Lock()
	delete(r.slots, slotID)
	r.slotMu.Unlock()
	select {
	case <-r.slotCh:
	default:
	}
}

// Addr blocks until ListenAndServe has bound its listener (or ctx ends)
// and returns its address. Useful for tests that bind an ephemeral port
// (Port: 0) and need to learn which one the OS picked.
func (r *Router) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-r.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r.listenerMu.Lock()
	defer r.listenerMu.Unlock()
	return r.listener.Addr(), nil
}

// ListenAndServe opens the listening socket and accepts client
// connections until ctx is canceled or a fatal condition (a duplicate
// device) is raised. It returns the fatal error, if any, or nil on a
// clean ctx-driven shutdown.
func (r *Router) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(r.opts.Host, strconv.Itoa(r.opts.Port)))
	if err != nil {
		return err
	}
	r.listenerMu.Lock()
	r.listener = ln
	r.listenerMu.Unlock()
	close(r.ready)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.acceptLoop(r.runCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-r.fatal:
	}
	r.runCancel()

	_ = ln.Close()
	r.closeAllSlots()
	r.stopExternals()
	r.wg.Wait()
	return runErr
}

// stopExternals sends every external driver adapter a graceful SIGTERM
// teardown instead of relying on runCtx cancellation's implicit process
// kill.
func (r *Router) stopExternals() {
	r.mu.RLock()
	owners := append([]Owner(nil), r.owners...)
	r.mu.RUnlock()
	for _, o := range owners {
		if e, ok := o.(*ExternalDriver); ok {
			e.Stop(2 * time.Second)
		}
	}
}

func (r *Router) acceptLoop(ctx context.Context) {
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case r.slotCh <- struct{}{}:
		default:
			// MaxConnections already saturated: refuse immediately.
			_ = conn.Close()
			continue
		}

		slot := NewClientSlot(conn, r.log, r, r.opts)
		r.slotMu.Lock()
		r.slots[slot.ID()] = slot
		r.slotMu.Unlock()

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			slot.Serve(ctx)
		}()
	}
}

func (r *Router) closeAllSlots() {
	r.slotMu.Lock()
	slots := make([]*ClientSlot, 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	r.slotMu.Unlock()
	for _, s := range slots {
		_ = s.conn.Close()
	}
}
