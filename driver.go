package indiserver

import (
	"context"
	"time"

	"github.com/rickbassham/logging"
)

// ClientEvent carries an applied newXxxVector through to user code: which
// device/vector changed, the member names actually changed (applying a
// text, number or switch value identical to the current one never reports
// a change; every member in a newBLOBVector is reported), and the
// raw event for anything the callback needs that the summary doesn't
// carry.
type ClientEvent struct {
	Device  string
	Vector  string
	Changed []string
	Raw     interface{}
}

// SnoopEvent carries a def*/set*/message/delProperty from another owner
// that matched this driver's snoop subscriptions.
type SnoopEvent struct {
	Device string
	Vector string
	Raw    interface{}
}

// Driver is a local device host: it owns one or more Devices in-process
// and speaks the server side of the protocol. It *emits* def*/set* and
// *consumes* new*/getProperties — the mirror image of a client, which
// consumes def*/set* and emits new*/getProperties.
//
// A Driver owns one or more Devices and is never touched directly by more
// than one goroutine's worth of application code at a time; the fields
// guarded by ownerBase.mu are the exception, safe for concurrent access
// from the router's dispatch goroutine and the owning application
// goroutine alike.
type Driver struct {
	ownerBase

	autoSendDef bool

	onClientEvent func(ClientEvent)
	onSnoopEvent  func(SnoopEvent)

	blobs *BLOBStore
}

// NewDriver creates an empty driver host identified by id (used in logs
// and for snoop self-exclusion). Attach devices with AddDevice before
// handing the driver to a Router.
func NewDriver(id string, log logging.Logger, opts Options) *Driver {
	return &Driver{ownerBase: newOwnerBase(id, log, opts.QueueCapacity, opts.EnqueueTimeout)}
}

// AddDevice registers a device this driver hosts. Devices are enabled by
// default; set a device's Enabled field to false to have the driver
// ignore inbound traffic for it (see Device for what the flag covers).
func (d *Driver) AddDevice(dev *Device) {
	d.addDevice(dev)
}

// Device looks up a device this driver hosts by name.
func (d *Driver) Device(name string) (*Device, bool) {
	return d.device(name)
}

// SetAutoSendDef toggles whether an inbound getProperties addressed to
// this driver (device, or device+vector) is answered automatically with
// the matching def* element(s). Drivers that need to compute defaults
// lazily should leave this off and answer from OnClientEvent instead.
func (d *Driver) SetAutoSendDef(on bool) { d.autoSendDef = on }

// OnClientEvent registers the callback invoked for every applied
// newXxxVector addressed to one of this driver's devices. Only one
// callback is kept; calling again replaces it.
func (d *Driver) OnClientEvent(fn func(ClientEvent)) { d.onClientEvent = fn }

// OnSnoopEvent registers the callback invoked for every def*/set*/
// message/delProperty from another owner that matches a snoop
// subscription registered with SendGetProperties.
func (d *Driver) OnSnoopEvent(fn func(SnoopEvent)) { d.onSnoopEvent = fn }

// SetBLOBStore enables spooling of accepted BLOB uploads to store. When
// unset (the default), BLOB values are kept only in memory on the
// member.
func (d *Driver) SetBLOBStore(store *BLOBStore) { d.blobs = store }

// SendDef enqueues the defXxxVector element for v. Call this once at
// startup for every vector the driver wants known at connect time, and
// again any time the vector's shape (not just its value) changes.
func (d *Driver) SendDef(ctx context.Context, v AnyVector) bool {
	return d.enqueue(ctx, DefElement(v))
}

// SendSet enqueues the setXxxVector element for v per opts, and clears
// every member's Changed flag on success so the next SendSet with
// FilterChanged starts from a clean slate.
func (d *Driver) SendSet(ctx context.Context, v AnyVector, opts SetOptions) bool {
	ev := SetElement(v, opts)
	if ev == nil {
		return true
	}
	if !d.enqueue(ctx, ev) {
		return false
	}
	ClearChanged(v)
	return true
}

// SendMessage enqueues a broadcast or device-scoped message. An empty
// device broadcasts to every client.
func (d *Driver) SendMessage(ctx context.Context, device, text string, ts time.Time) bool {
	return d.enqueue(ctx, &Message{Device: device, Timestamp: FormatTimestamp(ts), Message: text})
}

// SendDelProperty enqueues a delProperty for one vector, or for device as
// a whole when vector is empty.
func (d *Driver) SendDelProperty(ctx context.Context, device, vector, message string, ts time.Time) bool {
	return d.enqueue(ctx, &DelProperty{
		Device: device, Name: vector, Message: message, Timestamp: FormatTimestamp(ts),
	})
}

// SendGetProperties registers a snoop subscription for device (and
// vector, if non-empty) and enqueues the matching getProperties request.
// For a vector subscription, timeout (floored at minTimeout) is recorded
// with it, and SnoopTable.DueForResend reports the subscription once no
// matching def*/set* has been heard for that long; nothing in this
// package calls DueForResend, so the request is not re-sent
// automatically. An empty device subscribes to every device on the
// server.
func (d *Driver) SendGetProperties(ctx context.Context, device, vector string, timeout, minTimeout time.Duration, now time.Time) bool {
	switch {
	case device == "":
		d.snoop.SubscribeAll()
	case vector == "":
		d.snoop.SubscribeDevice(device)
	default:
		d.snoop.SubscribeVector(device, vector, timeout, minTimeout, now)
	}
	return d.enqueue(ctx, &GetProperties{Version: protocolVersion, Device: device, Name: vector})
}

const protocolVersion = "1.7"

// Deliver dispatches an inbound element to this driver: a new*Vector
// addressed to one of this driver's devices is applied and handed to
// OnClientEvent; a getProperties addressed to this driver's devices is
// answered with def* when autoSendDef is set; anything else is a
// snooped def*/set*/message/delProperty and is handed to OnSnoopEvent
// after marking the subscription heard.
func (d *Driver) Deliver(ev interface{}) {
	device, _ := DeviceOf(ev)
	vector, _ := VectorNameOf(ev)

	switch e := ev.(type) {
	case *GetProperties:
		d.handleGetProperties(e)
		return
	case *NewSwitchVector:
		d.applyNew(device, vector, ev, func(v *SwitchVector) ([]string, error) {
			return ApplyNewSwitchVector(v, e)
		})
		return
	case *NewTextVector:
		d.applyNew(device, vector, ev, func(v *TextVector) ([]string, error) {
			return ApplyNewTextVector(v, e)
		})
		return
	case *NewNumberVector:
		d.applyNewNumber(device, vector, ev, e)
		return
	case *NewBLOBVector:
		d.applyNewBLOB(device, vector, ev, e)
		return
	}

	d.snoop.MarkHeard(device, vector, time.Now())
	if d.onSnoopEvent != nil {
		d.onSnoopEvent(SnoopEvent{Device: device, Vector: vector, Raw: ev})
	}
}

func (d *Driver) handleGetProperties(e *GetProperties) {
	if !d.autoSendDef {
		return
	}
	dev, ok := d.device(e.Device)
	if !ok || !dev.Enabled {
		return
	}
	ctx := context.Background()
	if e.Name != "" {
		if v, ok := dev.Vector(e.Name); ok && v.Base().Enabled {
			d.SendDef(ctx, v)
		}
		return
	}
	for _, v := range dev.Vectors() {
		if v.Base().Enabled {
			d.SendDef(ctx, v)
		}
	}
}

func (d *Driver) applyNew(device, vectorName string, raw interface{}, fn interface{}) {
	dev, ok := d.device(device)
	if !ok || !dev.Enabled {
		return
	}
	switch apply := fn.(type) {
	case func(*SwitchVector) ([]string, error):
		v, ok := dev.SwitchVector(vectorName)
		if !ok || !v.Enabled || v.Permission == PermissionReadOnly {
			return
		}
		changed, err := apply(v)
		d.reportClientEvent(device, vectorName, raw, changed, err)
	case func(*TextVector) ([]string, error):
		v, ok := dev.TextVector(vectorName)
		if !ok || !v.Enabled || v.Permission == PermissionReadOnly {
			return
		}
		changed, err := apply(v)
		d.reportClientEvent(device, vectorName, raw, changed, err)
	}
}

func (d *Driver) applyNewNumber(device, vectorName string, raw interface{}, e *NewNumberVector) {
	dev, ok := d.device(device)
	if !ok || !dev.Enabled {
		return
	}
	v, ok := dev.NumberVector(vectorName)
	if !ok || !v.Enabled || v.Permission == PermissionReadOnly {
		return
	}
	changed, err := ApplyNewNumberVector(v, e)
	d.reportClientEvent(device, vectorName, raw, changed, err)
}

func (d *Driver) applyNewBLOB(device, vectorName string, raw interface{}, e *NewBLOBVector) {
	dev, ok := d.device(device)
	if !ok || !dev.Enabled {
		return
	}
	v, ok := dev.BLOBVector(vectorName)
	if !ok || !v.Enabled || v.Permission == PermissionReadOnly {
		return
	}
	changed, err := ApplyNewBLOBVector(v, e)
	d.reportClientEvent(device, vectorName, raw, changed, err)
	if err == nil && d.blobs != nil {
		d.stageChangedBLOBs(v, changed)
	}
}

func (d *Driver) stageChangedBLOBs(v *BLOBVector, changed []string) {
	for _, name := range changed {
		m := v.member(name)
		if m == nil {
			continue
		}
		if _, err := d.blobs.Stage(v.Device, v.Name, m.Name, m.Format, m.Value); err != nil && d.log != nil {
			d.log.WithField("device", v.Device).WithField("vector", v.Name).WithError(err).Warn("failed to stage blob")
		}
	}
}

func (d *Driver) reportClientEvent(device, vector string, raw interface{}, changed []string, err error) {
	if err != nil {
		if d.log != nil {
			d.log.WithField("device", device).WithField("vector", vector).WithError(err).Warn("rejected newXxxVector")
		}
		return
	}
	if len(changed) == 0 {
		return
	}
	if d.onClientEvent != nil {
		d.onClientEvent(ClientEvent{Device: device, Vector: vector, Changed: changed, Raw: raw})
	}
}
