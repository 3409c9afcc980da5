package indiserver

import "sync"

// blobGateKey identifies one entry in a client's BLOB gate table: either
// a device-wide default (Vector == "") or a specific vector override.
type blobGateKey struct {
	Device string
	Vector string
}

// BLOBGate is the per-client, per-device, per-vector send policy table
// that governs which outbound events carrying BLOB data reach a client.
// The zero value is ready to use; every device defaults to Never until
// an enableBLOB updates it.
type BLOBGate struct {
	mu      sync.RWMutex
	entries map[blobGateKey]BlobPolicy
}

// NewBLOBGate returns an empty gate (every device defaults to Never).
func NewBLOBGate() *BLOBGate {
	return &BLOBGate{entries: map[blobGateKey]BlobPolicy{}}
}

// Update applies an inbound enableBLOB command. device-only updates the
// device default; device+name updates that vector's override. knownBLOBVector
// reports whether (device,name) actually names a BLOB vector this router
// knows about; if name is non-empty and knownBLOBVector is false, the
// update is rejected rather than creating a gate entry for a vector that
// doesn't exist.
func (g *BLOBGate) Update(device, name string, policy BlobPolicy, knownBLOBVector bool) error {
	if !policy.valid() {
		return newInvalidArgumentError("enableBLOB value", "must be Never, Also, or Only")
	}
	if name != "" && !knownBLOBVector {
		return newInvalidArgumentError("enableBLOB name", "not a known BLOB vector on "+device)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.entries == nil {
		g.entries = map[blobGateKey]BlobPolicy{}
	}
	g.entries[blobGateKey{Device: device, Vector: name}] = policy
	return nil
}

func (g *BLOBGate) get(device, vector string) (BlobPolicy, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.entries[blobGateKey{Device: device, Vector: vector}]
	return p, ok
}

// deviceHasOnly reports whether any entry for device (default or any
// vector override) is set to Only.
func (g *BLOBGate) deviceHasOnly(device string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for k, p := range g.entries {
		if k.Device == device && p == BlobOnly {
			return true
		}
	}
	return false
}

// Allowed reports whether an outbound event, given the device/vector it
// targets (if any), should be sent to this client.
func (g *BLOBGate) Allowed(ev interface{}) bool {
	// new* never travels server->client.
	if IsClientOrigin(ev) {
		return false
	}

	device, hasDevice := DeviceOf(ev)
	if !hasDevice || device == "" {
		// Broadcast elements without a device: allowed unless some
		// entry for "this device-set" says Only. Since there is no
		// device to scope to, the rule degrades to: suppress only if
		// *some* device the gate tracks is Only and the element isn't
		// BLOB-bearing. A device-less element is never BLOB-bearing.
		return !g.anyOnly()
	}

	if IsSetBLOB(ev) {
		name, _ := VectorNameOf(ev)
		if policy, ok := g.get(device, name); ok {
			return policy != BlobNever
		}
		if policy, ok := g.get(device, ""); ok {
			return policy != BlobNever
		}
		return false // default Never
	}

	// Non-BLOB element naming a device: blocked if that device is
	// gated Only.
	return !g.deviceHasOnly(device)
}

func (g *BLOBGate) anyOnly() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.entries {
		if p == BlobOnly {
			return true
		}
	}
	return false
}
