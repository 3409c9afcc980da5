package indiserver

import (
	"sync"
	"time"
)

type snoopVectorKey struct {
	Device string
	Vector string
}

type snoopTarget struct {
	Device    string
	Vector    string
	Timeout   time.Duration
	LastHeard time.Time
}

// SnoopTable is the subscription state a driver keeps (and, uniformly, an
// external adapter or remote connection acting as a driver): one "all"
// flag, one set of device names, and a map of (device,vector) to a resend
// timeout and last-heard time. It is also the shared type the router
// consults when forwarding def*/set*/message/delProperty to snoopers.
type SnoopTable struct {
	mu      sync.Mutex
	all     bool
	devices map[string]bool
	vectors map[snoopVectorKey]*snoopTarget
}

// NewSnoopTable returns an empty subscription table.
func NewSnoopTable() *SnoopTable {
	return &SnoopTable{
		devices: map[string]bool{},
		vectors: map[snoopVectorKey]*snoopTarget{},
	}
}

// SubscribeAll registers interest in every device (sendGetProperties()).
func (t *SnoopTable) SubscribeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.all = true
}

// SubscribeDevice registers interest in one device (sendGetProperties(d)).
func (t *SnoopTable) SubscribeDevice(device string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.devices[device] = true
}

// SubscribeVector registers interest in one (device,vector), with a
// resend timeout floored by minTimeout.
func (t *SnoopTable) SubscribeVector(device, vector string, timeout, minTimeout time.Duration, now time.Time) {
	if timeout < minTimeout {
		timeout = minTimeout
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vectors[snoopVectorKey{device, vector}] = &snoopTarget{
		Device: device, Vector: vector, Timeout: timeout, LastHeard: now,
	}
}

// Matches reports whether this table's subscriptions cover (device,
// vector): snoopAll, or device∈snoopDevices, or
// (device,vector)∈snoopVectors.
func (t *SnoopTable) Matches(device, vector string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.all {
		return true
	}
	if t.devices[device] {
		return true
	}
	_, ok := t.vectors[snoopVectorKey{device, vector}]
	return ok
}

// MarkHeard resets the last-heard clock for any (device,vector)
// subscription matching an inbound def*/set* event, so DueForResend does
// not report it until its timeout has elapsed again.
func (t *SnoopTable) MarkHeard(device, vector string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if target, ok := t.vectors[snoopVectorKey{device, vector}]; ok {
		target.LastHeard = now
	}
}

// DueForResend returns every (device,vector) subscription whose timeout
// has elapsed since it was last heard from, and restarts each returned
// subscription's clock. A caller can re-issue getProperties against the
// result; no code in this package calls it.
func (t *SnoopTable) DueForResend(now time.Time) []snoopTarget {
	t.mu.Lock()
	defer t.mu.Unlock()
	var due []snoopTarget
	for _, target := range t.vectors {
		if now.Sub(target.LastHeard) >= target.Timeout {
			due = append(due, *target)
			target.LastHeard = now
		}
	}
	return due
}
