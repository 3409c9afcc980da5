package indiserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRouterHandle is a minimal RouterHandle double for exercising
// ClientSlot in isolation, stubbing out its collaborator interface rather
// than standing up a real server.
type fakeRouterHandle struct {
	dispatched   []interface{}
	snapshot     []AnyVector
	unregistered string
}

func (f *fakeRouterHandle) Dispatch(fromSlotID string, ev interface{}) {
	f.dispatched = append(f.dispatched, ev)
}

func (f *fakeRouterHandle) Snapshot() []AnyVector { return f.snapshot }

func (f *fakeRouterHandle) Unregister(slotID string) { f.unregistered = slotID }

func TestClientSlotReadLoopDispatchesNonBLOBElements(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	handle := &fakeRouterHandle{}
	opts := testOptions()
	opts.ClientIdleTimeout = time.Second
	slot := NewClientSlot(server, testLogger(), handle, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go slot.Serve(ctx)

	require.NoError(t, writeElement(client, &NewSwitchVector{Device: "cam", Name: "CONNECTION"}))

	require.Eventually(t, func() bool {
		return len(handle.dispatched) == 1
	}, time.Second, 10*time.Millisecond)

	_, ok := handle.dispatched[0].(*NewSwitchVector)
	assert.True(t, ok)
}

func TestClientSlotReadLoopUpdatesGateOnKnownEnableBLOB(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	bv := &BLOBVector{VectorBase: VectorBase{Device: "cam", Name: "IMAGE"}}
	handle := &fakeRouterHandle{snapshot: []AnyVector{bv}}
	opts := testOptions()
	opts.ClientIdleTimeout = time.Second
	slot := NewClientSlot(server, testLogger(), handle, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go slot.Serve(ctx)

	require.NoError(t, writeElement(client, &EnableBLOB{Device: "cam", Name: "IMAGE", Value: "Also"}))

	require.Eventually(t, func() bool {
		p, ok := slot.gate.get("cam", "IMAGE")
		return ok && p == BlobAlso
	}, time.Second, 10*time.Millisecond)
}

func TestClientSlotReadLoopRejectsEnableBLOBForUnknownVector(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	handle := &fakeRouterHandle{}
	opts := testOptions()
	opts.ClientIdleTimeout = time.Second
	slot := NewClientSlot(server, testLogger(), handle, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go slot.Serve(ctx)

	require.NoError(t, writeElement(client, &EnableBLOB{Device: "cam", Name: "NOT_A_VECTOR", Value: "Also"}))

	time.Sleep(50 * time.Millisecond)
	_, ok := slot.gate.get("cam", "NOT_A_VECTOR")
	assert.False(t, ok)
}

func TestClientSlotEnqueueDeliversThroughWriteLoop(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	handle := &fakeRouterHandle{}
	opts := testOptions()
	opts.ClientIdleTimeout = time.Second
	slot := NewClientSlot(server, testLogger(), handle, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go slot.Serve(ctx)

	ok := slot.Enqueue(ctx, &DefSwitchVector{Device: "cam", Name: "CONNECTION"})
	require.True(t, ok)

	f := NewFramer(client, testLogger())
	ev, err := f.Next()
	require.NoError(t, err)
	_, isDef := ev.(*DefSwitchVector)
	assert.True(t, isDef)
}

func TestClientSlotIdleTimeoutResendsKnownDefs(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	sv := &SwitchVector{VectorBase: VectorBase{Device: "cam", Name: "CONNECTION", Enabled: true}}
	handle := &fakeRouterHandle{snapshot: []AnyVector{sv}}
	opts := testOptions()
	opts.ClientIdleTimeout = 30 * time.Millisecond
	slot := NewClientSlot(server, testLogger(), handle, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go slot.Serve(ctx)

	f := NewFramer(client, testLogger())
	ev, err := f.Next()
	require.NoError(t, err)
	_, isDef := ev.(*DefSwitchVector)
	assert.True(t, isDef)
}

func TestClientSlotServeUnregistersOnClose(t *testing.T) {
	client, server := net.Pipe()

	handle := &fakeRouterHandle{}
	opts := testOptions()
	opts.ClientIdleTimeout = time.Second
	slot := NewClientSlot(server, testLogger(), handle, opts)

	done := make(chan struct{})
	go func() {
		slot.Serve(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return slot.State() == SlotConnected
	}, time.Second, 5*time.Millisecond)

	client.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after connection closed")
	}
	assert.Equal(t, slot.ID(), handle.unregistered)
	assert.Equal(t, SlotIdle, slot.State())
}
