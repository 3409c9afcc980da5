package indiserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouterOptions() Options {
	o, _ := Options{
		Host:              "127.0.0.1",
		Port:              0,
		MaxConnections:    2,
		QueueCapacity:     4,
		EnqueueTimeout:    50 * time.Millisecond,
		ClientIdleTimeout: time.Minute,
	}.normalize()
	return o
}

func dialRouter(t *testing.T, r *Router, ctx context.Context) net.Conn {
	t.Helper()
	addr, err := r.Addr(ctx)
	require.NoError(t, err)
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	return conn
}

// TestRouterHandshakeAndDefDelivery exercises the minimal handshake
// scenario: a client connects, sends getProperties, and receives the
// def* for a driver-hosted device.
func TestRouterHandshakeAndDefDelivery(t *testing.T) {
	r, err := NewRouter(testLogger(), testRouterOptions())
	require.NoError(t, err)

	d := NewDriver("mount-driver", testLogger(), testOptions())
	dev := NewDevice("mount")
	sv := &SwitchVector{VectorBase: VectorBase{Name: "CONNECTION", Enabled: true, Permission: PermissionReadWrite}}
	require.NoError(t, dev.AddSwitchVector(sv))
	d.AddDevice(dev)
	d.SetAutoSendDef(true)
	require.NoError(t, r.AddDriver(d))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.ListenAndServe(ctx)

	conn := dialRouter(t, r, ctx)
	defer conn.Close()

	require.NoError(t, writeElement(conn, &GetProperties{Version: protocolVersion, Device: "mount"}))

	f := NewFramer(conn, testLogger())
	ev, err := f.Next()
	require.NoError(t, err)
	def, ok := ev.(*DefSwitchVector)
	require.True(t, ok)
	assert.Equal(t, "mount", def.Device)
}

// TestRouterWritableNumberRoundTrip exercises a write-a-writable-number
// scenario end to end through the router.
func TestRouterWritableNumberRoundTrip(t *testing.T) {
	r, err := NewRouter(testLogger(), testRouterOptions())
	require.NoError(t, err)

	d := NewDriver("mount-driver", testLogger(), testOptions())
	dev := NewDevice("mount")
	nv := &NumberVector{
		VectorBase: VectorBase{Name: "EQUATORIAL_EOD_COORD", Enabled: true, Permission: PermissionReadWrite},
		Members:    []NumberMember{{Name: "RA", Format: "%6.6m"}},
	}
	require.NoError(t, dev.AddNumberVector(nv))
	d.AddDevice(dev)

	applied := make(chan ClientEvent, 1)
	d.OnClientEvent(func(ev ClientEvent) { applied <- ev })
	require.NoError(t, r.AddDriver(d))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.ListenAndServe(ctx)

	conn := dialRouter(t, r, ctx)
	defer conn.Close()

	require.NoError(t, writeElement(conn, &NewNumberVector{
		Device: "mount", Name: "EQUATORIAL_EOD_COORD",
		Numbers: []OneNumber{{Name: "RA", Value: "12:30:00"}},
	}))

	select {
	case ev := <-applied:
		assert.Equal(t, "mount", ev.Device)
		assert.Equal(t, []string{"RA"}, ev.Changed)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for driver to apply newNumberVector")
	}
}

// TestRouterCrossDriverSnoop exercises a cross-driver snoop scenario:
// driver B subscribes to driver A's device and receives A's set*
// traffic without going through a client.
func TestRouterCrossDriverSnoop(t *testing.T) {
	r, err := NewRouter(testLogger(), testRouterOptions())
	require.NoError(t, err)

	weather := NewDriver("weather-driver", testLogger(), testOptions())
	weatherDev := NewDevice("weather")
	conditions := &TextVector{
		VectorBase: VectorBase{Name: "CONDITIONS", Enabled: true, Permission: PermissionReadOnly},
		Members:    []TextMember{{Name: "SKY", Value: "Clear"}},
	}
	require.NoError(t, weatherDev.AddTextVector(conditions))
	weather.AddDevice(weatherDev)
	require.NoError(t, r.AddDriver(weather))

	mount := NewDriver("mount-driver", testLogger(), testOptions())
	snooped := make(chan SnoopEvent, 1)
	mount.OnSnoopEvent(func(ev SnoopEvent) { snooped <- ev })
	require.NoError(t, r.AddDriver(mount))

	ok := mount.SendGetProperties(context.Background(), "weather", "CONDITIONS", 10*time.Second, time.Second, time.Now())
	require.True(t, ok)

	// give the router a moment to process the snoop registration.
	time.Sleep(50 * time.Millisecond)

	ok = weather.SendSet(context.Background(), conditions, SetOptions{Filter: SendFilter{Mode: FilterAll}})
	require.True(t, ok)

	select {
	case ev := <-snooped:
		assert.Equal(t, "weather", ev.Device)
		assert.Equal(t, "CONDITIONS", ev.Vector)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snooped setTextVector")
	}
}

// TestRouterDuplicateDeviceAtRegistrationIsRejected exercises the
// duplicate-device scenario for the case both owners are known up front:
// AddDriver itself reports the collision rather than waiting for routing
// time.
func TestRouterDuplicateDeviceAtRegistrationIsRejected(t *testing.T) {
	r, err := NewRouter(testLogger(), testRouterOptions())
	require.NoError(t, err)

	a := NewDriver("driver-a", testLogger(), testOptions())
	a.AddDevice(NewDevice("cam"))
	require.NoError(t, r.AddDriver(a))

	b := NewDriver("driver-b", testLogger(), testOptions())
	b.AddDevice(NewDevice("cam"))
	err = r.AddDriver(b)
	require.Error(t, err)
	var fatalErr *FatalError
	assert.ErrorAs(t, err, &fatalErr)
}

// TestRouterDuplicateDeviceFromExternalAbortsServer exercises the
// routing-time half of the same scenario: a device discovered later, via
// an owner's outbox traffic, that collides with an already-registered
// device brings ListenAndServe down.
func TestRouterDuplicateDeviceFromExternalAbortsServer(t *testing.T) {
	r, err := NewRouter(testLogger(), testRouterOptions())
	require.NoError(t, err)

	a := NewDriver("driver-a", testLogger(), testOptions())
	a.AddDevice(NewDevice("cam"))
	require.NoError(t, r.AddDriver(a))

	b := NewDriver("driver-b", testLogger(), testOptions())
	require.NoError(t, r.AddDriver(b))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- r.ListenAndServe(ctx) }()

	// b announces "cam" only after being registered, the way an external
	// adapter or remote connection discovers devices dynamically from
	// traffic rather than up-front configuration.
	b.AddDevice(NewDevice("cam"))
	ok := b.SendDef(context.Background(), &SwitchVector{
		VectorBase: VectorBase{Device: "cam", Name: "CONNECTION", Enabled: true},
	})
	require.True(t, ok)

	select {
	case err := <-errCh:
		assert.Error(t, err)
		var fatalErr *FatalError
		assert.ErrorAs(t, err, &fatalErr)
	case <-time.After(2 * time.Second):
		t.Fatal("expected ListenAndServe to return a fatal duplicate-device error")
	}
}

// TestRouterMaxConnectionsRefusesBeyondCapacity exercises the fixed
// client-slot pool: a connection beyond MaxConnections is closed
// immediately rather than queued.
func TestRouterMaxConnectionsRefusesBeyondCapacity(t *testing.T) {
	opts := testRouterOptions()
	opts.MaxConnections = 1
	r, err := NewRouter(testLogger(), opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.ListenAndServe(ctx)

	first := dialRouter(t, r, ctx)
	defer first.Close()
	time.Sleep(50 * time.Millisecond) // let acceptLoop claim the one slot

	second := dialRouter(t, r, ctx)
	defer second.Close()

	buf := make([]byte, 1)
	second.SetReadDeadline(time.Now().Add(time.Second))
	_, err = second.Read(buf)
	assert.Error(t, err) // refused connection reads as EOF/reset
}
