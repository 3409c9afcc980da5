package indiserver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rickbassham/logging"
)

// RemoteConnection bridges an upstream INDI server into this one's device
// space by dialing out and speaking the same wire protocol this
// framework's own clients speak, generalized here into an Owner rather
// than an application-facing API. It reuses the protocol, not any client
// package.
//
// A RemoteConnection supervises its own reconnect loop: dial, send
// getProperties + enableBLOB, pump frames until the socket dies or goes
// idle, then back off and try again. Each session that ends in an error
// is logged at Warn for the first two and at Error from the third on; the
// count is not reset while Run is looping, since a session ends without
// error only when ctx is canceled.
type RemoteConnection struct {
	ownerBase

	cfg     RemoteConfig
	dialer  func(network, address string) (net.Conn, error)
	backoff time.Duration

	idleTimeout     time.Duration
	responseTimeout time.Duration

	blobs *BLOBStore

	writeMu sync.Mutex
	conn    net.Conn
}

// NewRemoteConnection creates a supervised connection to cfg.Host:cfg.Port.
// Call Run to start the reconnect loop; it blocks until ctx is canceled.
func NewRemoteConnection(id string, log logging.Logger, cfg RemoteConfig, opts Options) *RemoteConnection {
	return &RemoteConnection{
		ownerBase:       newOwnerBase(id, log, opts.QueueCapacity, opts.EnqueueTimeout),
		cfg:             cfg,
		dialer:          net.Dial,
		backoff:         opts.RemoteReconnectBackoff,
		idleTimeout:     opts.RemoteIdleTimeout,
		responseTimeout: opts.RemoteResponseTimeout,
	}
}

// SetBLOBStore enables spooling of BLOB payloads received across this
// remote link to store, the same staging mechanism a directly-owned BLOB
// vector uses. When unset (the default), inbound BLOB data is forwarded
// to the router without being written to disk.
func (r *RemoteConnection) SetBLOBStore(store *BLOBStore) { r.blobs = store }

// Run dials, pumps, and redials until ctx is canceled. It never returns
// early on a connection failure — that is the point of a supervised
// remote link.
func (r *RemoteConnection) Run(ctx context.Context) {
	consecutiveFailures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := r.runOnce(ctx); err != nil {
			consecutiveFailures++
			r.logFailure(err, consecutiveFailures)
		} else {
			consecutiveFailures = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.backoff):
		}
	}
}

func (r *RemoteConnection) logFailure(err error, count int) {
	if r.log == nil {
		return
	}
	entry := r.log.WithField("remote", r.addr()).WithError(err)
	if count >= 3 {
		entry.Error("remote connection repeatedly failing")
		return
	}
	entry.Warn("remote connection failed")
}

func (r *RemoteConnection) addr() string {
	return fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port)
}

// runOnce performs one connect-pump-disconnect cycle. It returns nil only
// if the context was canceled mid-session; any I/O failure or liveness
// timeout returns a non-nil error so Run's backoff applies.
func (r *RemoteConnection) runOnce(ctx context.Context) error {
	conn, err := r.dialer("tcp", r.addr())
	if err != nil {
		return err
	}
	defer conn.Close()

	r.writeMu.Lock()
	r.conn = conn
	r.writeMu.Unlock()
	defer func() {
		r.writeMu.Lock()
		r.conn = nil
		r.writeMu.Unlock()
	}()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.writeToConn(&GetProperties{Version: protocolVersion})
	if r.cfg.BlobPolicy != "" {
		r.writeToConn(&EnableBLOB{Device: "", Value: string(r.cfg.BlobPolicy)})
	}

	events := make(chan interface{}, 1)
	readErr := make(chan error, 1)
	go func() {
		f := NewFramer(conn, r.log)
		for {
			ev, err := f.Next()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case events <- ev:
			case <-sessionCtx.Done():
				return
			}
		}
	}()

	lastHeard := time.Now()
	idle := time.NewTimer(r.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case ev := <-events:
			lastHeard = time.Now()
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(r.idleTimeout)
			r.handleInbound(ctx, ev)
		case <-idle.C:
			if time.Since(lastHeard) >= r.responseTimeout {
				return &TimeoutError{Kind: "response", What: "remote " + r.addr() + " silent past response window"}
			}
			r.writeToConn(&GetProperties{Version: protocolVersion})
			idle.Reset(r.idleTimeout)
		}
	}
}

func (r *RemoteConnection) handleInbound(ctx context.Context, ev interface{}) {
	device, _ := DeviceOf(ev)
	vector, _ := VectorNameOf(ev)
	if IsDef(ev) && device != "" {
		if _, known := r.device(device); !known {
			placeholder := NewDevice(device)
			if v := PlaceholderVectorFromDef(ev); v != nil {
				_ = placeholder.AddVector(v)
			}
			r.addDevice(placeholder)
		}
	}
	if sb, ok := ev.(*SetBLOBVector); ok && r.blobs != nil {
		r.stageInboundBLOBs(sb)
	}
	r.snoop.MarkHeard(device, vector, time.Now())
	r.enqueue(ctx, ev)
}

// stageInboundBLOBs spools every member of an inbound setBLOBVector to
// r.blobs, the way driver.go's stageChangedBLOBs does for a
// directly-owned device, so a large payload bridged from an upstream
// server doesn't have to be held resident just to pass it along.
func (r *RemoteConnection) stageInboundBLOBs(sb *SetBLOBVector) {
	for _, b := range sb.Blobs {
		data, err := decodeBase64(b.Value)
		if err != nil {
			if r.log != nil {
				r.log.WithField("device", sb.Device).WithField("vector", sb.Name).WithError(err).Warn("bad base64 in remote blob")
			}
			continue
		}
		if _, err := r.blobs.Stage(sb.Device, sb.Name, b.Name, b.Format, data); err != nil && r.log != nil {
			r.log.WithField("device", sb.Device).WithField("vector", sb.Name).WithError(err).Warn("failed to stage remote blob")
		}
	}
}

// Deliver writes ev (a new*Vector or getProperties addressed to one of
// this remote's devices) to the upstream socket.
func (r *RemoteConnection) Deliver(ev interface{}) {
	r.writeToConn(ev)
}

func (r *RemoteConnection) writeToConn(ev interface{}) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.conn == nil {
		return
	}
	if err := writeElement(r.conn, ev); err != nil && r.log != nil {
		r.log.WithField("remote", r.addr()).WithError(err).Warn("write to remote failed")
	}
}
