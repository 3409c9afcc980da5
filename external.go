package indiserver

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rickbassham/logging"
)

// ExternalDriver adapts a subprocess speaking the INDI wire protocol over
// stdin/stdout into an Owner, the way a standard INDI server forks driver
// executables. It differs from RemoteConnection in transport — the
// subprocess is a pipe, not a socket — but both embed ownerBase, use the
// same Framer and writeElement, and present the same Owner shape to the
// router.
//
// Devices are not configured up front: the adapter discovers them from
// the def* elements the child announces on startup, the same way a real
// INDI client would.
type ExternalDriver struct {
	ownerBase

	cfg ExternalConfig
	cmd *exec.Cmd

	writeMu sync.Mutex
	stdin   io.WriteCloser

	stopped chan struct{}
	cancel  context.CancelFunc
}

// NewExternalDriver creates an adapter for cfg. Call Start to fork the
// child process.
func NewExternalDriver(id string, log logging.Logger, cfg ExternalConfig, opts Options) *ExternalDriver {
	return &ExternalDriver{
		ownerBase: newOwnerBase(id, log, opts.QueueCapacity, opts.EnqueueTimeout),
		cfg:       cfg,
		stopped:   make(chan struct{}),
	}
}

// Start forks the child process, wires its stdio, and begins the
// read/stderr pumps. A failure of the subprocess after Start succeeds
// does not propagate to the caller; it is logged and this adapter simply
// stops producing traffic while the rest of the server continues.
func (e *ExternalDriver) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	cmd := exec.CommandContext(runCtx, e.cfg.ProgramPath, e.cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return err
	}

	e.cmd = cmd
	e.stdin = stdin

	go e.readLoop(runCtx, NewFramer(stdout, e.log))
	go e.stderrLoop(stderr)

	// Startup injection: ask the child to announce everything it has.
	e.writeToChild(&GetProperties{Version: protocolVersion})

	return nil
}

func (e *ExternalDriver) readLoop(ctx context.Context, f *Framer) {
	defer close(e.stopped)
	for {
		ev, err := f.Next()
		if err != nil {
			if e.log != nil {
				e.log.WithField("program", e.cfg.ProgramPath).WithError(err).Warn("external driver stdout closed")
			}
			return
		}
		if IsDef(ev) {
			if device, ok := DeviceOf(ev); ok && device != "" {
				if _, known := e.device(device); !known {
					placeholder := NewDevice(device)
					if v := PlaceholderVectorFromDef(ev); v != nil {
						_ = placeholder.AddVector(v)
					}
					e.addDevice(placeholder)
				}
			}
		}
		e.enqueue(ctx, ev)
	}
}

func (e *ExternalDriver) stderrLoop(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if e.log != nil {
			e.log.WithField("program", e.cfg.ProgramPath).Error(scanner.Text())
		}
	}
}

// Deliver writes ev to the child's stdin. Called by the router for
// new*Vector and getProperties addressed to one of this adapter's
// devices.
func (e *ExternalDriver) Deliver(ev interface{}) {
	e.writeToChild(ev)
}

func (e *ExternalDriver) writeToChild(ev interface{}) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.stdin == nil {
		return
	}
	if err := writeElement(e.stdin, ev); err != nil && e.log != nil {
		e.log.WithField("program", e.cfg.ProgramPath).WithError(err).Warn("write to external driver failed")
	}
}

// Stop sends SIGTERM to the child and waits up to grace before killing
// it outright, rather than relying on context cancellation's default
// Kill.
func (e *ExternalDriver) Stop(grace time.Duration) {
	if e.cmd == nil || e.cmd.Process == nil {
		return
	}
	_ = e.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = e.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		_ = e.cmd.Process.Kill()
		<-done
	}
	if e.cancel != nil {
		e.cancel()
	}
}
